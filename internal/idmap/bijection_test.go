package idmap

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiajunxiong/fix/pkg/db"
)

func TestPutGetBothDirections(t *testing.T) {
	b := New()
	for i := 0; i < 100; i++ {
		k := Key("BUY1", "C"+strconv.Itoa(i))
		v := strconv.Itoa(1000 + i)
		b.Put(k, v)

		got, ok := b.Get(k)
		require.True(t, ok)
		assert.Equal(t, v, got)

		back, ok := b.GetByValue(v)
		require.True(t, ok)
		assert.Equal(t, k, back)
	}
	assert.Equal(t, 100, b.Len())

	_, ok := b.Get("BUY1|missing")
	assert.False(t, ok)
	_, ok = b.GetByValue("missing")
	assert.False(t, ok)
}

func TestPutOverwriteKeepsBijection(t *testing.T) {
	b := New()
	b.Put("a", "1")
	b.Put("a", "2")

	_, ok := b.GetByValue("1")
	assert.False(t, ok, "stale reverse entry left behind")
	v, _ := b.Get("a")
	assert.Equal(t, "2", v)

	b.Put("b", "2")
	_, ok = b.Get("a")
	assert.False(t, ok, "stale forward entry left behind")
	k, _ := b.GetByValue("2")
	assert.Equal(t, "b", k)
	assert.Equal(t, 1, b.Len())
}

func TestRestoreOrderIndependent(t *testing.T) {
	pairs := make([]Pair, 0, 50)
	for i := 0; i < 50; i++ {
		pairs = append(pairs, Pair{Key: Key("S", strconv.Itoa(i)), Value: strconv.Itoa(500 + i)})
	}

	for seed := int64(0); seed < 5; seed++ {
		shuffled := append([]Pair(nil), pairs...)
		rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		b := New()
		b.Restore(shuffled)
		b.Restore(shuffled) // idempotent
		for _, p := range pairs {
			v, ok := b.Get(p.Key)
			require.True(t, ok)
			assert.Equal(t, p.Value, v)
			k, ok := b.GetByValue(p.Value)
			require.True(t, ok)
			assert.Equal(t, p.Key, k)
		}
		assert.Equal(t, len(pairs), b.Len())
	}
}

func TestRestoreFromStore(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	require.NoError(t, store.PutSenderInfo(ctx, "1001", db.SenderInfo{ClientOrderID: "A1", SenderCompID: "BUY1"}))
	require.NoError(t, store.PutSenderInfo(ctx, "1002", db.SenderInfo{ClientOrderID: "A1", SenderCompID: "BUY2"}))

	b := New()
	n, err := b.RestoreFrom(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, ok := b.Get("BUY2|A1")
	require.True(t, ok)
	assert.Equal(t, "1002", v)
}

func TestSplitKey(t *testing.T) {
	sender, id, ok := SplitKey(Key("BUY1", "A|1"))
	require.True(t, ok)
	assert.Equal(t, "BUY1", sender)
	assert.Equal(t, "A|1", id)

	_, _, ok = SplitKey("nosep")
	assert.False(t, ok)
}

func TestResolveMintsOncePerKey(t *testing.T) {
	b := New()
	var minted atomic.Int64
	mint := func(context.Context) (string, error) {
		return strconv.FormatInt(1000+minted.Add(1), 10), nil
	}

	const n = 32
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := b.Resolve(context.Background(), "BUY1|A1", mint, nil)
			if err != nil {
				t.Errorf("Resolve: %v", err)
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), minted.Load())
	for _, v := range results {
		assert.Equal(t, "1001", v)
	}
}

func TestResolvePersistFailureLeavesMapUnchanged(t *testing.T) {
	b := New()
	mint := func(context.Context) (string, error) { return "7", nil }
	persist := func(context.Context, string) error { return errors.New("store down") }

	_, existed, err := b.Resolve(context.Background(), "BUY1|A1", mint, persist)
	require.Error(t, err)
	assert.False(t, existed)
	assert.Equal(t, 0, b.Len())
}

func TestResolveReusesExisting(t *testing.T) {
	b := New()
	b.Put("BUY1|A1", "42")
	mint := func(context.Context) (string, error) {
		t.Fatal("mint must not be called for a known key")
		return "", nil
	}
	persist := func(context.Context, string) error {
		t.Fatal("persist must not be called for a known key")
		return nil
	}

	v, existed, err := b.Resolve(context.Background(), "BUY1|A1", mint, persist)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "42", v)
}
