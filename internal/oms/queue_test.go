package oms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyBlock, false},
		{"block", PolicyBlock, false},
		{" Reject ", PolicyReject, false},
		{"drop-oldest", PolicyBlock, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueueRejectPolicyFailsFast(t *testing.T) {
	q := NewQueue(1, PolicyReject, time.Second)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &NewOrder{RouterID: "1"}))
	start := time.Now()
	err := q.Enqueue(ctx, &NewOrder{RouterID: "2"})
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, uint64(1), q.Rejected())
	assert.Equal(t, 1, q.Len())
}

func TestQueueBlockPolicyTimesOut(t *testing.T) {
	q := NewQueue(1, PolicyBlock, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &NewOrder{RouterID: "1"}))
	err := q.Enqueue(ctx, &NewOrder{RouterID: "2"})
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Equal(t, uint64(1), q.Rejected())
}

func TestQueueBlockPolicyWaitsForRoom(t *testing.T) {
	q := NewQueue(1, PolicyBlock, 2*time.Second)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &NewOrder{RouterID: "1"}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-q.ch
	}()
	require.NoError(t, q.Enqueue(ctx, &NewOrder{RouterID: "2"}))

	ev := <-q.ch
	assert.Equal(t, "2", ev.(*NewOrder).RouterID)
}

func TestQueueCloseKeepsBufferedEvents(t *testing.T) {
	q := NewQueue(4, PolicyBlock, time.Second)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, q.Enqueue(ctx, &NewOrder{RouterID: id}))
	}
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Enqueue(ctx, &NewOrder{RouterID: "4"}), ErrQueueClosed)

	var got []string
	q.Drain(ctx, func(ev Event) {
		got = append(got, ev.(*NewOrder).RouterID)
	})
	assert.Equal(t, []string{"1", "2", "3"}, got)
}
