// Package idmap keeps the two-way mapping between client keys
// (senderCompID|clOrdID) and router-minted order ids.
package idmap

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jiajunxiong/fix/pkg/db"
)

const keySep = "|"

// Key builds the client key for an order id sent by sender.
func Key(sender, clOrdID string) string {
	return sender + keySep + clOrdID
}

// SplitKey returns the sender and client order id of a client key.
func SplitKey(k string) (sender, clOrdID string, ok bool) {
	return strings.Cut(k, keySep)
}

// Pair is one persisted mapping.
type Pair struct {
	Key   string
	Value string
}

// Bijection maps client keys to router ids and back. Both directions stay
// unique: Put drops any older entry sharing either side.
type Bijection struct {
	mu      sync.RWMutex
	forward map[string]string
	reverse map[string]string

	locks keyLocks
}

func New() *Bijection {
	return &Bijection{
		forward: make(map[string]string),
		reverse: make(map[string]string),
	}
}

// Put maps k to v, last write wins.
func (b *Bijection) Put(k, v string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putLocked(k, v)
}

func (b *Bijection) putLocked(k, v string) {
	if old, ok := b.forward[k]; ok && old != v {
		delete(b.reverse, old)
	}
	if oldK, ok := b.reverse[v]; ok && oldK != k {
		delete(b.forward, oldK)
	}
	b.forward[k] = v
	b.reverse[v] = k
}

// Get returns the router id for a client key.
func (b *Bijection) Get(k string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.forward[k]
	return v, ok
}

// GetByValue returns the client key for a router id.
func (b *Bijection) GetByValue(v string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	k, ok := b.reverse[v]
	return k, ok
}

// Len returns the number of live mappings.
func (b *Bijection) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.forward)
}

// Restore bulk-loads pairs. Order does not matter and replaying the same
// pairs twice is a no-op.
func (b *Bijection) Restore(pairs []Pair) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range pairs {
		b.putLocked(p.Key, p.Value)
	}
}

// SenderScanner iterates persisted sender records.
type SenderScanner interface {
	ScanSenderInfo(ctx context.Context, fn db.SenderVisitor) error
}

// RestoreFrom rebuilds the bijection from every persisted SenderInfo and
// returns how many records were replayed. It must finish before the FIX
// sessions start.
func (b *Bijection) RestoreFrom(ctx context.Context, s SenderScanner) (int, error) {
	var pairs []Pair
	err := s.ScanSenderInfo(ctx, func(routerID string, info db.SenderInfo) error {
		pairs = append(pairs, Pair{Key: Key(info.SenderCompID, info.ClientOrderID), Value: routerID})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("restore bijection: %w", err)
	}
	b.Restore(pairs)
	return len(pairs), nil
}

// Resolve returns the router id for k, minting one when k is unseen.
// persist runs only for a freshly minted id and before the mapping is
// published; if it fails nothing is put. A known key is returned as is so
// its persisted record is never rewritten.
// The whole sequence holds a lock on k so concurrent callers with the same
// key observe a single id.
func (b *Bijection) Resolve(
	ctx context.Context,
	k string,
	mint func(context.Context) (string, error),
	persist func(ctx context.Context, routerID string) error,
) (routerID string, existed bool, err error) {
	unlock := b.locks.lock(k)
	defer unlock()

	routerID, existed = b.Get(k)
	if existed {
		return routerID, true, nil
	}
	routerID, err = mint(ctx)
	if err != nil {
		return "", false, fmt.Errorf("mint id for %s: %w", k, err)
	}
	if persist != nil {
		if err := persist(ctx, routerID); err != nil {
			return "", false, err
		}
	}
	b.Put(k, routerID)
	return routerID, false, nil
}
