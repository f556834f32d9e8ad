package db

import (
	"context"
	"sort"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store for dry runs and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	senders   map[string]SenderInfo
	order     []string // sender insertion order
	orders    map[string]Order
	positions map[string]Position
	trades    map[string]Trade
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		senders:   make(map[string]SenderInfo),
		orders:    make(map[string]Order),
		positions: make(map[string]Position),
		trades:    make(map[string]Trade),
	}
}

func (m *MemoryStore) PutSenderInfo(_ context.Context, routerID string, info SenderInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.senders[routerID]; !ok {
		m.order = append(m.order, routerID)
	}
	m.senders[routerID] = info
	return nil
}

func (m *MemoryStore) GetSenderInfo(_ context.Context, routerID string) (SenderInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.senders[routerID]
	if !ok {
		return SenderInfo{}, ErrNotFound
	}
	return info, nil
}

func (m *MemoryStore) ScanSenderInfo(ctx context.Context, fn SenderVisitor) error {
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	snapshot := make(map[string]SenderInfo, len(m.senders))
	for k, v := range m.senders {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id, snapshot[id]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *MemoryStore) GetPosition(_ context.Context, id string) (Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[id]
	if !ok {
		return Position{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) ListPositions(_ context.Context) ([]Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetTrade(_ context.Context, execID string) (Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trades[execID]
	if !ok {
		return Trade{}, ErrNotFound
	}
	return t, nil
}

// Commit applies the whole batch under one lock.
func (m *MemoryStore) Commit(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.Order != nil {
		m.orders[b.Order.ID] = cloneOrder(*b.Order)
	}
	if b.Position != nil {
		m.positions[b.Position.ID] = *b.Position
	}
	if b.Trade != nil {
		m.trades[b.Trade.ID] = *b.Trade
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// cloneOrder detaches the slice and pointer fields so callers cannot mutate
// stored state.
func cloneOrder(o Order) Order {
	if o.PrevVersions != nil {
		o.PrevVersions = append([]PQ(nil), o.PrevVersions...)
	}
	if o.Exec.LastFill != nil {
		lf := *o.Exec.LastFill
		o.Exec.LastFill = &lf
	}
	return o
}
