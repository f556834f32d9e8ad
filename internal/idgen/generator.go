// Package idgen mints router order ids from a durable shared counter.
package idgen

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
)

// Sequence is an atomic increment-and-get counter.
// Implementations: kv.Counter (Redis), db.Sequence (SQLite), MemorySequence.
type Sequence interface {
	Increment(ctx context.Context) (int64, error)
}

// Floorer is implemented by sequences that can be raised to a minimum.
type Floorer interface {
	Floor(ctx context.Context, floor int64) error
}

// Generator formats sequence values as base-10 router ids.
type Generator struct {
	seq Sequence
}

func New(seq Sequence) *Generator {
	return &Generator{seq: seq}
}

// NextID returns an id strictly greater than every id handed out before.
func (g *Generator) NextID(ctx context.Context) (string, error) {
	v, err := g.seq.Increment(ctx)
	if err != nil {
		return "", fmt.Errorf("next id: %w", err)
	}
	return strconv.FormatInt(v, 10), nil
}

// Seed raises the underlying counter to floor when the sequence supports it.
func (g *Generator) Seed(ctx context.Context, floor int64) error {
	if floor <= 0 {
		return nil
	}
	f, ok := g.seq.(Floorer)
	if !ok {
		return fmt.Errorf("sequence %T cannot be seeded", g.seq)
	}
	return f.Floor(ctx, floor)
}

// MemorySequence is a process-local Sequence.
type MemorySequence struct {
	v atomic.Int64
}

func NewMemorySequence(start int64) *MemorySequence {
	s := &MemorySequence{}
	s.v.Store(start)
	return s
}

func (s *MemorySequence) Increment(context.Context) (int64, error) {
	return s.v.Add(1), nil
}

func (s *MemorySequence) Floor(_ context.Context, floor int64) error {
	for {
		cur := s.v.Load()
		if cur >= floor || s.v.CompareAndSwap(cur, floor) {
			return nil
		}
	}
}
