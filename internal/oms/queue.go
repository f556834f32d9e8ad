package oms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrQueueFull   = errors.New("engine queue full")
	ErrQueueClosed = errors.New("engine queue closed")
)

// Policy decides what Enqueue does when the queue is full.
type Policy int

const (
	// PolicyBlock waits for room up to the enqueue timeout.
	PolicyBlock Policy = iota
	// PolicyReject fails immediately.
	PolicyReject
)

func (p Policy) String() string {
	if p == PolicyReject {
		return "reject"
	}
	return "block"
}

// ParsePolicy accepts "block" or "reject".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return PolicyBlock, nil
	case "reject":
		return PolicyReject, nil
	default:
		return PolicyBlock, fmt.Errorf("unknown queue policy %q", s)
	}
}

// Queue buffers events between the transport callbacks and the engine.
// It is bounded; nothing is ever dropped silently.
type Queue struct {
	ch      chan Event
	policy  Policy
	timeout time.Duration

	mu     sync.RWMutex
	closed bool

	rejected atomic.Uint64
}

func NewQueue(size int, policy Policy, timeout time.Duration) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{ch: make(chan Event, size), policy: policy, timeout: timeout}
}

// Enqueue appends ev in arrival order. It returns ErrQueueFull when the
// policy gives up and ErrQueueClosed after Close.
func (q *Queue) Enqueue(ctx context.Context, ev Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ch <- ev:
		return nil
	default:
	}
	if q.policy == PolicyReject {
		q.rejected.Add(1)
		return ErrQueueFull
	}

	var expired <-chan time.Time
	if q.timeout > 0 {
		t := time.NewTimer(q.timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case q.ch <- ev:
		return nil
	case <-expired:
		q.rejected.Add(1)
		return fmt.Errorf("%w: waited %s", ErrQueueFull, q.timeout)
	case <-ctx.Done():
		q.rejected.Add(1)
		return fmt.Errorf("%w: %v", ErrQueueFull, ctx.Err())
	}
}

// Close stops new enqueues; buffered events stay readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

func (q *Queue) Len() int         { return len(q.ch) }
func (q *Queue) Cap() int         { return cap(q.ch) }
func (q *Queue) Policy() Policy   { return q.policy }
func (q *Queue) Rejected() uint64 { return q.rejected.Load() }

// Drain consumes events with a handler until context is canceled or the
// queue is closed and empty.
func (q *Queue) Drain(ctx context.Context, handler func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-q.ch:
			if !ok {
				return
			}
			handler(ev)
		}
	}
}
