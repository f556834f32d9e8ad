package db

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store getters when the key is absent.
var ErrNotFound = errors.New("not found")

// Batch is the set of entity writes produced by one engine event.
// A Store applies it all-or-nothing.
type Batch struct {
	Order    *Order
	Position *Position
	Trade    *Trade
}

// Empty reports whether the batch carries no writes.
func (b Batch) Empty() bool {
	return b.Order == nil && b.Position == nil && b.Trade == nil
}

// SenderVisitor is called once per persisted SenderInfo during a scan.
type SenderVisitor func(routerID string, info SenderInfo) error

// Store is the durable table contract shared by the router and the OMS.
// Only the OMS engine calls Commit; only the router calls PutSenderInfo.
type Store interface {
	PutSenderInfo(ctx context.Context, routerID string, info SenderInfo) error
	GetSenderInfo(ctx context.Context, routerID string) (SenderInfo, error)
	ScanSenderInfo(ctx context.Context, fn SenderVisitor) error

	GetOrder(ctx context.Context, id string) (Order, error)
	GetPosition(ctx context.Context, id string) (Position, error)
	GetTrade(ctx context.Context, execID string) (Trade, error)
	ListPositions(ctx context.Context) ([]Position, error)

	Commit(ctx context.Context, b Batch) error
	Close() error
}
