package oms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"

	"github.com/jiajunxiong/fix/internal/events"
	"github.com/jiajunxiong/fix/internal/monitor"
	"github.com/jiajunxiong/fix/pkg/db"
)

const defaultStoreTimeout = 2 * time.Second

// Broadcaster publishes entity snapshots. It must not block.
type Broadcaster interface {
	Broadcast(kind events.Event, v any)
}

// Options wires the engine's collaborators.
type Options struct {
	Store        db.Store
	Queue        *Queue
	Broadcaster  Broadcaster
	Sender       Sender
	Log          *zap.Logger
	Metrics      *monitor.SystemMetrics
	StoreTimeout time.Duration
}

// Engine is the only writer of Order, Position and Trade records. Events
// are applied one at a time in queue order.
type Engine struct {
	store        db.Store
	queue        *Queue
	broadcast    Broadcaster
	sender       Sender
	log          *zap.Logger
	metrics      *monitor.SystemMetrics
	storeTimeout time.Duration

	done chan struct{}
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: store not configured")
	}
	if opts.Queue == nil {
		return nil, errors.New("engine: queue not configured")
	}
	if opts.Sender == nil {
		return nil, errors.New("engine: sender not configured")
	}
	e := &Engine{
		store:        opts.Store,
		queue:        opts.Queue,
		broadcast:    opts.Broadcaster,
		sender:       opts.Sender,
		log:          opts.Log,
		metrics:      opts.Metrics,
		storeTimeout: opts.StoreTimeout,
		done:         make(chan struct{}),
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.storeTimeout <= 0 {
		e.storeTimeout = defaultStoreTimeout
	}
	return e, nil
}

// Submit hands an event to the engine queue under the queue's overflow
// policy.
func (e *Engine) Submit(ctx context.Context, ev Event) error {
	if err := e.queue.Enqueue(ctx, ev); err != nil {
		if e.metrics != nil {
			e.metrics.RecordEnqueueRejected()
		}
		return err
	}
	return nil
}

// Run processes events until the queue is closed and empty or ctx is done.
// Call it from exactly one goroutine.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	e.log.Info("engine started",
		zap.Int("queue_capacity", e.queue.Cap()),
		zap.Stringer("policy", e.queue.Policy()))
	e.queue.Drain(ctx, func(ev Event) {
		e.handle(ctx, ev)
	})
	e.log.Info("engine stopped", zap.Int("pending", e.queue.Len()))
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) handle(ctx context.Context, ev Event) {
	start := time.Now()
	err := e.safeProcess(ctx, ev)
	if e.metrics != nil {
		e.metrics.RecordEvent(ev.Kind().String(), time.Since(start), err)
	}
	if err != nil {
		e.log.Error("event failed", zap.Stringer("kind", ev.Kind()), zap.Error(err))
	}
}

func (e *Engine) safeProcess(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing %s: %v", ev.Kind(), r)
		}
	}()
	// A dequeued event runs to completion even during shutdown.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.storeTimeout)
	defer cancel()
	return e.process(pctx, ev)
}

func (e *Engine) process(ctx context.Context, ev Event) error {
	switch v := ev.(type) {
	case *ExecutionReport:
		return e.onExecutionReport(ctx, v)
	case *CancelReject:
		return e.onReject(ctx, v.RejectDetails, v.Msg)
	case *ReplaceReject:
		return e.onReject(ctx, v.RejectDetails, v.Msg)
	case *NewOrder, *CancelOrder, *ReplaceOrder:
		return e.forward(ev)
	default:
		return fmt.Errorf("unhandled event %T", ev)
	}
}

// ----------------------------------------
// Execution reports
// ----------------------------------------

func (e *Engine) onExecutionReport(ctx context.Context, er *ExecutionReport) error {
	order, err := e.loadOrder(ctx, er.OrderID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		order = newOrder(er)
	case err != nil:
		return err
	}

	prev := applyReport(&order, er)
	dq, da := positionDelta(prev, order.Exec)

	posID := db.PositionID(order.Exchange, order.Symbol)
	pos, err := e.loadPosition(ctx, posID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		pos = db.Position{ID: posID}
	case err != nil:
		return err
	}
	pos = pos.Add(dq, da)

	batch := db.Batch{Order: &order, Position: &pos, Trade: tradeFor(er)}
	if err := e.commit(ctx, batch); err != nil {
		return fmt.Errorf("order %s: %w", order.ID, err)
	}

	e.publish(events.EventOrder, order)
	e.publish(events.EventPosition, pos)
	if batch.Trade != nil {
		e.publish(events.EventTrade, *batch.Trade)
	}

	if ce := e.log.Check(zap.DebugLevel, "execution report applied"); ce != nil {
		ce.Write(
			zap.String("order_id", order.ID),
			zap.String("status", order.Exec.Status),
			zap.Int("version", order.Version),
			zap.String("cum_qty", order.Exec.Cumulative.Quantity.String()),
			zap.String("position", posID),
		)
	}
	return e.forward(er)
}

// ----------------------------------------
// Rejects
// ----------------------------------------

func (e *Engine) onReject(ctx context.Context, d RejectDetails, msg *quickfix.Message) error {
	order, err := e.loadOrder(ctx, d.OrderID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		order = placeholderOrder(d.OrderID, d.Exchange)
	case err != nil:
		return err
	}
	e.log.Info("request rejected by exchange",
		zap.String("order_id", d.OrderID),
		zap.String("cl_ord_id", d.ClOrdID),
		zap.String("orig_cl_ord_id", d.OrigClOrdID),
		zap.String("response_to", d.ResponseTo))
	e.publish(events.EventOrder, order)
	return e.send(msg)
}

// ----------------------------------------
// helpers
// ----------------------------------------

func (e *Engine) forward(ev Event) error {
	return e.send(ev.Message())
}

func (e *Engine) send(msg *quickfix.Message) error {
	if msg == nil {
		return nil
	}
	if err := e.sender.Send(msg); err != nil {
		return fmt.Errorf("forward: %w", err)
	}
	return nil
}

func (e *Engine) loadOrder(ctx context.Context, id string) (db.Order, error) {
	start := time.Now()
	o, err := e.store.GetOrder(ctx, id)
	e.recordStore("get_order", start)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return o, fmt.Errorf("load order %s: %w", id, err)
	}
	return o, err
}

func (e *Engine) loadPosition(ctx context.Context, id string) (db.Position, error) {
	start := time.Now()
	p, err := e.store.GetPosition(ctx, id)
	e.recordStore("get_position", start)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return p, fmt.Errorf("load position %s: %w", id, err)
	}
	return p, err
}

func (e *Engine) commit(ctx context.Context, b db.Batch) error {
	start := time.Now()
	err := e.store.Commit(ctx, b)
	e.recordStore("commit", start)
	return err
}

func (e *Engine) recordStore(op string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordStore(op, time.Since(start))
	}
}

func (e *Engine) publish(kind events.Event, v any) {
	if e.broadcast != nil {
		e.broadcast.Broadcast(kind, v)
	}
}
