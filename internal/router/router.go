// Package router rewrites FIX messages between buy-side clients and
// exchanges and hands each one to the OMS engine as a typed event.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"

	"github.com/jiajunxiong/fix/internal/fixmsg"
	"github.com/jiajunxiong/fix/internal/idgen"
	"github.com/jiajunxiong/fix/internal/idmap"
	"github.com/jiajunxiong/fix/internal/monitor"
	"github.com/jiajunxiong/fix/internal/oms"
	"github.com/jiajunxiong/fix/pkg/config"
	"github.com/jiajunxiong/fix/pkg/db"
)

// Side is the role of a message's sender.
type Side int

const (
	SideUnknown Side = iota
	SideClient
	SideExchange
)

func (s Side) String() string {
	switch s {
	case SideClient:
		return "client"
	case SideExchange:
		return "exchange"
	default:
		return "unknown"
	}
}

// SenderStore is the slice of db.Store the router needs.
type SenderStore interface {
	PutSenderInfo(ctx context.Context, routerID string, info db.SenderInfo) error
	GetSenderInfo(ctx context.Context, routerID string) (db.SenderInfo, error)
}

// Submitter accepts events for the engine.
type Submitter interface {
	Submit(ctx context.Context, ev oms.Event) error
}

// Options wires a Router.
type Options struct {
	Routing   config.Routing
	IDs       *idmap.Bijection
	Generator *idgen.Generator
	Store     SenderStore
	Engine    Submitter
	Log       *zap.Logger
	Metrics   *monitor.SystemMetrics

	// StoreTimeout bounds each id mint and SenderInfo round trip.
	StoreTimeout time.Duration
}

const defaultStoreTimeout = 2 * time.Second

// Router owns side detection and id translation. It is safe for concurrent
// use by FIX session callbacks.
type Router struct {
	compID string
	routes map[string]string
	buys   map[string]struct{}
	sells  map[string]struct{}

	ids     *idmap.Bijection
	gen     *idgen.Generator
	store   SenderStore
	engine  Submitter
	log     *zap.Logger
	metrics *monitor.SystemMetrics

	storeTimeout time.Duration
}

func New(opts Options) (*Router, error) {
	if opts.IDs == nil || opts.Generator == nil || opts.Store == nil || opts.Engine == nil {
		return nil, errors.New("router: ids, generator, store and engine are required")
	}
	if err := opts.Routing.Validate(); err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	r := &Router{
		compID:  opts.Routing.CompID,
		routes:  make(map[string]string, len(opts.Routing.Routes)),
		buys:    toSet(opts.Routing.Buys),
		sells:   toSet(opts.Routing.Sells),
		ids:     opts.IDs,
		gen:     opts.Generator,
		store:   opts.Store,
		engine:  opts.Engine,
		log:     opts.Log,
		metrics: opts.Metrics,

		storeTimeout: opts.StoreTimeout,
	}
	for name, target := range opts.Routing.Routes {
		r.routes[name] = target
	}
	if r.compID == "" {
		r.compID = config.DefaultCompID
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.storeTimeout <= 0 {
		r.storeTimeout = defaultStoreTimeout
	}
	return r, nil
}

// SideOf classifies a sender comp id.
func (r *Router) SideOf(sender string) Side {
	if _, ok := r.buys[sender]; ok {
		return SideClient
	}
	if _, ok := r.sells[sender]; ok {
		return SideExchange
	}
	return SideUnknown
}

// Route rewrites m in place and returns the event it produced. Messages
// from unconfigured senders yield a nil event and no error.
func (r *Router) Route(ctx context.Context, m *quickfix.Message) (oms.Event, Side, error) {
	sender, err := fixmsg.SenderCompID(m)
	if err != nil {
		return nil, SideUnknown, err
	}
	side := r.SideOf(sender)
	switch side {
	case SideClient:
		ev, err := r.fromClient(ctx, sender, m)
		return ev, side, err
	case SideExchange:
		ev, err := r.fromExchange(ctx, sender, m)
		return ev, side, err
	default:
		return nil, side, nil
	}
}

// Dispatch routes m and submits the resulting event to the engine.
func (r *Router) Dispatch(ctx context.Context, m *quickfix.Message) error {
	start := time.Now()
	ev, side, err := r.Route(ctx, m)
	if err != nil {
		r.recordError(err)
		return err
	}
	if ev == nil {
		if r.metrics != nil {
			r.metrics.RecordIgnored()
		}
		return nil
	}
	if err := r.engine.Submit(ctx, ev); err != nil {
		return fmt.Errorf("submit %s: %w", ev.Kind(), err)
	}
	if r.metrics != nil {
		r.metrics.RecordRouted(side.String(), ev.Kind().String(), time.Since(start))
	}
	return nil
}

// Routes returns a copy of the route table.
func (r *Router) Routes() map[string]string {
	out := make(map[string]string, len(r.routes))
	for k, v := range r.routes {
		out[k] = v
	}
	return out
}

// storeContext bounds a store call so a stalled backend cannot hold a
// session goroutine or an id stripe lock.
func (r *Router) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.storeTimeout)
}

func (r *Router) recordError(err error) {
	if r.metrics != nil {
		r.metrics.RecordRouteError(reason(err))
	}
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, s := range items {
		out[s] = struct{}{}
	}
	return out
}
