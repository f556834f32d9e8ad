package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiajunxiong/fix/internal/fixmsg"
	"github.com/jiajunxiong/fix/internal/idgen"
	"github.com/jiajunxiong/fix/internal/idmap"
	"github.com/jiajunxiong/fix/internal/monitor"
	"github.com/jiajunxiong/fix/internal/oms"
	"github.com/jiajunxiong/fix/pkg/config"
	"github.com/jiajunxiong/fix/pkg/db"
)

type captureEngine struct {
	mu     sync.Mutex
	events []oms.Event
	err    error
}

func (c *captureEngine) Submit(_ context.Context, ev oms.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

type fixture struct {
	router  *Router
	ids     *idmap.Bijection
	store   *db.MemoryStore
	engine  *captureEngine
	metrics *monitor.SystemMetrics
}

func testRouting() config.Routing {
	return config.Routing{
		CompID: "FIXROUTER",
		Routes: map[string]string{"EX1": "EXCH1"},
		Buys:   []string{"BUY1", "BUY2"},
		Sells:  []string{"EXCH1"},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ids:     idmap.New(),
		store:   db.NewMemoryStore(),
		engine:  &captureEngine{},
		metrics: monitor.NewSystemMetrics(nil),
	}
	r, err := New(Options{
		Routing:   testRouting(),
		IDs:       f.ids,
		Generator: idgen.New(idgen.NewMemorySequence(1000)),
		Store:     f.store,
		Engine:    f.engine,
		Metrics:   f.metrics,
	})
	require.NoError(t, err)
	f.router = r
	return f
}

func clientMessage(msgType enum.MsgType, sender, clOrdID, dest string) *quickfix.Message {
	m := quickfix.NewMessage()
	m.Header.Set(field.NewBeginString(quickfix.BeginStringFIX44))
	m.Header.Set(field.NewMsgType(msgType))
	m.Header.Set(field.NewSenderCompID(sender))
	m.Header.Set(field.NewTargetCompID("FIXROUTER"))
	m.Body.Set(field.NewClOrdID(clOrdID))
	m.Body.Set(field.NewSymbol("0700"))
	m.Body.Set(field.NewPrice(decimal.NewFromInt(10), 0))
	m.Body.Set(field.NewOrderQty(decimal.NewFromInt(100), 0))
	if dest != "" {
		setRoutingTags(m, dest, "twap", "desk1")
	}
	return m
}

// Routing extension tags as a client writes them.
const (
	clientTagDestination quickfix.Tag = 50000
	clientTagStrategy    quickfix.Tag = 50001
	clientTagTeam        quickfix.Tag = 50002
)

func setRoutingTags(m *quickfix.Message, dest, strategy, team string) {
	for tag, v := range map[quickfix.Tag]string{
		clientTagDestination: dest,
		clientTagStrategy:    strategy,
		clientTagTeam:        team,
	} {
		if v != "" {
			m.Body.SetString(tag, v)
		}
	}
}

func exchangeMessage(msgType enum.MsgType, clOrdID string) *quickfix.Message {
	m := quickfix.NewMessage()
	m.Header.Set(field.NewBeginString(quickfix.BeginStringFIX44))
	m.Header.Set(field.NewMsgType(msgType))
	m.Header.Set(field.NewSenderCompID("EXCH1"))
	m.Header.Set(field.NewTargetCompID("FIXROUTER"))
	m.Body.Set(field.NewClOrdID(clOrdID))
	m.Body.Set(field.NewOrderID("E1"))
	return m
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{Routing: testRouting()})
	assert.Error(t, err)
}

func TestSideOf(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, SideClient, f.router.SideOf("BUY1"))
	assert.Equal(t, SideExchange, f.router.SideOf("EXCH1"))
	assert.Equal(t, SideUnknown, f.router.SideOf("NOBODY"))
}

func TestNewOrderRewrite(t *testing.T) {
	f := newFixture(t)
	m := clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "EX1")

	require.NoError(t, f.router.Dispatch(context.Background(), m))

	require.Len(t, f.engine.events, 1)
	ev, ok := f.engine.events[0].(*oms.NewOrder)
	require.True(t, ok)
	assert.Equal(t, "1001", ev.RouterID)
	assert.Equal(t, "BUY1|A1", ev.ClientKey)
	assert.Equal(t, "EX1", ev.Destination)
	assert.Equal(t, "0700", ev.Symbol)
	assert.True(t, ev.Quantity.Equal(decimal.NewFromInt(100)))

	id, _ := fixmsg.ClOrdID(m)
	assert.Equal(t, "1001", id)
	sender, _ := fixmsg.SenderCompID(m)
	assert.Equal(t, "FIXROUTER", sender)
	assert.Equal(t, "EXCH1", fixmsg.TargetCompID(m))
	assert.False(t, fixmsg.HasRouting(m))

	got, ok := f.ids.Get("BUY1|A1")
	assert.True(t, ok)
	assert.Equal(t, "1001", got)

	info, err := f.store.GetSenderInfo(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, db.SenderInfo{ClientOrderID: "A1", SenderCompID: "BUY1", Strategy: "twap", Team: "desk1"}, info)

	assert.Equal(t, uint64(1), f.metrics.GetSnapshot().MessagesRouted)
}

func TestUnknownDestination(t *testing.T) {
	f := newFixture(t)
	m := clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "NOWHERE")

	err := f.router.Dispatch(context.Background(), m)
	assert.True(t, errors.Is(err, ErrUnknownDestination))
	assert.Empty(t, f.engine.events)
	assert.Zero(t, f.ids.Len())
	assert.Equal(t, uint64(1), f.metrics.GetSnapshot().RouteErrors)
}

func TestUnsupportedClientMessage(t *testing.T) {
	f := newFixture(t)
	m := clientMessage(enum.MsgType_ORDER_STATUS_REQUEST, "BUY1", "A1", "EX1")

	_, _, err := f.router.Route(context.Background(), m)
	assert.ErrorIs(t, err, ErrUnsupportedMessageType)
}

func TestIgnoresUnconfiguredSender(t *testing.T) {
	f := newFixture(t)
	m := clientMessage(enum.MsgType_ORDER_SINGLE, "STRANGER", "A1", "EX1")

	require.NoError(t, f.router.Dispatch(context.Background(), m))
	assert.Empty(t, f.engine.events)
	assert.Equal(t, uint64(1), f.metrics.GetSnapshot().MessagesIgnored)
}

func TestCancelResolvesOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.router.Dispatch(ctx, clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "EX1")))

	cancel := clientMessage(enum.MsgType_ORDER_CANCEL_REQUEST, "BUY1", "C1", "EX1")
	fixmsg.SetOrigClOrdID(cancel, "A1")
	require.NoError(t, f.router.Dispatch(ctx, cancel))

	require.Len(t, f.engine.events, 2)
	ev, ok := f.engine.events[1].(*oms.CancelOrder)
	require.True(t, ok)
	assert.Equal(t, "1002", ev.RouterID)
	assert.Equal(t, "1001", ev.OrigRouterID)
	orig, _ := fixmsg.OrigClOrdID(cancel)
	assert.Equal(t, "1001", orig)
}

func TestReplaceWithUnknownOriginalLeavesMappingUnchanged(t *testing.T) {
	f := newFixture(t)
	m := clientMessage(enum.MsgType_ORDER_CANCEL_REPLACE_REQUEST, "BUY1", "R1", "EX1")
	fixmsg.SetOrigClOrdID(m, "NEVER")

	err := f.router.Dispatch(context.Background(), m)
	assert.ErrorIs(t, err, ErrUnknownOriginalOrder)
	assert.Zero(t, f.ids.Len())
	assert.Empty(t, f.engine.events)
}

func TestReusedClientKeyKeepsRouterID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.router.Dispatch(ctx, clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "EX1")))
	resend := clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "EX1")
	setRoutingTags(resend, "", "vwap", "desk2")
	require.NoError(t, f.router.Dispatch(ctx, resend))

	require.Len(t, f.engine.events, 2)
	assert.Equal(t, "1001", f.engine.events[1].(*oms.NewOrder).RouterID)
	assert.Equal(t, 1, f.ids.Len())

	info, err := f.store.GetSenderInfo(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, "twap", info.Strategy)
	assert.Equal(t, "desk1", info.Team)
}

// stalledStore never answers until the caller gives up.
type stalledStore struct{}

func (stalledStore) PutSenderInfo(ctx context.Context, _ string, _ db.SenderInfo) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledStore) GetSenderInfo(ctx context.Context, _ string) (db.SenderInfo, error) {
	<-ctx.Done()
	return db.SenderInfo{}, ctx.Err()
}

func newStalledRouter(t *testing.T, ids *idmap.Bijection, engine *captureEngine) *Router {
	t.Helper()
	r, err := New(Options{
		Routing:      testRouting(),
		IDs:          ids,
		Generator:    idgen.New(idgen.NewMemorySequence(1000)),
		Store:        stalledStore{},
		Engine:       engine,
		StoreTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	return r
}

func TestStalledStoreTimesOutNewOrder(t *testing.T) {
	ids := idmap.New()
	engine := &captureEngine{}
	r := newStalledRouter(t, ids, engine)

	done := make(chan error, 1)
	go func() {
		done <- r.Dispatch(context.Background(), clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "EX1"))
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not give up on the stalled store")
	}
	assert.Zero(t, ids.Len())
	assert.Empty(t, engine.events)

	// The stripe lock was released: the same key can be retried.
	err := r.Dispatch(context.Background(), clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "EX1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStalledStoreTimesOutExecutionReport(t *testing.T) {
	ids := idmap.New()
	ids.Put(idmap.Key("BUY1", "A1"), "1001")
	engine := &captureEngine{}
	r := newStalledRouter(t, ids, engine)

	err := r.Dispatch(context.Background(), exchangeMessage(enum.MsgType_EXECUTION_REPORT, "1001"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, engine.events)
	assert.Equal(t, 1, ids.Len())
}

func TestExecutionReportRewrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.router.Dispatch(ctx, clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "EX1")))

	er := exchangeMessage(enum.MsgType_EXECUTION_REPORT, "1001")
	er.Body.Set(field.NewExecID("X1"))
	er.Body.Set(field.NewSecurityID("0700"))
	er.Body.Set(field.NewOrdStatus(enum.OrdStatus_PARTIALLY_FILLED))
	er.Body.Set(field.NewExecType(enum.ExecType_TRADE))
	er.Body.Set(field.NewLastPx(decimal.NewFromInt(10), 0))
	er.Body.Set(field.NewLastQty(decimal.NewFromInt(5), 0))
	er.Body.Set(field.NewAvgPx(decimal.NewFromInt(10), 0))
	er.Body.Set(field.NewCumQty(decimal.NewFromInt(5), 0))
	require.NoError(t, f.router.Dispatch(ctx, er))

	require.Len(t, f.engine.events, 2)
	ev, ok := f.engine.events[1].(*oms.ExecutionReport)
	require.True(t, ok)
	assert.Equal(t, "EXCH1", ev.Exchange)
	assert.Equal(t, "E1", ev.OrderID)
	assert.Equal(t, "A1", ev.ClOrdID)
	assert.True(t, ev.Active)
	require.NotNil(t, ev.LastFill)
	require.NotNil(t, ev.Cumulative)
	assert.True(t, ev.Cumulative.Quantity.Equal(decimal.NewFromInt(5)))
	assert.NotZero(t, ev.Timestamp)

	id, _ := fixmsg.ClOrdID(er)
	assert.Equal(t, "A1", id)
	sender, _ := fixmsg.SenderCompID(er)
	assert.Equal(t, "FIXROUTER", sender)
	assert.Equal(t, "BUY1", fixmsg.TargetCompID(er))
}

func TestExecutionReportPrefersSecurityExchange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.router.Dispatch(ctx, clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "EX1")))

	er := exchangeMessage(enum.MsgType_EXECUTION_REPORT, "1001")
	er.Body.Set(field.NewExecID("X1"))
	er.Body.Set(field.NewSecurityExchange("XHKG"))
	er.Body.Set(field.NewOrdStatus(enum.OrdStatus_FILLED))
	require.NoError(t, f.router.Dispatch(ctx, er))

	ev := f.engine.events[1].(*oms.ExecutionReport)
	assert.Equal(t, "XHKG", ev.Exchange)
	assert.False(t, ev.Active)
}

func TestExecutionReportLosesRoutingTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.router.Dispatch(ctx, clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "EX1")))

	er := exchangeMessage(enum.MsgType_EXECUTION_REPORT, "1001")
	er.Body.Set(field.NewExecID("X1"))
	er.Body.Set(field.NewOrdStatus(enum.OrdStatus_NEW))
	setRoutingTags(er, "EX1", "twap", "")
	require.NoError(t, f.router.Dispatch(ctx, er))

	assert.False(t, fixmsg.HasRouting(er))
	require.Len(t, f.engine.events, 2)
}

func TestExecutionReportUnknownOrder(t *testing.T) {
	f := newFixture(t)
	er := exchangeMessage(enum.MsgType_EXECUTION_REPORT, "9999")
	er.Body.Set(field.NewExecID("X1"))

	err := f.router.Dispatch(context.Background(), er)
	assert.ErrorIs(t, err, ErrUnknownOrder)
	assert.Empty(t, f.engine.events)
}

func TestExecutionReportMissingSenderInfo(t *testing.T) {
	f := newFixture(t)
	f.ids.Put("BUY1|A1", "1001")
	er := exchangeMessage(enum.MsgType_EXECUTION_REPORT, "1001")
	er.Body.Set(field.NewExecID("X1"))

	err := f.router.Dispatch(context.Background(), er)
	assert.ErrorIs(t, err, ErrMissingSenderInfo)
}

func TestCancelRejectVariants(t *testing.T) {
	tests := []struct {
		name       string
		responseTo enum.CxlRejResponseTo
		want       oms.Kind
	}{
		{"cancel", enum.CxlRejResponseTo_ORDER_CANCEL_REQUEST, oms.KindCancelReject},
		{"replace", enum.CxlRejResponseTo_ORDER_CANCEL_REPLACE_REQUEST, oms.KindReplaceReject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.router.Dispatch(ctx, clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "EX1")))
			cancel := clientMessage(enum.MsgType_ORDER_CANCEL_REQUEST, "BUY1", "C1", "EX1")
			fixmsg.SetOrigClOrdID(cancel, "A1")
			require.NoError(t, f.router.Dispatch(ctx, cancel))

			rej := exchangeMessage(enum.MsgType_ORDER_CANCEL_REJECT, "1002")
			fixmsg.SetOrigClOrdID(rej, "1001")
			rej.Body.Set(field.NewOrdStatus(enum.OrdStatus_NEW))
			rej.Body.Set(field.NewCxlRejResponseTo(tt.responseTo))
			require.NoError(t, f.router.Dispatch(ctx, rej))

			require.Len(t, f.engine.events, 3)
			ev := f.engine.events[2]
			assert.Equal(t, tt.want, ev.Kind())

			id, _ := fixmsg.ClOrdID(rej)
			assert.Equal(t, "C1", id)
			orig, _ := fixmsg.OrigClOrdID(rej)
			assert.Equal(t, "A1", orig)
		})
	}
}

func TestUnsupportedExchangeMessage(t *testing.T) {
	f := newFixture(t)
	m := exchangeMessage(enum.MsgType_ORDER_SINGLE, "1001")

	_, side, err := f.router.Route(context.Background(), m)
	assert.Equal(t, SideExchange, side)
	assert.ErrorIs(t, err, ErrUnsupportedMessageType)
}

func TestAppRejectsWhenEngineFull(t *testing.T) {
	f := newFixture(t)
	f.engine.err = oms.ErrQueueFull
	app := NewApp(context.Background(), f.router, nil)

	rej := app.FromApp(clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "EX1"), quickfix.SessionID{})
	require.NotNil(t, rej)
	assert.True(t, rej.IsBusinessReject())
}

func TestAppDropsRoutingErrors(t *testing.T) {
	f := newFixture(t)
	app := NewApp(context.Background(), f.router, nil)

	rej := app.FromApp(clientMessage(enum.MsgType_ORDER_SINGLE, "BUY1", "A1", "NOWHERE"), quickfix.SessionID{})
	assert.Nil(t, rej)
	assert.Empty(t, f.engine.events)
}
