package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"

	"github.com/jiajunxiong/fix/internal/fixmsg"
	"github.com/jiajunxiong/fix/internal/idmap"
	"github.com/jiajunxiong/fix/internal/oms"
	"github.com/jiajunxiong/fix/pkg/db"
)

// fromExchange handles ExecutionReport and OrderCancelReject from a
// sell-side session.
func (r *Router) fromExchange(ctx context.Context, sender string, m *quickfix.Message) (oms.Event, error) {
	msgType, err := fixmsg.MsgType(m)
	if err != nil {
		return nil, err
	}
	switch enum.MsgType(msgType) {
	case enum.MsgType_EXECUTION_REPORT, enum.MsgType_ORDER_CANCEL_REJECT:
	default:
		return nil, fmt.Errorf("%s from exchange %s: %w", msgType, sender, ErrUnsupportedMessageType)
	}

	routerID, err := fixmsg.ClOrdID(m)
	if err != nil {
		return nil, err
	}
	clientClOrdID, err := r.clientOrderID(routerID)
	if err != nil {
		return nil, err
	}
	sctx, cancel := r.storeContext(ctx)
	info, err := r.store.GetSenderInfo(sctx, routerID)
	cancel()
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("router id %s: %w", routerID, ErrMissingSenderInfo)
	}
	if err != nil {
		return nil, fmt.Errorf("load sender info %s: %w", routerID, err)
	}

	var clientOrig string
	if orig, ok := fixmsg.OrigClOrdID(m); ok {
		clientOrig, err = r.clientOrderID(orig)
		if err != nil {
			return nil, err
		}
	}

	// Router-private tags never reach a client, whoever set them.
	if fixmsg.HasRouting(m) {
		r.log.Warn("exchange message carried routing tags",
			zap.String("exchange", sender),
			zap.String("router_id", routerID))
		fixmsg.StripRouting(m)
	}

	exchange := fixmsg.SecurityExchange(m)
	if exchange == "" {
		exchange = sender
	}

	fixmsg.SetClOrdID(m, clientClOrdID)
	if clientOrig != "" {
		fixmsg.SetOrigClOrdID(m, clientOrig)
	}
	fixmsg.SetSession(m, r.compID, info.SenderCompID)

	if enum.MsgType(msgType) == enum.MsgType_ORDER_CANCEL_REJECT {
		details := oms.RejectDetails{
			Exchange:    exchange,
			OrderID:     fixmsg.OrderID(m),
			ClOrdID:     clientClOrdID,
			OrigClOrdID: clientOrig,
			Status:      fixmsg.OrdStatus(m),
			ResponseTo:  fixmsg.CxlRejResponseTo(m),
		}
		if details.ResponseTo == string(enum.CxlRejResponseTo_ORDER_CANCEL_REPLACE_REQUEST) {
			return &oms.ReplaceReject{RejectDetails: details, Msg: m}, nil
		}
		return &oms.CancelReject{RejectDetails: details, Msg: m}, nil
	}
	return executionReport(m, exchange, clientClOrdID)
}

// clientOrderID maps a router id back to the client's own order id.
func (r *Router) clientOrderID(routerID string) (string, error) {
	key, ok := r.ids.GetByValue(routerID)
	if !ok {
		return "", fmt.Errorf("router id %s: %w", routerID, ErrUnknownOrder)
	}
	_, clOrdID, ok := idmap.SplitKey(key)
	if !ok {
		return "", fmt.Errorf("malformed client key %q: %w", key, ErrUnknownOrder)
	}
	return clOrdID, nil
}

func executionReport(m *quickfix.Message, exchange, clOrdID string) (*oms.ExecutionReport, error) {
	execID, err := fixmsg.ExecID(m)
	if err != nil {
		return nil, err
	}
	price, err := fixmsg.Price(m)
	if err != nil {
		return nil, err
	}
	qty, err := fixmsg.OrderQty(m)
	if err != nil {
		return nil, err
	}
	er := &oms.ExecutionReport{
		Exchange: exchange,
		ExecID:   execID,
		OrderID:  fixmsg.OrderID(m),
		ClOrdID:  clOrdID,
		Symbol:   fixmsg.Instrument(m),
		Price:    price,
		Quantity: qty,
		Status:   fixmsg.OrdStatus(m),
		ExecType: fixmsg.ExecType(m),
		Msg:      m,
	}
	er.Active = !oms.IsTerminal(er.Status)

	lpx, lqty, ok, err := fixmsg.LastFill(m)
	if err != nil {
		return nil, err
	}
	if ok {
		pq := db.NewPQ(lpx, lqty)
		er.LastFill = &pq
	}
	apx, cqty, ok, err := fixmsg.Cumulative(m)
	if err != nil {
		return nil, err
	}
	if ok {
		pq := db.NewPQ(apx, cqty)
		er.Cumulative = &pq
	}

	ts, ok, err := fixmsg.TransactTimeMillis(m)
	if err != nil {
		return nil, err
	}
	if !ok {
		ts = time.Now().UnixMilli()
	}
	er.Timestamp = ts
	return er, nil
}
