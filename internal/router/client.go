package router

import (
	"context"
	"fmt"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"

	"github.com/jiajunxiong/fix/internal/fixmsg"
	"github.com/jiajunxiong/fix/internal/idmap"
	"github.com/jiajunxiong/fix/internal/oms"
	"github.com/jiajunxiong/fix/pkg/db"
)

// fromClient handles NewOrderSingle, OrderCancelRequest and
// OrderCancelReplaceRequest from a buy-side session.
func (r *Router) fromClient(ctx context.Context, sender string, m *quickfix.Message) (oms.Event, error) {
	msgType, err := fixmsg.MsgType(m)
	if err != nil {
		return nil, err
	}
	switch enum.MsgType(msgType) {
	case enum.MsgType_ORDER_SINGLE, enum.MsgType_ORDER_CANCEL_REQUEST, enum.MsgType_ORDER_CANCEL_REPLACE_REQUEST:
	default:
		return nil, fmt.Errorf("%s from client %s: %w", msgType, sender, ErrUnsupportedMessageType)
	}

	routing := fixmsg.ReadRouting(m)
	target, ok := r.routes[routing.Destination]
	if !ok {
		return nil, fmt.Errorf("destination %q from %s: %w", routing.Destination, sender, ErrUnknownDestination)
	}

	clOrdID, err := fixmsg.ClOrdID(m)
	if err != nil {
		return nil, err
	}

	// The original reference is checked before anything is minted so a
	// failed cancel or replace leaves the mapping untouched.
	var origRouterID string
	if orig, ok := fixmsg.OrigClOrdID(m); ok {
		origRouterID, ok = r.ids.Get(idmap.Key(sender, orig))
		if !ok {
			return nil, fmt.Errorf("%s|%s: %w", sender, orig, ErrUnknownOriginalOrder)
		}
	}

	symbol := fixmsg.Instrument(m)
	price, err := fixmsg.Price(m)
	if err != nil {
		return nil, err
	}
	qty, err := fixmsg.OrderQty(m)
	if err != nil {
		return nil, err
	}

	key := idmap.Key(sender, clOrdID)
	info := db.SenderInfo{
		ClientOrderID: clOrdID,
		SenderCompID:  sender,
		Strategy:      routing.Strategy,
		Team:          routing.Team,
	}
	sctx, cancel := r.storeContext(ctx)
	defer cancel()
	routerID, existed, err := r.ids.Resolve(sctx, key, r.gen.NextID, func(ctx context.Context, id string) error {
		if err := r.store.PutSenderInfo(ctx, id, info); err != nil {
			return fmt.Errorf("persist sender info %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if existed {
		r.log.Warn("client order id reused",
			zap.String("sender", sender),
			zap.String("cl_ord_id", clOrdID),
			zap.String("router_id", routerID))
	}

	fixmsg.SetClOrdID(m, routerID)
	if origRouterID != "" {
		fixmsg.SetOrigClOrdID(m, origRouterID)
	}
	fixmsg.StripRouting(m)
	fixmsg.SetSession(m, r.compID, target)

	switch enum.MsgType(msgType) {
	case enum.MsgType_ORDER_SINGLE:
		return &oms.NewOrder{
			Destination: routing.Destination,
			ClientKey:   key,
			RouterID:    routerID,
			Symbol:      symbol,
			Price:       price,
			Quantity:    qty,
			Strategy:    routing.Strategy,
			Team:        routing.Team,
			Msg:         m,
		}, nil
	case enum.MsgType_ORDER_CANCEL_REQUEST:
		return &oms.CancelOrder{
			ClientKey:    key,
			RouterID:     routerID,
			OrigRouterID: origRouterID,
			OrderID:      fixmsg.OrderID(m),
			Msg:          m,
		}, nil
	default:
		return &oms.ReplaceOrder{
			ClientKey:    key,
			RouterID:     routerID,
			OrigRouterID: origRouterID,
			OrderID:      fixmsg.OrderID(m),
			Price:        price,
			Quantity:     qty,
			Msg:          m,
		}, nil
	}
}
