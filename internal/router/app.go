package router

import (
	"context"
	"errors"

	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"

	"github.com/jiajunxiong/fix/internal/fixmsg"
	"github.com/jiajunxiong/fix/internal/oms"
)

// businessRejectAppUnavailable is BusinessRejectReason 4.
const businessRejectAppUnavailable = 4

var _ quickfix.Application = (*App)(nil)

// App adapts the Router to quickfix session callbacks.
type App struct {
	ctx    context.Context
	router *Router
	log    *zap.Logger
}

// NewApp returns the quickfix.Application for both acceptor and initiator.
// ctx bounds every routing call made from session goroutines.
func NewApp(ctx context.Context, r *Router, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{ctx: ctx, router: r, log: log}
}

func (a *App) OnCreate(id quickfix.SessionID) {
	a.log.Debug("session created", zap.String("session", id.String()))
}

func (a *App) OnLogon(id quickfix.SessionID) {
	a.log.Info("session logon", zap.String("session", id.String()))
}

func (a *App) OnLogout(id quickfix.SessionID) {
	a.log.Info("session logout", zap.String("session", id.String()))
}

func (a *App) ToAdmin(*quickfix.Message, quickfix.SessionID) {}

func (a *App) ToApp(*quickfix.Message, quickfix.SessionID) error { return nil }

func (a *App) FromAdmin(*quickfix.Message, quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

// FromApp routes one application message. Routing failures are logged and
// the message dropped; an engine that cannot take the event answers with a
// BusinessMessageReject so the counterparty can resend.
func (a *App) FromApp(m *quickfix.Message, id quickfix.SessionID) quickfix.MessageRejectError {
	// Fields are read before Dispatch rewrites the message.
	msgType, _ := fixmsg.MsgType(m)
	sender, _ := fixmsg.SenderCompID(m)
	clOrdID, _ := fixmsg.ClOrdID(m)

	err := a.router.Dispatch(a.ctx, m)
	if err == nil {
		return nil
	}

	fields := []zap.Field{
		zap.String("session", id.String()),
		zap.String("msg_type", msgType),
		zap.String("sender", sender),
		zap.String("cl_ord_id", clOrdID),
		zap.Error(err),
	}
	if errors.Is(err, oms.ErrQueueFull) || errors.Is(err, oms.ErrQueueClosed) {
		a.log.Warn("engine unavailable, rejecting message", fields...)
		return quickfix.NewBusinessMessageRejectError(err.Error(), businessRejectAppUnavailable, nil)
	}
	a.log.Error("message dropped", fields...)
	return nil
}
