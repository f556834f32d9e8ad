// Package oms is the single-writer order management engine. It folds
// execution reports and cancel rejects into Order, Position and Trade
// records and serializes every outbound forward through one queue.
package oms

import (
	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"

	"github.com/jiajunxiong/fix/pkg/db"
)

// Kind discriminates Event variants.
type Kind uint8

const (
	KindNewOrder Kind = iota + 1
	KindCancelOrder
	KindReplaceOrder
	KindExecutionReport
	KindCancelReject
	KindReplaceReject
)

func (k Kind) String() string {
	switch k {
	case KindNewOrder:
		return "new_order"
	case KindCancelOrder:
		return "cancel_order"
	case KindReplaceOrder:
		return "replace_order"
	case KindExecutionReport:
		return "execution_report"
	case KindCancelReject:
		return "cancel_reject"
	case KindReplaceReject:
		return "replace_reject"
	default:
		return "unknown"
	}
}

// Event is the closed set of messages the engine consumes. Only the types
// in this file implement it.
type Event interface {
	Kind() Kind
	Message() *quickfix.Message
	sealed()
}

// NewOrder is a client order already rewritten for the exchange.
type NewOrder struct {
	Destination string
	ClientKey   string
	RouterID    string
	Symbol      string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Strategy    string
	Team        string
	Msg         *quickfix.Message
}

// CancelOrder is a client cancel request; OrigRouterID is the order being
// cancelled.
type CancelOrder struct {
	ClientKey    string
	RouterID     string
	OrigRouterID string
	OrderID      string
	Msg          *quickfix.Message
}

// ReplaceOrder is a client cancel/replace request.
type ReplaceOrder struct {
	ClientKey    string
	RouterID     string
	OrigRouterID string
	OrderID      string
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Msg          *quickfix.Message
}

// ExecutionReport is an exchange report rewritten for the client.
// LastFill and Cumulative are nil when the report omits them.
type ExecutionReport struct {
	Exchange   string
	ExecID     string
	OrderID    string
	ClOrdID    string
	Symbol     string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	LastFill   *db.PQ
	Cumulative *db.PQ
	Status     string
	ExecType   string
	Timestamp  int64
	Active     bool
	Msg        *quickfix.Message
}

// RejectDetails are the fields shared by cancel and replace rejects.
type RejectDetails struct {
	Exchange    string
	OrderID     string
	ClOrdID     string
	OrigClOrdID string
	Status      string
	ResponseTo  string
}

// CancelReject answers a cancel request.
type CancelReject struct {
	RejectDetails
	Msg *quickfix.Message
}

// ReplaceReject answers a cancel/replace request.
type ReplaceReject struct {
	RejectDetails
	Msg *quickfix.Message
}

func (*NewOrder) Kind() Kind        { return KindNewOrder }
func (*CancelOrder) Kind() Kind     { return KindCancelOrder }
func (*ReplaceOrder) Kind() Kind    { return KindReplaceOrder }
func (*ExecutionReport) Kind() Kind { return KindExecutionReport }
func (*CancelReject) Kind() Kind    { return KindCancelReject }
func (*ReplaceReject) Kind() Kind   { return KindReplaceReject }

func (e *NewOrder) Message() *quickfix.Message        { return e.Msg }
func (e *CancelOrder) Message() *quickfix.Message     { return e.Msg }
func (e *ReplaceOrder) Message() *quickfix.Message    { return e.Msg }
func (e *ExecutionReport) Message() *quickfix.Message { return e.Msg }
func (e *CancelReject) Message() *quickfix.Message    { return e.Msg }
func (e *ReplaceReject) Message() *quickfix.Message   { return e.Msg }

func (*NewOrder) sealed()        {}
func (*CancelOrder) sealed()     {}
func (*ReplaceOrder) sealed()    {}
func (*ExecutionReport) sealed() {}
func (*CancelReject) sealed()    {}
func (*ReplaceReject) sealed()   {}
