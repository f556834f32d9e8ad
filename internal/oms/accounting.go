package oms

import (
	"github.com/shopspring/decimal"

	"github.com/jiajunxiong/fix/pkg/db"
)

// FIX OrdStatus / ExecType codes the engine reacts to.
const (
	statusFilled         = "2"
	statusCanceled       = "4"
	statusReplaced       = "5"
	statusPendingCancel  = "6"
	statusRejected       = "8"
	statusExpired        = "C"
	statusPendingReplace = "E"

	statusNew = "New"
)

// IsTerminal reports whether no further fills can follow status.
func IsTerminal(status string) bool {
	switch status {
	case statusFilled, statusCanceled, statusRejected, statusExpired:
		return true
	}
	return false
}

func isReplaced(er *ExecutionReport) bool {
	return er.Status == statusReplaced || er.ExecType == statusReplaced
}

func newOrder(er *ExecutionReport) db.Order {
	return db.Order{
		ID:       er.OrderID,
		Exchange: er.Exchange,
		Symbol:   er.Symbol,
		Version:  1,
		PQ:       db.NewPQ(er.Price, er.Quantity),
		Exec: db.Exec{
			Active:    true,
			Status:    statusNew,
			Timestamp: er.Timestamp,
		},
		PrevVersions: []db.PQ{},
	}
}

// placeholderOrder stands in for an order a reject refers to but no report
// ever created. It is broadcast, never persisted.
func placeholderOrder(id, exchange string) db.Order {
	return db.Order{ID: id, Exchange: exchange, PrevVersions: []db.PQ{}}
}

// applyReport folds er into o and returns the exec snapshot o held before.
func applyReport(o *db.Order, er *ExecutionReport) (prev db.Exec) {
	prev = o.Exec

	if isReplaced(er) {
		o.Version++
		o.PrevVersions = append(o.PrevVersions, o.PQ)
		o.PQ = db.NewPQ(er.Price, er.Quantity)
	}

	switch er.Status {
	case statusPendingCancel:
		o.PendingCancel = er.ClOrdID
	case statusPendingReplace:
		o.PendingAmend = er.ClOrdID
	default:
		o.PendingCancel = ""
		o.PendingAmend = ""
	}

	o.Exec = nextExec(prev, er)
	return prev
}

// nextExec applies the cumulative-wins rule: a cumulative pair replaces the
// snapshot, a lone fill accumulates on top of it, and a report with neither
// keeps the fills while taking the new status.
func nextExec(prev db.Exec, er *ExecutionReport) db.Exec {
	next := db.Exec{
		Active:    er.Active,
		Status:    er.Status,
		Timestamp: er.Timestamp,
	}
	if er.LastFill != nil {
		lf := *er.LastFill
		next.LastFill = &lf
	}

	switch {
	case er.Cumulative != nil:
		next.Cumulative = *er.Cumulative
		next.Amount = er.Cumulative.Price.Mul(er.Cumulative.Quantity)
	case er.LastFill != nil:
		next.Amount = prev.Amount.Add(er.LastFill.Price.Mul(er.LastFill.Quantity))
		qty := prev.Cumulative.Quantity.Add(er.LastFill.Quantity)
		price := decimal.Zero
		if !qty.IsZero() {
			price = next.Amount.Div(qty)
		}
		next.Cumulative = db.NewPQ(price, qty)
	default:
		next.LastFill = prev.LastFill
		next.Cumulative = prev.Cumulative
		next.Amount = prev.Amount
	}
	return next
}

// positionDelta is the change in cumulative fills between two snapshots.
func positionDelta(prev, next db.Exec) (qty, amount decimal.Decimal) {
	return next.Cumulative.Quantity.Sub(prev.Cumulative.Quantity), next.Amount.Sub(prev.Amount)
}

// tradeFor returns the trade a report records, or nil without a fill.
func tradeFor(er *ExecutionReport) *db.Trade {
	if er.LastFill == nil || er.LastFill.Quantity.IsZero() {
		return nil
	}
	return &db.Trade{
		ID:       er.ExecID,
		OrderID:  er.OrderID,
		Price:    er.LastFill.Price,
		Quantity: er.LastFill.Quantity,
	}
}
