package db

import (
	"github.com/shopspring/decimal"
)

// PQ is an immutable price/quantity pair. The zero value means "nothing yet".
type PQ struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// NewPQ builds a PQ from two decimals.
func NewPQ(price, quantity decimal.Decimal) PQ {
	return PQ{Price: price, Quantity: quantity}
}

// IsZero reports whether both sides are zero.
func (p PQ) IsZero() bool {
	return p.Price.IsZero() && p.Quantity.IsZero()
}

// Equal compares by value; decimal scale is ignored.
func (p PQ) Equal(o PQ) bool {
	return p.Price.Equal(o.Price) && p.Quantity.Equal(o.Quantity)
}

// Exec is the execution snapshot embedded in an Order.
// Amount is Cumulative.Price * Cumulative.Quantity.
type Exec struct {
	Active     bool            `json:"active"`
	Status     string          `json:"status"`
	Timestamp  int64           `json:"timestamp"`
	LastFill   *PQ             `json:"lastFill,omitempty"`
	Cumulative PQ              `json:"cumulative"`
	Amount     decimal.Decimal `json:"amount"`
}

// Order is the OMS view of one exchange order. Version starts at 1 and moves
// by one per accepted replace; PrevVersions is append-only.
type Order struct {
	ID            string `json:"id"`
	Exchange      string `json:"exchange"`
	Symbol        string `json:"symbol"`
	Version       int    `json:"version"`
	PQ            PQ     `json:"pq"`
	Exec          Exec   `json:"exec"`
	PrevVersions  []PQ   `json:"prevVersions"`
	PendingCancel string `json:"pendingCancel,omitempty"`
	PendingAmend  string `json:"pendingAmend,omitempty"`
}

// Position tracks the weighted-average entry per exchange|symbol.
type Position struct {
	ID     string          `json:"id"`
	PQ     PQ              `json:"pq"`
	Amount decimal.Decimal `json:"amount"`
}

// PositionID joins exchange and symbol into a position key.
func PositionID(exchange, symbol string) string {
	return exchange + "|" + symbol
}

// Add applies an incremental fill. Price is recomputed as amount/quantity and
// left untouched when the resulting quantity is zero.
func (p Position) Add(quantity, amount decimal.Decimal) Position {
	nextQty := p.PQ.Quantity.Add(quantity)
	nextAmount := p.Amount.Add(amount)
	price := p.PQ.Price
	if !nextQty.IsZero() {
		price = nextAmount.Div(nextQty)
	}
	return Position{
		ID:     p.ID,
		PQ:     PQ{Price: price, Quantity: nextQty},
		Amount: nextAmount,
	}
}

// Trade is one discrete fill, keyed by the exchange execution id.
type Trade struct {
	ID       string          `json:"id"`
	OrderID  string          `json:"orderId"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// SenderInfo records who sent a routed order. Keyed by router id, never
// mutated once written.
type SenderInfo struct {
	ClientOrderID string `json:"clOrdId"`
	SenderCompID  string `json:"senderCompID"`
	Strategy      string `json:"strategy"`
	Team          string `json:"team"`
}
