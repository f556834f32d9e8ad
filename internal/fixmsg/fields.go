// Package fixmsg is the typed accessor layer over quickfix messages. Callers
// never touch raw tag numbers; router-private tags live only here.
package fixmsg

import (
	"errors"
	"fmt"

	"github.com/quickfixgo/field"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
)

// Router-private routing tags. They never leave the router.
const (
	tagDestination quickfix.Tag = 50000
	tagStrategy    quickfix.Tag = 50001
	tagTeam        quickfix.Tag = 50002
)

var routingTags = []quickfix.Tag{tagDestination, tagStrategy, tagTeam}

// ErrMissingField is wrapped by accessors for required fields.
var ErrMissingField = errors.New("required field missing")

// Routing carries the router-private extensions of a client message.
type Routing struct {
	Destination string
	Strategy    string
	Team        string
}

// ReadRouting returns the private routing tags; absent tags are empty.
func ReadRouting(m *quickfix.Message) Routing {
	return Routing{
		Destination: optional(&m.Body.FieldMap, tagDestination),
		Strategy:    optional(&m.Body.FieldMap, tagStrategy),
		Team:        optional(&m.Body.FieldMap, tagTeam),
	}
}

// StripRouting removes the private routing tags before forwarding.
func StripRouting(m *quickfix.Message) {
	for _, t := range routingTags {
		m.Body.Remove(t)
	}
}

// HasRouting reports whether any private routing tag is present.
func HasRouting(m *quickfix.Message) bool {
	for _, t := range routingTags {
		if m.Body.Has(t) {
			return true
		}
	}
	return false
}

// ----------------------------------------
// Header
// ----------------------------------------

func MsgType(m *quickfix.Message) (string, error) {
	return required(&m.Header.FieldMap, tag.MsgType, "MsgType")
}

func SenderCompID(m *quickfix.Message) (string, error) {
	return required(&m.Header.FieldMap, tag.SenderCompID, "SenderCompID")
}

func TargetCompID(m *quickfix.Message) string {
	return optional(&m.Header.FieldMap, tag.TargetCompID)
}

// SetSession rewrites the session-level sender and target identities.
func SetSession(m *quickfix.Message, sender, target string) {
	m.Header.SetString(tag.SenderCompID, sender)
	m.Header.SetString(tag.TargetCompID, target)
}

// ----------------------------------------
// Order identifiers
// ----------------------------------------

func ClOrdID(m *quickfix.Message) (string, error) {
	return required(&m.Body.FieldMap, tag.ClOrdID, "ClOrdID")
}

func SetClOrdID(m *quickfix.Message, id string) {
	m.Body.SetString(tag.ClOrdID, id)
}

// OrigClOrdID returns the original-order reference of a cancel or replace.
func OrigClOrdID(m *quickfix.Message) (string, bool) {
	if !m.Body.Has(tag.OrigClOrdID) {
		return "", false
	}
	return optional(&m.Body.FieldMap, tag.OrigClOrdID), true
}

func SetOrigClOrdID(m *quickfix.Message, id string) {
	m.Body.SetString(tag.OrigClOrdID, id)
}

// OrderID is the exchange-assigned order id, empty when absent.
func OrderID(m *quickfix.Message) string {
	return optional(&m.Body.FieldMap, tag.OrderID)
}

func ExecID(m *quickfix.Message) (string, error) {
	return required(&m.Body.FieldMap, tag.ExecID, "ExecID")
}

// ----------------------------------------
// Instrument and quantities
// ----------------------------------------

// Instrument prefers SecurityID and falls back to Symbol.
func Instrument(m *quickfix.Message) string {
	if v := optional(&m.Body.FieldMap, tag.SecurityID); v != "" {
		return v
	}
	return optional(&m.Body.FieldMap, tag.Symbol)
}

// SecurityExchange is the market the report belongs to, empty when absent.
func SecurityExchange(m *quickfix.Message) string {
	return optional(&m.Body.FieldMap, tag.SecurityExchange)
}

// Price is zero when absent (market orders carry no price).
func Price(m *quickfix.Message) (decimal.Decimal, error) {
	v, _, err := optionalDecimal(&m.Body.FieldMap, tag.Price)
	return v, err
}

func OrderQty(m *quickfix.Message) (decimal.Decimal, error) {
	v, _, err := optionalDecimal(&m.Body.FieldMap, tag.OrderQty)
	return v, err
}

// LastFill returns LastPx/LastQty; ok is false unless both are present.
func LastFill(m *quickfix.Message) (px, qty decimal.Decimal, ok bool, err error) {
	return decimalPair(&m.Body.FieldMap, tag.LastPx, tag.LastQty)
}

// Cumulative returns AvgPx/CumQty; ok is false unless both are present.
func Cumulative(m *quickfix.Message) (px, qty decimal.Decimal, ok bool, err error) {
	return decimalPair(&m.Body.FieldMap, tag.AvgPx, tag.CumQty)
}

// ----------------------------------------
// Status
// ----------------------------------------

func OrdStatus(m *quickfix.Message) string {
	return optional(&m.Body.FieldMap, tag.OrdStatus)
}

func ExecType(m *quickfix.Message) string {
	return optional(&m.Body.FieldMap, tag.ExecType)
}

func CxlRejResponseTo(m *quickfix.Message) string {
	return optional(&m.Body.FieldMap, tag.CxlRejResponseTo)
}

// TransactTimeMillis returns TransactTime as epoch milliseconds; ok is
// false when the field is absent.
func TransactTimeMillis(m *quickfix.Message) (ms int64, ok bool, err error) {
	if !m.Body.Has(tag.TransactTime) {
		return 0, false, nil
	}
	var tt field.TransactTimeField
	if rej := m.Body.Get(&tt); rej != nil {
		return 0, false, fmt.Errorf("TransactTime: %w", rej)
	}
	return tt.Value().UnixMilli(), true, nil
}

// ----------------------------------------
// helpers
// ----------------------------------------

func required(fm *quickfix.FieldMap, t quickfix.Tag, name string) (string, error) {
	if !fm.Has(t) {
		return "", fmt.Errorf("%s(%d): %w", name, t, ErrMissingField)
	}
	v, rej := fm.GetString(t)
	if rej != nil {
		return "", fmt.Errorf("%s(%d): %w", name, t, rej)
	}
	return v, nil
}

func optional(fm *quickfix.FieldMap, t quickfix.Tag) string {
	if !fm.Has(t) {
		return ""
	}
	v, rej := fm.GetString(t)
	if rej != nil {
		return ""
	}
	return v
}

func optionalDecimal(fm *quickfix.FieldMap, t quickfix.Tag) (decimal.Decimal, bool, error) {
	s := optional(fm, t)
	if s == "" {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("tag %d value %q: %w", t, s, err)
	}
	return d, true, nil
}

func decimalPair(fm *quickfix.FieldMap, pxTag, qtyTag quickfix.Tag) (px, qty decimal.Decimal, ok bool, err error) {
	px, okPx, err := optionalDecimal(fm, pxTag)
	if err != nil {
		return decimal.Zero, decimal.Zero, false, err
	}
	qty, okQty, err := optionalDecimal(fm, qtyTag)
	if err != nil {
		return decimal.Zero, decimal.Zero, false, err
	}
	if !okPx || !okQty {
		return decimal.Zero, decimal.Zero, false, nil
	}
	return px, qty, true, nil
}
