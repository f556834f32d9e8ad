package oms

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiajunxiong/fix/pkg/db"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pq(price, qty string) *db.PQ {
	p := db.NewPQ(d(price), d(qty))
	return &p
}

func report(status string) *ExecutionReport {
	return &ExecutionReport{
		Exchange: "EX1",
		ExecID:   "X",
		OrderID:  "E1",
		ClOrdID:  "1001",
		Symbol:   "0700",
		Price:    d("12"),
		Quantity: d("10"),
		Status:   status,
		Active:   !IsTerminal(status),
	}
}

func TestCumulativeDrivesPositionDelta(t *testing.T) {
	first := report("1")
	first.Cumulative = pq("10", "5")
	order := newOrder(first)
	prev := applyReport(&order, first)
	dq, da := positionDelta(prev, order.Exec)
	assert.True(t, dq.Equal(d("5")))
	assert.True(t, da.Equal(d("50")))

	second := report("1")
	second.Cumulative = pq("12", "8")
	prev = applyReport(&order, second)
	dq, da = positionDelta(prev, order.Exec)

	assert.True(t, order.Exec.Cumulative.Equal(db.NewPQ(d("12"), d("8"))))
	assert.True(t, order.Exec.Amount.Equal(d("96")))
	assert.True(t, dq.Equal(d("3")))
	assert.True(t, da.Equal(d("46")))
}

func TestLoneFillAccumulates(t *testing.T) {
	prev := db.Exec{Cumulative: db.NewPQ(d("10"), d("5")), Amount: d("50")}
	er := report("1")
	er.LastFill = pq("16", "5")

	next := nextExec(prev, er)
	assert.True(t, next.Amount.Equal(d("130")))
	assert.True(t, next.Cumulative.Quantity.Equal(d("10")))
	assert.True(t, next.Cumulative.Price.Equal(d("13")))
	require.NotNil(t, next.LastFill)
	assert.True(t, next.LastFill.Equal(db.NewPQ(d("16"), d("5"))))
}

func TestCumulativeWinsOverFill(t *testing.T) {
	prev := db.Exec{Cumulative: db.NewPQ(d("10"), d("5")), Amount: d("50")}
	er := report("1")
	er.LastFill = pq("16", "5")
	er.Cumulative = pq("11", "6")

	next := nextExec(prev, er)
	assert.True(t, next.Cumulative.Equal(db.NewPQ(d("11"), d("6"))))
	assert.True(t, next.Amount.Equal(d("66")))
}

func TestReportWithoutFillsKeepsCumulative(t *testing.T) {
	lf := db.NewPQ(d("10"), d("5"))
	prev := db.Exec{Active: true, Status: "1", Timestamp: 1, LastFill: &lf,
		Cumulative: db.NewPQ(d("10"), d("5")), Amount: d("50")}
	er := report(statusCanceled)
	er.Timestamp = 2

	next := nextExec(prev, er)
	assert.Equal(t, statusCanceled, next.Status)
	assert.False(t, next.Active)
	assert.Equal(t, int64(2), next.Timestamp)
	assert.True(t, next.Cumulative.Equal(prev.Cumulative))
	assert.True(t, next.Amount.Equal(d("50")))
}

func TestReplaceBumpsVersion(t *testing.T) {
	order := newOrder(report("0"))
	order.PQ = db.NewPQ(d("10"), d("100"))

	er := report(statusReplaced)
	er.Price = d("11")
	er.Quantity = d("80")
	applyReport(&order, er)

	assert.Equal(t, 2, order.Version)
	require.Len(t, order.PrevVersions, 1)
	assert.True(t, order.PrevVersions[0].Equal(db.NewPQ(d("10"), d("100"))))
	assert.True(t, order.PQ.Equal(db.NewPQ(d("11"), d("80"))))

	byExecType := report("0")
	byExecType.ExecType = statusReplaced
	applyReport(&order, byExecType)
	assert.Equal(t, 3, order.Version)
	assert.Len(t, order.PrevVersions, 2)
}

func TestPendingMarkers(t *testing.T) {
	order := newOrder(report("0"))

	pc := report(statusPendingCancel)
	pc.ClOrdID = "C1"
	applyReport(&order, pc)
	assert.Equal(t, "C1", order.PendingCancel)

	pr := report(statusPendingReplace)
	pr.ClOrdID = "R1"
	applyReport(&order, pr)
	assert.Equal(t, "R1", order.PendingAmend)

	applyReport(&order, report("1"))
	assert.Empty(t, order.PendingCancel)
	assert.Empty(t, order.PendingAmend)
}

func TestTradeOnlyWithNonZeroFill(t *testing.T) {
	er := report("1")
	assert.Nil(t, tradeFor(er))

	er.LastFill = pq("10", "0")
	assert.Nil(t, tradeFor(er))

	er.LastFill = pq("10", "3")
	er.ExecID = "X9"
	tr := tradeFor(er)
	require.NotNil(t, tr)
	assert.Equal(t, "X9", tr.ID)
	assert.Equal(t, "E1", tr.OrderID)
	assert.True(t, tr.Quantity.Equal(d("3")))
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{"2", "4", "8", "C"} {
		assert.True(t, IsTerminal(s), s)
	}
	for _, s := range []string{"0", "1", "5", "6", "E", ""} {
		assert.False(t, IsTerminal(s), s)
	}
}
