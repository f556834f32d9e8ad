package monitor

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiajunxiong/fix/internal/events"
)

func TestLatencyHistogramStats(t *testing.T) {
	h := NewLatencyHistogram(3)
	for _, v := range []float64{5, 1, 3, 2} {
		h.Record(v)
	}
	s := h.Stats()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 3.0, s.Max)
	assert.InDelta(t, 2.0, s.Avg, 1e-9)
}

func TestSnapshotCounters(t *testing.T) {
	m := NewSystemMetrics(NewCollectors())
	m.SetQueueDepth(func() int { return 7 })

	m.RecordRouted("client", "D", time.Millisecond)
	m.RecordIgnored()
	m.RecordRouteError("unknown_destination")
	m.RecordEnqueueRejected()
	m.RecordEvent("execution_report", time.Millisecond, nil)
	m.RecordEvent("execution_report", time.Millisecond, errors.New("boom"))
	m.RecordStore("commit", time.Millisecond)

	s := m.GetSnapshot()
	assert.Equal(t, uint64(1), s.MessagesRouted)
	assert.Equal(t, uint64(1), s.MessagesIgnored)
	assert.Equal(t, uint64(1), s.RouteErrors)
	assert.Equal(t, uint64(1), s.EnqueueRejected)
	assert.Equal(t, uint64(2), s.EventsProcessed)
	assert.Equal(t, uint64(1), s.EngineErrors)
	assert.Equal(t, 7, s.QueueDepth)
	assert.Equal(t, 1, s.StoreLatency.Count)
}

func TestPrometheusHandler(t *testing.T) {
	c := NewCollectors()
	m := NewSystemMetrics(c)
	m.RecordRouted("exchange", "8", time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `fixrouter_messages_routed_total{msg_type="8",side="exchange"} 1`))
}

func TestMonitorCountsBusUpdates(t *testing.T) {
	bus := events.NewBus()
	m := NewSystemMetrics(nil)
	mon := &Monitor{Bus: bus, Metrics: m}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mon.Start(ctx)

	bus.Publish(events.EventOrder, "o")
	bus.Publish(events.EventTrade, "t")

	require.Eventually(t, func() bool {
		s := m.GetSnapshot()
		return s.OrdersUpdated == 1 && s.TradesRecorded == 1
	}, time.Second, 5*time.Millisecond)
}
