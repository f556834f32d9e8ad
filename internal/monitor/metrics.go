package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks router and OMS performance.
type SystemMetrics struct {
	// Latency histograms
	RouteLatency  *LatencyHistogram
	EngineLatency *LatencyHistogram
	StoreLatency  *LatencyHistogram
	APILatency    *LatencyHistogram

	// Counters
	messagesRouted  atomic.Uint64
	messagesIgnored atomic.Uint64
	routeErrors     atomic.Uint64
	enqueueRejected atomic.Uint64
	eventsProcessed atomic.Uint64
	engineErrors    atomic.Uint64
	ordersUpdated   atomic.Uint64
	tradesRecorded  atomic.Uint64
	apiRequests     atomic.Uint64
	apiErrors       atomic.Uint64

	mu         sync.RWMutex
	queueDepth func() int

	prom *Collectors
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until the next Record.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance. prom may be nil.
func NewSystemMetrics(prom *Collectors) *SystemMetrics {
	return &SystemMetrics{
		RouteLatency:  NewLatencyHistogram(1000),
		EngineLatency: NewLatencyHistogram(1000),
		StoreLatency:  NewLatencyHistogram(1000),
		APILatency:    NewLatencyHistogram(1000),
		prom:          prom,
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// RecordRouted counts a message the router turned into an engine event.
func (m *SystemMetrics) RecordRouted(side, msgType string, d time.Duration) {
	m.messagesRouted.Add(1)
	m.RouteLatency.RecordDuration(d)
	if m.prom != nil {
		m.prom.routed.WithLabelValues(side, msgType).Inc()
		m.prom.routeLatency.WithLabelValues(side).Observe(d.Seconds())
	}
}

// RecordIgnored counts a message from an unconfigured sender.
func (m *SystemMetrics) RecordIgnored() {
	m.messagesIgnored.Add(1)
	if m.prom != nil {
		m.prom.ignored.Inc()
	}
}

// RecordRouteError counts a dropped message by error class.
func (m *SystemMetrics) RecordRouteError(reason string) {
	m.routeErrors.Add(1)
	if m.prom != nil {
		m.prom.routeErrors.WithLabelValues(reason).Inc()
	}
}

// RecordEnqueueRejected counts an event refused by the engine queue.
func (m *SystemMetrics) RecordEnqueueRejected() {
	m.enqueueRejected.Add(1)
	if m.prom != nil {
		m.prom.enqueueRejected.Inc()
	}
}

// RecordEvent counts one processed engine event.
func (m *SystemMetrics) RecordEvent(kind string, d time.Duration, err error) {
	m.eventsProcessed.Add(1)
	m.EngineLatency.RecordDuration(d)
	if err != nil {
		m.engineErrors.Add(1)
	}
	if m.prom != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.prom.events.WithLabelValues(kind, result).Inc()
		m.prom.engineLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// RecordStore records one store round trip.
func (m *SystemMetrics) RecordStore(op string, d time.Duration) {
	m.StoreLatency.RecordDuration(d)
	if m.prom != nil {
		m.prom.storeLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

// IncrementOrders counts an order snapshot broadcast.
func (m *SystemMetrics) IncrementOrders() {
	m.ordersUpdated.Add(1)
}

// IncrementTrades counts a recorded trade.
func (m *SystemMetrics) IncrementTrades() {
	m.tradesRecorded.Add(1)
	if m.prom != nil {
		m.prom.trades.Inc()
	}
}

// IncrementAPI counts an admin API request.
func (m *SystemMetrics) IncrementAPI() {
	m.apiRequests.Add(1)
}

// IncrementAPIErrors counts an admin API request answered with >= 400.
func (m *SystemMetrics) IncrementAPIErrors() {
	m.apiErrors.Add(1)
}

// SetQueueDepth installs the probe used for the queue depth gauge.
func (m *SystemMetrics) SetQueueDepth(fn func() int) {
	m.mu.Lock()
	m.queueDepth = fn
	m.mu.Unlock()
	if m.prom != nil {
		m.prom.setQueueDepth(fn)
	}
}

// MetricsSnapshot is a point-in-time view for the admin API.
type MetricsSnapshot struct {
	RouteLatency    LatencyStats `json:"route_latency"`
	EngineLatency   LatencyStats `json:"engine_latency"`
	StoreLatency    LatencyStats `json:"store_latency"`
	APILatency      LatencyStats `json:"api_latency"`
	MessagesRouted  uint64       `json:"messages_routed"`
	MessagesIgnored uint64       `json:"messages_ignored"`
	RouteErrors     uint64       `json:"route_errors"`
	EnqueueRejected uint64       `json:"enqueue_rejected"`
	EventsProcessed uint64       `json:"events_processed"`
	EngineErrors    uint64       `json:"engine_errors"`
	OrdersUpdated   uint64       `json:"orders_updated"`
	TradesRecorded  uint64       `json:"trades_recorded"`
	APIRequests     uint64       `json:"api_requests"`
	APIErrors       uint64       `json:"api_errors"`
	QueueDepth      int          `json:"queue_depth"`
	GoroutineCount  int          `json:"goroutine_count"`
	HeapAlloc       uint64       `json:"heap_alloc_bytes"`
	HeapSys         uint64       `json:"heap_sys_bytes"`
	Timestamp       time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	depthFn := m.queueDepth
	m.mu.RUnlock()
	depth := 0
	if depthFn != nil {
		depth = depthFn()
	}

	return MetricsSnapshot{
		RouteLatency:    m.RouteLatency.Stats(),
		EngineLatency:   m.EngineLatency.Stats(),
		StoreLatency:    m.StoreLatency.Stats(),
		APILatency:      m.APILatency.Stats(),
		MessagesRouted:  m.messagesRouted.Load(),
		MessagesIgnored: m.messagesIgnored.Load(),
		RouteErrors:     m.routeErrors.Load(),
		EnqueueRejected: m.enqueueRejected.Load(),
		EventsProcessed: m.eventsProcessed.Load(),
		EngineErrors:    m.engineErrors.Load(),
		OrdersUpdated:   m.ordersUpdated.Load(),
		TradesRecorded:  m.tradesRecorded.Load(),
		APIRequests:     m.apiRequests.Load(),
		APIErrors:       m.apiErrors.Load(),
		QueueDepth:      depth,
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		HeapSys:         memStats.HeapSys,
		Timestamp:       time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
