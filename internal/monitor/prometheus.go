package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fixrouter"

// Collectors owns the Prometheus metrics on a private registry so tests can
// build as many as they like.
type Collectors struct {
	registry *prometheus.Registry

	routed          *prometheus.CounterVec
	ignored         prometheus.Counter
	routeErrors     *prometheus.CounterVec
	enqueueRejected prometheus.Counter
	events          *prometheus.CounterVec
	trades          prometheus.Counter
	routeLatency    *prometheus.HistogramVec
	engineLatency   *prometheus.HistogramVec
	storeLatency    *prometheus.HistogramVec
}

func NewCollectors() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_routed_total",
			Help:      "Inbound FIX messages turned into engine events.",
		}, []string{"side", "msg_type"}),
		ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ignored_total",
			Help:      "Inbound FIX messages from unconfigured senders.",
		}),
		routeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_errors_total",
			Help:      "Inbound FIX messages dropped by the router.",
		}, []string{"reason"}),
		enqueueRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_enqueue_rejected_total",
			Help:      "Events refused because the engine queue was full.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_events_total",
			Help:      "Events processed by the OMS engine.",
		}, []string{"kind", "result"}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_recorded_total",
			Help:      "Trades persisted by the OMS engine.",
		}),
		routeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_latency_seconds",
			Help:      "Time spent routing one inbound message.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}, []string{"side"}),
		engineLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_event_latency_seconds",
			Help:      "Time spent processing one engine event.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}, []string{"kind"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_latency_seconds",
			Help:      "Durable store round trips.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	c.registry.MustRegister(
		c.routed, c.ignored, c.routeErrors, c.enqueueRejected,
		c.events, c.trades, c.routeLatency, c.engineLatency, c.storeLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collectors) setQueueDepth(fn func() int) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "engine_queue_depth",
		Help:      "Events waiting in the OMS engine queue.",
	}, func() float64 { return float64(fn()) }))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
