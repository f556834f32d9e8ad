package api

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jiajunxiong/fix/internal/events"
	"github.com/jiajunxiong/fix/internal/monitor"
	"github.com/jiajunxiong/fix/internal/oms"
	"github.com/jiajunxiong/fix/pkg/db"
)

// QueueStats is the view of the engine queue exposed to operators.
type QueueStats interface {
	Len() int
	Cap() int
	Rejected() uint64
	Policy() oms.Policy
}

// Options wires a Server.
type Options struct {
	Store      db.Store
	Bus        *events.Bus
	Metrics    *monitor.SystemMetrics
	Prometheus *monitor.Collectors
	Queue      QueueStats
	Routes     map[string]string
	Log        *zap.Logger
	JWTSecret  string
	// RateLimit is requests per second per client IP; zero disables limiting.
	RateLimit float64
	Version   string
}

// Server is the read-only admin surface over the router and OMS.
type Server struct {
	Router *gin.Engine

	store      db.Store
	bus        *events.Bus
	metrics    *monitor.SystemMetrics
	prom       *monitor.Collectors
	queue      QueueStats
	routeTable map[string]string
	log        *zap.Logger
	jwtSecret  string
	version    string
	started    time.Time
}

func NewServer(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(ginzap.RecoveryWithZap(log, true)) // Panic recovery (first)
	r.Use(RequestIDMiddleware())
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	r.Use(MetricsMiddleware(opts.Metrics))
	if opts.RateLimit > 0 {
		r.Use(RateLimitMiddleware(newIPLimiter(opts.RateLimit, int(opts.RateLimit*2)+1), log))
	}
	r.Use(CORSMiddleware())

	s := &Server{
		Router:     r,
		store:      opts.Store,
		bus:        opts.Bus,
		metrics:    opts.Metrics,
		prom:       opts.Prometheus,
		queue:      opts.Queue,
		routeTable: opts.Routes,
		log:        log,
		jwtSecret:  opts.JWTSecret,
		version:    opts.Version,
		started:    time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", StreamAuthMiddleware(s.jwtSecret), s.websocket)
	if s.prom != nil {
		s.Router.GET("/metrics", gin.WrapH(s.prom.Handler()))
	}

	api := s.Router.Group("/api")
	{
		api.GET("/metrics", s.getMetrics)
		api.GET("/queue/metrics", s.getQueueMetrics)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.jwtSecret))
		{
			protected.GET("/orders/:id", s.getOrder)
			protected.GET("/positions", s.getPositions)
			protected.GET("/positions/:id", s.getPosition)
			protected.GET("/trades/:id", s.getTrade)
			protected.GET("/routes", s.getRoutes)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

// Handler exposes the gin engine for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.Router
}
