package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jiajunxiong/fix/internal/api"
	"github.com/jiajunxiong/fix/internal/events"
	"github.com/jiajunxiong/fix/internal/idgen"
	"github.com/jiajunxiong/fix/internal/idmap"
	"github.com/jiajunxiong/fix/internal/monitor"
	"github.com/jiajunxiong/fix/internal/oms"
	"github.com/jiajunxiong/fix/internal/router"
	"github.com/jiajunxiong/fix/pkg/config"
	"github.com/jiajunxiong/fix/pkg/logger"
)

const drainTimeout = 30 * time.Second

func main() {
	issueToken := flag.String("issue-token", "", "print an admin API token for the named operator and exit")
	tokenTTL := flag.Duration("token-ttl", 72*time.Hour, "lifetime of a token printed by -issue-token")
	dev := flag.Bool("dev", false, "human-readable console logs")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		token, err := api.IssueToken(*issueToken, cfg.JWTSecret, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	log, syncLog, err := logger.New(cfg.LogLevel, *dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = syncLog() }()

	if err := run(cfg, log); err != nil {
		log.Error("router exited", zap.Error(err))
		_ = syncLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routing, err := cfg.Routing()
	if err != nil {
		return err
	}
	log.Info("config loaded",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreBackend),
		zap.String("comp_id", routing.CompID),
		zap.Strings("routes", routing.Names()),
		zap.Strings("buys", routing.Buys),
		zap.Strings("sells", routing.Sells))

	// Stores
	backend, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Store.Close(); err != nil {
			log.Warn("store close failed", zap.Error(err))
		}
	}()

	// The mapping must be complete before any session can deliver a message.
	ids := idmap.New()
	restored, err := ids.RestoreFrom(ctx, backend.Store)
	if err != nil {
		return err
	}
	log.Info("order id mapping restored", zap.Int("entries", restored))

	gen := idgen.New(backend.Sequence)
	if err := gen.Seed(ctx, cfg.IDFloor); err != nil {
		return err
	}

	// Metrics and broadcast
	prom := monitor.NewCollectors()
	metrics := monitor.NewSystemMetrics(prom)
	bus := events.NewBus()
	broadcaster := events.NewBroadcaster(bus, log.Named("broadcast"))
	(&monitor.Monitor{Bus: bus, Metrics: metrics, Log: log.Named("monitor")}).Start(ctx)

	// Engine
	policy, err := oms.ParsePolicy(cfg.QueuePolicy)
	if err != nil {
		return err
	}
	queue := oms.NewQueue(cfg.QueueSize, policy, cfg.EnqueueTimeout)
	metrics.SetQueueDepth(queue.Len)
	engine, err := oms.NewEngine(oms.Options{
		Store:        backend.Store,
		Queue:        queue,
		Broadcaster:  broadcaster,
		Sender:       oms.FIXSender{},
		Log:          log.Named("oms"),
		Metrics:      metrics,
		StoreTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		return err
	}
	engineCtx, cancelEngine := context.WithCancel(context.Background())
	defer cancelEngine()
	go engine.Run(engineCtx)

	// Router and FIX sessions
	rt, err := router.New(router.Options{
		Routing:   routing,
		IDs:       ids,
		Generator: gen,
		Store:     backend.Store,
		Engine:    engine,
		Log:       log.Named("router"),
		Metrics:   metrics,

		StoreTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		return err
	}
	app := router.NewApp(context.Background(), rt, log.Named("fix"))
	sessions, err := startFIX(app, cfg, log)
	if err != nil {
		queue.Close()
		return err
	}

	// Admin API
	server := api.NewServer(api.Options{
		Store:      backend.Store,
		Bus:        bus,
		Metrics:    metrics,
		Prometheus: prom,
		Queue:      queue,
		Routes:     rt.Routes(),
		Log:        log.Named("api"),
		JWTSecret:  cfg.JWTSecret,
		RateLimit:  cfg.APIRateLimit,
		Version:    version(),
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		log.Info("admin api listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-httpErr:
		log.Error("admin api failed", zap.Error(err))
	}

	// Transport first so nothing new arrives, then let the engine drain.
	sessions.Stop()
	queue.Close()
	select {
	case <-engine.Done():
	case <-time.After(drainTimeout):
		log.Warn("engine drain timed out", zap.Int("pending", queue.Len()))
		cancelEngine()
		<-engine.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin api shutdown", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}

func version() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "dev"
}
