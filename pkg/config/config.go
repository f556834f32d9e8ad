package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the router.
type Config struct {
	Port     string
	LogLevel string

	// Store: "redis" (default), "sqlite" or "memory"
	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DBPath        string

	// FIX transport and routing
	FIXSettingsPath          string // acceptor sessions (buy side)
	FIXInitiatorSettingsPath string // initiator sessions (sell side)
	RoutesPath               string
	RouterCompID             string
	RouterBuys               []string
	RouterSells              []string

	// Engine
	QueueSize      int
	QueuePolicy    string // "block" (default) or "reject"
	EnqueueTimeout time.Duration
	StoreTimeout   time.Duration
	IDFloor        int64

	// Admin API
	JWTSecret    string
	APIRateLimit float64 // requests per second per client IP; 0 disables
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                     getEnv("PORT", "8080"),
		LogLevel:                 strings.ToLower(getEnv("LOG_LEVEL", "info")),
		StoreBackend:             strings.ToLower(getEnv("STORE_BACKEND", "redis")),
		RedisAddr:                getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  getEnvInt("REDIS_DB", 0),
		DBPath:                   getEnv("DB_PATH", "./data/router.db"),
		FIXSettingsPath:          getEnv("FIX_SETTINGS_PATH", "./config/acceptor.cfg"),
		FIXInitiatorSettingsPath: os.Getenv("FIX_INITIATOR_SETTINGS_PATH"),
		RoutesPath:               getEnv("ROUTES_PATH", "./config/routes.yaml"),
		RouterCompID:             os.Getenv("ROUTER_COMP_ID"),
		RouterBuys:               splitAndTrim(os.Getenv("ROUTER_BUYS")),
		RouterSells:              splitAndTrim(os.Getenv("ROUTER_SELLS")),
		QueueSize:                getEnvInt("OMS_QUEUE_SIZE", 4096),
		QueuePolicy:              strings.ToLower(getEnv("OMS_QUEUE_POLICY", "block")),
		EnqueueTimeout:           getEnvDuration("OMS_ENQUEUE_TIMEOUT", 2*time.Second),
		StoreTimeout:             getEnvDuration("STORE_TIMEOUT", 2*time.Second),
		IDFloor:                  int64(getEnvInt("ID_FLOOR", 0)),
		JWTSecret:                getEnv("JWT_SECRET", "dev-secret"),
		APIRateLimit:             getEnvFloat("API_RATE_LIMIT", 20),
	}

	switch cfg.StoreBackend {
	case "redis", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("STORE_BACKEND %q: want redis, sqlite or memory", cfg.StoreBackend)
	}
	switch cfg.QueuePolicy {
	case "block", "reject":
	default:
		return nil, fmt.Errorf("OMS_QUEUE_POLICY %q: want block or reject", cfg.QueuePolicy)
	}
	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("OMS_QUEUE_SIZE must be positive, got %d", cfg.QueueSize)
	}
	return cfg, nil
}

// Routing loads the route table and merges the env-provided comp id and
// buy/sell sets into it.
func (c *Config) Routing() (Routing, error) {
	r, err := LoadRouting(c.RoutesPath)
	if err != nil {
		return Routing{}, err
	}
	if c.RouterCompID != "" {
		r.CompID = c.RouterCompID
	}
	r.Buys = mergeUnique(r.Buys, c.RouterBuys)
	r.Sells = mergeUnique(r.Sells, c.RouterSells)
	if err := r.Validate(); err != nil {
		return Routing{}, fmt.Errorf("routing %s: %w", c.RoutesPath, err)
	}
	return r, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
