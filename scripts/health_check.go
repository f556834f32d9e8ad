package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/quickfixgo/quickfix"

	"github.com/jiajunxiong/fix/pkg/config"
	"github.com/jiajunxiong/fix/pkg/db"
	"github.com/jiajunxiong/fix/pkg/kv"
)

type HealthStatus struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthReport struct {
	Overall  string         `json:"overall"`
	Services []HealthStatus `json:"services"`
}

const (
	healthy   = "HEALTHY"
	degraded  = "DEGRADED"
	unhealthy = "UNHEALTHY"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := HealthReport{Overall: healthy}

	cfg, status := checkConfig()
	report.Services = append(report.Services, status)
	if cfg != nil {
		report.Services = append(report.Services,
			checkStore(ctx, cfg),
			checkFIXSettings("FIX acceptor", cfg.FIXSettingsPath),
			checkFIXSettings("FIX initiator", cfg.FIXInitiatorSettingsPath),
			checkAPIServer(ctx, cfg),
			checkEngineQueue(ctx, cfg),
		)
	}

	for _, svc := range report.Services {
		if svc.Status == unhealthy {
			report.Overall = unhealthy
			break
		} else if svc.Status == degraded {
			report.Overall = degraded
		}
	}

	fmt.Println("FIX router health check")
	fmt.Println("-----------------------")
	for _, svc := range report.Services {
		fmt.Printf("%-16s %-10s %s\n", svc.Service, svc.Status, svc.Message)
	}
	fmt.Printf("\nOverall Status: %s\n", report.Overall)

	if len(os.Args) > 1 && os.Args[1] == "--json" {
		jsonData, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(jsonData))
	}

	if report.Overall == unhealthy {
		os.Exit(1)
	}
}

func newStatus(service string) HealthStatus {
	return HealthStatus{Service: service, Status: healthy, Timestamp: time.Now()}
}

func checkConfig() (*config.Config, HealthStatus) {
	status := newStatus("Configuration")
	cfg, err := config.Load()
	if err != nil {
		status.Status = unhealthy
		status.Message = err.Error()
		return nil, status
	}
	routing, err := cfg.Routing()
	if err != nil {
		status.Status = unhealthy
		status.Message = err.Error()
		return cfg, status
	}
	status.Message = fmt.Sprintf("store=%s routes=%d buys=%d sells=%d",
		cfg.StoreBackend, len(routing.Routes), len(routing.Buys), len(routing.Sells))
	return cfg, status
}

func checkStore(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("Store")
	switch cfg.StoreBackend {
	case "redis":
		rc := kv.DefaultConfig()
		rc.Addr, rc.Password, rc.DB = cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB
		client, err := kv.NewClient(ctx, rc)
		if err != nil {
			status.Status = unhealthy
			status.Message = err.Error()
			return status
		}
		defer client.Close()
		n, err := client.HLen(ctx, kv.SendersKey).Result()
		if err != nil {
			status.Status = degraded
			status.Message = err.Error()
			return status
		}
		status.Message = fmt.Sprintf("redis %s, %d routed orders", rc.Addr, n)
	case "sqlite":
		database, err := db.New(cfg.DBPath)
		if err != nil {
			status.Status = unhealthy
			status.Message = err.Error()
			return status
		}
		defer database.Close()
		if err := database.DB.PingContext(ctx); err != nil {
			status.Status = unhealthy
			status.Message = fmt.Sprintf("ping failed: %v", err)
			return status
		}
		status.Message = "sqlite " + cfg.DBPath
	default:
		status.Status = degraded
		status.Message = "in-memory store, nothing survives a restart"
	}
	return status
}

func checkFIXSettings(service, path string) HealthStatus {
	status := newStatus(service)
	if path == "" {
		status.Message = "not configured"
		return status
	}
	f, err := os.Open(path)
	if err != nil {
		status.Status = unhealthy
		status.Message = err.Error()
		return status
	}
	defer f.Close()
	settings, err := quickfix.ParseSettings(f)
	if err != nil {
		status.Status = unhealthy
		status.Message = err.Error()
		return status
	}
	status.Message = fmt.Sprintf("%d sessions", len(settings.SessionSettings()))
	return status
}

func checkAPIServer(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("Admin API")
	resp, err := get(ctx, cfg, "/health")
	if err != nil {
		status.Status = unhealthy
		status.Message = fmt.Sprintf("not reachable: %v", err)
		return status
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		status.Status = degraded
		status.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return status
	}
	status.Message = "running"
	return status
}

// checkEngineQueue flags an engine that is refusing events or close to full.
func checkEngineQueue(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("Engine queue")
	resp, err := get(ctx, cfg, "/api/queue/metrics")
	if err != nil {
		status.Status = degraded
		status.Message = err.Error()
		return status
	}
	defer resp.Body.Close()

	var q struct {
		Depth    int    `json:"current_depth"`
		Capacity int    `json:"capacity"`
		Rejected uint64 `json:"rejected"`
		Policy   string `json:"policy"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		status.Status = degraded
		status.Message = fmt.Sprintf("decode: %v", err)
		return status
	}
	if q.Rejected > 0 || (q.Capacity > 0 && q.Depth*5 >= q.Capacity*4) {
		status.Status = degraded
	}
	status.Message = fmt.Sprintf("depth=%d/%d rejected=%d policy=%s", q.Depth, q.Capacity, q.Rejected, q.Policy)
	return status
}

func get(ctx context.Context, cfg *config.Config, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%s%s", cfg.Port, path), nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	return client.Do(req)
}
