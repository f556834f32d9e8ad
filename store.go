package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jiajunxiong/fix/internal/idgen"
	"github.com/jiajunxiong/fix/pkg/config"
	"github.com/jiajunxiong/fix/pkg/db"
	"github.com/jiajunxiong/fix/pkg/kv"
)

// backend pairs the durable tables with the id counter living beside them.
type backend struct {
	Store    db.Store
	Sequence idgen.Sequence
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (backend, error) {
	switch cfg.StoreBackend {
	case "redis":
		rc := kv.DefaultConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		client, err := kv.NewClient(ctx, rc)
		if err != nil {
			return backend{}, err
		}
		log.Info("using redis store", zap.String("addr", rc.Addr), zap.Int("db", rc.DB))
		return backend{Store: kv.NewStore(client), Sequence: kv.NewCounter(client, kv.CounterKey)}, nil

	case "sqlite":
		database, err := db.New(cfg.DBPath)
		if err != nil {
			return backend{}, fmt.Errorf("open sqlite %s: %w", cfg.DBPath, err)
		}
		if err := db.ApplyMigrations(database); err != nil {
			_ = database.Close()
			return backend{}, fmt.Errorf("migrate sqlite: %w", err)
		}
		log.Info("using sqlite store", zap.String("path", cfg.DBPath))
		return backend{Store: database, Sequence: database.Sequence(kv.CounterKey)}, nil

	case "memory":
		log.Warn("using in-memory store; state is lost on exit")
		return backend{Store: db.NewMemoryStore(), Sequence: idgen.NewMemorySequence(0)}, nil

	default:
		return backend{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
