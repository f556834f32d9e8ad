// Package kv is the Redis-backed durable store for routing and OMS tables.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jiajunxiong/fix/pkg/db"
)

// Hash and counter names shared with other processes reading the same Redis.
const (
	SendersKey   = "order_senders"
	OrdersKey    = "oms_orders"
	PositionsKey = "oms_positions"
	TradesKey    = "oms_trades"
	CounterKey   = "id"
)

const scanBatch = 500

// Config holds Redis connection settings.
type Config struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// DefaultConfig returns settings for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     32,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}

var _ db.Store = (*Store)(nil)

// Store keeps each table as a Redis hash of JSON values.
type Store struct {
	client *redis.Client
}

// NewClient dials Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewStore wraps an existing client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) PutSenderInfo(ctx context.Context, routerID string, info db.SenderInfo) error {
	return s.hset(ctx, SendersKey, routerID, info)
}

func (s *Store) GetSenderInfo(ctx context.Context, routerID string) (db.SenderInfo, error) {
	var info db.SenderInfo
	err := s.hget(ctx, SendersKey, routerID, &info)
	return info, err
}

// ScanSenderInfo walks the senders hash with HSCAN so large tables never load
// in one reply.
func (s *Store) ScanSenderInfo(ctx context.Context, fn db.SenderVisitor) error {
	var cursor uint64
	for {
		kvs, next, err := s.client.HScan(ctx, SendersKey, cursor, "", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("hscan %s: %w", SendersKey, err)
		}
		for i := 0; i+1 < len(kvs); i += 2 {
			var info db.SenderInfo
			if err := json.Unmarshal([]byte(kvs[i+1]), &info); err != nil {
				return fmt.Errorf("decode sender info %s: %w", kvs[i], err)
			}
			if err := fn(kvs[i], info); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *Store) GetOrder(ctx context.Context, id string) (db.Order, error) {
	var o db.Order
	err := s.hget(ctx, OrdersKey, id, &o)
	return o, err
}

func (s *Store) GetPosition(ctx context.Context, id string) (db.Position, error) {
	var p db.Position
	err := s.hget(ctx, PositionsKey, id, &p)
	return p, err
}

func (s *Store) GetTrade(ctx context.Context, execID string) (db.Trade, error) {
	var t db.Trade
	err := s.hget(ctx, TradesKey, execID, &t)
	return t, err
}

func (s *Store) ListPositions(ctx context.Context) ([]db.Position, error) {
	raw, err := s.client.HGetAll(ctx, PositionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", PositionsKey, err)
	}
	out := make([]db.Position, 0, len(raw))
	for id, v := range raw {
		var p db.Position
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("decode position %s: %w", id, err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Commit writes the batch inside MULTI/EXEC.
func (s *Store) Commit(ctx context.Context, b db.Batch) error {
	if b.Empty() {
		return nil
	}
	type write struct {
		key, field string
		value      []byte
	}
	var writes []write
	add := func(key, field string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", key, field, err)
		}
		writes = append(writes, write{key: key, field: field, value: data})
		return nil
	}
	if b.Order != nil {
		if err := add(OrdersKey, b.Order.ID, b.Order); err != nil {
			return err
		}
	}
	if b.Position != nil {
		if err := add(PositionsKey, b.Position.ID, b.Position); err != nil {
			return err
		}
	}
	if b.Trade != nil {
		if err := add(TradesKey, b.Trade.ID, b.Trade); err != nil {
			return err
		}
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, w := range writes {
			pipe.HSet(ctx, w.key, w.field, w.value)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) hset(ctx context.Context, key, field string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", key, field, err)
	}
	if err := s.client.HSet(ctx, key, field, data).Err(); err != nil {
		return fmt.Errorf("hset %s/%s: %w", key, field, err)
	}
	return nil
}

func (s *Store) hget(ctx context.Context, key, field string, out any) error {
	data, err := s.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return db.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("hget %s/%s: %w", key, field, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", key, field, err)
	}
	return nil
}
