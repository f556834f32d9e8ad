package kv

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// floorScript raises a counter to ARGV[1] when it is lower.
var floorScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if cur < floor then
  redis.call('SET', KEYS[1], ARGV[1])
  return floor
end
return cur
`)

// Counter is a durable shared sequence backed by INCR.
type Counter struct {
	client *redis.Client
	key    string
}

func NewCounter(client *redis.Client, key string) *Counter {
	if key == "" {
		key = CounterKey
	}
	return &Counter{client: client, key: key}
}

// Increment atomically bumps the counter and returns the new value.
func (c *Counter) Increment(ctx context.Context) (int64, error) {
	v, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", c.key, err)
	}
	return v, nil
}

// Floor raises the counter to at least floor. It never lowers it.
func (c *Counter) Floor(ctx context.Context, floor int64) error {
	if err := floorScript.Run(ctx, c.client, []string{c.key}, floor).Err(); err != nil {
		return fmt.Errorf("floor %s: %w", c.key, err)
	}
	return nil
}
