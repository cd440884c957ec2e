package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown is a fixed-window counter per key: INCR, EXPIRE on the first hit.
type Cooldown struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewCooldown(client *redis.Client, prefix string, max int, window time.Duration) *Cooldown {
	if max <= 0 {
		max = 1
	}
	return &Cooldown{client: client, prefix: prefix, max: max, window: window}
}

func (c *Cooldown) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := c.prefix + ":" + key
	count, err := c.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := c.client.Expire(ctx, k, c.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if int(count) <= c.max {
		return true, 0, nil
	}
	ttl, err := c.client.TTL(ctx, k).Result()
	if err != nil || ttl < 0 {
		ttl = c.window
	}
	return false, ttl, nil
}
