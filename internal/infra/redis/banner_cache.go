package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// BannerCache shares session listings across instances as JSON under
// banner:{classes|statuses|code}, falling back to the lister on a miss.
type BannerCache struct {
	client *redis.Client
	lister app.SessionLister
	ttl    time.Duration
	sf     singleflight.Group
}

func NewBannerCache(client *redis.Client, lister app.SessionLister, ttl time.Duration) *BannerCache {
	return &BannerCache{
		client: client,
		lister: lister,
		ttl:    ttl,
	}
}

func (c *BannerCache) ListSessions(ctx context.Context, filter app.SessionFilter) ([]domain.LiveQuizSession, error) {
	key := c.key(filter)
	if sessions, ok := c.cached(ctx, key); ok {
		return sessions, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if sessions, ok := c.cached(ctx, key); ok {
			return sessions, nil
		}
		sessions, err := c.lister.ListSessions(ctx, filter)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(sessions); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return sessions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.LiveQuizSession), nil
}

func (c *BannerCache) cached(ctx context.Context, key string) ([]domain.LiveQuizSession, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var sessions []domain.LiveQuizSession
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return nil, false
	}
	return sessions, true
}

func (c *BannerCache) key(filter app.SessionFilter) string {
	return "banner:" + memory.FilterKey(filter)
}

func (c *BannerCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
