package memory

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// BannerCache caches session listings for a short TTL so every viewer's poll does not hit the store.
type BannerCache struct {
	lister app.SessionLister
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedSessions
}

type cachedSessions struct {
	sessions  []domain.LiveQuizSession
	expiresAt time.Time
}

func NewBannerCache(lister app.SessionLister, ttl time.Duration) *BannerCache {
	return &BannerCache{
		lister: lister,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[string]cachedSessions),
	}
}

func (c *BannerCache) ListSessions(ctx context.Context, filter app.SessionFilter) ([]domain.LiveQuizSession, error) {
	key := FilterKey(filter)
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.sessions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.sessions, nil
		}
		c.mu.RUnlock()

		sessions, err := c.lister.ListSessions(ctx, filter)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cachedSessions{
			sessions:  sessions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return sessions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.LiveQuizSession), nil
}

// FilterKey is a stable cache key for a filter, independent of slice order.
func FilterKey(filter app.SessionFilter) string {
	classes := append([]string(nil), filter.ClassIDs...)
	sort.Strings(classes)
	statuses := make([]string, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = string(s)
	}
	sort.Strings(statuses)
	return strings.Join(classes, ",") + "|" + strings.Join(statuses, ",") + "|" + strings.ToUpper(filter.JoinCode)
}

func (c *BannerCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
