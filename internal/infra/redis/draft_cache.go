package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DraftCache stores authoring session -> draft quiz id in Redis so every instance
// resolves the same draft. Keys expire after ttl of authoring inactivity.
type DraftCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDraftCache(client *redis.Client, ttl time.Duration) *DraftCache {
	return &DraftCache{client: client, ttl: ttl}
}

func (c *DraftCache) GetDraft(ctx context.Context, authoringID string) (string, bool, error) {
	id, err := c.client.Get(ctx, c.key(authoringID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if c.ttl > 0 {
		// sliding expiry; best-effort
		_ = c.client.Expire(ctx, c.key(authoringID), c.ttl).Err()
	}
	return id, true, nil
}

// PutDraft keeps the first id written for a session; a concurrent writer on another
// instance loses and its quiz set is left as an abandoned draft.
func (c *DraftCache) PutDraft(ctx context.Context, authoringID, quizSetID string) error {
	return c.client.SetNX(ctx, c.key(authoringID), quizSetID, c.ttl).Err()
}

func (c *DraftCache) key(authoringID string) string {
	return "authoring:" + authoringID + ":draft"
}
