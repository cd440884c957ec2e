package memory

import (
	"context"
	"sync"
)

// DraftCache keeps authoring session -> draft quiz id for the life of the process.
type DraftCache struct {
	mu     sync.RWMutex
	drafts map[string]string
}

func NewDraftCache() *DraftCache {
	return &DraftCache{drafts: make(map[string]string)}
}

func (c *DraftCache) GetDraft(_ context.Context, authoringID string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.drafts[authoringID]
	return id, ok, nil
}

func (c *DraftCache) PutDraft(_ context.Context, authoringID, quizSetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drafts[authoringID] = quizSetID
	return nil
}
