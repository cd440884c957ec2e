package redis

import (
	"context"
	"testing"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
)

func TestBannerCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := memory.NewStore()
	created, err := store.CreateSession(ctx, domain.LiveQuizSession{
		ClassID:   "class-1",
		Status:    domain.SessionLive,
		JoinCode:  "ABC123",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	lister := &countingLister{SessionLister: store}
	cache := NewBannerCache(newClient(mr), lister, 5*time.Second)
	filter := app.SessionFilter{ClassIDs: []string{"class-1"}, Statuses: []domain.SessionStatus{domain.SessionLive}}

	sessions, err := cache.ListSessions(ctx, filter)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 || lister.calls != 1 {
		t.Fatalf("expected 1 session from lister, got %d sessions %d calls", len(sessions), lister.calls)
	}

	// Second call should hit cache, lister not incremented.
	cached, err := cache.ListSessions(ctx, filter)
	if err != nil {
		t.Fatalf("list cached: %v", err)
	}
	if lister.calls != 1 {
		t.Fatalf("expected cache hit, lister calls=%d", lister.calls)
	}
	if len(cached) != 1 || cached[0].ID != created.ID || !cached[0].CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("cached copy differs: %+v", cached)
	}

	mr.FastForward(10 * time.Second)
	_, _ = cache.ListSessions(ctx, filter)
	if lister.calls != 2 {
		t.Fatalf("expected reload after expiry, lister calls=%d", lister.calls)
	}
}

type countingLister struct {
	app.SessionLister
	calls int
}

func (l *countingLister) ListSessions(ctx context.Context, filter app.SessionFilter) ([]domain.LiveQuizSession, error) {
	l.calls++
	return l.SessionLister.ListSessions(ctx, filter)
}
