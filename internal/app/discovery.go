package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"classroom-quiz-service/internal/domain"
)

const (
	// DefaultStalenessWindow hides sessions older than this from discovery.
	DefaultStalenessWindow = time.Hour
	// DefaultPollInterval is how often clients re-run discovery.
	DefaultPollInterval = 5 * time.Second
)

// SessionLister is the read side discovery needs.
type SessionLister interface {
	ListSessions(ctx context.Context, filter SessionFilter) ([]domain.LiveQuizSession, error)
}

// Discovery finds the one session a viewer's dashboard should show.
type Discovery struct {
	sessions  SessionLister
	staleness time.Duration
	now       func() time.Time
}

func NewDiscovery(sessions SessionLister, staleness time.Duration) *Discovery {
	if staleness <= 0 {
		staleness = DefaultStalenessWindow
	}
	return &Discovery{sessions: sessions, staleness: staleness, now: time.Now}
}

// NewDiscoveryWithClock is test-only for deterministic timestamps.
func NewDiscoveryWithClock(sessions SessionLister, staleness time.Duration, now func() time.Time) *Discovery {
	d := NewDiscovery(sessions, staleness)
	d.now = now
	return d
}

// FindBannerSession returns the newest fresh lobby/live session across the viewer's classes, or nil.
func (d *Discovery) FindBannerSession(ctx context.Context, classIDs []string) (*domain.LiveQuizSession, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	sessions, err := d.sessions.ListSessions(ctx, SessionFilter{
		ClassIDs: classIDs,
		Statuses: []domain.SessionStatus{domain.SessionLobby, domain.SessionLive},
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return SelectBannerSession(sessions, d.now(), d.staleness), nil
}

// SelectBannerSession is the pure part of discovery. With two classes running sessions
// at once only the newer one is surfaced.
func SelectBannerSession(sessions []domain.LiveQuizSession, now time.Time, staleness time.Duration) *domain.LiveQuizSession {
	cutoff := now.Add(-staleness)
	seen := make(map[string]struct{}, len(sessions))
	newestPerClass := make(map[string]domain.LiveQuizSession)

	for _, s := range sessions {
		if s.EndedAt != nil || !s.Status.Active() || s.CreatedAt.Before(cutoff) {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		if cur, ok := newestPerClass[s.ClassID]; !ok || s.CreatedAt.After(cur.CreatedAt) {
			newestPerClass[s.ClassID] = s
		}
	}
	if len(newestPerClass) == 0 {
		return nil
	}

	candidates := make([]domain.LiveQuizSession, 0, len(newestPerClass))
	for _, s := range newestPerClass {
		candidates = append(candidates, s)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	winner := candidates[0]
	return &winner
}
