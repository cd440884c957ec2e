package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"
)

func TestEnsureDraftIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	drafts := app.NewDraftManager(store, memory.NewDraftCache())
	state := app.AuthoringState{SessionID: "auth-1", Owner: "teacher@example.com", SubjectID: "math", TopicID: "fractions"}

	first, err := drafts.EnsureDraft(ctx, state)
	if err != nil {
		t.Fatalf("ensure draft: %v", err)
	}
	second, err := drafts.EnsureDraft(ctx, state)
	if err != nil {
		t.Fatalf("ensure draft again: %v", err)
	}
	if first != second {
		t.Fatalf("expected same draft, got %s and %s", first, second)
	}

	set, err := store.GetQuizSet(ctx, first)
	if err != nil {
		t.Fatalf("get quiz set: %v", err)
	}
	if set.Status != domain.QuizStatusDraft || set.QuestionCount != 0 || set.Owner != "teacher@example.com" {
		t.Fatalf("unexpected draft: %+v", set)
	}
	if set.TopicID != "fractions" || set.Title != app.DefaultDraftTitle {
		t.Fatalf("expected linked draft with default title, got %+v", set)
	}
}

func TestEnsureDraftConcurrentCallsShareOneDraft(t *testing.T) {
	ctx := context.Background()
	sets := &countingSets{QuizSetRepository: memory.NewStore()}
	drafts := app.NewDraftManager(sets, memory.NewDraftCache())
	state := app.AuthoringState{SessionID: "auth-1", Owner: "t"}

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _ = drafts.EnsureDraft(ctx, state)
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id == "" || id != ids[0] {
			t.Fatalf("expected one shared id, got %v", ids)
		}
	}
	if sets.count() != 1 {
		t.Fatalf("expected one create, got %d", sets.count())
	}
}

func TestEnsureDraftFallsBackToStandalone(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	sets := &rejectingSets{QuizSetRepository: store}
	drafts := app.NewDraftManager(sets, memory.NewDraftCache())

	id, err := drafts.EnsureDraft(ctx, app.AuthoringState{SessionID: "auth-1", Owner: "t", TopicID: "fractions"})
	if err != nil {
		t.Fatalf("ensure draft: %v", err)
	}
	if sets.calls != 2 {
		t.Fatalf("expected primary then fallback, got %d calls", sets.calls)
	}
	set, _ := store.GetQuizSet(ctx, id)
	if set.TopicID != "" {
		t.Fatalf("expected standalone shape, got %+v", set)
	}
}

func TestEnsureDraftFailsTerminally(t *testing.T) {
	ctx := context.Background()
	sets := &alwaysFailingSets{err: fmt.Errorf("bad shape: %w", domain.ErrRecordRejected)}
	drafts := app.NewDraftManager(sets, memory.NewDraftCache())

	_, err := drafts.EnsureDraft(ctx, app.AuthoringState{SessionID: "auth-1"})
	var cerr *domain.CreationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected creation error, got %v", err)
	}
	if len(cerr.Attempts) != 2 || sets.calls != 2 {
		t.Fatalf("expected exactly one fallback, got attempts=%v calls=%d", cerr.Attempts, sets.calls)
	}
}

func TestEnsureDraftDoesNotFallBackOnOutage(t *testing.T) {
	ctx := context.Background()
	sets := &alwaysFailingSets{err: errors.New("connection refused")}
	drafts := app.NewDraftManager(sets, memory.NewDraftCache())

	_, err := drafts.EnsureDraft(ctx, app.AuthoringState{SessionID: "auth-1"})
	var cerr *domain.CreationError
	if !errors.As(err, &cerr) || sets.calls != 1 {
		t.Fatalf("expected single attempt creation error, got %v after %d calls", err, sets.calls)
	}
}

func TestEnsureDraftRequiresSession(t *testing.T) {
	drafts := app.NewDraftManager(memory.NewStore(), memory.NewDraftCache())
	_, err := drafts.EnsureDraft(context.Background(), app.AuthoringState{})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type countingSets struct {
	app.QuizSetRepository
	mu    sync.Mutex
	calls int
}

func (c *countingSets) CreateQuizSet(ctx context.Context, set domain.QuizSet) (domain.QuizSet, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.QuizSetRepository.CreateQuizSet(ctx, set)
}

func (c *countingSets) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type alwaysFailingSets struct {
	app.QuizSetRepository
	err   error
	calls int
}

func (a *alwaysFailingSets) CreateQuizSet(context.Context, domain.QuizSet) (domain.QuizSet, error) {
	a.calls++
	return domain.QuizSet{}, a.err
}
