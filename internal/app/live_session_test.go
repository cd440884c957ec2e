package app_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"
)

var defaults = domain.SessionSettings{TimePerQuestion: 20, BasePoints: 1000, RoundMultiplierIncrement: 0.1}

func fixedCodes(codes ...string) app.CodeGenerator {
	i := 0
	return func() (string, error) {
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
}

func TestRandomJoinCodeShape(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	for i := 0; i < 50; i++ {
		code, err := app.RandomJoinCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !re.MatchString(code) {
			t.Fatalf("bad code %q", code)
		}
	}
}

func TestCreateSessionMaterializesQuestions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	factory := app.NewSessionFactory(store, store, nil, defaults, app.WithClock(func() time.Time { return now }))

	authored := []domain.QuizQuestion{question("one", 2), {}, question("two", 0)}
	authored[0].Explanation = "because"
	session, live, err := factory.CreateSession(ctx, app.SessionRequest{
		ClassID:  "class-1",
		Host:     "teacher@example.com",
		Settings: domain.SessionSettings{TimePerQuestion: 30},
	}, authored)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if session.Status != domain.SessionLobby || session.CurrentQuestionIndex != -1 || session.PlayerCount != 0 {
		t.Fatalf("unexpected initial state: %+v", session)
	}
	if !session.CreatedAt.Equal(now) || session.EndedAt != nil {
		t.Fatalf("unexpected timestamps: %+v", session)
	}
	if session.Settings.TimePerQuestion != 30 || session.Settings.BasePoints != 1000 {
		t.Fatalf("expected merged settings, got %+v", session.Settings)
	}
	if len(live) != 2 {
		t.Fatalf("expected 2 live questions, got %d", len(live))
	}
	if live[0].CorrectAnswer != "one c" || live[0].Order != 0 || live[0].Explanation != "because" {
		t.Fatalf("unexpected first live question: %+v", live[0])
	}
	if live[1].CorrectAnswer != "two a" || live[1].Order != 1 {
		t.Fatalf("unexpected second live question: %+v", live[1])
	}
	if len(live[0].AllowedForms) != 1 || live[0].AllowedForms[0] != app.AllowedFormExact {
		t.Fatalf("expected exact form, got %v", live[0].AllowedForms)
	}
	if live[0].LiveQuizSetID != session.ID {
		t.Fatalf("live question not linked to session")
	}
}

func TestCreateSessionSettingsAreACopy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	settings := defaults
	factory := app.NewSessionFactory(store, store, nil, settings)

	session, _, err := factory.CreateSession(ctx, app.SessionRequest{ClassID: "c"}, []domain.QuizQuestion{question("q", 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	settings.BasePoints = 1
	stored, _ := store.GetSession(ctx, session.ID)
	if stored.Settings.BasePoints != 1000 {
		t.Fatalf("session settings changed with defaults")
	}
}

func TestCreateSessionRetriesCollidingCode(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	first := app.NewSessionFactory(store, store, nil, defaults, app.WithCodeGenerator(fixedCodes("AAAAAA")))
	a, _, err := first.CreateSession(ctx, app.SessionRequest{ClassID: "c1"}, []domain.QuizQuestion{question("q", 0)})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}

	second := app.NewSessionFactory(store, store, nil, defaults, app.WithCodeGenerator(fixedCodes("AAAAAA", "AAAAAA", "BBBBBB")))
	b, _, err := second.CreateSession(ctx, app.SessionRequest{ClassID: "c2"}, []domain.QuizQuestion{question("q", 0)})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if a.JoinCode == b.JoinCode || b.JoinCode != "BBBBBB" {
		t.Fatalf("expected distinct codes, got %s and %s", a.JoinCode, b.JoinCode)
	}
}

func TestCreateSessionAcceptsCollisionAfterBound(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	factory := app.NewSessionFactory(store, store, nil, defaults, app.WithCodeGenerator(fixedCodes("AAAAAA")))
	_, _, _ = factory.CreateSession(ctx, app.SessionRequest{ClassID: "c1"}, []domain.QuizQuestion{question("q", 0)})

	calls := 0
	counting := func() (string, error) { calls++; return "AAAAAA", nil }
	again := app.NewSessionFactory(store, store, nil, defaults, app.WithCodeGenerator(counting))
	b, _, err := again.CreateSession(ctx, app.SessionRequest{ClassID: "c2"}, []domain.QuizQuestion{question("q", 0)})
	if err != nil {
		t.Fatalf("expected soft accept, got %v", err)
	}
	if b.JoinCode != "AAAAAA" || calls != app.DefaultJoinCodeAttempts {
		t.Fatalf("expected %d attempts then accept, got %d calls code %s", app.DefaultJoinCodeAttempts, calls, b.JoinCode)
	}
}

func TestCreateSessionIgnoresEndedHolders(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	factory := app.NewSessionFactory(store, store, nil, defaults, app.WithCodeGenerator(fixedCodes("AAAAAA")))
	a, _, _ := factory.CreateSession(ctx, app.SessionRequest{ClassID: "c1"}, []domain.QuizQuestion{question("q", 0)})
	if _, err := factory.End(ctx, a.ID); err != nil {
		t.Fatalf("end: %v", err)
	}

	calls := 0
	counting := func() (string, error) { calls++; return "AAAAAA", nil }
	again := app.NewSessionFactory(store, store, nil, defaults, app.WithCodeGenerator(counting))
	if _, _, err := again.CreateSession(ctx, app.SessionRequest{ClassID: "c2"}, []domain.QuizQuestion{question("q", 0)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if calls != 1 {
		t.Fatalf("ended session should free its code, took %d attempts", calls)
	}
}

func TestCreateSessionStoreCollisionUsesBudget(t *testing.T) {
	ctx := context.Background()
	store := &uniqueCodeStore{Store: memory.NewStore(), taken: map[string]bool{"AAAAAA": true}}
	factory := app.NewSessionFactory(store, store, nil, defaults, app.WithCodeGenerator(fixedCodes("AAAAAA", "CCCCCC")))

	s, _, err := factory.CreateSession(ctx, app.SessionRequest{ClassID: "c1"}, []domain.QuizQuestion{question("q", 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.JoinCode != "CCCCCC" {
		t.Fatalf("expected fallback code, got %s", s.JoinCode)
	}
}

func TestCreateSessionNeedsQuestions(t *testing.T) {
	store := memory.NewStore()
	factory := app.NewSessionFactory(store, store, nil, defaults)
	_, _, err := factory.CreateSession(context.Background(), app.SessionRequest{ClassID: "c"}, []domain.QuizQuestion{{}})
	if !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected no questions, got %v", err)
	}
}

func TestCreateSessionRateLimitedPerHost(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	factory := app.NewSessionFactory(store, store, memory.NewCooldown(1, time.Minute), defaults)
	qs := []domain.QuizQuestion{question("q", 0)}

	if _, _, err := factory.CreateSession(ctx, app.SessionRequest{ClassID: "c", Host: "h1"}, qs); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, _, err := factory.CreateSession(ctx, app.SessionRequest{ClassID: "c", Host: "h1"}, qs)
	var rl *domain.RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter <= 0 {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if _, _, err := factory.CreateSession(ctx, app.SessionRequest{ClassID: "c", Host: "h2"}, qs); err != nil {
		t.Fatalf("other host should pass: %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	factory := app.NewSessionFactory(store, store, nil, defaults)
	s, _, _ := factory.CreateSession(ctx, app.SessionRequest{ClassID: "c"}, []domain.QuizQuestion{question("q1", 0), question("q2", 1)})

	if _, err := factory.Advance(ctx, s.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("advance in lobby should fail, got %v", err)
	}
	live, err := factory.Start(ctx, s.ID)
	if err != nil || live.Status != domain.SessionLive || live.CurrentQuestionIndex != 0 {
		t.Fatalf("start: %+v %v", live, err)
	}
	next, err := factory.Advance(ctx, s.ID)
	if err != nil || next.CurrentQuestionIndex != 1 {
		t.Fatalf("advance: %+v %v", next, err)
	}
	if _, err := factory.Advance(ctx, s.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("advance past the last question should fail, got %v", err)
	}
	if got, _ := store.GetSession(ctx, s.ID); got.CurrentQuestionIndex != 1 {
		t.Fatalf("expected index to stay on the last question, got %d", got.CurrentQuestionIndex)
	}
	if _, err := factory.Start(ctx, s.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("restart should fail, got %v", err)
	}
	ended, err := factory.End(ctx, s.ID)
	if err != nil || ended.Status != domain.SessionEnded || ended.EndedAt == nil {
		t.Fatalf("end: %+v %v", ended, err)
	}
	if _, err := factory.End(ctx, s.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("ended is terminal, got %v", err)
	}
}

// uniqueCodeStore mimics a store with a unique index on active join codes.
type uniqueCodeStore struct {
	*memory.Store
	taken map[string]bool
}

func (u *uniqueCodeStore) CreateSession(ctx context.Context, s domain.LiveQuizSession) (domain.LiveQuizSession, error) {
	if u.taken[s.JoinCode] {
		return domain.LiveQuizSession{}, domain.ErrJoinCodeTaken
	}
	u.taken[s.JoinCode] = true
	return u.Store.CreateSession(ctx, s)
}

func TestStaleTransitionDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	factory := app.NewSessionFactory(store, store, nil, defaults)
	s, _, _ := factory.CreateSession(ctx, app.SessionRequest{ClassID: "c"}, []domain.QuizQuestion{question("q1", 0), question("q2", 1)})
	lobby, _ := store.GetSession(ctx, s.ID)

	if _, err := factory.End(ctx, s.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	started := lobby
	started.Status = domain.SessionLive
	started.CurrentQuestionIndex = 0
	if err := store.TransitionSession(ctx, lobby, started); !errors.Is(err, domain.ErrSessionChanged) {
		t.Fatalf("expected stale write to be refused, got %v", err)
	}
	got, _ := store.GetSession(ctx, s.ID)
	if got.Status != domain.SessionEnded || got.EndedAt == nil {
		t.Fatalf("ended session must stay ended, got %+v", got)
	}
}

// failingLiveQuestions cannot materialize questions.
type failingLiveQuestions struct {
	*memory.Store
}

func (failingLiveQuestions) CreateLiveQuestions(context.Context, []domain.LiveQuizQuestion) ([]domain.LiveQuizQuestion, error) {
	return nil, errors.New("store unavailable")
}

func TestCreateSessionEndsLobbyWhenQuestionsFail(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	factory := app.NewSessionFactory(store, failingLiveQuestions{store}, nil, defaults, app.WithCodeGenerator(fixedCodes("ORPHAN")))

	if _, _, err := factory.CreateSession(ctx, app.SessionRequest{ClassID: "class-1"}, []domain.QuizQuestion{question("q", 0)}); err == nil {
		t.Fatalf("expected materialize error")
	}

	banner, err := app.NewDiscovery(store, time.Hour).FindBannerSession(ctx, []string{"class-1"})
	if err != nil || banner != nil {
		t.Fatalf("expected no discoverable session, got %+v err=%v", banner, err)
	}
	if _, err := app.NewJoinService(store, store).JoinByCode(ctx, "ORPHAN", "Al", "s1"); !errors.Is(err, domain.ErrNoLiveQuiz) {
		t.Fatalf("expected no live quiz for the abandoned code, got %v", err)
	}
}
