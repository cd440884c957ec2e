package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"classroom-quiz-service/internal/domain"
)

const (
	joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	joinCodeLength   = 6
	// DefaultJoinCodeAttempts bounds the collision probe.
	DefaultJoinCodeAttempts = 10
)

// AllowedFormExact is the only answer form materialized from multiple choice questions.
const AllowedFormExact = "exact"

// CodeGenerator returns a candidate join code.
type CodeGenerator func() (string, error)

// RandomJoinCode draws a 6 character code from A-Z0-9.
func RandomJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// SessionRequest describes the session a host wants to open.
type SessionRequest struct {
	ClassID  string                 `json:"classId"`
	Host     string                 `json:"host"`
	Settings domain.SessionSettings `json:"settings"`
}

// SessionFactory turns authored questions into a live session and drives its state machine.
type SessionFactory struct {
	sessions      SessionRepository
	liveQuestions LiveQuestionRepository
	limiter       RateLimiter
	defaults      domain.SessionSettings
	attempts      int
	codes         CodeGenerator
	now           func() time.Time
}

// SessionFactoryOption customizes a SessionFactory.
type SessionFactoryOption func(*SessionFactory)

// WithCodeGenerator replaces the random join code source.
func WithCodeGenerator(gen CodeGenerator) SessionFactoryOption {
	return func(f *SessionFactory) { f.codes = gen }
}

// WithJoinCodeAttempts changes how many codes are probed before accepting the last one.
func WithJoinCodeAttempts(n int) SessionFactoryOption {
	return func(f *SessionFactory) {
		if n > 0 {
			f.attempts = n
		}
	}
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) SessionFactoryOption {
	return func(f *SessionFactory) { f.now = now }
}

func NewSessionFactory(sessions SessionRepository, liveQuestions LiveQuestionRepository, limiter RateLimiter, defaults domain.SessionSettings, opts ...SessionFactoryOption) *SessionFactory {
	f := &SessionFactory{
		sessions:      sessions,
		liveQuestions: liveQuestions,
		limiter:       limiter,
		defaults:      defaults,
		attempts:      DefaultJoinCodeAttempts,
		codes:         RandomJoinCode,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateSession opens a lobby for the class with a copy of settings and of the authored questions.
func (f *SessionFactory) CreateSession(ctx context.Context, req SessionRequest, authored []domain.QuizQuestion) (domain.LiveQuizSession, []domain.LiveQuizQuestion, error) {
	if req.ClassID == "" {
		return domain.LiveQuizSession{}, nil, domain.NewValidationError("class_required", "class id is required")
	}
	if err := allow(ctx, f.limiter, "host:"+req.Host); err != nil {
		return domain.LiveQuizSession{}, nil, err
	}
	valid := domain.SanitizeQuestions(authored)
	if len(valid) == 0 {
		return domain.LiveQuizSession{}, nil, domain.ErrNoQuestions
	}

	session := domain.LiveQuizSession{
		ClassID:              req.ClassID,
		Host:                 req.Host,
		Status:               domain.SessionLobby,
		CurrentQuestionIndex: -1,
		PlayerCount:          0,
		Settings:             req.Settings.WithDefaults(f.defaults),
		CreatedAt:            f.now(),
	}

	created, err := f.insertWithCode(ctx, session)
	if err != nil {
		return domain.LiveQuizSession{}, nil, err
	}

	live := make([]domain.LiveQuizQuestion, len(valid))
	for i, q := range valid {
		live[i] = domain.LiveQuizQuestion{
			LiveQuizSetID: created.ID,
			Order:         i,
			Prompt:        q.Prompt,
			CorrectAnswer: q.Options[q.CorrectIndex],
			AllowedForms:  []string{AllowedFormExact},
			Difficulty:    q.Difficulty,
			Explanation:   q.Explanation,
		}
	}
	stored, err := f.liveQuestions.CreateLiveQuestions(ctx, live)
	if err != nil {
		f.abandon(ctx, created)
		return domain.LiveQuizSession{}, nil, fmt.Errorf("materialize questions: %w", err)
	}
	log.Printf("opened session %s for class %s with code %s (%d questions)", created.ID, created.ClassID, created.JoinCode, len(stored))
	return created, stored, nil
}

// insertWithCode probes for a free code, then inserts. Both probe collisions and
// store-reported collisions spend the same attempt budget.
func (f *SessionFactory) insertWithCode(ctx context.Context, session domain.LiveQuizSession) (domain.LiveQuizSession, error) {
	used := 0
	for {
		code, err := f.allocateCode(ctx, &used)
		if err != nil {
			return domain.LiveQuizSession{}, err
		}
		session.JoinCode = code
		created, err := f.sessions.CreateSession(ctx, session)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, domain.ErrJoinCodeTaken) || used >= f.attempts {
			return domain.LiveQuizSession{}, fmt.Errorf("create session: %w", err)
		}
	}
}

// allocateCode returns the first code with no active holder, or the last one drawn once attempts run out.
func (f *SessionFactory) allocateCode(ctx context.Context, used *int) (string, error) {
	var code string
	for *used < f.attempts {
		*used++
		candidate, err := f.codes()
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		code = candidate
		taken, err := f.codeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	if code == "" {
		// budget already spent by store collisions; draw once more
		return f.codes()
	}
	log.Printf("join code %s still collides after %d attempts, using it", code, f.attempts)
	return code, nil
}

func (f *SessionFactory) codeTaken(ctx context.Context, code string) (bool, error) {
	existing, err := f.sessions.ListSessions(ctx, SessionFilter{
		JoinCode: code,
		Statuses: []domain.SessionStatus{domain.SessionLobby, domain.SessionLive},
	})
	if err != nil {
		return false, fmt.Errorf("probe join code: %w", err)
	}
	for _, s := range existing {
		if s.EndedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

// Start moves a lobby to live and shows the first question.
func (f *SessionFactory) Start(ctx context.Context, sessionID string) (domain.LiveQuizSession, error) {
	return f.transition(ctx, sessionID, func(s *domain.LiveQuizSession) error {
		if s.Status != domain.SessionLobby || s.EndedAt != nil {
			return fmt.Errorf("%w: cannot start a %s session", domain.ErrInvalidTransition, s.Status)
		}
		s.Status = domain.SessionLive
		s.CurrentQuestionIndex = 0
		return nil
	})
}

// Advance moves a live session to its next question. The index never passes the last
// materialized question; the host ends the session from there.
func (f *SessionFactory) Advance(ctx context.Context, sessionID string) (domain.LiveQuizSession, error) {
	questions, err := f.liveQuestions.ListLiveQuestions(ctx, sessionID)
	if err != nil {
		return domain.LiveQuizSession{}, fmt.Errorf("list live questions: %w", err)
	}
	return f.transition(ctx, sessionID, func(s *domain.LiveQuizSession) error {
		if s.Status != domain.SessionLive || s.EndedAt != nil {
			return fmt.Errorf("%w: cannot advance a %s session", domain.ErrInvalidTransition, s.Status)
		}
		if s.CurrentQuestionIndex+1 >= len(questions) {
			return fmt.Errorf("%w: no question after %d", domain.ErrInvalidTransition, s.CurrentQuestionIndex)
		}
		s.CurrentQuestionIndex++
		return nil
	})
}

// End closes a lobby or live session for good.
func (f *SessionFactory) End(ctx context.Context, sessionID string) (domain.LiveQuizSession, error) {
	return f.transition(ctx, sessionID, func(s *domain.LiveQuizSession) error {
		if s.Status == domain.SessionEnded {
			return fmt.Errorf("%w: session already ended", domain.ErrInvalidTransition)
		}
		now := f.now()
		s.Status = domain.SessionEnded
		s.EndedAt = &now
		return nil
	})
}

// transition applies one state machine step against the row it read. A concurrent
// step in between surfaces as domain.ErrSessionChanged rather than being overwritten.
func (f *SessionFactory) transition(ctx context.Context, sessionID string, apply func(*domain.LiveQuizSession) error) (domain.LiveQuizSession, error) {
	prev, err := f.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.LiveQuizSession{}, err
	}
	next := prev
	if err := apply(&next); err != nil {
		return domain.LiveQuizSession{}, err
	}
	if err := f.sessions.TransitionSession(ctx, prev, next); err != nil {
		return domain.LiveQuizSession{}, fmt.Errorf("update session: %w", err)
	}
	return next, nil
}

// abandon ends a lobby whose questions never landed so it cannot be discovered or joined.
func (f *SessionFactory) abandon(ctx context.Context, session domain.LiveQuizSession) {
	ended := session
	now := f.now()
	ended.Status = domain.SessionEnded
	ended.EndedAt = &now
	if err := f.sessions.TransitionSession(ctx, session, ended); err != nil {
		log.Printf("end abandoned session %s: %v", session.ID, err)
	}
}
