package app

import (
	"context"
	"time"

	"classroom-quiz-service/internal/domain"
)

// QuizSetRepository stores quiz sets.
type QuizSetRepository interface {
	CreateQuizSet(ctx context.Context, set domain.QuizSet) (domain.QuizSet, error)
	GetQuizSet(ctx context.Context, id string) (domain.QuizSet, error)
	UpdateQuizSet(ctx context.Context, set domain.QuizSet) error
}

// QuestionRepository stores authored questions. ListQuestions returns rows ordered by Order.
type QuestionRepository interface {
	ListQuestions(ctx context.Context, quizSetID string) ([]domain.QuizQuestion, error)
	CreateQuestion(ctx context.Context, q domain.QuizQuestion) (domain.QuizQuestion, error)
	DeleteQuestions(ctx context.Context, ids []string) error
	DeleteQuizQuestions(ctx context.Context, quizSetID string) error
}

// QuestionSnapshotter is implemented by stores that can replace a quiz's questions atomically.
type QuestionSnapshotter interface {
	ReplaceQuestions(ctx context.Context, quizSetID string, questions []domain.QuizQuestion) ([]domain.QuizQuestion, error)
}

// SessionFilter selects live sessions. Empty slices do not constrain.
type SessionFilter struct {
	ClassIDs []string
	Statuses []domain.SessionStatus
	JoinCode string
}

// SessionRepository stores live sessions. ListSessions returns newest-created first.
//
// Sessions are never written back whole. TransitionSession writes the lifecycle
// fields of next (status, question index, ended_at) only while the stored row still
// has prev's status and question index and has not ended; otherwise it returns
// domain.ErrSessionChanged. IncrementPlayerCount bumps the count of a session that
// has not ended and returns domain.ErrNoLiveQuiz for one that has.
type SessionRepository interface {
	CreateSession(ctx context.Context, s domain.LiveQuizSession) (domain.LiveQuizSession, error)
	GetSession(ctx context.Context, id string) (domain.LiveQuizSession, error)
	TransitionSession(ctx context.Context, prev, next domain.LiveQuizSession) error
	IncrementPlayerCount(ctx context.Context, id string) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]domain.LiveQuizSession, error)
}

// LiveQuestionRepository stores the frozen questions of a session.
type LiveQuestionRepository interface {
	CreateLiveQuestions(ctx context.Context, questions []domain.LiveQuizQuestion) ([]domain.LiveQuizQuestion, error)
	ListLiveQuestions(ctx context.Context, sessionID string) ([]domain.LiveQuizQuestion, error)
}

// PlayerRepository stores session participants.
type PlayerRepository interface {
	ListPlayers(ctx context.Context, sessionID string) ([]domain.LiveQuizPlayer, error)
	CreatePlayer(ctx context.Context, p domain.LiveQuizPlayer) (domain.LiveQuizPlayer, error)
	UpdatePlayer(ctx context.Context, p domain.LiveQuizPlayer) error
}

// DraftCache remembers which quiz set an authoring session resolved to.
type DraftCache interface {
	GetDraft(ctx context.Context, authoringID string) (string, bool, error)
	PutDraft(ctx context.Context, authoringID, quizSetID string) error
}

// RateLimiter decides whether the caller identified by key may proceed.
// When it may not, retryAfter says how long until it can.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// Store bundles every repository a backend provides.
type Store interface {
	QuizSetRepository
	QuestionRepository
	SessionRepository
	LiveQuestionRepository
	PlayerRepository
}
