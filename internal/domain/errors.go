package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQuizNotFound indicates the quiz set does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when a live session id does not resolve.
	ErrSessionNotFound = errors.New("live session not found")
	// ErrNoQuizSelected is returned by writers that need a quiz set id and got none.
	ErrNoQuizSelected = errors.New("no quiz selected")
	// ErrNoLiveQuiz is the single user-facing message for stale or ended sessions.
	ErrNoLiveQuiz = errors.New("no live quiz is currently running")
	// ErrRecordRejected is returned by stores that refuse a record's shape (schema mismatch, bad reference).
	ErrRecordRejected = errors.New("record rejected by store")
	// ErrJoinCodeTaken is returned by stores that enforce join code uniqueness among active sessions.
	ErrJoinCodeTaken = errors.New("join code already in use")
	// ErrInvalidTransition guards the lobby -> live -> ended state machine.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrSessionChanged is returned when a session moved on between read and write.
	ErrSessionChanged = fmt.Errorf("%w: session changed concurrently", ErrInvalidTransition)
	// ErrNoQuestions is returned when a session is requested for a quiz without valid questions.
	ErrNoQuestions = errors.New("quiz has no valid questions")
)

// ValidationError names the first rule a request violated. No side effects happened.
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(rule, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError builds a ValidationError for rules checked outside this package.
func NewValidationError(rule, format string, args ...any) *ValidationError {
	return newValidationError(rule, format, args...)
}

// CreationError is returned when no draft strategy could create a quiz set.
type CreationError struct {
	Attempts []string
	Err      error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("could not create draft quiz (tried %v): %v", e.Attempts, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// ImportError reports the candidate that stopped an import batch and the counts reached before it.
type ImportError struct {
	QuestionID string
	Prompt     string
	Created    int
	Skipped    int
	Err        error
}

func (e *ImportError) Error() string {
	ref := e.QuestionID
	if ref == "" {
		ref = fmt.Sprintf("%q", e.Prompt)
	}
	return fmt.Sprintf("import stopped at question %s (created %d, skipped %d): %v", ref, e.Created, e.Skipped, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// RateLimitError is returned when a caller exceeded its allowance.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests, retry in %s", e.RetryAfter.Round(time.Second))
}
