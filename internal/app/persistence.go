package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"classroom-quiz-service/internal/domain"
)

// QuizPersistence saves a quiz as a snapshot: metadata upsert, then replace every question row.
type QuizPersistence struct {
	sets      QuizSetRepository
	questions QuestionRepository
	now       func() time.Time
}

func NewQuizPersistence(sets QuizSetRepository, questions QuestionRepository) *QuizPersistence {
	return &QuizPersistence{sets: sets, questions: questions, now: time.Now}
}

// noCompleteQuestion names the rule the first question broke, or asks for one when there are none.
func noCompleteQuestion(questions []domain.QuizQuestion) *domain.ValidationError {
	if len(questions) == 0 {
		return domain.NewValidationError(domain.RuleQuestionsNeeded, "quiz needs at least one complete question")
	}
	first := domain.ValidateQuestion(questions[0])
	return domain.NewValidationError(first.Rule, "quiz needs at least one complete question: question 1: %s", first.Message)
}

// Save writes meta and the valid subset of questions, in order. Question ids are not stable across saves.
func (p *QuizPersistence) Save(ctx context.Context, quizSetID string, meta domain.QuizMeta, questions []domain.QuizQuestion, status domain.QuizStatus) (string, error) {
	if quizSetID == "" {
		return "", domain.ErrNoQuizSelected
	}
	if strings.TrimSpace(meta.Title) == "" {
		return "", domain.NewValidationError(domain.RuleTitleRequired, "quiz title is required")
	}
	valid := domain.SanitizeQuestions(questions)
	if len(valid) == 0 {
		return "", noCompleteQuestion(questions)
	}
	if status == "" {
		status = domain.QuizStatusDraft
	}

	now := p.now()
	set, err := p.sets.GetQuizSet(ctx, quizSetID)
	exists := err == nil
	if err != nil && !errors.Is(err, domain.ErrQuizNotFound) {
		return "", fmt.Errorf("load quiz: %w", err)
	}
	if !exists {
		set = domain.QuizSet{ID: quizSetID, CreatedAt: now}
	}
	set.Title = strings.TrimSpace(meta.Title)
	set.TopicID = meta.TopicID
	set.SubjectID = meta.SubjectID
	if meta.Owner != "" {
		set.Owner = meta.Owner
	}
	set.Status = status
	set.QuestionCount = len(valid)
	set.UpdatedAt = now
	if exists {
		err = p.sets.UpdateQuizSet(ctx, set)
	} else {
		_, err = p.sets.CreateQuizSet(ctx, set)
	}
	if err != nil {
		return "", fmt.Errorf("upsert quiz: %w", err)
	}

	rows := make([]domain.QuizQuestion, len(valid))
	for i, q := range valid {
		rows[i] = snapshotRow(quizSetID, i, q)
	}

	if snap, ok := p.questions.(QuestionSnapshotter); ok {
		if _, err := snap.ReplaceQuestions(ctx, quizSetID, rows); err != nil {
			return "", fmt.Errorf("replace questions: %w", err)
		}
		return quizSetID, nil
	}

	// Not atomic: a reader between these two steps sees an empty quiz.
	if err := p.questions.DeleteQuizQuestions(ctx, quizSetID); err != nil {
		return "", fmt.Errorf("clear questions: %w", err)
	}
	for _, row := range rows {
		if _, err := p.questions.CreateQuestion(ctx, row); err != nil {
			return "", fmt.Errorf("create question %d: %w", row.Order, err)
		}
	}
	return quizSetID, nil
}

func snapshotRow(quizSetID string, order int, q domain.QuizQuestion) domain.QuizQuestion {
	q.ID = ""
	q.QuizSetID = quizSetID
	q.Order = order
	q.Prompt = strings.TrimSpace(q.Prompt)
	q.Options = append([]string(nil), q.Options...)
	q.CorrectAnswer = q.DeriveCorrectAnswer()
	return q
}

// Sweep deletes persisted rows that fail validation, e.g. leftovers of an interrupted import.
func (p *QuizPersistence) Sweep(ctx context.Context, quizSetID string) (int, error) {
	rows, err := p.questions.ListQuestions(ctx, quizSetID)
	if err != nil {
		return 0, fmt.Errorf("list questions: %w", err)
	}
	var junk []string
	for _, q := range rows {
		if domain.ValidateQuestion(q) != nil {
			junk = append(junk, q.ID)
		}
	}
	if len(junk) == 0 {
		return 0, nil
	}
	if err := p.questions.DeleteQuestions(ctx, junk); err != nil {
		return 0, fmt.Errorf("delete invalid questions: %w", err)
	}
	log.Printf("swept %d invalid questions from quiz %s", len(junk), quizSetID)
	return len(junk), nil
}

// Questions is what the authoring view loads: sweep first, then the remaining rows in order.
func (p *QuizPersistence) Questions(ctx context.Context, quizSetID string) ([]domain.QuizQuestion, error) {
	if quizSetID == "" {
		return nil, domain.ErrNoQuizSelected
	}
	if _, err := p.sets.GetQuizSet(ctx, quizSetID); err != nil {
		return nil, err
	}
	if _, err := p.Sweep(ctx, quizSetID); err != nil {
		// the listing below still works without the sweep
		log.Printf("sweep quiz %s: %v", quizSetID, err)
	}
	rows, err := p.questions.ListQuestions(ctx, quizSetID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return domain.SanitizeQuestions(rows), nil
}
