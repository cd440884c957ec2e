package app_test

import (
	"context"
	"fmt"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"
)

func question(prompt string, correct int) domain.QuizQuestion {
	return domain.QuizQuestion{
		Prompt:       prompt,
		Options:      []string{prompt + " a", prompt + " b", prompt + " c", prompt + " d"},
		CorrectIndex: correct,
	}
}

func external(id, prompt string) domain.ExternalQuestion {
	idx := 2
	return domain.ExternalQuestion{
		ID:           id,
		Prompt:       prompt,
		Choices:      []string{"w", "x", "y", "z"},
		CorrectIndex: &idx,
	}
}

// rejectingSets refuses quiz sets carrying subject/topic linkage, like a store with a stale schema.
type rejectingSets struct {
	app.QuizSetRepository
	calls int
}

func (r *rejectingSets) CreateQuizSet(ctx context.Context, set domain.QuizSet) (domain.QuizSet, error) {
	r.calls++
	if set.SubjectID != "" || set.TopicID != "" {
		return domain.QuizSet{}, fmt.Errorf("column topic_id: %w", domain.ErrRecordRejected)
	}
	return r.QuizSetRepository.CreateQuizSet(ctx, set)
}

// failingQuestions fails CreateQuestion after `after` successful creates.
type failingQuestions struct {
	*memory.Store
	after int
	made  int
}

func (f *failingQuestions) CreateQuestion(ctx context.Context, q domain.QuizQuestion) (domain.QuizQuestion, error) {
	if f.made >= f.after {
		return domain.QuizQuestion{}, fmt.Errorf("store unavailable")
	}
	f.made++
	return f.Store.CreateQuestion(ctx, q)
}

// snapshotStore records whether the atomic replace path was used.
type snapshotStore struct {
	*memory.Store
	replaced int
}

func (s *snapshotStore) ReplaceQuestions(ctx context.Context, quizSetID string, rows []domain.QuizQuestion) ([]domain.QuizQuestion, error) {
	s.replaced++
	if err := s.Store.DeleteQuizQuestions(ctx, quizSetID); err != nil {
		return nil, err
	}
	out := make([]domain.QuizQuestion, 0, len(rows))
	for _, q := range rows {
		created, err := s.Store.CreateQuestion(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}
