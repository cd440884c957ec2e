package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"classroom-quiz-service/internal/domain"
)

// ImportResult counts what an import batch did.
type ImportResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// BankImporter merges questions into a quiz without duplicating global-bank questions.
type BankImporter struct {
	sets      QuizSetRepository
	questions QuestionRepository
	drafts    *DraftManager
	limiter   RateLimiter
}

func NewBankImporter(sets QuizSetRepository, questions QuestionRepository, drafts *DraftManager, limiter RateLimiter) *BankImporter {
	return &BankImporter{sets: sets, questions: questions, drafts: drafts, limiter: limiter}
}

// Import copies externals into the quiz in input order, skipping any already imported.
// A failure stops the batch; rows created before it are kept and counted in the returned *ImportError.
func (b *BankImporter) Import(ctx context.Context, quizSetID string, externals []domain.ExternalQuestion) (ImportResult, error) {
	var result ImportResult
	if quizSetID == "" {
		return result, domain.ErrNoQuizSelected
	}
	if _, err := b.sets.GetQuizSet(ctx, quizSetID); err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			return result, domain.ErrNoQuizSelected
		}
		return result, fmt.Errorf("load quiz: %w", err)
	}

	existing, err := b.questions.ListQuestions(ctx, quizSetID)
	if err != nil {
		return result, fmt.Errorf("list questions: %w", err)
	}
	imported := make(map[string]struct{}, len(existing))
	maxOrder := -1
	for _, q := range existing {
		if q.SourceGlobalID != "" {
			imported[q.SourceGlobalID] = struct{}{}
		}
		if q.Order > maxOrder {
			maxOrder = q.Order
		}
	}
	defer b.refreshCount(ctx, quizSetID, &result)

	for _, ext := range externals {
		if ext.ID != "" {
			if _, dup := imported[ext.ID]; dup {
				result.Skipped++
				continue
			}
		}
		q, err := TranslateExternal(ext)
		if err != nil {
			return result, b.importError(ext, result, err)
		}
		q.QuizSetID = quizSetID
		q.Order = maxOrder + 1
		if _, err := b.questions.CreateQuestion(ctx, q); err != nil {
			return result, b.importError(ext, result, err)
		}
		maxOrder++
		result.Created++
		if ext.ID != "" {
			imported[ext.ID] = struct{}{}
		}
	}
	return result, nil
}

func (b *BankImporter) importError(ext domain.ExternalQuestion, result ImportResult, err error) error {
	log.Printf("import stopped at %q after %d created: %v", ext.ID, result.Created, err)
	return &domain.ImportError{
		QuestionID: ext.ID,
		Prompt:     ext.Prompt,
		Created:    result.Created,
		Skipped:    result.Skipped,
		Err:        err,
	}
}

// refreshCount keeps the denormalized question count in step with what the batch created.
func (b *BankImporter) refreshCount(ctx context.Context, quizSetID string, result *ImportResult) {
	if result.Created == 0 {
		return
	}
	set, err := b.sets.GetQuizSet(ctx, quizSetID)
	if err != nil {
		log.Printf("refresh question count for %s: %v", quizSetID, err)
		return
	}
	rows, err := b.questions.ListQuestions(ctx, quizSetID)
	if err != nil {
		log.Printf("refresh question count for %s: %v", quizSetID, err)
		return
	}
	set.QuestionCount = len(domain.SanitizeQuestions(rows))
	if err := b.sets.UpdateQuizSet(ctx, set); err != nil {
		log.Printf("refresh question count for %s: %v", quizSetID, err)
	}
}

// AppendGenerated adds a generator-produced batch to the session's draft.
// Calls are limited per authoring session.
func (b *BankImporter) AppendGenerated(ctx context.Context, state AuthoringState, questions []domain.QuizQuestion) (string, ImportResult, error) {
	if err := allow(ctx, b.limiter, "authoring:"+state.SessionID); err != nil {
		return "", ImportResult{}, err
	}
	return b.AppendQuestions(ctx, state, questions)
}

// AppendQuestions adds hand-authored questions to the session's draft.
func (b *BankImporter) AppendQuestions(ctx context.Context, state AuthoringState, questions []domain.QuizQuestion) (string, ImportResult, error) {
	var result ImportResult
	for _, q := range questions {
		if verr := domain.ValidateQuestion(q); verr != nil {
			return "", result, verr
		}
	}
	quizSetID, err := b.drafts.EnsureDraft(ctx, state)
	if err != nil {
		return "", result, err
	}

	existing, err := b.questions.ListQuestions(ctx, quizSetID)
	if err != nil {
		return quizSetID, result, fmt.Errorf("list questions: %w", err)
	}
	next := 0
	for _, q := range existing {
		if q.Order >= next {
			next = q.Order + 1
		}
	}
	defer b.refreshCount(ctx, quizSetID, &result)

	for _, q := range questions {
		row := snapshotRow(quizSetID, next, q)
		if _, err := b.questions.CreateQuestion(ctx, row); err != nil {
			return quizSetID, result, fmt.Errorf("create question %d: %w", next, err)
		}
		next++
		result.Created++
	}
	return quizSetID, result, nil
}

// TranslateExternal maps a global-bank question onto the authored schema.
func TranslateExternal(ext domain.ExternalQuestion) (domain.QuizQuestion, error) {
	correct := -1
	if ext.CorrectIndex != nil && *ext.CorrectIndex >= 0 && *ext.CorrectIndex < len(ext.Choices) {
		correct = *ext.CorrectIndex
	} else if value := strings.TrimSpace(ext.CorrectValue); value != "" {
		for i, choice := range ext.Choices {
			if strings.EqualFold(strings.TrimSpace(choice), value) {
				correct = i
				break
			}
		}
	}
	if correct < 0 {
		return domain.QuizQuestion{}, domain.NewValidationError(domain.RuleCorrectIndex, "no choice matches the correct answer")
	}

	q := domain.QuizQuestion{
		Prompt:         strings.TrimSpace(ext.Prompt),
		Options:        append([]string(nil), ext.Choices...),
		CorrectIndex:   correct,
		Difficulty:     ext.Difficulty,
		Explanation:    ext.Explanation,
		Tags:           append([]string(nil), ext.Tags...),
		SourceGlobalID: ext.ID,
	}
	if verr := domain.ValidateQuestion(q); verr != nil {
		return domain.QuizQuestion{}, verr
	}
	q.CorrectAnswer = q.DeriveCorrectAnswer()
	return q, nil
}

func allow(ctx context.Context, limiter RateLimiter, key string) error {
	if limiter == nil {
		return nil
	}
	ok, retryAfter, err := limiter.Allow(ctx, key)
	if err != nil {
		// fail open
		log.Printf("rate limiter error for %s: %v", key, err)
		return nil
	}
	if !ok {
		return &domain.RateLimitError{RetryAfter: retryAfter}
	}
	return nil
}
