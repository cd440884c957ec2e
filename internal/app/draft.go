package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"classroom-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// DefaultDraftTitle is used until the author names the quiz.
const DefaultDraftTitle = "Untitled quiz"

// AuthoringState identifies one authoring session and what it knows about the quiz so far.
type AuthoringState struct {
	SessionID string `json:"sessionId"`
	Owner     string `json:"owner"`
	Title     string `json:"title,omitempty"`
	SubjectID string `json:"subjectId,omitempty"`
	TopicID   string `json:"topicId,omitempty"`
}

// DraftStrategy builds one record shape for a new draft quiz set.
// A store answering domain.ErrRecordRejected hands over to the next strategy.
type DraftStrategy struct {
	Name  string
	Build func(state AuthoringState, now time.Time) domain.QuizSet
}

// LinkedDraft carries the subject/topic linkage.
var LinkedDraft = DraftStrategy{
	Name: "linked",
	Build: func(state AuthoringState, now time.Time) domain.QuizSet {
		set := baseDraft(state, now)
		set.SubjectID = state.SubjectID
		set.TopicID = state.TopicID
		return set
	},
}

// StandaloneDraft drops the linkage for stores that refuse it.
var StandaloneDraft = DraftStrategy{
	Name:  "standalone",
	Build: baseDraft,
}

func baseDraft(state AuthoringState, now time.Time) domain.QuizSet {
	title := strings.TrimSpace(state.Title)
	if title == "" {
		title = DefaultDraftTitle
	}
	return domain.QuizSet{
		Title:         title,
		Owner:         state.Owner,
		Status:        domain.QuizStatusDraft,
		QuestionCount: 0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// DraftManager lazily creates the draft quiz set behind an authoring session, once.
type DraftManager struct {
	sets       QuizSetRepository
	cache      DraftCache
	strategies []DraftStrategy
	now        func() time.Time
	sf         singleflight.Group
}

func NewDraftManager(sets QuizSetRepository, cache DraftCache, strategies ...DraftStrategy) *DraftManager {
	if len(strategies) == 0 {
		strategies = []DraftStrategy{LinkedDraft, StandaloneDraft}
	}
	return &DraftManager{sets: sets, cache: cache, strategies: strategies, now: time.Now}
}

// EnsureDraft returns the quiz set id for the authoring session, creating the draft on first use.
func (m *DraftManager) EnsureDraft(ctx context.Context, state AuthoringState) (string, error) {
	if state.SessionID == "" {
		return "", domain.NewValidationError("authoring_session", "authoring session id is required")
	}
	if id, ok, err := m.cache.GetDraft(ctx, state.SessionID); err != nil {
		return "", fmt.Errorf("lookup draft: %w", err)
	} else if ok {
		return id, nil
	}

	result, err, _ := m.sf.Do(state.SessionID, func() (interface{}, error) {
		// Another caller may have finished while we waited.
		if id, ok, err := m.cache.GetDraft(ctx, state.SessionID); err == nil && ok {
			return id, nil
		}
		set, err := m.create(ctx, state)
		if err != nil {
			return "", err
		}
		if err := m.cache.PutDraft(ctx, state.SessionID, set.ID); err != nil {
			return "", fmt.Errorf("remember draft: %w", err)
		}
		log.Printf("created draft quiz %s for authoring session %s", set.ID, state.SessionID)
		// a shared cache keeps the first writer's id
		if id, ok, err := m.cache.GetDraft(ctx, state.SessionID); err == nil && ok {
			return id, nil
		}
		return set.ID, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (m *DraftManager) create(ctx context.Context, state AuthoringState) (domain.QuizSet, error) {
	tried := make([]string, 0, len(m.strategies))
	var lastErr error
	for _, strategy := range m.strategies {
		tried = append(tried, strategy.Name)
		set, err := m.sets.CreateQuizSet(ctx, strategy.Build(state, m.now()))
		if err == nil {
			return set, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrRecordRejected) {
			break
		}
		log.Printf("draft strategy %s rejected: %v", strategy.Name, err)
	}
	return domain.QuizSet{}, &domain.CreationError{Attempts: tried, Err: lastErr}
}
