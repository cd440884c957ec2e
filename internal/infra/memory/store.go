package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of app.Store.
// Each call is its own round trip; nothing spans calls, like the document store it stands in for.
type Store struct {
	mu            sync.RWMutex
	quizSets      map[string]domain.QuizSet
	questions     map[string]domain.QuizQuestion
	sessions      map[string]domain.LiveQuizSession
	liveQuestions map[string]domain.LiveQuizQuestion
	players       map[string]domain.LiveQuizPlayer
}

var _ app.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		quizSets:      make(map[string]domain.QuizSet),
		questions:     make(map[string]domain.QuizQuestion),
		sessions:      make(map[string]domain.LiveQuizSession),
		liveQuestions: make(map[string]domain.LiveQuizQuestion),
		players:       make(map[string]domain.LiveQuizPlayer),
	}
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Store) CreateQuizSet(_ context.Context, set domain.QuizSet) (domain.QuizSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set.ID = newID(set.ID)
	s.quizSets[set.ID] = set
	return set, nil
}

func (s *Store) GetQuizSet(_ context.Context, id string) (domain.QuizSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.quizSets[id]
	if !ok {
		return domain.QuizSet{}, domain.ErrQuizNotFound
	}
	return set, nil
}

func (s *Store) UpdateQuizSet(_ context.Context, set domain.QuizSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizSets[set.ID]; !ok {
		return domain.ErrQuizNotFound
	}
	s.quizSets[set.ID] = set
	return nil
}

func (s *Store) ListQuestions(_ context.Context, quizSetID string) ([]domain.QuizQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizQuestion, 0)
	for _, q := range s.questions {
		if q.QuizSetID == quizSetID {
			out = append(out, cloneQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateQuestion(_ context.Context, q domain.QuizQuestion) (domain.QuizQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q = cloneQuestion(q)
	q.ID = newID(q.ID)
	s.questions[q.ID] = q
	return cloneQuestion(q), nil
}

func (s *Store) DeleteQuestions(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.questions, id)
	}
	return nil
}

func (s *Store) DeleteQuizQuestions(_ context.Context, quizSetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, q := range s.questions {
		if q.QuizSetID == quizSetID {
			delete(s.questions, id)
		}
	}
	return nil
}

func (s *Store) CreateSession(_ context.Context, session domain.LiveQuizSession) (domain.LiveQuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.ID = newID(session.ID)
	s.sessions[session.ID] = session
	return session, nil
}

func (s *Store) GetSession(_ context.Context, id string) (domain.LiveQuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.LiveQuizSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) TransitionSession(_ context.Context, prev, next domain.LiveQuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[prev.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if stored.Status != prev.Status || stored.CurrentQuestionIndex != prev.CurrentQuestionIndex || stored.EndedAt != nil {
		return domain.ErrSessionChanged
	}
	stored.Status = next.Status
	stored.CurrentQuestionIndex = next.CurrentQuestionIndex
	stored.EndedAt = next.EndedAt
	s.sessions[prev.ID] = stored
	return nil
}

func (s *Store) IncrementPlayerCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if stored.EndedAt != nil {
		return domain.ErrNoLiveQuiz
	}
	stored.PlayerCount++
	s.sessions[id] = stored
	return nil
}

func (s *Store) ListSessions(_ context.Context, filter app.SessionFilter) ([]domain.LiveQuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LiveQuizSession, 0)
	for _, session := range s.sessions {
		if matchSession(session, filter) {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func matchSession(session domain.LiveQuizSession, filter app.SessionFilter) bool {
	if filter.JoinCode != "" && !strings.EqualFold(session.JoinCode, filter.JoinCode) {
		return false
	}
	if len(filter.ClassIDs) > 0 && !contains(filter.ClassIDs, session.ClassID) {
		return false
	}
	if len(filter.Statuses) > 0 {
		ok := false
		for _, st := range filter.Statuses {
			if session.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (s *Store) CreateLiveQuestions(_ context.Context, questions []domain.LiveQuizQuestion) ([]domain.LiveQuizQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LiveQuizQuestion, len(questions))
	for i, q := range questions {
		q.ID = newID(q.ID)
		q.AllowedForms = append([]string(nil), q.AllowedForms...)
		s.liveQuestions[q.ID] = q
		out[i] = q
	}
	return out, nil
}

func (s *Store) ListLiveQuestions(_ context.Context, sessionID string) ([]domain.LiveQuizQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LiveQuizQuestion, 0)
	for _, q := range s.liveQuestions {
		if q.LiveQuizSetID == sessionID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *Store) ListPlayers(_ context.Context, sessionID string) ([]domain.LiveQuizPlayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LiveQuizPlayer, 0)
	for _, p := range s.players {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreatePlayer(_ context.Context, p domain.LiveQuizPlayer) (domain.LiveQuizPlayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = newID(p.ID)
	s.players[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePlayer(_ context.Context, p domain.LiveQuizPlayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[p.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.players[p.ID] = p
	return nil
}

func cloneQuestion(q domain.QuizQuestion) domain.QuizQuestion {
	q.Options = append([]string(nil), q.Options...)
	q.Tags = append([]string(nil), q.Tags...)
	return q
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
