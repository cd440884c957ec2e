package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"classroom-quiz-service/internal/domain"
)

const (
	MinNicknameLength = 2
	MaxNicknameLength = 16
)

// JoinService seats students in live sessions.
type JoinService struct {
	sessions SessionRepository
	players  PlayerRepository
	now      func() time.Time
}

func NewJoinService(sessions SessionRepository, players PlayerRepository) *JoinService {
	return &JoinService{sessions: sessions, players: players, now: time.Now}
}

// ValidateNickname trims the nickname and checks its length in characters.
func ValidateNickname(nickname string) (string, *domain.ValidationError) {
	trimmed := strings.TrimSpace(nickname)
	n := utf8.RuneCountInString(trimmed)
	if n < MinNicknameLength {
		return "", domain.NewValidationError(domain.RuleNicknameLength, "nickname must be at least %d characters", MinNicknameLength)
	}
	if n > MaxNicknameLength {
		return "", domain.NewValidationError(domain.RuleNicknameLength, "nickname must be at most %d characters", MaxNicknameLength)
	}
	return trimmed, nil
}

// Join admits the student into the session and returns the player.
// A taken nickname is suffixed " 2", " 3", ... rather than refused.
func (j *JoinService) Join(ctx context.Context, sessionID, nickname, student string) (domain.LiveQuizPlayer, error) {
	name, verr := ValidateNickname(nickname)
	if verr != nil {
		return domain.LiveQuizPlayer{}, verr
	}

	session, err := j.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.LiveQuizPlayer{}, domain.ErrNoLiveQuiz
		}
		return domain.LiveQuizPlayer{}, fmt.Errorf("load session: %w", err)
	}
	if !session.Joinable() {
		return domain.LiveQuizPlayer{}, domain.ErrNoLiveQuiz
	}

	players, err := j.players.ListPlayers(ctx, sessionID)
	if err != nil {
		return domain.LiveQuizPlayer{}, fmt.Errorf("list players: %w", err)
	}

	taken := make(map[string]struct{}, len(players))
	for _, p := range players {
		if student != "" && p.StudentIdentity == student {
			return j.reconnect(ctx, p)
		}
		taken[p.Nickname] = struct{}{}
	}

	player, err := j.players.CreatePlayer(ctx, domain.LiveQuizPlayer{
		SessionID:       sessionID,
		Nickname:        uniqueNickname(name, taken),
		StudentIdentity: student,
		Connected:       true,
		JoinedAt:        j.now(),
	})
	if err != nil {
		return domain.LiveQuizPlayer{}, fmt.Errorf("create player: %w", err)
	}

	if err := j.sessions.IncrementPlayerCount(ctx, sessionID); err != nil {
		log.Printf("update player count for session %s: %v", sessionID, err)
	}
	return player, nil
}

// JoinByCode resolves the active session holding code, then joins it.
func (j *JoinService) JoinByCode(ctx context.Context, code, nickname, student string) (domain.LiveQuizPlayer, error) {
	if _, verr := ValidateNickname(nickname); verr != nil {
		return domain.LiveQuizPlayer{}, verr
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.LiveQuizPlayer{}, domain.ErrNoLiveQuiz
	}
	sessions, err := j.sessions.ListSessions(ctx, SessionFilter{
		JoinCode: code,
		Statuses: []domain.SessionStatus{domain.SessionLobby, domain.SessionLive},
	})
	if err != nil {
		return domain.LiveQuizPlayer{}, fmt.Errorf("find session: %w", err)
	}
	for _, s := range sessions {
		if s.Joinable() {
			return j.Join(ctx, s.ID, nickname, student)
		}
	}
	return domain.LiveQuizPlayer{}, domain.ErrNoLiveQuiz
}

func (j *JoinService) reconnect(ctx context.Context, p domain.LiveQuizPlayer) (domain.LiveQuizPlayer, error) {
	if p.Connected {
		return p, nil
	}
	p.Connected = true
	if err := j.players.UpdatePlayer(ctx, p); err != nil {
		return domain.LiveQuizPlayer{}, fmt.Errorf("reconnect player: %w", err)
	}
	return p, nil
}

func uniqueNickname(name string, taken map[string]struct{}) string {
	if _, ok := taken[name]; !ok {
		return name
	}
	for n := 2; ; n++ {
		candidate := name + " " + strconv.Itoa(n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
