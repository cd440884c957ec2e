package domain

import "time"

// QuizStatus is the authoring state of a quiz set.
type QuizStatus string

const (
	QuizStatusDraft     QuizStatus = "draft"
	QuizStatusPublished QuizStatus = "published"
)

// SessionStatus is the lifecycle state of a live session: lobby -> live -> ended.
type SessionStatus string

const (
	SessionLobby SessionStatus = "lobby"
	SessionLive  SessionStatus = "live"
	SessionEnded SessionStatus = "ended"
)

// Active reports whether the status still accepts players and shows up in discovery.
func (s SessionStatus) Active() bool {
	return s == SessionLobby || s == SessionLive
}

// OptionCount is the fixed number of answer options on an authored question.
const OptionCount = 4

// QuizSet is the authored quiz that questions hang off.
type QuizSet struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	TopicID       string     `json:"topicId,omitempty"`
	SubjectID     string     `json:"subjectId,omitempty"`
	Owner         string     `json:"owner"`
	Status        QuizStatus `json:"status"`
	QuestionCount int        `json:"questionCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// QuizMeta is the editable metadata written on every save.
type QuizMeta struct {
	Title     string `json:"title"`
	TopicID   string `json:"topicId,omitempty"`
	SubjectID string `json:"subjectId,omitempty"`
	Owner     string `json:"owner,omitempty"`
}

// QuizQuestion is a multiple choice question owned by exactly one quiz set.
type QuizQuestion struct {
	ID             string   `json:"id"`
	QuizSetID      string   `json:"quizSetId"`
	Order          int      `json:"order"`
	Prompt         string   `json:"prompt"`
	Options        []string `json:"options"`
	CorrectIndex   int      `json:"correctIndex"`
	CorrectAnswer  string   `json:"correctAnswer"`
	Difficulty     string   `json:"difficulty,omitempty"`
	Explanation    string   `json:"explanation,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	SourceGlobalID string   `json:"sourceGlobalId,omitempty"`
}

// DeriveCorrectAnswer returns the option text at CorrectIndex, or "" when out of range.
func (q QuizQuestion) DeriveCorrectAnswer() string {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.CorrectIndex]
}

// SessionSettings is copied into every session at creation time.
type SessionSettings struct {
	TimePerQuestion          int     `json:"timePerQuestion" yaml:"time_per_question"` // seconds
	BasePoints               int     `json:"basePoints" yaml:"base_points"`
	RoundMultiplierIncrement float64 `json:"roundMultiplierIncrement" yaml:"round_multiplier_increment"`
}

// WithDefaults fills zero fields from defaults.
func (s SessionSettings) WithDefaults(defaults SessionSettings) SessionSettings {
	if s.TimePerQuestion <= 0 {
		s.TimePerQuestion = defaults.TimePerQuestion
	}
	if s.BasePoints <= 0 {
		s.BasePoints = defaults.BasePoints
	}
	if s.RoundMultiplierIncrement <= 0 {
		s.RoundMultiplierIncrement = defaults.RoundMultiplierIncrement
	}
	return s
}

// LiveQuizSession is a joinable run of a quiz for one class.
type LiveQuizSession struct {
	ID                   string          `json:"id"`
	ClassID              string          `json:"classId"`
	Host                 string          `json:"host"`
	Status               SessionStatus   `json:"status"`
	JoinCode             string          `json:"joinCode"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex"`
	PlayerCount          int             `json:"playerCount"`
	Settings             SessionSettings `json:"settings"`
	CreatedAt            time.Time       `json:"createdAt"`
	EndedAt              *time.Time      `json:"endedAt,omitempty"`
}

// Joinable reports whether the session may admit players.
func (s LiveQuizSession) Joinable() bool {
	return s.EndedAt == nil && s.Status.Active()
}

// LiveQuizQuestion is the frozen copy of an authored question used by a session.
type LiveQuizQuestion struct {
	ID            string   `json:"id"`
	LiveQuizSetID string   `json:"liveQuizSetId"`
	Order         int      `json:"order"`
	Prompt        string   `json:"prompt"`
	CorrectAnswer string   `json:"correctAnswer"`
	AllowedForms  []string `json:"allowedForms"`
	Difficulty    string   `json:"difficulty,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
	Hint          string   `json:"hint,omitempty"`
}

// LiveQuizPlayer is a participant seated in a session.
type LiveQuizPlayer struct {
	ID                    string    `json:"id"`
	SessionID             string    `json:"sessionId"`
	Nickname              string    `json:"nickname"`
	StudentIdentity       string    `json:"studentIdentity"`
	TotalPoints           int       `json:"totalPoints"`
	CorrectCount          int       `json:"correctCount"`
	QuestionsAnswered     int       `json:"questionsAnswered"`
	AverageResponseTimeMS int       `json:"averageResponseTimeMs"`
	CurrentStreak         int       `json:"currentStreak"`
	LongestStreak         int       `json:"longestStreak"`
	Connected             bool      `json:"connected"`
	JoinedAt              time.Time `json:"joinedAt"`
}

// ExternalQuestion is a question as published in the global question bank.
// The correct answer is given either by CorrectIndex or by CorrectValue.
type ExternalQuestion struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Choices      []string `json:"choices"`
	CorrectIndex *int     `json:"correctIndex,omitempty"`
	CorrectValue string   `json:"correctValue,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
	Explanation  string   `json:"explanation,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}
