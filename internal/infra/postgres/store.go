package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// activeJoinCodeIndex is the partial unique index over join codes of sessions still open.
const activeJoinCodeIndex = "live_quiz_sessions_active_join_code_idx"

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store keeps quizzes and live sessions in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ app.Store               = (*Store)(nil)
	_ app.QuestionSnapshotter = (*Store)(nil)
)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// translate maps driver errors onto domain sentinels.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		if pgErr.ConstraintName == activeJoinCodeIndex {
			return fmt.Errorf("%w: %s", domain.ErrJoinCodeTaken, pgErr.Detail)
		}
	case "23503", "23514", "42703":
		// foreign key, check or unknown column: the row shape was refused
		return fmt.Errorf("%w: %s", domain.ErrRecordRejected, pgErr.Message)
	}
	return err
}

const quizSetColumns = `id, title, topic_id, subject_id, owner, status, question_count, created_at, updated_at`

func (s *Store) CreateQuizSet(ctx context.Context, set domain.QuizSet) (domain.QuizSet, error) {
	set.ID = newID(set.ID)
	_, err := s.pool.Exec(ctx, `INSERT INTO quiz_sets (`+quizSetColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		set.ID, set.Title, set.TopicID, set.SubjectID, set.Owner, string(set.Status), set.QuestionCount, set.CreatedAt, set.UpdatedAt)
	if err != nil {
		return domain.QuizSet{}, fmt.Errorf("insert quiz set: %w", translate(err))
	}
	return set, nil
}

func (s *Store) GetQuizSet(ctx context.Context, id string) (domain.QuizSet, error) {
	var set domain.QuizSet
	var status string
	err := s.pool.QueryRow(ctx, `SELECT `+quizSetColumns+` FROM quiz_sets WHERE id=$1`, id).Scan(
		&set.ID, &set.Title, &set.TopicID, &set.SubjectID, &set.Owner, &status, &set.QuestionCount, &set.CreatedAt, &set.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizSet{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizSet{}, fmt.Errorf("load quiz set: %w", err)
	}
	set.Status = domain.QuizStatus(status)
	return set, nil
}

func (s *Store) UpdateQuizSet(ctx context.Context, set domain.QuizSet) error {
	tag, err := s.pool.Exec(ctx, `UPDATE quiz_sets SET title=$2, topic_id=$3, subject_id=$4, owner=$5, status=$6, question_count=$7, updated_at=$8 WHERE id=$1`,
		set.ID, set.Title, set.TopicID, set.SubjectID, set.Owner, string(set.Status), set.QuestionCount, set.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update quiz set: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

const questionColumns = `id, quiz_set_id, position, prompt, options, correct_index, correct_answer, difficulty, explanation, tags, source_global_id`

func (s *Store) ListQuestions(ctx context.Context, quizSetID string) ([]domain.QuizQuestion, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM quiz_questions WHERE quiz_set_id=$1 ORDER BY position, id`, quizSetID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QuizQuestion, 0)
	for rows.Next() {
		var q domain.QuizQuestion
		if err := rows.Scan(&q.ID, &q.QuizSetID, &q.Order, &q.Prompt, &q.Options, &q.CorrectIndex, &q.CorrectAnswer,
			&q.Difficulty, &q.Explanation, &q.Tags, &q.SourceGlobalID); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.QuizQuestion) (domain.QuizQuestion, error) {
	return insertQuestion(ctx, s.pool, q)
}

func insertQuestion(ctx context.Context, db querier, q domain.QuizQuestion) (domain.QuizQuestion, error) {
	q.ID = newID(q.ID)
	if q.Options == nil {
		q.Options = []string{}
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	_, err := db.Exec(ctx, `INSERT INTO quiz_questions (`+questionColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		q.ID, q.QuizSetID, q.Order, q.Prompt, q.Options, q.CorrectIndex, q.CorrectAnswer,
		q.Difficulty, q.Explanation, q.Tags, q.SourceGlobalID)
	if err != nil {
		return domain.QuizQuestion{}, fmt.Errorf("insert question: %w", translate(err))
	}
	return q, nil
}

func (s *Store) DeleteQuestions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM quiz_questions WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}
	return nil
}

func (s *Store) DeleteQuizQuestions(ctx context.Context, quizSetID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM quiz_questions WHERE quiz_set_id=$1`, quizSetID); err != nil {
		return fmt.Errorf("delete quiz questions: %w", err)
	}
	return nil
}

// ReplaceQuestions swaps every question row of the quiz in one transaction.
func (s *Store) ReplaceQuestions(ctx context.Context, quizSetID string, questions []domain.QuizQuestion) ([]domain.QuizQuestion, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM quiz_questions WHERE quiz_set_id=$1`, quizSetID); err != nil {
		return nil, fmt.Errorf("delete quiz questions: %w", err)
	}
	out := make([]domain.QuizQuestion, 0, len(questions))
	for _, q := range questions {
		q.QuizSetID = quizSetID
		created, err := insertQuestion(ctx, tx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

const sessionColumns = `id, class_id, host, status, join_code, current_question_index, player_count,
	time_per_question, base_points, round_multiplier_increment, created_at, ended_at`

func scanSession(row pgx.Row) (domain.LiveQuizSession, error) {
	var session domain.LiveQuizSession
	var status string
	err := row.Scan(&session.ID, &session.ClassID, &session.Host, &status, &session.JoinCode,
		&session.CurrentQuestionIndex, &session.PlayerCount,
		&session.Settings.TimePerQuestion, &session.Settings.BasePoints, &session.Settings.RoundMultiplierIncrement,
		&session.CreatedAt, &session.EndedAt)
	session.Status = domain.SessionStatus(status)
	return session, err
}

func (s *Store) CreateSession(ctx context.Context, session domain.LiveQuizSession) (domain.LiveQuizSession, error) {
	session.ID = newID(session.ID)
	_, err := s.pool.Exec(ctx, `INSERT INTO live_quiz_sessions (`+sessionColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		session.ID, session.ClassID, session.Host, string(session.Status), session.JoinCode,
		session.CurrentQuestionIndex, session.PlayerCount,
		session.Settings.TimePerQuestion, session.Settings.BasePoints, session.Settings.RoundMultiplierIncrement,
		session.CreatedAt, session.EndedAt)
	if err != nil {
		return domain.LiveQuizSession{}, fmt.Errorf("insert session: %w", translate(err))
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.LiveQuizSession, error) {
	session, err := scanSession(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM live_quiz_sessions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LiveQuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.LiveQuizSession{}, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

// TransitionSession is a compare-and-set on the prior status and question index.
func (s *Store) TransitionSession(ctx context.Context, prev, next domain.LiveQuizSession) error {
	tag, err := s.pool.Exec(ctx, `UPDATE live_quiz_sessions SET status=$4, current_question_index=$5, ended_at=$6
		WHERE id=$1 AND status=$2 AND current_question_index=$3 AND ended_at IS NULL`,
		prev.ID, string(prev.Status), prev.CurrentQuestionIndex,
		string(next.Status), next.CurrentQuestionIndex, next.EndedAt)
	if err != nil {
		return fmt.Errorf("transition session: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return s.missOrChanged(ctx, prev.ID, domain.ErrSessionChanged)
	}
	return nil
}

func (s *Store) IncrementPlayerCount(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE live_quiz_sessions SET player_count = player_count + 1 WHERE id=$1 AND ended_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("increment player count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrChanged(ctx, id, domain.ErrNoLiveQuiz)
	}
	return nil
}

// missOrChanged tells a missing session apart from one whose guard no longer matched.
func (s *Store) missOrChanged(ctx context.Context, id string, changed error) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM live_quiz_sessions WHERE id=$1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return domain.ErrSessionNotFound
	}
	return changed
}

// ListSessions builds the WHERE clause from the non-empty parts of the filter.
func (s *Store) ListSessions(ctx context.Context, filter app.SessionFilter) ([]domain.LiveQuizSession, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(filter.ClassIDs) > 0 {
		args = append(args, filter.ClassIDs)
		where = append(where, fmt.Sprintf("class_id = ANY($%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.JoinCode != "" {
		args = append(args, strings.ToUpper(filter.JoinCode))
		where = append(where, fmt.Sprintf("join_code = $%d", len(args)))
	}
	query := `SELECT ` + sessionColumns + ` FROM live_quiz_sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LiveQuizSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

const liveQuestionColumns = `id, session_id, position, prompt, correct_answer, allowed_forms, difficulty, explanation, hint`

func (s *Store) CreateLiveQuestions(ctx context.Context, questions []domain.LiveQuizQuestion) ([]domain.LiveQuizQuestion, error) {
	batch := &pgx.Batch{}
	out := make([]domain.LiveQuizQuestion, len(questions))
	for i, q := range questions {
		q.ID = newID(q.ID)
		if q.AllowedForms == nil {
			q.AllowedForms = []string{}
		}
		out[i] = q
		batch.Queue(`INSERT INTO live_quiz_questions (`+liveQuestionColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			q.ID, q.LiveQuizSetID, q.Order, q.Prompt, q.CorrectAnswer, q.AllowedForms, q.Difficulty, q.Explanation, q.Hint)
	}
	if len(questions) == 0 {
		return out, nil
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range questions {
		if _, err := results.Exec(); err != nil {
			return nil, fmt.Errorf("insert live question: %w", translate(err))
		}
	}
	return out, nil
}

func (s *Store) ListLiveQuestions(ctx context.Context, sessionID string) ([]domain.LiveQuizQuestion, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+liveQuestionColumns+` FROM live_quiz_questions WHERE session_id=$1 ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query live questions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LiveQuizQuestion, 0)
	for rows.Next() {
		var q domain.LiveQuizQuestion
		if err := rows.Scan(&q.ID, &q.LiveQuizSetID, &q.Order, &q.Prompt, &q.CorrectAnswer, &q.AllowedForms,
			&q.Difficulty, &q.Explanation, &q.Hint); err != nil {
			return nil, fmt.Errorf("scan live question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

const playerColumns = `id, session_id, nickname, student_identity, total_points, correct_count, questions_answered,
	average_response_time_ms, current_streak, longest_streak, connected, joined_at`

func (s *Store) ListPlayers(ctx context.Context, sessionID string) ([]domain.LiveQuizPlayer, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+playerColumns+` FROM live_quiz_players WHERE session_id=$1 ORDER BY joined_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LiveQuizPlayer, 0)
	for rows.Next() {
		var p domain.LiveQuizPlayer
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Nickname, &p.StudentIdentity, &p.TotalPoints, &p.CorrectCount,
			&p.QuestionsAnswered, &p.AverageResponseTimeMS, &p.CurrentStreak, &p.LongestStreak, &p.Connected, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePlayer(ctx context.Context, p domain.LiveQuizPlayer) (domain.LiveQuizPlayer, error) {
	p.ID = newID(p.ID)
	_, err := s.pool.Exec(ctx, `INSERT INTO live_quiz_players (`+playerColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.SessionID, p.Nickname, p.StudentIdentity, p.TotalPoints, p.CorrectCount, p.QuestionsAnswered,
		p.AverageResponseTimeMS, p.CurrentStreak, p.LongestStreak, p.Connected, p.JoinedAt)
	if err != nil {
		return domain.LiveQuizPlayer{}, fmt.Errorf("insert player: %w", translate(err))
	}
	return p, nil
}

func (s *Store) UpdatePlayer(ctx context.Context, p domain.LiveQuizPlayer) error {
	tag, err := s.pool.Exec(ctx, `UPDATE live_quiz_players SET nickname=$2, total_points=$3, correct_count=$4, questions_answered=$5,
		average_response_time_ms=$6, current_streak=$7, longest_streak=$8, connected=$9 WHERE id=$1`,
		p.ID, p.Nickname, p.TotalPoints, p.CorrectCount, p.QuestionsAnswered,
		p.AverageResponseTimeMS, p.CurrentStreak, p.LongestStreak, p.Connected)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update player %s: not found", p.ID)
	}
	return nil
}
