package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"geeko-live/internal/domain"
)

const codeUniqueViolation = "23505"

// GameStore is the Postgres implementation of app.GameStore. Transitions take
// a row lock on the session, participant joins ride the (session_id, user_id)
// unique constraint, and answers ride (session_id, question_id, user_id) plus
// a transaction covering the ledger insert and the score update. That is the
// whole concurrency story: two racers on any of these resolve to exactly one
// winner inside Postgres, regardless of how many service instances run.
type GameStore struct {
	pool *pgxpool.Pool
}

func NewGameStore(pool *pgxpool.Pool) *GameStore {
	return &GameStore{pool: pool}
}

const sessionColumns = `id, code, quiz_id, quiz_data, started_by, status, current_question,
	question_started_at, created_at, started_at, ended_at`

func (s *GameStore) CreateSession(ctx context.Context, session domain.Session) error {
	quizData, err := json.Marshal(session.Quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, code, quiz_id, quiz_data, started_by, status, current_question, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.Code, session.QuizID, quizData, session.StartedBy,
		string(session.Status), session.CurrentQuestion, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *GameStore) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id)
	return scanSession(row)
}

func (s *GameStore) GetSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE code=$1`, code)
	return scanSession(row)
}

func (s *GameStore) TransitionSession(ctx context.Context, id string, from []domain.SessionStatus, mutate func(*domain.Session) error) (session domain.Session, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Session{}, fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// The row lock serializes racing transitions; the loser re-reads a status
	// outside its precondition set and backs off with ErrInvalidTransition.
	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1 FOR UPDATE`, id)
	session, err = scanSession(row)
	if err != nil {
		return domain.Session{}, err
	}

	allowed := false
	for _, status := range from {
		if session.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		err = domain.ErrInvalidTransition
		return domain.Session{}, err
	}

	if err = mutate(&session); err != nil {
		return domain.Session{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE sessions
		SET status=$2, current_question=$3, question_started_at=$4, started_at=$5, ended_at=$6
		WHERE id=$1`,
		id, string(session.Status), session.CurrentQuestion,
		nullTime(session.QuestionStartedAt), nullTime(session.StartedAt), nullTime(session.EndedAt),
	)
	if err != nil {
		return domain.Session{}, fmt.Errorf("update session: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.Session{}, fmt.Errorf("commit transition: %w", err)
	}
	return session, nil
}

func (s *GameStore) AddParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	breakdown, err := json.Marshal(p.Breakdown)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("marshal breakdown: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO participants (id, session_id, user_id, nickname, total_score, breakdown, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, user_id) DO NOTHING`,
		p.ID, p.SessionID, p.UserID, p.Nickname, p.TotalScore, breakdown, p.JoinedAt,
	)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("insert participant: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return p, nil
	}
	// Lost the insert race or re-joined: hand back the existing row.
	return s.GetParticipant(ctx, p.SessionID, p.UserID)
}

func (s *GameStore) GetParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, session_id, user_id, nickname, total_score, breakdown, joined_at
		FROM participants WHERE session_id=$1 AND user_id=$2`,
		sessionID, userID,
	)
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrNotAParticipant
	}
	return p, err
}

func (s *GameStore) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM participants WHERE session_id=$1 AND user_id=$2`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}

func (s *GameStore) Participants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, user_id, nickname, total_score, breakdown, joined_at
		FROM participants WHERE session_id=$1
		ORDER BY joined_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *GameStore) RecordAnswer(ctx context.Context, a domain.Answer) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record answer: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// FOR SHARE holds off a concurrent transition while this answer lands, so
	// a cancel or advance that commits first is always observed here.
	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1 FOR SHARE`, a.SessionID)
	session, err := scanSession(row)
	if err != nil {
		return err
	}
	if session.Status != domain.SessionInProgress {
		err = domain.ErrSessionNotActive
		return err
	}
	current, ok := session.CurrentQuestionData()
	if !ok || current.ID != a.QuestionID {
		err = domain.ErrWrongQuestion
		return err
	}

	selected, err := json.Marshal(a.Selected)
	if err != nil {
		return fmt.Errorf("marshal selected answers: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO answers (id, session_id, question_id, user_id, selected, is_correct, points_earned, time_taken_seconds, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.SessionID, a.QuestionID, a.UserID, selected, a.IsCorrect, a.PointsEarned, a.TimeTakenSeconds, a.AnsweredAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		err = domain.ErrDuplicateAnswer
		return err
	}
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE participants
		SET total_score = total_score + $3,
		    breakdown = breakdown || jsonb_build_object($4::text, jsonb_build_object('points', $3::int, 'correct', $5::bool))
		WHERE session_id=$1 AND user_id=$2`,
		a.SessionID, a.UserID, a.PointsEarned, a.QuestionID, a.IsCorrect,
	)
	if err != nil {
		return fmt.Errorf("apply score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrNotAParticipant
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit answer: %w", err)
	}
	return nil
}

func (s *GameStore) AnswersFor(ctx context.Context, sessionID, questionID string) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, question_id, user_id, selected, is_correct, points_earned, time_taken_seconds, answered_at
		FROM answers WHERE session_id=$1 AND question_id=$2
		ORDER BY answered_at ASC, id ASC`,
		sessionID, questionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var out []domain.Answer
	for rows.Next() {
		var a domain.Answer
		var selected []byte
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.UserID, &selected,
			&a.IsCorrect, &a.PointsEarned, &a.TimeTakenSeconds, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if err := json.Unmarshal(selected, &a.Selected); err != nil {
			return nil, fmt.Errorf("unmarshal selected answers: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *GameStore) CountAnswers(ctx context.Context, sessionID, questionID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM answers WHERE session_id=$1 AND question_id=$2`,
		sessionID, questionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		session    domain.Session
		status     string
		quizData   []byte
		questionAt sql.NullTime
		startedAt  sql.NullTime
		endedAt    sql.NullTime
	)
	err := row.Scan(&session.ID, &session.Code, &session.QuizID, &quizData, &session.StartedBy,
		&status, &session.CurrentQuestion, &questionAt, &session.CreatedAt, &startedAt, &endedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal(quizData, &session.Quiz); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal quiz snapshot: %w", err)
	}
	session.Status = domain.SessionStatus(status)
	session.QuestionStartedAt = questionAt.Time
	session.StartedAt = startedAt.Time
	session.EndedAt = endedAt.Time
	return session, nil
}

func scanParticipant(row rowScanner) (domain.Participant, error) {
	var (
		p         domain.Participant
		breakdown []byte
	)
	err := row.Scan(&p.ID, &p.SessionID, &p.UserID, &p.Nickname, &p.TotalScore, &breakdown, &p.JoinedAt)
	if err != nil {
		return domain.Participant{}, err
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &p.Breakdown); err != nil {
			return domain.Participant{}, fmt.Errorf("unmarshal breakdown: %w", err)
		}
	}
	if p.Breakdown == nil {
		p.Breakdown = make(map[string]domain.QuestionScore)
	}
	return p, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
