package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/webexam/internal/model"
)

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	db *DB
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(db *DB) *ExamSessionRepository {
	return &ExamSessionRepository{db: db}
}

const sessionColumns = `id, user_id, exam_id, start_time, end_time, status, current_question_index, created_at, updated_at`

func scanSession(row pgx.Row, s *model.ExamSession) error {
	return row.Scan(&s.ID, &s.UserID, &s.ExamID, &s.StartTime, &s.EndTime, &s.Status,
		&s.CurrentQuestionIndex, &s.CreatedAt, &s.UpdatedAt)
}

func collectSessions(rows pgx.Rows) ([]model.ExamSession, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ExamSession, error) {
		var s model.ExamSession
		err := scanSession(row, &s)
		return s, err
	})
}

// Create inserts a new in-progress session. A second running session for the
// same user and exam violates uq_exam_sessions_active and yields ErrDuplicate.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.db.run(ctx, "session.create", func(ctx context.Context) error {
		return r.db.pool.QueryRow(ctx,
			`INSERT INTO exam_sessions (user_id, exam_id, start_time, status, current_question_index, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $3)
			 RETURNING id, created_at, updated_at`,
			s.UserID, s.ExamID, s.StartTime, model.SessionStatusInProgress, s.CurrentQuestionIndex,
		).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	})
}

// GetByID retrieves a session.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := r.db.run(ctx, "session.get", func(ctx context.Context) error {
		return scanSession(r.db.pool.QueryRow(ctx,
			`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id), s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetActive retrieves the running session of a user for an exam.
func (r *ExamSessionRepository) GetActive(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := r.db.run(ctx, "session.get_active", func(ctx context.Context) error {
		return scanSession(r.db.pool.QueryRow(ctx,
			`SELECT `+sessionColumns+`
			 FROM exam_sessions
			 WHERE user_id = $1 AND exam_id = $2 AND status = $3`,
			userID, examID, model.SessionStatusInProgress), s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CountAttempts counts every session a user ever started for an exam.
func (r *ExamSessionRepository) CountAttempts(ctx context.Context, userID int, examID uuid.UUID) (int, error) {
	var n int
	err := r.db.run(ctx, "session.count_attempts", func(ctx context.Context) error {
		return r.db.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM exam_sessions WHERE user_id = $1 AND exam_id = $2`,
			userID, examID).Scan(&n)
	})
	return n, err
}

// CountByExam counts all sessions of an exam.
func (r *ExamSessionRepository) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var n int
	err := r.db.run(ctx, "session.count_by_exam", func(ctx context.Context) error {
		return r.db.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM exam_sessions WHERE exam_id = $1`, examID).Scan(&n)
	})
	return n, err
}

// ListByUser retrieves a user's sessions, newest first, optionally for one exam.
func (r *ExamSessionRepository) ListByUser(ctx context.Context, userID int, examID *uuid.UUID) ([]model.ExamSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM exam_sessions WHERE user_id = $1`
	args := []any{userID}
	if examID != nil {
		args = append(args, *examID)
		query += fmt.Sprintf(" AND exam_id = $%d", len(args))
	}
	query += " ORDER BY start_time DESC"

	var sessions []model.ExamSession
	err := r.db.run(ctx, "session.list_by_user", func(ctx context.Context) error {
		rows, err := r.db.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		sessions, err = collectSessions(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListAttempts retrieves every session of an exam with its owner and result, newest first.
func (r *ExamSessionRepository) ListAttempts(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	var attempts []model.ExamAttempt
	err := r.db.run(ctx, "session.list_attempts", func(ctx context.Context) error {
		rows, err := r.db.pool.Query(ctx,
			`SELECT s.id, s.user_id, u.first_name || ' ' || u.last_name, s.status, s.start_time, s.end_time,
			        r.percentage, r.is_passed
			 FROM exam_sessions s
			 JOIN users u ON u.id = s.user_id
			 LEFT JOIN exam_results r ON r.session_id = s.id
			 WHERE s.exam_id = $1
			 ORDER BY s.start_time DESC`, examID)
		if err != nil {
			return err
		}
		attempts, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ExamAttempt, error) {
			var a model.ExamAttempt
			err := row.Scan(&a.SessionID, &a.UserID, &a.UserName, &a.Status, &a.StartTime, &a.EndTime,
				&a.Percentage, &a.IsPassed)
			return a, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

// UpdateCursor moves the question cursor of a running session.
func (r *ExamSessionRepository) UpdateCursor(ctx context.Context, id uuid.UUID, index int) error {
	return r.db.run(ctx, "session.update_cursor", func(ctx context.Context) error {
		tag, err := r.db.pool.Exec(ctx,
			`UPDATE exam_sessions
			 SET current_question_index = $1, updated_at = $2
			 WHERE id = $3 AND status = $4`,
			index, time.Now(), id, model.SessionStatusInProgress)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrStaleState
		}
		return nil
	})
}

// Close moves a running session into a terminal status with the given end
// time. It reports false when the session was no longer running.
func (r *ExamSessionRepository) Close(ctx context.Context, id uuid.UUID, status model.SessionStatus, end time.Time) (bool, error) {
	var closed bool
	err := r.db.run(ctx, "session.close", func(ctx context.Context) error {
		tag, err := r.db.pool.Exec(ctx,
			`UPDATE exam_sessions
			 SET status = $1, end_time = $2, updated_at = $3
			 WHERE id = $4 AND status = $5`,
			status, end, time.Now(), id, model.SessionStatusInProgress)
		if err != nil {
			return err
		}
		closed = tag.RowsAffected() == 1
		return nil
	})
	return closed, err
}

// ExpireOverdue expires every running session whose deadline is before now,
// stamping end_time with the nominal deadline. It returns the expired sessions.
func (r *ExamSessionRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]model.ExamSession, error) {
	var expired []model.ExamSession
	err := r.db.run(ctx, "session.expire_overdue", func(ctx context.Context) error {
		rows, err := r.db.pool.Query(ctx,
			`UPDATE exam_sessions s
			 SET status = $1,
			     end_time = s.start_time + make_interval(mins => e.duration_minutes),
			     updated_at = $2
			 FROM exams e
			 WHERE e.id = s.exam_id
			   AND s.status = $3
			   AND s.start_time + make_interval(mins => e.duration_minutes) < $2
			 RETURNING s.id, s.user_id, s.exam_id, s.start_time, s.end_time, s.status,
			           s.current_question_index, s.created_at, s.updated_at`,
			model.SessionStatusExpired, now, model.SessionStatusInProgress)
		if err != nil {
			return err
		}
		expired, err = collectSessions(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// Submit closes a running session as submitted and stores its result in one
// transaction. The session row is locked first and its answers are read
// inside the transaction, so score sees exactly the answers the session was
// closed with. It returns ErrStaleState when the session was no longer
// running, in which case nothing is written.
func (r *ExamSessionRepository) Submit(ctx context.Context, id uuid.UUID, end time.Time,
	score func(answers []model.UserAnswer) *model.ExamResult) (*model.ExamResult, error) {
	var result *model.ExamResult
	err := r.db.tx(ctx, "session.submit", func(tx pgx.Tx) error {
		var status model.SessionStatus
		err := tx.QueryRow(ctx,
			`SELECT status FROM exam_sessions WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			return err
		}
		if status != model.SessionStatusInProgress {
			return ErrStaleState
		}

		answers, err := listAnswers(ctx, tx, id)
		if err != nil {
			return err
		}
		result = score(answers)
		result.SessionID = id

		if _, err := tx.Exec(ctx,
			`UPDATE exam_sessions
			 SET status = $1, end_time = $2, updated_at = $2
			 WHERE id = $3`,
			model.SessionStatusSubmitted, end, id); err != nil {
			return err
		}

		return tx.QueryRow(ctx,
			`INSERT INTO exam_results (session_id, total_score, max_possible_score, percentage, is_passed, calculated_at, feedback)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			result.SessionID, result.TotalScore, result.MaxPossibleScore, result.Percentage,
			result.IsPassed, result.CalculatedAt, result.Feedback,
		).Scan(&result.ID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
