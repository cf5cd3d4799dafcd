package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/webexam/internal/model"
)

// ResultRepository handles exam result data access. Results are written
// together with the session transition in ExamSessionRepository.Submit.
type ResultRepository struct {
	db *DB
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

const resultSelect = `SELECT r.id, r.session_id, r.total_score, r.max_possible_score, r.percentage, r.is_passed,
	r.calculated_at, r.feedback, s.user_id, s.exam_id
	FROM exam_results r
	JOIN exam_sessions s ON s.id = r.session_id`

func scanResult(row pgx.Row, r *model.SessionResult) error {
	return row.Scan(&r.ID, &r.SessionID, &r.TotalScore, &r.MaxPossibleScore, &r.Percentage, &r.IsPassed,
		&r.CalculatedAt, &r.Feedback, &r.UserID, &r.ExamID)
}

func (r *ResultRepository) one(ctx context.Context, op, where string, arg any) (*model.SessionResult, error) {
	res := &model.SessionResult{}
	err := r.db.run(ctx, op, func(ctx context.Context) error {
		return scanResult(r.db.pool.QueryRow(ctx, resultSelect+` WHERE `+where, arg), res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *ResultRepository) many(ctx context.Context, op, where string, arg any) ([]model.SessionResult, error) {
	var results []model.SessionResult
	err := r.db.run(ctx, op, func(ctx context.Context) error {
		rows, err := r.db.pool.Query(ctx, resultSelect+` WHERE `+where+` ORDER BY r.calculated_at DESC`, arg)
		if err != nil {
			return err
		}
		results, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.SessionResult, error) {
			var res model.SessionResult
			err := scanResult(row, &res)
			return res, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetByID retrieves a result.
func (r *ResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.SessionResult, error) {
	return r.one(ctx, "result.get", `r.id = $1`, id)
}

// GetBySession retrieves the result of a session.
func (r *ResultRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.SessionResult, error) {
	return r.one(ctx, "result.get_by_session", `r.session_id = $1`, sessionID)
}

// ListByUser retrieves all results of a user, newest first.
func (r *ResultRepository) ListByUser(ctx context.Context, userID int) ([]model.SessionResult, error) {
	return r.many(ctx, "result.list_by_user", `s.user_id = $1`, userID)
}

// ListByExam retrieves all results of an exam, newest first.
func (r *ResultRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.SessionResult, error) {
	return r.many(ctx, "result.list_by_exam", `s.exam_id = $1`, examID)
}
