package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/webexam/internal/model"
)

// AnswerRepository handles user answer data access.
type AnswerRepository struct {
	db *DB
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(db *DB) *AnswerRepository {
	return &AnswerRepository{db: db}
}

const answerSelect = `SELECT a.id, a.session_id, a.question_id, a.answer_text, a.answered_at, a.updated_at,
	COALESCE(array_agg(so.option_id ORDER BY so.option_id) FILTER (WHERE so.option_id IS NOT NULL), '{}')
	FROM user_answers a
	LEFT JOIN selected_options so ON so.answer_id = a.id`

func scanAnswer(row pgx.Row, a *model.UserAnswer) error {
	return row.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.AnswerText, &a.AnsweredAt, &a.UpdatedAt, &a.SelectedOptionIDs)
}

// Upsert stores the answer for (session, question). An existing answer has
// its text replaced and its selected options replaced as a whole. The session
// row is share-locked for the duration, so the write either lands before a
// submit or expiry commits or fails with ErrStaleState after it.
func (r *AnswerRepository) Upsert(ctx context.Context, a *model.UserAnswer) error {
	return r.db.tx(ctx, "answer.upsert", func(tx pgx.Tx) error {
		var status model.SessionStatus
		err := tx.QueryRow(ctx,
			`SELECT status FROM exam_sessions WHERE id = $1 FOR SHARE`, a.SessionID).Scan(&status)
		if err != nil {
			return err
		}
		if status != model.SessionStatusInProgress {
			return ErrStaleState
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO user_answers (session_id, question_id, answer_text, answered_at, updated_at)
			 VALUES ($1, $2, $3, $4, $4)
			 ON CONFLICT (session_id, question_id)
			 DO UPDATE SET answer_text = EXCLUDED.answer_text,
			               answered_at = EXCLUDED.answered_at,
			               updated_at = EXCLUDED.updated_at
			 RETURNING id, updated_at`,
			a.SessionID, a.QuestionID, a.AnswerText, a.AnsweredAt,
		).Scan(&a.ID, &a.UpdatedAt)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM selected_options WHERE answer_id = $1`, a.ID); err != nil {
			return err
		}
		if len(a.SelectedOptionIDs) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(a.SelectedOptionIDs))
		for _, id := range a.SelectedOptionIDs {
			rows = append(rows, []any{a.ID, id})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"selected_options"},
			[]string{"answer_id", "option_id"},
			pgx.CopyFromRows(rows))
		return err
	})
}

// Get retrieves the answer for one question of a session.
func (r *AnswerRepository) Get(ctx context.Context, sessionID, questionID uuid.UUID) (*model.UserAnswer, error) {
	a := &model.UserAnswer{}
	err := r.db.run(ctx, "answer.get", func(ctx context.Context) error {
		return scanAnswer(r.db.pool.QueryRow(ctx,
			answerSelect+`
			 WHERE a.session_id = $1 AND a.question_id = $2
			 GROUP BY a.id`, sessionID, questionID), a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListBySession retrieves every answer of a session.
func (r *AnswerRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.UserAnswer, error) {
	var answers []model.UserAnswer
	err := r.db.run(ctx, "answer.list_by_session", func(ctx context.Context) error {
		var err error
		answers, err = listAnswers(ctx, r.db.pool, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return answers, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listAnswers(ctx context.Context, q querier, sessionID uuid.UUID) ([]model.UserAnswer, error) {
	rows, err := q.Query(ctx,
		answerSelect+`
		 WHERE a.session_id = $1
		 GROUP BY a.id
		 ORDER BY a.answered_at`, sessionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.UserAnswer, error) {
		var a model.UserAnswer
		err := scanAnswer(row, &a)
		return a, err
	})
}

// CountBySession counts answered questions of a session.
func (r *AnswerRepository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.db.run(ctx, "answer.count", func(ctx context.Context) error {
		return r.db.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM user_answers WHERE session_id = $1`, sessionID).Scan(&n)
	})
	return n, err
}
