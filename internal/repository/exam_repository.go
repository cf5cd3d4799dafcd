package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/webexam/internal/model"
)

// ExamRepository handles exam definition data access.
type ExamRepository struct {
	db *DB
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(db *DB) *ExamRepository {
	return &ExamRepository{db: db}
}

const examColumns = `e.id, e.title, e.description, e.duration_minutes, e.passing_score, e.max_attempts,
	e.is_published, e.created_by, e.created_at, e.updated_at,
	(SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id)`

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(
		&e.ID, &e.Title, &e.Description, &e.DurationMinutes, &e.PassingScore, &e.MaxAttempts,
		&e.IsPublished, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt, &e.QuestionCount,
	)
}

// GetByID retrieves exam metadata.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.db.run(ctx, "exam.get", func(ctx context.Context) error {
		return scanExam(r.db.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams e WHERE e.id = $1`, id), e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetDefinition retrieves an exam with its questions ordered by order_num and
// each question's options ordered by order_num.
func (r *ExamRepository) GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	def := &model.ExamDefinition{}
	err := r.db.run(ctx, "exam.definition", func(ctx context.Context) error {
		if err := scanExam(r.db.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams e WHERE e.id = $1`, id), &def.Exam); err != nil {
			return err
		}

		rows, err := r.db.pool.Query(ctx,
			`SELECT id, exam_id, text, type, points, order_num
			 FROM questions
			 WHERE exam_id = $1
			 ORDER BY order_num, id`, id)
		if err != nil {
			return err
		}
		questions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Question, error) {
			var q model.Question
			err := row.Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Points, &q.Order)
			return q, err
		})
		if err != nil {
			return err
		}

		index := make(map[uuid.UUID]int, len(questions))
		for i := range questions {
			index[questions[i].ID] = i
			questions[i].Options = []model.AnswerOption{}
		}

		rows, err = r.db.pool.Query(ctx,
			`SELECT o.id, o.question_id, o.text, o.is_correct, o.order_num
			 FROM answer_options o
			 JOIN questions q ON q.id = o.question_id
			 WHERE q.exam_id = $1
			 ORDER BY o.question_id, o.order_num, o.id`, id)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var o model.AnswerOption
			if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.Order); err != nil {
				return err
			}
			if i, ok := index[o.QuestionID]; ok {
				questions[i].Options = append(questions[i].Options, o)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		def.Questions = questions
		return nil
	})
	if err != nil {
		return nil, err
	}
	return def, nil
}

// Create inserts an exam with its questions and options in one transaction.
// Generated ids and timestamps are written back into def.
func (r *ExamRepository) Create(ctx context.Context, def *model.ExamDefinition) error {
	return r.db.tx(ctx, "exam.create", func(tx pgx.Tx) error {
		e := &def.Exam
		err := tx.QueryRow(ctx,
			`INSERT INTO exams (title, description, duration_minutes, passing_score, max_attempts, is_published, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at, updated_at`,
			e.Title, e.Description, e.DurationMinutes, e.PassingScore, e.MaxAttempts, e.IsPublished, e.CreatedBy,
		).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert exam: %w", err)
		}

		for i := range def.Questions {
			q := &def.Questions[i]
			q.ExamID = e.ID
			err := tx.QueryRow(ctx,
				`INSERT INTO questions (exam_id, text, type, points, order_num)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING id`,
				q.ExamID, q.Text, q.Type, q.Points, q.Order,
			).Scan(&q.ID)
			if err != nil {
				return fmt.Errorf("insert question %d: %w", i, err)
			}

			for j := range q.Options {
				o := &q.Options[j]
				o.QuestionID = q.ID
				err := tx.QueryRow(ctx,
					`INSERT INTO answer_options (question_id, text, is_correct, order_num)
					 VALUES ($1, $2, $3, $4)
					 RETURNING id`,
					o.QuestionID, o.Text, o.IsCorrect, o.Order,
				).Scan(&o.ID)
				if err != nil {
					return fmt.Errorf("insert option %d of question %d: %w", j, i, err)
				}
			}
		}

		e.QuestionCount = len(def.Questions)
		return nil
	})
}

// Update overwrites exam metadata.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	return r.db.run(ctx, "exam.update", func(ctx context.Context) error {
		return r.db.pool.QueryRow(ctx,
			`UPDATE exams
			 SET title = $1, description = $2, duration_minutes = $3, passing_score = $4, max_attempts = $5,
			     updated_at = $6
			 WHERE id = $7
			 RETURNING updated_at`,
			e.Title, e.Description, e.DurationMinutes, e.PassingScore, e.MaxAttempts, time.Now(), e.ID,
		).Scan(&e.UpdatedAt)
	})
}

// SetPublished flips the published flag.
func (r *ExamRepository) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	return r.db.run(ctx, "exam.publish", func(ctx context.Context) error {
		tag, err := r.db.pool.Exec(ctx,
			`UPDATE exams SET is_published = $1, updated_at = $2 WHERE id = $3`,
			published, time.Now(), id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}

// Delete removes an exam with its questions. Exams referenced by sessions
// cannot be deleted and yield ErrInUse.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.run(ctx, "exam.delete", func(ctx context.Context) error {
		tag, err := r.db.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}

// ListPublished retrieves all published exams, newest first.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	return r.list(ctx, "exam.list_published", `WHERE e.is_published`, nil)
}

// ListByCreator retrieves all exams authored by a user, newest first.
func (r *ExamRepository) ListByCreator(ctx context.Context, userID int) ([]model.Exam, error) {
	return r.list(ctx, "exam.list_by_creator", `WHERE e.created_by = $1`, []any{userID})
}

func (r *ExamRepository) list(ctx context.Context, op, where string, args []any) ([]model.Exam, error) {
	var exams []model.Exam
	err := r.db.run(ctx, op, func(ctx context.Context) error {
		rows, err := r.db.pool.Query(ctx,
			`SELECT `+examColumns+` FROM exams e `+where+` ORDER BY e.created_at DESC`, args...)
		if err != nil {
			return err
		}
		exams, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Exam, error) {
			var e model.Exam
			err := scanExam(row, &e)
			return e, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return exams, nil
}
