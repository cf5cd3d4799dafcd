package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType enumerates how a question is answered and scored.
type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTextAnswer     QuestionType = "TEXT_ANSWER"
	QuestionTypeCodeAnswer     QuestionType = "CODE_ANSWER"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultipleChoice, QuestionTypeTextAnswer, QuestionTypeCodeAnswer:
		return true
	}
	return false
}

// IsChoice reports whether answers are given by selecting options.
func (t QuestionType) IsChoice() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultipleChoice
}

// Exam is the metadata of an exam.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration_minutes"`
	PassingScore    int       `json:"passing_score"`
	MaxAttempts     int       `json:"max_attempts"`
	IsPublished     bool      `json:"is_published"`
	CreatedBy       int       `json:"created_by"`
	QuestionCount   int       `json:"question_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Duration is the time limit of a single attempt.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Question is one question of an exam. Options are ordered by Order.
type Question struct {
	ID      uuid.UUID      `json:"id"`
	ExamID  uuid.UUID      `json:"exam_id"`
	Text    string         `json:"text"`
	Type    QuestionType   `json:"type"`
	Points  int            `json:"points"`
	Order   int            `json:"order"`
	Options []AnswerOption `json:"options"`
}

// CorrectOptionIDs returns the set of options flagged correct.
func (q *Question) CorrectOptionIDs() map[uuid.UUID]struct{} {
	ids := make(map[uuid.UUID]struct{})
	for _, o := range q.Options {
		if o.IsCorrect {
			ids[o.ID] = struct{}{}
		}
	}
	return ids
}

// HasOption reports whether id is one of the question's options.
func (q *Question) HasOption(id uuid.UUID) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// AnswerOption is a selectable option of a choice question.
type AnswerOption struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Text       string    `json:"text"`
	IsCorrect  bool      `json:"is_correct"`
	Order      int       `json:"order"`
}

// ExamDefinition is an exam together with its ordered questions. It is the
// read-only shape the session engine works against.
type ExamDefinition struct {
	Exam
	Questions []Question `json:"questions"`
}

// QuestionAt returns the question at a zero-based position.
func (d *ExamDefinition) QuestionAt(index int) (*Question, bool) {
	if index < 0 || index >= len(d.Questions) {
		return nil, false
	}
	return &d.Questions[index], true
}

// Question looks up a question of this exam by id.
func (d *ExamDefinition) Question(id uuid.UUID) (*Question, int, bool) {
	for i := range d.Questions {
		if d.Questions[i].ID == id {
			return &d.Questions[i], i, true
		}
	}
	return nil, -1, false
}

// MaxScore is the sum of all question point values.
func (d *ExamDefinition) MaxScore() int {
	total := 0
	for _, q := range d.Questions {
		total += q.Points
	}
	return total
}

// CreateExamRequest is the payload for authoring a new exam with its questions.
type CreateExamRequest struct {
	Title           string                  `json:"title" binding:"required,min=3,max=255"`
	Description     string                  `json:"description" binding:"max=4000"`
	DurationMinutes int                     `json:"duration_minutes" binding:"required,min=1,max=600"`
	PassingScore    int                     `json:"passing_score" binding:"min=0,max=100"`
	MaxAttempts     int                     `json:"max_attempts" binding:"required,min=1,max=100"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"dive"`
}

// CreateQuestionRequest describes one question of a new exam.
type CreateQuestionRequest struct {
	Text    string                `json:"text" binding:"required,max=4000"`
	Type    string                `json:"type" binding:"required,question_type"`
	Points  int                   `json:"points" binding:"required,min=1,max=1000"`
	Order   int                   `json:"order" binding:"min=0"`
	Options []CreateOptionRequest `json:"options" binding:"dive"`
}

// CreateOptionRequest describes one answer option.
type CreateOptionRequest struct {
	Text      string `json:"text" binding:"required,max=1000"`
	IsCorrect bool   `json:"is_correct"`
	Order     int    `json:"order" binding:"min=0"`
}

// UpdateExamRequest changes exam metadata. Questions are immutable once created.
type UpdateExamRequest struct {
	Title           string `json:"title" binding:"required,min=3,max=255"`
	Description     string `json:"description" binding:"max=4000"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1,max=600"`
	PassingScore    int    `json:"passing_score" binding:"min=0,max=100"`
	MaxAttempts     int    `json:"max_attempts" binding:"required,min=1,max=100"`
}
