package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionView is the client-facing shape of an exam session.
type SessionView struct {
	ID                   uuid.UUID     `json:"id"`
	ExamID               uuid.UUID     `json:"exam_id"`
	ExamTitle            string        `json:"exam_title"`
	Status               SessionStatus `json:"status"`
	StartTime            time.Time     `json:"start_time"`
	EndTime              *time.Time    `json:"end_time,omitempty"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	TotalQuestions       int           `json:"total_questions"`
	TimeRemainingSeconds int           `json:"time_remaining_seconds"`
	IsExpired            bool          `json:"is_expired"`
	IsSubmitted          bool          `json:"is_submitted"`
	CurrentQuestion      *QuestionView `json:"current_question,omitempty"`
}

// QuestionView is a question as shown to a client. Option correctness is only
// populated for the exam's author.
type QuestionView struct {
	ID      uuid.UUID    `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Points  int          `json:"points"`
	Order   int          `json:"order"`
	Index   int          `json:"index"`
	Options []OptionView `json:"options"`
}

// OptionView is an answer option as shown to a client.
type OptionView struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	Order     int       `json:"order"`
	IsCorrect *bool     `json:"is_correct,omitempty"`
}

// NewQuestionView maps a question at position index. withAnswers exposes
// correctness flags and must only be set for authors.
func NewQuestionView(q *Question, index int, withAnswers bool) *QuestionView {
	v := &QuestionView{
		ID:      q.ID,
		Text:    q.Text,
		Type:    q.Type,
		Points:  q.Points,
		Order:   q.Order,
		Index:   index,
		Options: make([]OptionView, 0, len(q.Options)),
	}
	for _, o := range q.Options {
		ov := OptionView{ID: o.ID, Text: o.Text, Order: o.Order}
		if withAnswers {
			correct := o.IsCorrect
			ov.IsCorrect = &correct
		}
		v.Options = append(v.Options, ov)
	}
	return v
}

// ExamView is an exam with its questions.
type ExamView struct {
	Exam
	Questions []QuestionView `json:"questions"`
}

// ResultView is a result with the exam it belongs to.
type ResultView struct {
	ExamResult
	ExamID    uuid.UUID `json:"exam_id"`
	ExamTitle string    `json:"exam_title"`
}

// QuestionResult is the per-question breakdown of a scored session.
type QuestionResult struct {
	QuestionID        uuid.UUID    `json:"question_id"`
	Text              string       `json:"text"`
	Type              QuestionType `json:"type"`
	MaxPoints         int          `json:"max_points"`
	PointsEarned      int          `json:"points_earned"`
	IsCorrect         bool         `json:"is_correct"`
	SelectedOptionIDs []uuid.UUID  `json:"selected_option_ids"`
	CorrectOptionIDs  []uuid.UUID  `json:"correct_option_ids"`
	AnswerText        *string      `json:"answer_text,omitempty"`
}

// ResultDetails is a result with its per-question breakdown.
type ResultDetails struct {
	ResultView
	Questions []QuestionResult `json:"questions"`
}

// UserExamResult summarises a user's attempts at one exam.
type UserExamResult struct {
	ExamID          uuid.UUID `json:"exam_id"`
	ExamTitle       string    `json:"exam_title"`
	BestScore       int       `json:"best_score"`
	MaxScore        int       `json:"max_score"`
	BestPercentage  float64   `json:"best_percentage"`
	HasPassed       bool      `json:"has_passed"`
	AttemptCount    int       `json:"attempt_count"`
	LastAttemptDate time.Time `json:"last_attempt_date"`
}

// ScoreBucket counts results whose percentage falls into a range.
type ScoreBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// ExamStatistics aggregates the results of one exam.
type ExamStatistics struct {
	ExamID            uuid.UUID     `json:"exam_id"`
	TotalAttempts     int           `json:"total_attempts"`
	PassedAttempts    int           `json:"passed_attempts"`
	AverageScore      float64       `json:"average_score"`
	PassRate          float64       `json:"pass_rate"`
	ScoreDistribution []ScoreBucket `json:"score_distribution"`
}

// ExamAttempt is one session of an exam as seen by its author.
type ExamAttempt struct {
	SessionID  uuid.UUID     `json:"session_id"`
	UserID     int           `json:"user_id"`
	UserName   string        `json:"user_name"`
	Status     SessionStatus `json:"status"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	Percentage *float64      `json:"percentage,omitempty"`
	IsPassed   *bool         `json:"is_passed,omitempty"`
}

// SessionEvent is published to the exam monitor channel.
type SessionEvent struct {
	Type       string     `json:"type"`
	ExamID     uuid.UUID  `json:"exam_id"`
	SessionID  uuid.UUID  `json:"session_id"`
	UserID     int        `json:"user_id"`
	QuestionID *uuid.UUID `json:"question_id,omitempty"`
	Percentage *float64   `json:"percentage,omitempty"`
	At         time.Time  `json:"at"`
}

// Session event types.
const (
	EventSessionStarted    = "session_started"
	EventAnswerSaved       = "answer_saved"
	EventSessionSubmitted  = "session_submitted"
	EventSessionExpired    = "session_expired"
	EventSessionTerminated = "session_terminated"
)
