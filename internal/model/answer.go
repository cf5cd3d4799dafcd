package model

import (
	"time"

	"github.com/google/uuid"
)

// UserAnswer is the answer recorded for one question within a session.
// SelectedOptionIDs is owned by the answer and replaced as a whole on resubmission.
type UserAnswer struct {
	ID                uuid.UUID   `json:"id"`
	SessionID         uuid.UUID   `json:"session_id"`
	QuestionID        uuid.UUID   `json:"question_id"`
	AnswerText        *string     `json:"answer_text,omitempty"`
	SelectedOptionIDs []uuid.UUID `json:"selected_option_ids"`
	AnsweredAt        time.Time   `json:"answered_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Text returns the free-text answer or an empty string.
func (a *UserAnswer) Text() string {
	if a == nil || a.AnswerText == nil {
		return ""
	}
	return *a.AnswerText
}

// SubmitAnswerRequest is the payload for answering a question.
type SubmitAnswerRequest struct {
	QuestionID        string   `json:"question_id" binding:"required,uuid"`
	SelectedOptionIDs []string `json:"selected_option_ids" binding:"omitempty,max=50,dive,uuid"`
	AnswerText        *string  `json:"answer_text" binding:"omitempty,max=20000"`
}
