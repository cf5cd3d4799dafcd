package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamResult is the immutable score of a submitted session.
type ExamResult struct {
	ID               uuid.UUID `json:"id"`
	SessionID        uuid.UUID `json:"session_id"`
	TotalScore       int       `json:"total_score"`
	MaxPossibleScore int       `json:"max_possible_score"`
	Percentage       float64   `json:"percentage"`
	IsPassed         bool      `json:"is_passed"`
	CalculatedAt     time.Time `json:"calculated_at"`
	Feedback         string    `json:"feedback"`
}

// SessionResult joins a result with the session it belongs to.
type SessionResult struct {
	ExamResult
	UserID int       `json:"user_id"`
	ExamID uuid.UUID `json:"exam_id"`
}
