package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states. Every status other than
// IN_PROGRESS is terminal.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusSubmitted  SessionStatus = "SUBMITTED"
	SessionStatusExpired    SessionStatus = "EXPIRED"
	SessionStatusTerminated SessionStatus = "TERMINATED"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s != SessionStatusInProgress
}

// ExamSession is one user's timed attempt at one exam.
// EndTime is set if and only if Status is terminal.
type ExamSession struct {
	ID                   uuid.UUID     `json:"id"`
	UserID               int           `json:"user_id"`
	ExamID               uuid.UUID     `json:"exam_id"`
	StartTime            time.Time     `json:"start_time"`
	EndTime              *time.Time    `json:"end_time,omitempty"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Deadline is the nominal end of the attempt.
func (s *ExamSession) Deadline(limit time.Duration) time.Time {
	return s.StartTime.Add(limit)
}

// Overdue reports whether an in-progress session has passed its deadline at now.
func (s *ExamSession) Overdue(limit time.Duration, now time.Time) bool {
	return s.Status == SessionStatusInProgress && now.After(s.Deadline(limit))
}

// RemainingSeconds is the time left for reporting, clamped at zero.
// Sessions that already ended have no time left.
func (s *ExamSession) RemainingSeconds(limit time.Duration, now time.Time) int {
	if s.EndTime != nil {
		return 0
	}
	elapsed := int(now.Sub(s.StartTime).Seconds())
	remaining := int(limit.Seconds()) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// StartExamRequest is the payload for starting an attempt.
type StartExamRequest struct {
	ExamID string `json:"exam_id" binding:"required,uuid"`
}
