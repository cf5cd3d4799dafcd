package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/webexam/internal/model"
)

// The interfaces below are the persistence ports of the services. The pgx
// repositories implement them; tests use in-memory fakes. Lookups of a
// missing row return repository.ErrNotFound.

// ExamReader loads finalized exam definitions.
type ExamReader interface {
	GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error)
}

// ExamStore is the authoring side of exam persistence.
type ExamStore interface {
	ExamReader
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	Create(ctx context.Context, def *model.ExamDefinition) error
	Update(ctx context.Context, e *model.Exam) error
	SetPublished(ctx context.Context, id uuid.UUID, published bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListPublished(ctx context.Context) ([]model.Exam, error)
	ListByCreator(ctx context.Context, userID int) ([]model.Exam, error)
}

// ExamCacheInvalidator drops cached exam definitions after authoring changes.
type ExamCacheInvalidator interface {
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// SessionStore persists exam sessions. Create must reject a second running
// session for the same user and exam with repository.ErrDuplicate.
type SessionStore interface {
	Create(ctx context.Context, s *model.ExamSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetActive(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamSession, error)
	CountAttempts(ctx context.Context, userID int, examID uuid.UUID) (int, error)
	CountByExam(ctx context.Context, examID uuid.UUID) (int, error)
	ListByUser(ctx context.Context, userID int, examID *uuid.UUID) ([]model.ExamSession, error)
	ListAttempts(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error)
	UpdateCursor(ctx context.Context, id uuid.UUID, index int) error
	Close(ctx context.Context, id uuid.UUID, status model.SessionStatus, end time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) ([]model.ExamSession, error)
	// Submit atomically closes a running session as submitted and stores the
	// result score builds from the answers saved at that moment.
	Submit(ctx context.Context, id uuid.UUID, end time.Time, score func([]model.UserAnswer) *model.ExamResult) (*model.ExamResult, error)
}

// AnswerStore persists user answers, one per (session, question). Upsert
// must fail with repository.ErrStaleState once the session is closed.
type AnswerStore interface {
	Upsert(ctx context.Context, a *model.UserAnswer) error
	Get(ctx context.Context, sessionID, questionID uuid.UUID) (*model.UserAnswer, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.UserAnswer, error)
}

// ResultStore reads exam results.
type ResultStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.SessionResult, error)
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.SessionResult, error)
	ListByUser(ctx context.Context, userID int) ([]model.SessionResult, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.SessionResult, error)
}

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	SetActive(ctx context.Context, id int, active bool) error
	UpdatePassword(ctx context.Context, id int, hash string) error
}

// EventPublisher fans session lifecycle events out to monitors. Publishing
// is best effort and must not fail the calling operation.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.SessionEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.SessionEvent) {}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID int
	Role   model.UserRole
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

// CanAuthor reports whether the actor may create exams.
func (a Actor) CanAuthor() bool {
	return a.Role == model.RoleTeacher || a.Role == model.RoleAdmin
}

// owns reports whether the actor may manage an exam.
func (a Actor) owns(e *model.Exam) bool {
	return a.IsAdmin() || e.CreatedBy == a.UserID
}
