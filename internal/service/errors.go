package service

import (
	"errors"

	"github.com/stemsi/webexam/internal/response"
)

// ErrorKind classifies domain failures for the API boundary.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindUnauthorized     ErrorKind = "unauthorized"
	KindInvalidOperation ErrorKind = "invalid_operation"
	KindValidation       ErrorKind = "validation"
	// KindInternal covers every error that is not a DomainError.
	KindInternal ErrorKind = "internal"
)

// DomainError is a caller-facing business failure. Its message is safe to
// show to end users.
type DomainError struct {
	Kind ErrorKind
	Code response.ErrCode
}

func (e *DomainError) Error() string {
	return response.GetMessage(e.Code)
}

func newError(kind ErrorKind, code response.ErrCode) *DomainError {
	return &DomainError{Kind: kind, Code: code}
}

var (
	ErrUserNotFound     = newError(KindNotFound, response.ErrUserNotFound)
	ErrExamNotFound     = newError(KindNotFound, response.ErrExamNotFound)
	ErrQuestionNotFound = newError(KindNotFound, response.ErrQuestionNotFound)
	ErrSessionNotFound  = newError(KindNotFound, response.ErrSessionNotFound)
	ErrResultNotFound   = newError(KindNotFound, response.ErrResultNotFound)

	ErrInvalidCredentials = newError(KindUnauthorized, response.ErrInvalidCredentials)
	ErrAccountDisabled    = newError(KindUnauthorized, response.ErrAccountDisabled)
	ErrRoleNotAllowed     = newError(KindUnauthorized, response.ErrRoleNotAllowed)
	ErrNotExamAuthor      = newError(KindUnauthorized, response.ErrNotExamAuthor)
	ErrSessionNotOwned    = newError(KindUnauthorized, response.ErrSessionNotOwned)
	ErrResultNotOwned     = newError(KindUnauthorized, response.ErrResultNotOwned)

	ErrEmailTaken           = newError(KindInvalidOperation, response.ErrEmailTaken)
	ErrCannotDeactivateSelf = newError(KindInvalidOperation, response.ErrCannotDeactivateSelf)
	ErrExamNotPublished     = newError(KindInvalidOperation, response.ErrExamNotPublished)
	ErrNoQuestions          = newError(KindInvalidOperation, response.ErrNoQuestions)
	ErrNoCorrectOption      = newError(KindInvalidOperation, response.ErrNoCorrectOption)
	ErrExamHasSessions      = newError(KindInvalidOperation, response.ErrExamHasSessions)
	ErrActiveSessionExists  = newError(KindInvalidOperation, response.ErrActiveSessionExists)
	ErrNoAttemptsLeft       = newError(KindInvalidOperation, response.ErrNoAttemptsLeft)
	ErrSessionClosed        = newError(KindInvalidOperation, response.ErrSessionClosed)
	ErrSessionExpired       = newError(KindInvalidOperation, response.ErrSessionExpired)

	ErrTooManyOptions     = newError(KindValidation, response.ErrTooManyOptions)
	ErrOptionRequired     = newError(KindValidation, response.ErrOptionRequired)
	ErrAnswerTextRequired = newError(KindValidation, response.ErrAnswerTextRequired)
	ErrUnknownOption      = newError(KindValidation, response.ErrUnknownOption)
)

// KindOf returns the kind of err, or KindInternal for non-domain errors.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
