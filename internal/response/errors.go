package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials   ErrCode = "INVALID_CREDENTIALS"
	ErrAccountDisabled      ErrCode = "ACCOUNT_DISABLED"
	ErrEmailTaken           ErrCode = "EMAIL_TAKEN"
	ErrCannotDeactivateSelf ErrCode = "CANNOT_DEACTIVATE_SELF"
	ErrTokenRequired        ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid         ErrCode = "TOKEN_INVALID"
	ErrTokenExpired         ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrRoleNotAllowed  ErrCode = "ROLE_NOT_ALLOWED"
	ErrNotExamAuthor   ErrCode = "NOT_EXAM_AUTHOR"
	ErrSessionNotOwned ErrCode = "SESSION_NOT_OWNED"
	ErrResultNotOwned  ErrCode = "RESULT_NOT_OWNED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation         ErrCode = "VALIDATION_ERROR"
	ErrInvalidID          ErrCode = "INVALID_ID"
	ErrInvalidPayload     ErrCode = "INVALID_PAYLOAD"
	ErrTooManyOptions     ErrCode = "TOO_MANY_OPTIONS"
	ErrOptionRequired     ErrCode = "OPTION_REQUIRED"
	ErrAnswerTextRequired ErrCode = "ANSWER_TEXT_REQUIRED"
	ErrUnknownOption      ErrCode = "UNKNOWN_OPTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrUserNotFound     ErrCode = "USER_NOT_FOUND"
	ErrExamNotFound     ErrCode = "EXAM_NOT_FOUND"
	ErrQuestionNotFound ErrCode = "QUESTION_NOT_FOUND"
	ErrSessionNotFound  ErrCode = "SESSION_NOT_FOUND"
	ErrNoActiveSession  ErrCode = "NO_ACTIVE_SESSION"
	ErrResultNotFound   ErrCode = "RESULT_NOT_FOUND"

	// ─── Exam lifecycle ────────────────────────────────────────────────
	ErrExamNotPublished    ErrCode = "EXAM_NOT_PUBLISHED"
	ErrNoQuestions         ErrCode = "NO_QUESTIONS"
	ErrNoCorrectOption     ErrCode = "NO_CORRECT_OPTION"
	ErrExamHasSessions     ErrCode = "EXAM_HAS_SESSIONS"
	ErrActiveSessionExists ErrCode = "ACTIVE_SESSION_EXISTS"
	ErrNoAttemptsLeft      ErrCode = "NO_ATTEMPTS_LEFT"
	ErrSessionClosed       ErrCode = "SESSION_CLOSED"
	ErrSessionExpired      ErrCode = "SESSION_EXPIRED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
// Messages are safe to show to end users.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrAccountDisabled:
		return "This account has been deactivated."
	case ErrEmailTaken:
		return "A user with this email already exists."
	case ErrCannotDeactivateSelf:
		return "You cannot deactivate your own account."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrRoleNotAllowed:
		return "Your role is not allowed to perform this action."
	case ErrNotExamAuthor:
		return "You are not the author of this exam."
	case ErrSessionNotOwned:
		return "This exam session belongs to another user."
	case ErrResultNotOwned:
		return "This result belongs to another user."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "The submitted data is invalid."
	case ErrInvalidID:
		return "The ID format is invalid."
	case ErrInvalidPayload:
		return "The request body is invalid."
	case ErrTooManyOptions:
		return "A single choice question accepts at most one option."
	case ErrOptionRequired:
		return "Select at least one option."
	case ErrAnswerTextRequired:
		return "The answer text must not be empty."
	case ErrUnknownOption:
		return "A selected option does not belong to this question."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The requested resource was not found."
	case ErrUserNotFound:
		return "User not found."
	case ErrExamNotFound:
		return "Exam not found."
	case ErrQuestionNotFound:
		return "Question not found in this exam."
	case ErrSessionNotFound:
		return "Exam session not found."
	case ErrNoActiveSession:
		return "No active session found."
	case ErrResultNotFound:
		return "Result not found."

	// ─── Exam lifecycle ────────────────────────────────────────────────
	case ErrExamNotPublished:
		return "The exam is not published."
	case ErrNoQuestions:
		return "The exam has no questions."
	case ErrNoCorrectOption:
		return "Every choice question needs at least one correct option."
	case ErrExamHasSessions:
		return "An exam with recorded sessions cannot be deleted."
	case ErrActiveSessionExists:
		return "You already have an active session for this exam."
	case ErrNoAttemptsLeft:
		return "You have no attempts left for this exam."
	case ErrSessionClosed:
		return "The exam has already been finished."
	case ErrSessionExpired:
		return "The time for this exam has run out."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please slow down."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."

	default:
		return "An unknown error occurred."
	}
}
