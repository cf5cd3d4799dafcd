package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/response"
	"github.com/stemsi/webexam/internal/service"
	"github.com/stemsi/webexam/internal/validator"
)

// SessionEngine is the exam-taking surface used by the HTTP and WebSocket
// handlers. *service.ExamSessionService implements it.
type SessionEngine interface {
	StartExam(ctx context.Context, examID uuid.UUID, userID int) (*model.SessionView, error)
	CanStartExam(ctx context.Context, examID uuid.UUID, userID int) (bool, error)
	GetRemainingAttempts(ctx context.Context, examID uuid.UUID, userID int) (int, error)
	GetActiveSession(ctx context.Context, examID uuid.UUID, userID int) (*model.SessionView, error)
	GetSessionStatus(ctx context.Context, sessionID uuid.UUID, userID int) (*model.SessionView, error)
	GetUserSessions(ctx context.Context, userID int, examID *uuid.UUID) ([]model.SessionView, error)
	GetNextQuestion(ctx context.Context, sessionID uuid.UUID, userID int) (*model.QuestionView, error)
	GetQuestion(ctx context.Context, sessionID, questionID uuid.UUID, userID int) (*model.QuestionView, error)
	SubmitAnswer(ctx context.Context, sessionID uuid.UUID, userID int, in service.AnswerInput) error
	SubmitExam(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ResultView, error)
}

const msgQuestionsExhausted = "No more questions. The exam can be submitted."

// ExamTakingHandler handles a user's attempts at an exam.
type ExamTakingHandler struct {
	engine SessionEngine
	log    zerolog.Logger
}

// NewExamTakingHandler creates a new ExamTakingHandler.
func NewExamTakingHandler(engine SessionEngine, log zerolog.Logger) *ExamTakingHandler {
	return &ExamTakingHandler{
		engine: engine,
		log:    log.With().Str("component", "exam_taking_handler").Logger(),
	}
}

// ─── Eligibility ────────────────────────────────────────────────────────────

// Start godoc
// POST /api/v1/taking/start
// Opens a new session for the exam in the body.
func (h *ExamTakingHandler) Start(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req model.StartExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	examID, err := uuid.Parse(req.ExamID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.engine.StartExam(c.Request.Context(), examID, a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// CanStart godoc
// GET /api/v1/taking/exams/:examId/can-start
func (h *ExamTakingHandler) CanStart(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "examId")
	if !ok {
		return
	}

	can, err := h.engine.CanStartExam(c.Request.Context(), examID, a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"can_start": can})
}

// RemainingAttempts godoc
// GET /api/v1/taking/exams/:examId/remaining-attempts
func (h *ExamTakingHandler) RemainingAttempts(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "examId")
	if !ok {
		return
	}

	n, err := h.engine.GetRemainingAttempts(c.Request.Context(), examID, a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"remaining_attempts": n})
}

// Active godoc
// GET /api/v1/taking/active/:examId
// Returns the caller's running session for the exam, or null.
func (h *ExamTakingHandler) Active(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "examId")
	if !ok {
		return
	}

	session, err := h.engine.GetActiveSession(c.Request.Context(), examID, a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if session == nil {
		response.SuccessWithMessage(c, http.StatusOK, gin.H{"session": nil}, response.GetMessage(response.ErrNoActiveSession))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// ─── Sessions ───────────────────────────────────────────────────────────────

// Sessions godoc
// GET /api/v1/taking/sessions?exam_id=
// Lists the caller's sessions, newest first.
func (h *ExamTakingHandler) Sessions(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var examID *uuid.UUID
	if raw := c.Query("exam_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		examID = &id
	}

	sessions, err := h.engine.GetUserSessions(c.Request.Context(), a.UserID, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// Session godoc
// GET /api/v1/taking/sessions/:id
func (h *ExamTakingHandler) Session(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	session, err := h.engine.GetSessionStatus(c.Request.Context(), sessionID, a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// ─── Questions & answers ────────────────────────────────────────────────────

// NextQuestion godoc
// GET /api/v1/taking/sessions/:id/next-question
// Returns the current question while unanswered, otherwise advances.
func (h *ExamTakingHandler) NextQuestion(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	q, err := h.engine.GetNextQuestion(c.Request.Context(), sessionID, a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if q == nil {
		response.SuccessWithMessage(c, http.StatusOK, gin.H{"question": nil}, msgQuestionsExhausted)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// Question godoc
// GET /api/v1/taking/sessions/:id/questions/:questionId
func (h *ExamTakingHandler) Question(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := uuidParam(c, "questionId")
	if !ok {
		return
	}

	q, err := h.engine.GetQuestion(c.Request.Context(), sessionID, questionID, a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// Answer godoc
// POST /api/v1/taking/sessions/:id/answers
// Saves or replaces the caller's answer to one question.
func (h *ExamTakingHandler) Answer(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	in, ok := answerInput(req.QuestionID, req.SelectedOptionIDs, req.AnswerText)
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.engine.SubmitAnswer(c.Request.Context(), sessionID, a.UserID, in); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question_id": in.QuestionID, "saved": true})
}

// Submit godoc
// POST /api/v1/taking/sessions/:id/submit
// Finishes the session and returns its score.
func (h *ExamTakingHandler) Submit(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	result, err := h.engine.SubmitExam(c.Request.Context(), sessionID, a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// answerInput converts wire ids into an AnswerInput.
func answerInput(questionID string, optionIDs []string, text *string) (service.AnswerInput, bool) {
	qid, err := uuid.Parse(questionID)
	if err != nil {
		return service.AnswerInput{}, false
	}
	opts, ok := parseUUIDs(optionIDs)
	if !ok {
		return service.AnswerInput{}, false
	}
	return service.AnswerInput{QuestionID: qid, SelectedOptionIDs: opts, AnswerText: text}, true
}
