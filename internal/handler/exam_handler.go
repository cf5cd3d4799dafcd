package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/response"
	"github.com/stemsi/webexam/internal/service"
	"github.com/stemsi/webexam/internal/validator"
)

// ExamHandler handles exam authoring and the author's views of an exam.
type ExamHandler struct {
	examService    *service.ExamService
	resultService  *service.ResultService
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(
	examService *service.ExamService,
	resultService *service.ResultService,
	sessionService *service.ExamSessionService,
	log zerolog.Logger,
) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		resultService:  resultService,
		sessionService: sessionService,
		log:            log.With().Str("component", "exam_handler").Logger(),
	}
}

// ─── Catalogue ──────────────────────────────────────────────────────────────

// List godoc
// GET /api/v1/exams
// Lists published exams.
func (h *ExamHandler) List(c *gin.Context) {
	exams, err := h.examService.ListPublishedExams(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// Mine godoc
// GET /api/v1/exams/mine
// Lists exams created by the caller, drafts included.
func (h *ExamHandler) Mine(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	exams, err := h.examService.ListMyExams(c.Request.Context(), a)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// Get godoc
// GET /api/v1/exams/:id
func (h *ExamHandler) Get(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	exam, err := h.examService.GetExam(c.Request.Context(), a, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ─── Authoring ──────────────────────────────────────────────────────────────

// Create godoc
// POST /api/v1/exams
// Creates an unpublished exam together with its questions.
func (h *ExamHandler) Create(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.CreateExam(c.Request.Context(), a, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// Update godoc
// PUT /api/v1/exams/:id
func (h *ExamHandler) Update(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.UpdateExam(c.Request.Context(), a, examID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Delete godoc
// DELETE /api/v1/exams/:id
func (h *ExamHandler) Delete(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.examService.DeleteExam(c.Request.Context(), a, examID); err != nil {
		fail(c, h.log, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, nil, "Exam deleted.")
}

// Publish godoc
// POST /api/v1/exams/:id/publish
func (h *ExamHandler) Publish(c *gin.Context) {
	h.setPublished(c, true)
}

// Unpublish godoc
// POST /api/v1/exams/:id/unpublish
func (h *ExamHandler) Unpublish(c *gin.Context) {
	h.setPublished(c, false)
}

func (h *ExamHandler) setPublished(c *gin.Context, published bool) {
	a, ok := actor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var err error
	if published {
		err = h.examService.PublishExam(ctx, a, examID)
	} else {
		err = h.examService.UnpublishExam(ctx, a, examID)
	}
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam_id": examID, "is_published": published})
}

// ─── Results of an exam ─────────────────────────────────────────────────────

// Statistics godoc
// GET /api/v1/exams/:id/statistics
// Aggregated scores of all submitted attempts. Creator or admin only.
func (h *ExamHandler) Statistics(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.resultService.GetExamStatistics(c.Request.Context(), examID, a)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"statistics": stats})
}

// Attempts godoc
// GET /api/v1/exams/:id/attempts
// Every session of the exam with its outcome. Creator or admin only.
func (h *ExamHandler) Attempts(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	attempts, err := h.resultService.GetExamAttempts(c.Request.Context(), examID, a)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// TerminateSession godoc
// POST /api/v1/sessions/:id/terminate
// Force-closes a running session without scoring it. Creator or admin only.
func (h *ExamHandler) TerminateSession(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	session, err := h.sessionService.TerminateSession(c.Request.Context(), sessionID, a)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	h.log.Info().
		Str("session_id", sessionID.String()).
		Int("terminated_by", a.UserID).
		Msg("Session terminated")
	response.Success(c, http.StatusOK, gin.H{"session": session})
}
