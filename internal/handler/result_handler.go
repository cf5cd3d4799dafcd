package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/response"
	"github.com/stemsi/webexam/internal/service"
)

// ResultHandler serves a user's own results.
type ResultHandler struct {
	resultService *service.ResultService
	log           zerolog.Logger
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(resultService *service.ResultService, log zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		resultService: resultService,
		log:           log.With().Str("component", "result_handler").Logger(),
	}
}

// My godoc
// GET /api/v1/results/my
// Best result per exam for the caller.
func (h *ResultHandler) My(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	results, err := h.resultService.GetUserResults(c.Request.Context(), a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// BySession godoc
// GET /api/v1/results/sessions/:id
func (h *ResultHandler) BySession(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	result, err := h.resultService.GetResultBySession(c.Request.Context(), sessionID, a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Details godoc
// GET /api/v1/results/:id
// Result with its per-question breakdown.
func (h *ResultHandler) Details(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	resultID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	details, err := h.resultService.GetResultDetails(c.Request.Context(), resultID, a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": details})
}
