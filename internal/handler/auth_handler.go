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

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log.With().Str("component", "auth_handler").Logger(),
	}
}

// Register godoc
// POST /api/v1/auth/register
// Creates a student or teacher account and returns a token for it.
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// Login godoc
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Me godoc
// GET /api/v1/auth/me
// Returns the account of the authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	user, err := h.authService.Me(c.Request.Context(), a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// ChangePassword godoc
// POST /api/v1/auth/change-password
// Replaces the caller's password. The current password must match.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req model.ChangePasswordRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), a.UserID, req); err != nil {
		fail(c, h.log, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, nil, "Password changed.")
}
