package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/response"
	"github.com/stemsi/webexam/internal/service"
)

// UserAdmin is the account administration surface used by UserHandler.
type UserAdmin interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	GetUser(ctx context.Context, id int) (*model.User, error)
	SetUserActive(ctx context.Context, actor service.Actor, id int, active bool) (*model.User, error)
}

// UserHandler handles admin account management endpoints.
type UserHandler struct {
	users UserAdmin
	log   zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users UserAdmin, log zerolog.Logger) *UserHandler {
	return &UserHandler{
		users: users,
		log:   log.With().Str("component", "user_handler").Logger(),
	}
}

// List godoc
// GET /api/v1/admin/users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"users": users})
}

// Get godoc
// GET /api/v1/admin/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// Activate godoc
// PUT /api/v1/admin/users/:id/activate
func (h *UserHandler) Activate(c *gin.Context) {
	h.setActive(c, true, "User activated.")
}

// Deactivate godoc
// PUT /api/v1/admin/users/:id/deactivate
// Blocks further logins. Tokens already issued run until they expire.
func (h *UserHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false, "User deactivated.")
}

func (h *UserHandler) setActive(c *gin.Context, active bool, msg string) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	user, err := h.users.SetUserActive(c.Request.Context(), a, id, active)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, gin.H{"user": user}, msg)
}
