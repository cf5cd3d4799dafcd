package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/middleware"
	"github.com/stemsi/webexam/internal/response"
)

const healthTimeout = 2 * time.Second

// Pinger is a dependency that can report its reachability.
type Pinger func(ctx context.Context) error

// Sweeper runs one expiry sweep on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

// SystemHandler serves health checks and operational endpoints.
type SystemHandler struct {
	deps      map[string]Pinger
	sweeper   Sweeper
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler. deps maps a dependency name
// such as "postgres" to its ping.
func NewSystemHandler(deps map[string]Pinger, sweeper Sweeper, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		deps:      deps,
		sweeper:   sweeper,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
// Reports "ok" when every dependency answers, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := "ok"
	checks := make(map[string]string, len(h.deps))
	for name, ping := range h.deps {
		if err := ping(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			checks[name] = "down"
			status = "degraded"
			continue
		}
		checks[name] = "up"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     status,
		"checks":     checks,
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
	})
}

// Sweep godoc
// POST /api/v1/admin/sweep
// Expires overdue sessions immediately instead of waiting for the schedule.
func (h *SystemHandler) Sweep(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	n, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	h.log.Info().Int("expired", n).Int("requested_by", claims.UserID).Msg("Manual expiry sweep")
	response.Success(c, http.StatusOK, gin.H{"expired": n})
}
