package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/service"
)

const keepAliveInterval = 30 * time.Second

// snapshotEvent is the first message of a monitor stream.
type snapshotEvent struct {
	Type     string              `json:"type"`
	ExamID   uuid.UUID           `json:"exam_id"`
	Attempts []model.ExamAttempt `json:"attempts"`
}

// MonitorHandler streams session events of one exam to its author.
type MonitorHandler struct {
	resultService  *service.ResultService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(resultService *service.ResultService, monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		resultService:  resultService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// Monitor godoc
// GET /api/v1/exams/:id/monitor
// Server-sent events: a snapshot of all attempts, then every session event.
func (h *MonitorHandler) Monitor(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	// The attempts query doubles as the creator/admin check.
	attempts, err := h.resultService.GetExamAttempts(reqCtx, examID, a)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	pubsub := h.monitorService.Subscribe(reqCtx, examID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	snapshot, err := json.Marshal(snapshotEvent{Type: "snapshot", ExamID: examID, Attempts: attempts})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode monitor snapshot")
		return
	}
	writeSSE(c, snapshot)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("exam_id", examID.String()).Int("user_id", a.UserID).Msg("Monitor attached")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Int("user_id", a.UserID).Msg("Monitor detached")
			return

		case msg, open := <-ch:
			if !open {
				return
			}
			// Payloads are already JSON encoded by the publisher.
			writeSSE(c, []byte(msg.Payload))

		case <-keepAlive.C:
			writeSSE(c, pingPayload)
		}
	}
}

func writeSSE(c *gin.Context, payload []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
