package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/response"
	"github.com/stemsi/webexam/internal/service"
	ws "github.com/stemsi/webexam/internal/websocket"
)

// wsOpTimeout bounds each engine call made on behalf of a socket message.
const wsOpTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler drives a running session over a WebSocket.
type WSHandler struct {
	engine   SessionEngine
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(engine SessionEngine, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		engine:   engine,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// Stream godoc
// WS /api/v1/taking/sessions/:id/stream
// Accepts answer, next, status, submit and ping actions for one running
// session. The socket is closed after a successful submit.
func (h *WSHandler) Stream(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	// Ownership and liveness are checked before upgrading so failures are
	// still plain HTTP errors.
	session, err := h.engine.GetSessionStatus(c.Request.Context(), sessionID, a.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if session.Status != model.SessionStatusInProgress {
		if session.IsExpired {
			fail(c, h.log, service.ErrSessionExpired)
		} else {
			fail(c, h.log, service.ErrSessionClosed)
		}
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", a.UserID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Session stream connected")

	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if done := h.dispatch(conn, wsLog, sessionID, a.UserID, msg); done {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "submitted"),
				time.Now().Add(time.Second))
			return
		}
	}
}

// dispatch handles one message and reports whether the stream is finished.
func (h *WSHandler) dispatch(conn *websocket.Conn, log zerolog.Logger, sessionID uuid.UUID, userID int, msg ws.RequestEnvelope) bool {
	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	switch msg.Action {
	case ws.ActionPing:
		_ = ws.WriteTyped(conn, ws.EventOnly{Event: ws.EventPong})

	case ws.ActionStatus:
		session, err := h.engine.GetSessionStatus(ctx, sessionID, userID)
		if err != nil {
			h.writeErr(conn, log, err)
			return false
		}
		_ = ws.WriteTyped(conn, ws.StatusResponse{Event: ws.EventStatus, Session: session})

	case ws.ActionNext:
		q, err := h.engine.GetNextQuestion(ctx, sessionID, userID)
		if err != nil {
			h.writeErr(conn, log, err)
			return false
		}
		if q == nil {
			_ = ws.WriteTyped(conn, ws.EventOnly{Event: ws.EventExhausted})
			return false
		}
		_ = ws.WriteTyped(conn, ws.QuestionResponse{Event: ws.EventQuestion, Question: q})

	case ws.ActionAnswer:
		var p ws.AnswerPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			_ = ws.WriteError(conn, response.ErrInvalidPayload)
			return false
		}
		in, ok := answerInput(p.QuestionID, p.SelectedOptionIDs, p.AnswerText)
		if !ok {
			_ = ws.WriteError(conn, response.ErrInvalidID)
			return false
		}
		if err := h.engine.SubmitAnswer(ctx, sessionID, userID, in); err != nil {
			h.writeErr(conn, log, err)
			return false
		}
		_ = ws.WriteTyped(conn, ws.AnswerSavedResponse{Event: ws.EventAnswerSaved, QuestionID: p.QuestionID})

	case ws.ActionSubmit:
		result, err := h.engine.SubmitExam(ctx, sessionID, userID)
		if err != nil {
			h.writeErr(conn, log, err)
			return false
		}
		log.Info().Float64("percentage", result.Percentage).Msg("Exam submitted over stream")
		_ = ws.WriteTyped(conn, ws.SubmittedResponse{Event: ws.EventSubmitted, Result: result})
		return true

	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = ws.WriteError(conn, response.ErrInvalidPayload)
	}
	return false
}

func (h *WSHandler) writeErr(conn *websocket.Conn, log zerolog.Logger, err error) {
	var de *service.DomainError
	if errors.As(err, &de) {
		_ = ws.WriteError(conn, de.Code)
		return
	}
	log.Error().Err(err).Msg("Stream operation failed")
	_ = ws.WriteError(conn, response.ErrInternal)
}
