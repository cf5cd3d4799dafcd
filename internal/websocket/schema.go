package websocket

import (
	"encoding/json"

	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/response"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionNext   Action = "next"
	ActionStatus Action = "status"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestEnvelope carries the action and its raw payload. The payload is
// decoded once the action is known.
type RequestEnvelope struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AnswerPayload is the payload of an answer action.
type AnswerPayload struct {
	QuestionID        string   `json:"question_id"`
	SelectedOptionIDs []string `json:"selected_option_ids"`
	AnswerText        *string  `json:"answer_text"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventAnswerSaved Event = "answer_saved"
	EventQuestion    Event = "question"
	EventExhausted   Event = "exhausted"
	EventStatus      Event = "status"
	EventSubmitted   Event = "submitted"
	EventError       Event = "error"
	EventPong        Event = "pong"
)

type AnswerSavedResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
}

type QuestionResponse struct {
	Event    Event               `json:"event"`
	Question *model.QuestionView `json:"question"`
}

type StatusResponse struct {
	Event   Event              `json:"event"`
	Session *model.SessionView `json:"session"`
}

type SubmittedResponse struct {
	Event  Event             `json:"event"`
	Result *model.ResultView `json:"result"`
}

type ErrorResponse struct {
	Event   Event            `json:"event"`
	Code    response.ErrCode `json:"code"`
	Message string           `json:"message"`
}

type EventOnly struct {
	Event Event `json:"event"`
}
