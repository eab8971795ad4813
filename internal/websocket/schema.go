package websocket

import (
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/proctor"
	"github.com/stemsi/icas-portal/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSignal        Action = "signal"
	ActionNavigate      Action = "navigate"
	ActionSelect        Action = "select"
	ActionFlag          Action = "flag"
	ActionSubmit        Action = "submit"
	ActionConfirmSubmit Action = "confirm_submit"
	ActionCancelSubmit  Action = "cancel_submit"
	ActionAckViolation  Action = "ack_violation"
	ActionPing          Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SignalRequest forwards a browser environment event.
type SignalRequest struct {
	Action   Action         `json:"action"`
	Signal   proctor.Signal `json:"signal"`
	Location string         `json:"location,omitempty"`
}

// Navigation targets.
const (
	NavigateNext  = "next"
	NavigatePrev  = "prev"
	NavigateIndex = "index"
)

// NavigateRequest moves between questions. Index is used with "index".
type NavigateRequest struct {
	Action Action `json:"action"`
	To     string `json:"to"`
	Index  int    `json:"index"`
}

// SelectRequest records an answer.
type SelectRequest struct {
	Action   Action `json:"action"`
	QID      string `json:"q_id"`
	OptionID string `json:"option_id"`
}

// FlagRequest toggles a review flag. An empty QID flags the current question.
type FlagRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventNotice       Event = "notice"
	EventTick         Event = "tick"
	EventSubmitted    Event = "submitted"
	EventError        Event = "error"
	EventPong         Event = "pong"
	EventHistoryGuard Event = "history_guard"
	EventLeaveGuard   Event = "leave_guard"
)

type StateResponse struct {
	Event Event        `json:"event"`
	State session.View `json:"state"`
}

type NoticeResponse struct {
	Event  Event          `json:"event"`
	Notice session.Notice `json:"notice"`
}

type TickResponse struct {
	Event         Event `json:"event"`
	TimeRemaining int   `json:"timeRemaining"`
}

// SubmittedResponse carries the scored report so the client can render
// results without another request.
type SubmittedResponse struct {
	Event  Event                `json:"event"`
	Status string               `json:"status"`
	Score  int                  `json:"score"`
	Grade  string               `json:"grade"`
	Report *model.ResultsReport `json:"report"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// GuardResponse directs the client to arm or disarm a browser guard.
type GuardResponse struct {
	Event Event `json:"event"`
	Armed bool  `json:"armed"`
}
