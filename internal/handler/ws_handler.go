package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/middleware"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/response"
	"github.com/stemsi/icas-portal/internal/service"
	"github.com/stemsi/icas-portal/internal/session"
	"github.com/stemsi/icas-portal/internal/validator"
	ws "github.com/stemsi/icas-portal/internal/websocket"
)

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

// WSHandler runs a live exam attempt over a WebSocket.
type WSHandler struct {
	sessions *service.ExamSessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream?token=&page=
// Upgrades to WebSocket and drives one attempt: browser signals and student
// input come in, state, notices and ticks go out.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID := c.Param("exam_id")
	if err := validator.ExamID(examID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_id", claims.UserID).
		Str("exam_id", examID).
		Logger()

	// The attempt outlives the request context only until this handler
	// returns.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := ws.NewStream(conn, c.Query("page"), wsLog)
	go stream.Run(ctx)
	defer func() {
		stream.Close()
		stream.Wait()
	}()

	m, err := h.sessions.Open(ctx, service.SessionOptions{
		UserID:      claims.UserID,
		ExamID:      examID,
		Environment: stream,
		Notifier:    stream,
		OnSubmitted: func(report *model.ResultsReport, err error) {
			if err != nil {
				stream.Send(ws.NewError("scoring failed"))
				return
			}
			stream.Send(ws.SubmittedResponse{
				Event:  ws.EventSubmitted,
				Status: "completed",
				Score:  report.ScorePercentage,
				Grade:  report.Grade,
				Report: report,
			})
		},
	})
	if err != nil {
		wsLog.Warn().Err(err).Msg("Attempt failed to open")
		stream.Send(ws.NewError(errorText(err)))
		stream.Send(stateOf(m))
		return
	}
	defer h.sessions.Close(context.Background(), claims.UserID, examID, m)

	wsLog.Info().Msg("Student connected")
	stream.Send(stateOf(m))
	ws.KeepAlive(conn)

	for {
		data, err := ws.ReadRaw(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			stream.Send(ws.NewError("invalid payload"))
			continue
		}

		if env.Action == ws.ActionPing {
			stream.Send(ws.PongResponse{Event: ws.EventPong})
			continue
		}

		if err := h.dispatch(ctx, stream, m, env.Action, data); err != nil {
			if errors.Is(err, errUnknownAction) {
				wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			}
			stream.Send(ws.NewError(errorText(err)))
		}
		stream.Send(stateOf(m))
	}
}

var (
	errUnknownAction = errors.New("unknown action")
	errBadPayload    = errors.New("invalid payload")
)

func (h *WSHandler) dispatch(ctx context.Context, stream *ws.Stream, m *session.Machine, action ws.Action, data []byte) error {
	switch action {
	case ws.ActionSignal:
		var req ws.SignalRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return errBadPayload
		}
		stream.SetLocation(req.Location)
		sig := req.Signal
		stream.Dispatch(&sig)
		return nil

	case ws.ActionNavigate:
		var req ws.NavigateRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return errBadPayload
		}
		switch req.To {
		case ws.NavigateNext:
			return m.Next()
		case ws.NavigatePrev:
			return m.Prev()
		case ws.NavigateIndex:
			return m.GoTo(req.Index)
		}
		return errBadPayload

	case ws.ActionSelect:
		var req ws.SelectRequest
		if err := json.Unmarshal(data, &req); err != nil || req.QID == "" || req.OptionID == "" {
			return errBadPayload
		}
		return m.SelectAnswer(req.QID, req.OptionID)

	case ws.ActionFlag:
		var req ws.FlagRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return errBadPayload
		}
		if req.QID == "" {
			return m.ToggleFlagCurrent()
		}
		return m.ToggleFlag(req.QID)

	case ws.ActionSubmit:
		_, err := m.RequestSubmit(ctx)
		return err

	case ws.ActionConfirmSubmit:
		return m.ConfirmSubmit(ctx)

	case ws.ActionCancelSubmit:
		return m.CancelSubmit()

	case ws.ActionAckViolation:
		return m.AcknowledgeViolation()
	}
	return errUnknownAction
}

func stateOf(m *session.Machine) ws.StateResponse {
	return ws.StateResponse{Event: ws.EventState, State: m.Snapshot()}
}

// errorText maps attempt errors onto the short strings the client shows.
func errorText(err error) string {
	switch {
	case errors.Is(err, session.ErrLoadFailed):
		return "exam could not be loaded"
	case errors.Is(err, session.ErrAwaitingAcknowledgement):
		return "acknowledge the warning to continue"
	case errors.Is(err, session.ErrNotInProgress), errors.Is(err, session.ErrClosed):
		return "exam is not in progress"
	case errors.Is(err, session.ErrUnknownQuestion):
		return "unknown question"
	case errors.Is(err, session.ErrUnknownOption):
		return "unknown option"
	case errors.Is(err, session.ErrNoPendingSubmit):
		return "submit the exam first"
	case errors.Is(err, errUnknownAction):
		return "unknown action"
	}
	return "invalid payload"
}
