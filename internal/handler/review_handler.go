package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/response"
	"github.com/stemsi/icas-portal/internal/service"
	"github.com/stemsi/icas-portal/internal/validator"
)

const (
	refreshInterval   = 5 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 2 * time.Second // a slow store must not stall the SSE loop
)

// ReviewHandler lets a reviewer read, follow and clear the violation log.
type ReviewHandler struct {
	violations *service.ViolationService
	sessions   *service.ExamSessionService
	log        zerolog.Logger
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(
	violations *service.ViolationService,
	sessions *service.ExamSessionService,
	log zerolog.Logger,
) *ReviewHandler {
	return &ReviewHandler{
		violations: violations,
		sessions:   sessions,
		log:        log.With().Str("component", "review_handler").Logger(),
	}
}

// ListViolations godoc
// GET /api/v1/review/violations
func (h *ReviewHandler) ListViolations(c *gin.Context) {
	ctx := c.Request.Context()
	response.Success(c, http.StatusOK, gin.H{
		"stats":   h.violations.Stats(ctx),
		"entries": h.violations.Entries(ctx),
	})
}

// ClearViolations godoc
// POST /api/v1/review/violations/clear
// The body passphrase is required in addition to the header.
func (h *ReviewHandler) ClearViolations(c *gin.Context) {
	var req model.ClearViolationsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := h.violations.Clear(c.Request.Context(), req.Passphrase)
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, gin.H{"cleared": true})
	case errors.Is(err, service.ErrReviewerNotConfigured):
		response.Fail(c, http.StatusForbidden, response.ErrReviewerDisabled)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidPassphrase)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// FollowViolationsSSE godoc
// GET /api/v1/review/violations/stream
// Streams the log statistics, emitting a refresh only when they change.
func (h *ReviewHandler) FollowViolationsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	last := h.sendSnapshot(c, reqCtx)

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Msg("Reviewer attached to violation feed")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Reviewer detached from violation feed")
			return

		case <-refreshTicker.C:
			last = h.sendRefresh(c, reqCtx, last)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *ReviewHandler) sendSnapshot(c *gin.Context, parentCtx context.Context) model.ViolationStats {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	stats := h.violations.Stats(ctx)
	c.SSEvent("message", gin.H{
		"type":          "snapshot",
		"stats":         stats,
		"entries":       h.violations.Entries(ctx),
		"live_attempts": h.sessions.Live(),
	})
	c.Writer.Flush()
	return stats
}

func (h *ReviewHandler) sendRefresh(c *gin.Context, parentCtx context.Context, last model.ViolationStats) model.ViolationStats {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	stats := h.violations.Stats(ctx)
	if stats == last {
		return last
	}
	c.SSEvent("message", gin.H{
		"type":          "refresh",
		"stats":         stats,
		"live_attempts": h.sessions.Live(),
	})
	c.Writer.Flush()
	return stats
}
