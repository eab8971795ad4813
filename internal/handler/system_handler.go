package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/response"
	"github.com/stemsi/icas-portal/internal/service"
)

const healthTimeout = 2 * time.Second

// SystemHandler reports service health and Go runtime metrics.
type SystemHandler struct {
	rdb       *redis.Client
	db        *pgxpool.Pool
	sessions  *service.ExamSessionService
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a SystemHandler. rdb and db may be nil when the
// memory store is used or archiving is off.
func NewSystemHandler(rdb *redis.Client, db *pgxpool.Pool, sessions *service.ExamSessionService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		db:        db,
		sessions:  sessions,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type dependencyStatus struct {
	Redis    string `json:"redis"`
	Postgres string `json:"postgres"`
}

type healthReport struct {
	Status       string           `json:"status"`
	Uptime       string           `json:"uptime"`
	Dependencies dependencyStatus `json:"dependencies"`
	LiveAttempts int              `json:"live_attempts"`

	// Archive queues
	QueueViolations int64 `json:"queue_violations"`
	QueueResults    int64 `json:"queue_results"`

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
}

// Health godoc
// GET /health
// Returns 503 when a configured dependency is unreachable.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:       "ok",
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Dependencies: dependencyStatus{Redis: "disabled", Postgres: "disabled"},
		LiveAttempts: h.sessions.Live(),
		Goroutines:   runtime.NumGoroutine(),
		GoVersion:    runtime.Version(),
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	report.HeapAlloc = mem.HeapAlloc
	report.HeapSys = mem.HeapSys
	report.NumGC = mem.NumGC

	if h.rdb != nil {
		report.Dependencies.Redis = "up"
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			h.log.Warn().Err(err).Msg("Redis health check failed")
			report.Dependencies.Redis = "down"
			report.Status = "degraded"
		} else {
			pipe := h.rdb.Pipeline()
			violations := pipe.LLen(ctx, config.WorkerKey.ArchiveViolationsQueue)
			results := pipe.LLen(ctx, config.WorkerKey.ArchiveResultsQueue)
			if _, err := pipe.Exec(ctx); err == nil {
				report.QueueViolations = violations.Val()
				report.QueueResults = results.Val()
			}
		}
	}

	if h.db != nil {
		report.Dependencies.Postgres = "up"
		if err := h.db.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Msg("PostgreSQL health check failed")
			report.Dependencies.Postgres = "down"
			report.Status = "degraded"
		}
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, report)
}
