package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/database"
	"github.com/stemsi/icas-portal/internal/handler"
	"github.com/stemsi/icas-portal/internal/logger"
	"github.com/stemsi/icas-portal/internal/proctor"
	"github.com/stemsi/icas-portal/internal/provider"
	"github.com/stemsi/icas-portal/internal/router"
	"github.com/stemsi/icas-portal/internal/service"
	"github.com/stemsi/icas-portal/internal/store"
	"github.com/stemsi/icas-portal/internal/validator"
	"github.com/stemsi/icas-portal/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Bool("archive", cfg.ArchiveEnabled).
		Msg("Starting ICAS Portal")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Durable Store ─────────────────────────────────────────────────
	var (
		rdb        *redis.Client
		redisStore *store.Redis
		durable    store.Store
		err        error
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn().Msg("Using in-memory store; progress and logs are lost on restart")
		durable = store.NewMemory()
	default:
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		redisStore = store.NewRedis(rdb)
		durable = redisStore
	}

	// ─── Connect to PostgreSQL (archive only) ──────────────────────────
	var pool *pgxpool.Pool
	if cfg.ArchiveEnabled {
		if redisStore == nil {
			log.Fatal().Msg("ARCHIVE_ENABLED requires STORE_DRIVER=redis")
		}
		pool, err = database.NewArchivePool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
	}

	// ─── Proctoring ────────────────────────────────────────────────────
	var logOpts []proctor.LogOption
	var archiveQueue store.Queue
	if cfg.ArchiveEnabled {
		archiveQueue = redisStore
		logOpts = append(logOpts, proctor.WithArchive(archiveQueue))
	}
	violationLog := proctor.NewLog(durable, log, logOpts...)
	monitor := proctor.NewMonitor(violationLog, log)

	// ─── Initialize Services ──────────────────────────────────────────
	exams := provider.NewMock()

	app := service.NewAppState(cfg, durable, exams, log)
	if err := app.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore app state")
	}

	violationService := service.NewViolationService(violationLog, cfg.ReviewerPasswordHash, log)
	resultsService := service.NewResultsService(exams, durable, archiveQueue, log)
	dashboardService := service.NewDashboardService(exams, violationService)
	sessionService := service.NewExamSessionService(cfg, exams, durable, monitor, resultsService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(app),
		Dashboard:     handler.NewDashboardHandler(app, dashboardService),
		StudentPortal: handler.NewStudentPortalHandler(exams, resultsService, violationService),
		Review:        handler.NewReviewHandler(violationService, sessionService, log),
		WS:            handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:        handler.NewSystemHandler(rdb, pool, sessionService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	if cfg.ArchiveEnabled {
		violationArchiver := worker.NewViolationArchiver(pool, rdb, redisStore, log)
		resultArchiver := worker.NewResultArchiver(pool, rdb, redisStore, log)

		workers.Add(2)
		go func() {
			defer workers.Done()
			violationArchiver.Start(workerCtx)
		}()
		go func() {
			defer workers.Done()
			resultArchiver.Start(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(app, violationService, handlers, cfg, rdb, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	serverLog := logger.Component(log, "http_server")
	go func() {
		serverLog.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverLog.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked
	// WebSocket connections are not waited for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serverLog.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Final save for every live attempt.
	sessionService.Shutdown(shutdownCtx)

	// 3. Stop background workers and wait for their buffers to flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
