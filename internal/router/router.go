package router

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/handler"
	"github.com/stemsi/icas-portal/internal/middleware"
	"github.com/stemsi/icas-portal/internal/response"
	"github.com/stemsi/icas-portal/internal/service"
)

// dashboardMaxAge is how long, in seconds, a browser may reuse the dashboard.
const dashboardMaxAge = 30

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	Dashboard     *handler.DashboardHandler
	StudentPortal *handler.StudentPortalHandler
	Review        *handler.ReviewHandler
	WS            *handler.WSHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// rdb may be nil, in which case rate limits are kept per process.
func SetupRouter(
	app *service.AppState,
	violations *service.ViolationService,
	handlers *Handlers,
	cfg *config.Config,
	rdb *redis.Client,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", middleware.ReviewerHeader}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(response.AccessLog(log))

	// Streams flush as they go and are never compressed.
	brotliConfig := middleware.DefaultBrotliConfig
	brotliConfig.Skipper = func(c *gin.Context) bool {
		return strings.HasSuffix(c.Request.URL.Path, "/stream")
	}
	router.Use(middleware.BrotliWithConfig(brotliConfig))

	router.GET("/health", handlers.System.Health)

	// Rate limiters, keyed by client IP.
	authLimiter := middleware.NewRateLimiter(rdb, "auth", 30, time.Minute, log)
	reviewLimiter := middleware.NewRateLimiter(rdb, "review", 10, time.Minute, log)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/demo-login", handlers.Auth.DemoLogin)

		// Authenticated profile routes
		auth.POST("/logout", middleware.RequireStudentJWT(app), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireStudentJWT(app), handlers.Auth.Me)
	}

	// ─── 2. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(app))
	{
		studentAPI.GET("/dashboard", middleware.CacheControl(dashboardMaxAge), handlers.Dashboard.GetDashboard)
		studentAPI.GET("/exams/:exam_id/paper", middleware.NoStore(), handlers.StudentPortal.GetExamPaper)
		studentAPI.GET("/exams/:exam_id/results", middleware.NoStore(), handlers.StudentPortal.GetExamResults)
		studentAPI.GET("/violations/stats", handlers.StudentPortal.GetViolationStats)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(app))
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.ExamWebSocketStream)
	}

	// ─── 4. Review Group (Passphrase, Rate Limited) ────────────────────
	review := router.Group("/api/v1/review")
	review.Use(reviewLimiter.Middleware(), middleware.RequireReviewer(violations), middleware.NoStore())
	{
		review.GET("/violations", handlers.Review.ListViolations)
		review.GET("/violations/stream", handlers.Review.FollowViolationsSSE)
		review.POST("/violations/clear", handlers.Review.ClearViolations)
	}

	return router
}
