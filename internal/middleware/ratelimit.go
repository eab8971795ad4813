package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/response"
)

// RateLimiter is a fixed-window per-IP limiter. With a Redis client the
// windows are shared by every server instance; without one they are kept
// in process.
type RateLimiter struct {
	rdb      *redis.Client
	name     string
	rate     int
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// NewRateLimiter allows rate requests per interval for each client IP.
// name keeps the Redis keys of different limiters apart.
func NewRateLimiter(rdb *redis.Client, name string, rate int, interval time.Duration, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:      rdb,
		name:     name,
		rate:     rate,
		interval: interval,
		log:      log.With().Str("component", "rate_limiter").Logger(),
		windows:  make(map[string]*window),
	}
}

// Middleware returns a Gin middleware that rate-limits requests by IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := rl.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			// Redis errors fail open.
			rl.log.Warn().Err(err).Msg("Rate limiter unavailable")
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(rl.interval.Seconds())))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

// Allow counts one request for key and reports whether it is within limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if rl.rdb == nil {
		return rl.allowLocal(key, time.Now()), nil
	}

	windowID := time.Now().UnixNano() / int64(rl.interval)
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", rl.name, key, windowID)

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.interval)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("rate limit %s: %w", rl.name, err)
	}
	return incr.Val() <= int64(rl.rate), nil
}

func (rl *RateLimiter) allowLocal(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.interval {
		w = &window{start: now}
		rl.windows[key] = w
		rl.sweep(now)
	}
	w.count++
	return w.count <= rl.rate
}

// sweep drops expired windows. Called with mu held.
func (rl *RateLimiter) sweep(now time.Time) {
	for k, w := range rl.windows {
		if now.Sub(w.start) >= 3*rl.interval {
			delete(rl.windows, k)
		}
	}
}
