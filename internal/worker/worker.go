// Package worker drains the Redis archive queues into PostgreSQL.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis

	shutdownFlushTimeout = 5 * time.Second
)

// redisErrorBackoff is how long a worker sleeps after a Redis failure.
var redisErrorBackoff = 3 * time.Second

// Popper is the blocking list read the workers poll. *redis.Client
// satisfies it.
type Popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// ArchiveDB is the subset of *pgxpool.Pool the workers write through.
type ArchiveDB interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// pop waits up to PollTimeout for one payload. ok is false on timeout,
// shutdown or a Redis error, after which the caller re-checks its flush
// conditions.
func pop(ctx context.Context, src Popper, queue string, log zerolog.Logger) (payload string, ok bool) {
	result, err := src.BLPop(ctx, PollTimeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return "", false
		}
		log.Error().Err(err).Dur("backoff", redisErrorBackoff).Msg("Redis connection error")
		select {
		case <-ctx.Done():
		case <-time.After(redisErrorBackoff):
		}
		return "", false
	}
	if len(result) < 2 {
		return "", false
	}
	return result[1], true
}
