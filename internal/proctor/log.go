package proctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/store"
)

// TimestampFormat matches the ISO-8601 millisecond timestamps of the log.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

const recentWindow = 24 * time.Hour

// Log is the append-only violation log stored under cheating_logs.
// It lives independently of any attempt and is only emptied by Clear.
type Log struct {
	store store.Store
	queue store.Queue
	log   zerolog.Logger
	now   func() time.Time
	mu    sync.Mutex
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithArchive publishes every appended entry to the violations archive queue.
func WithArchive(q store.Queue) LogOption {
	return func(l *Log) { l.queue = q }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LogOption {
	return func(l *Log) { l.now = now }
}

// NewLog creates a violation log over s.
func NewLog(s store.Store, log zerolog.Logger, opts ...LogOption) *Log {
	l := &Log{
		store: s,
		log:   log.With().Str("component", "violation_log").Logger(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records one violation. Appends are serialised so entries keep the
// order in which they were detected.
func (l *Log) Append(ctx context.Context, activity, url string) (model.ViolationEntry, error) {
	// The timestamp is taken under the lock so append order and time order
	// agree.
	l.mu.Lock()
	entry := model.ViolationEntry{
		Timestamp: l.now().UTC().Format(TimestampFormat),
		Activity:  activity,
		URL:       url,
	}
	entries := l.read(ctx)
	entries = append(entries, entry)
	err := store.SetJSON(ctx, l.store, config.StorageKey.CheatingLogsKey(), entries)
	l.mu.Unlock()

	l.log.Warn().
		Str("timestamp", entry.Timestamp).
		Str("activity", activity).
		Str("url", url).
		Msg("[CHEATING ATTEMPT]")

	if err != nil {
		return entry, fmt.Errorf("append violation: %w", err)
	}

	if l.queue != nil {
		payload, _ := json.Marshal(entry)
		if qerr := l.queue.Enqueue(ctx, config.WorkerKey.ArchiveViolationsQueue, payload); qerr != nil {
			l.log.Error().Err(qerr).Msg("Failed to queue violation for archive")
		}
	}
	return entry, nil
}

// Entries returns the log in append order. Missing or malformed logs read
// as empty.
func (l *Log) Entries(ctx context.Context) []model.ViolationEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(ctx)
}

// Stats summarises the log; recent means within the last 24 hours.
func (l *Log) Stats(ctx context.Context) model.ViolationStats {
	entries := l.Entries(ctx)
	now := l.now()

	recent := 0
	for _, e := range entries {
		ts, err := time.Parse(TimestampFormat, e.Timestamp)
		if err != nil {
			continue
		}
		if now.Sub(ts) < recentWindow {
			recent++
		}
	}

	return model.ViolationStats{
		TotalAttempts:  len(entries),
		RecentAttempts: recent,
		HasCheated:     len(entries) > 0,
	}
}

// Clear removes the whole log.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Delete(ctx, config.StorageKey.CheatingLogsKey()); err != nil {
		return fmt.Errorf("clear violations: %w", err)
	}
	l.log.Info().Msg("Violation log cleared")
	return nil
}

// read must be called with mu held.
func (l *Log) read(ctx context.Context) []model.ViolationEntry {
	var entries []model.ViolationEntry
	err := store.GetJSON(ctx, l.store, config.StorageKey.CheatingLogsKey(), &entries)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.log.Warn().Err(err).Msg("Discarding unreadable violation log")
		}
		return nil
	}
	return entries
}
