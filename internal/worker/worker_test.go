package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	mu       sync.Mutex
	copyErr  error
	execErr  func(args []any) error
	copied   [][]any
	executed []execCall
}

func (db *fakeDB) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.copyErr != nil {
		return 0, db.copyErr
	}
	var n int64
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return n, err
		}
		db.copied = append(db.copied, values)
		n++
	}
	return n, src.Err()
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.execErr != nil {
		if err := db.execErr(args); err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	db.executed = append(db.executed, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) copiedRows() [][]any {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([][]any(nil), db.copied...)
}

// fakePopper hands out items, then reports an empty queue.
type fakePopper struct {
	mu      sync.Mutex
	items   []string
	drained chan struct{}
	once    sync.Once
}

func newFakePopper(items ...string) *fakePopper {
	return &fakePopper{items: items, drained: make(chan struct{})}
}

func (p *fakePopper) BLPop(ctx context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	p.mu.Lock()
	if len(p.items) > 0 {
		item := p.items[0]
		p.items = p.items[1:]
		p.mu.Unlock()
		return redis.NewStringSliceResult([]string{keys[0], item}, nil)
	}
	p.mu.Unlock()

	p.once.Do(func() { close(p.drained) })
	select {
	case <-ctx.Done():
		return redis.NewStringSliceResult(nil, ctx.Err())
	case <-time.After(5 * time.Millisecond):
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
}

func violationJSON(t *testing.T, activity, ts string) string {
	t.Helper()
	raw, err := json.Marshal(model.ViolationEntry{Timestamp: ts, Activity: activity, URL: "http://portal.test/exam/math-2023"})
	require.NoError(t, err)
	return string(raw)
}

func runUntilDrained(t *testing.T, p *fakePopper, start func(context.Context)) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		start(ctx)
	}()

	select {
	case <-p.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("queue was never drained")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestViolationArchiverFlushesOnShutdown(t *testing.T) {
	db := &fakeDB{}
	src := newFakePopper(
		violationJSON(t, "Window focus lost", "2026-03-01T10:00:00.000Z"),
		"{not json",
		violationJSON(t, "Context menu opened", "2026-03-01T10:00:05.000Z"),
	)
	w := NewViolationArchiver(db, src, store.NewMemory(), zerolog.Nop())

	runUntilDrained(t, src, w.Start)

	rows := db.copiedRows()
	require.Len(t, rows, 2, "malformed payloads are discarded")
	assert.Equal(t, "Window focus lost", rows[0][0])
	assert.Equal(t, "Context menu opened", rows[1][0])
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC), rows[1][2])
}

func TestViolationArchiverUnparseableTimestampUsesNow(t *testing.T) {
	w := NewViolationArchiver(&fakeDB{}, newFakePopper(), store.NewMemory(), zerolog.Nop())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	row, err := w.decode(violationJSON(t, "Tab switching detected", "yesterday"))
	require.NoError(t, err)
	assert.Equal(t, fixed, row.recordedAt)
}

func TestViolationArchiverRequeuesFailedRows(t *testing.T) {
	db := &fakeDB{
		copyErr: errors.New("copy failed"),
		execErr: func(args []any) error {
			if args[0] == "Window focus lost" {
				return errors.New("insert failed")
			}
			return nil
		},
	}
	queue := store.NewMemory()
	w := NewViolationArchiver(db, newFakePopper(), queue, zerolog.Nop())

	bad := violationJSON(t, "Window focus lost", "2026-03-01T10:00:00.000Z")
	good := violationJSON(t, "Tab switching detected", "2026-03-01T10:00:01.000Z")
	var batch []violationRow
	for _, raw := range []string{bad, good} {
		row, err := w.decode(raw)
		require.NoError(t, err)
		batch = append(batch, row)
	}

	w.flushSafe(context.Background(), batch)

	assert.Len(t, db.executed, 1)
	requeued := queue.Queued(config.WorkerKey.ArchiveViolationsQueue)
	require.Len(t, requeued, 1)
	assert.Equal(t, bad, string(requeued[0]))
}

func archivedResultJSON(t *testing.T, id string) string {
	t.Helper()
	raw, err := json.Marshal(model.ArchivedResult{
		ID:              id,
		UserID:          "demo-user",
		ExamID:          "science-2023",
		ScorePercentage: 50,
		Grade:           "E",
		CorrectCount:    10,
		TotalQuestions:  20,
		TimeUsed:        600,
		SubmittedAt:     time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		Report:          &model.ResultsReport{ExamID: "science-2023", ScorePercentage: 50},
	})
	require.NoError(t, err)
	return string(raw)
}

func TestResultArchiverBulkUpsert(t *testing.T) {
	db := &fakeDB{}
	id := uuid.New()
	src := newFakePopper(archivedResultJSON(t, id.String()), archivedResultJSON(t, "not-a-uuid"))
	w := NewResultArchiver(db, src, store.NewMemory(), zerolog.Nop())

	runUntilDrained(t, src, w.Start)

	require.Len(t, db.executed, 1)
	call := db.executed[0]
	assert.True(t, strings.Contains(call.sql, "UNNEST"))
	require.Len(t, call.args, 11)
	assert.Equal(t, []uuid.UUID{id}, call.args[0])
	assert.Equal(t, []int{50}, call.args[3])
	assert.Equal(t, []string{"E"}, call.args[4])
}

func TestResultArchiverFallbackRequeues(t *testing.T) {
	db := &fakeDB{execErr: func([]any) error { return errors.New("database down") }}
	queue := store.NewMemory()
	w := NewResultArchiver(db, newFakePopper(), queue, zerolog.Nop())

	raw := archivedResultJSON(t, uuid.NewString())
	row, err := decodeResult(raw)
	require.NoError(t, err)

	w.flushSafe(context.Background(), []resultRow{row})

	requeued := queue.Queued(config.WorkerKey.ArchiveResultsQueue)
	require.Len(t, requeued, 1)
	assert.Equal(t, raw, string(requeued[0]))
}

func TestDecodeResultRejectsBadID(t *testing.T) {
	_, err := decodeResult(archivedResultJSON(t, "nope"))
	assert.Error(t, err)
}
