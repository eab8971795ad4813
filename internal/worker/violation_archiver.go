package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/proctor"
	"github.com/stemsi/icas-portal/internal/store"
)

// ViolationArchiver copies violation log entries from the archive queue
// into the violation_logs table.
type ViolationArchiver struct {
	db      ArchiveDB
	src     Popper
	requeue store.Queue
	log     zerolog.Logger
	now     func() time.Time
}

// NewViolationArchiver creates a ViolationArchiver. Rows that cannot be
// written are pushed back through requeue.
func NewViolationArchiver(db ArchiveDB, src Popper, requeue store.Queue, log zerolog.Logger) *ViolationArchiver {
	return &ViolationArchiver{
		db:      db,
		src:     src,
		requeue: requeue,
		log:     log.With().Str("component", "violation_archiver").Logger(),
		now:     time.Now,
	}
}

type violationRow struct {
	entry      model.ViolationEntry
	recordedAt time.Time
	raw        string
}

// Start polls until ctx is cancelled, then flushes what it holds.
func (w *ViolationArchiver) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationArchiver started")

	buffer := make([]violationRow, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		raw, ok := pop(ctx, w.src, config.WorkerKey.ArchiveViolationsQueue, w.log)
		if !ok {
			continue
		}

		row, err := w.decode(raw)
		if err != nil {
			// Malformed JSON can never succeed. Log and discard.
			w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed violation")
			continue
		}
		buffer = append(buffer, row)
	}
}

func (w *ViolationArchiver) decode(raw string) (violationRow, error) {
	var entry model.ViolationEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return violationRow{}, err
	}
	recordedAt, err := time.Parse(proctor.TimestampFormat, entry.Timestamp)
	if err != nil {
		recordedAt = w.now()
	}
	return violationRow{entry: entry, recordedAt: recordedAt.UTC(), raw: raw}, nil
}

// flushSafe attempts a bulk copy, then row-by-row inserts, then requeue.
func (w *ViolationArchiver) flushSafe(ctx context.Context, batch []violationRow) {
	if len(batch) == 0 {
		return
	}
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk copy failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Violations archived")
}

func (w *ViolationArchiver) bulkInsert(ctx context.Context, batch []violationRow) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, r := range batch {
		rows = append(rows, []interface{}{r.entry.Activity, r.entry.URL, r.recordedAt})
	}

	_, err := w.db.CopyFrom(
		ctx,
		pgx.Identifier{"violation_logs"},
		[]string{"activity", "url", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ViolationArchiver) fallbackInsert(ctx context.Context, batch []violationRow) {
	failed := make([]string, 0)
	for _, r := range batch {
		_, err := w.db.Exec(ctx,
			`INSERT INTO violation_logs (activity, url, recorded_at) VALUES ($1, $2, $3)`,
			r.entry.Activity, r.entry.URL, r.recordedAt,
		)
		if err != nil {
			w.log.Error().Err(err).Str("activity", r.entry.Activity).Msg("Insert failed, requeueing")
			failed = append(failed, r.raw)
		}
	}
	if len(failed) > 0 {
		requeue(ctx, w.requeue, config.WorkerKey.ArchiveViolationsQueue, failed, w.log)
	}
}

func (w *ViolationArchiver) shutdown(buffer []violationRow) {
	w.log.Info().Int("pending", len(buffer)).Msg("Worker stopping, flushing remaining buffer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	w.flushSafe(shutdownCtx, buffer)
}

// requeue pushes raw payloads back onto queue for a later attempt.
func requeue(ctx context.Context, q store.Queue, queue string, payloads []string, log zerolog.Logger) {
	for i, p := range payloads {
		if err := q.Enqueue(ctx, queue, []byte(p)); err != nil {
			log.Error().Err(err).Int("lost", len(payloads)-i).Msg("CRITICAL: Failed to requeue items. Data loss occurred.")
			return
		}
	}
	log.Info().Int("count", len(payloads)).Msg("Requeued failed items")
}
