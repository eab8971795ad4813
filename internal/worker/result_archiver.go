package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/store"
)

// ResultArchiver upserts scored attempts from the archive queue into the
// exam_results table.
type ResultArchiver struct {
	db      ArchiveDB
	src     Popper
	requeue store.Queue
	log     zerolog.Logger
}

// NewResultArchiver creates a ResultArchiver.
func NewResultArchiver(db ArchiveDB, src Popper, requeue store.Queue, log zerolog.Logger) *ResultArchiver {
	return &ResultArchiver{
		db:      db,
		src:     src,
		requeue: requeue,
		log:     log.With().Str("component", "result_archiver").Logger(),
	}
}

type resultRow struct {
	id     uuid.UUID
	result model.ArchivedResult
	report string
	raw    string
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start polls until ctx is cancelled, then flushes what it holds.
func (w *ResultArchiver) Start(ctx context.Context) {
	w.log.Info().Msg("ResultArchiver started")

	batch := make([]resultRow, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 && (len(batch) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return
		default:
		}

		raw, ok := pop(ctx, w.src, config.WorkerKey.ArchiveResultsQueue, w.log)
		if !ok {
			continue
		}

		row, err := decodeResult(raw)
		if err != nil {
			w.log.Error().Err(err).Msg("Discarding invalid result payload")
			continue
		}
		batch = append(batch, row)
	}
}

func decodeResult(raw string) (resultRow, error) {
	var r model.ArchivedResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return resultRow{}, err
	}
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return resultRow{}, fmt.Errorf("result id: %w", err)
	}
	report, err := json.Marshal(r.Report)
	if err != nil {
		return resultRow{}, fmt.Errorf("result report: %w", err)
	}
	return resultRow{id: id, result: r, report: string(report), raw: raw}, nil
}

// ----------------------------------------------------------------
// Batch upsert wrapper
// ----------------------------------------------------------------

func (w *ResultArchiver) flushSafe(ctx context.Context, batch []resultRow) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk result upsert failed, using fallback")

		failed := make([]string, 0)
		for _, r := range batch {
			if err := w.persistSingle(ctx, r); err != nil {
				w.log.Error().Err(err).Str("result_id", r.result.ID).Msg("persistSingle failed, requeueing")
				failed = append(failed, r.raw)
			}
		}
		if len(failed) > 0 {
			requeue(ctx, w.requeue, config.WorkerKey.ArchiveResultsQueue, failed, w.log)
		}
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Results archived")
}

// ----------------------------------------------------------------
// BULK PostgreSQL INSERT using UNNEST
// ----------------------------------------------------------------

const upsertResultsQuery = `
	INSERT INTO exam_results (
		id, user_id, exam_id, score_percentage, grade, correct_count,
		total_questions, time_used, forced, submitted_at, report
	)
	SELECT * FROM UNNEST(
		$1::uuid[],
		$2::text[],
		$3::text[],
		$4::int[],
		$5::text[],
		$6::int[],
		$7::int[],
		$8::int[],
		$9::bool[],
		$10::timestamptz[],
		$11::jsonb[]
	)
	ON CONFLICT (id) DO NOTHING
`

func (w *ResultArchiver) bulkUpsert(ctx context.Context, batch []resultRow) error {
	n := len(batch)
	ids := make([]uuid.UUID, 0, n)
	users := make([]string, 0, n)
	exams := make([]string, 0, n)
	scores := make([]int, 0, n)
	grades := make([]string, 0, n)
	correct := make([]int, 0, n)
	totals := make([]int, 0, n)
	timeUsed := make([]int, 0, n)
	forced := make([]bool, 0, n)
	submittedAt := make([]time.Time, 0, n)
	reports := make([]string, 0, n)

	for _, r := range batch {
		ids = append(ids, r.id)
		users = append(users, r.result.UserID)
		exams = append(exams, r.result.ExamID)
		scores = append(scores, r.result.ScorePercentage)
		grades = append(grades, r.result.Grade)
		correct = append(correct, r.result.CorrectCount)
		totals = append(totals, r.result.TotalQuestions)
		timeUsed = append(timeUsed, r.result.TimeUsed)
		forced = append(forced, r.result.Forced)
		submittedAt = append(submittedAt, r.result.SubmittedAt)
		reports = append(reports, r.report)
	}

	_, err := w.db.Exec(ctx, upsertResultsQuery,
		ids, users, exams, scores, grades, correct, totals, timeUsed, forced, submittedAt, reports,
	)
	return err
}

// ----------------------------------------------------------------
// FALLBACK single insert
// ----------------------------------------------------------------

func (w *ResultArchiver) persistSingle(ctx context.Context, r resultRow) error {
	_, err := w.db.Exec(ctx,
		`INSERT INTO exam_results (
			id, user_id, exam_id, score_percentage, grade, correct_count,
			total_questions, time_used, forced, submitted_at, report
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
		ON CONFLICT (id) DO NOTHING`,
		r.id, r.result.UserID, r.result.ExamID, r.result.ScorePercentage, r.result.Grade,
		r.result.CorrectCount, r.result.TotalQuestions, r.result.TimeUsed, r.result.Forced,
		r.result.SubmittedAt, r.report,
	)
	return err
}
