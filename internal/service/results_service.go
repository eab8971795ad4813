package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/provider"
	"github.com/stemsi/icas-portal/internal/scoring"
	"github.com/stemsi/icas-portal/internal/store"
)

// ErrResultsUnavailable is returned when no results exist for an exam.
var ErrResultsUnavailable = errors.New("results unavailable")

// ResultsService scores submissions and keeps the latest report per exam.
type ResultsService struct {
	provider provider.Provider
	store    store.Store
	queue    store.Queue
	log      zerolog.Logger
	now      func() time.Time
}

// NewResultsService creates a ResultsService. A nil queue disables archiving.
func NewResultsService(p provider.Provider, s store.Store, q store.Queue, log zerolog.Logger) *ResultsService {
	return &ResultsService{
		provider: p,
		store:    s,
		queue:    q,
		log:      log.With().Str("component", "results_service").Logger(),
		now:      time.Now,
	}
}

// Compute scores sub, stores the report under exam_results_<id> and queues
// it for archiving.
func (s *ResultsService) Compute(ctx context.Context, userID string, sub model.Submission) (*model.ResultsReport, error) {
	exam, err := s.provider.GetExamData(ctx, sub.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load exam %s: %w", sub.ExamID, err)
	}

	report, err := scoring.ComputeResults(exam, sub.Answers, sub.TimeUsed)
	if err != nil {
		return nil, fmt.Errorf("score exam %s: %w", sub.ExamID, err)
	}

	if err := store.SetJSON(ctx, s.store, config.StorageKey.ExamResultsKey(sub.ExamID), report); err != nil {
		return nil, fmt.Errorf("store results: %w", err)
	}

	s.log.Info().
		Str("user_id", userID).
		Str("exam_id", sub.ExamID).
		Int("score", report.ScorePercentage).
		Str("grade", report.Grade).
		Msg("Exam scored")

	s.archive(ctx, userID, sub, report)
	return report, nil
}

func (s *ResultsService) archive(ctx context.Context, userID string, sub model.Submission, report *model.ResultsReport) {
	if s.queue == nil {
		return
	}
	row := model.ArchivedResult{
		ID:              uuid.New().String(),
		UserID:          userID,
		ExamID:          sub.ExamID,
		ScorePercentage: report.ScorePercentage,
		Grade:           report.Grade,
		CorrectCount:    report.CorrectCount,
		TotalQuestions:  report.TotalQuestions,
		TimeUsed:        sub.TimeUsed,
		Forced:          sub.Forced,
		SubmittedAt:     s.now().UTC(),
		Report:          report,
	}
	payload, err := json.Marshal(row)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode result for archive")
		return
	}
	if err := s.queue.Enqueue(ctx, config.WorkerKey.ArchiveResultsQueue, payload); err != nil {
		s.log.Error().Err(err).Str("exam_id", sub.ExamID).Msg("Failed to queue result for archive")
	}
}

// Cached returns the last report stored for examID.
func (s *ResultsService) Cached(ctx context.Context, examID string) (*model.ResultsReport, error) {
	var report model.ResultsReport
	err := store.GetJSON(ctx, s.store, config.StorageKey.ExamResultsKey(examID), &report)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Str("exam_id", examID).Msg("Discarding unreadable results")
		}
		return nil, ErrResultsUnavailable
	}
	return &report, nil
}

// Recommendations derives follow-up actions from report.
func (s *ResultsService) Recommendations(report *model.ResultsReport) []model.Recommendation {
	return scoring.Recommendations(report)
}
