package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/proctor"
	"github.com/stemsi/icas-portal/internal/provider"
	"github.com/stemsi/icas-portal/internal/session"
	"github.com/stemsi/icas-portal/internal/store"
)

// SubmittedFunc is called once an attempt has been scored. err is set when
// scoring failed.
type SubmittedFunc func(report *model.ResultsReport, err error)

// SessionOptions carries the per-connection collaborators of one attempt.
type SessionOptions struct {
	UserID      string
	ExamID      string
	Environment proctor.Environment
	Notifier    session.Notifier
	OnSubmitted SubmittedFunc
}

// ExamSessionService keeps the live attempt machines, one per
// (user, exam). Opening an attempt that is already live replaces it.
type ExamSessionService struct {
	cfg      *config.Config
	provider provider.Provider
	store    store.Store
	monitor  *proctor.Monitor
	results  *ResultsService
	log      zerolog.Logger

	mu   sync.Mutex
	live map[string]*session.Machine
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	cfg *config.Config,
	p provider.Provider,
	s store.Store,
	monitor *proctor.Monitor,
	results *ResultsService,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		cfg:      cfg,
		provider: p,
		store:    s,
		monitor:  monitor,
		results:  results,
		log:      log.With().Str("component", "exam_session_service").Logger(),
		live:     make(map[string]*session.Machine),
	}
}

func sessionKey(userID, examID string) string {
	return userID + ":" + examID
}

// Open loads and starts an attempt. ctx bounds the attempt's background
// tasks; Close must be called when the connection ends.
func (s *ExamSessionService) Open(ctx context.Context, opts SessionOptions) (*session.Machine, error) {
	m := session.New(session.Deps{
		Provider:            s.provider,
		Store:               s.store,
		Monitor:             s.monitor,
		Environment:         opts.Environment,
		Notifier:            opts.Notifier,
		OnSubmit:            s.submitter(opts),
		Logger:              s.log.With().Str("user_id", opts.UserID).Logger(),
		AutosaveInterval:    s.cfg.AutosaveInterval,
		EscalationThreshold: s.cfg.EscalationThreshold,
	})

	key := sessionKey(opts.UserID, opts.ExamID)
	s.mu.Lock()
	previous := s.live[key]
	delete(s.live, key)
	s.mu.Unlock()

	// The previous connection's final save must land before the new
	// attempt reads the snapshot.
	if previous != nil {
		s.log.Info().Str("user_id", opts.UserID).Str("exam_id", opts.ExamID).Msg("Replacing live attempt")
		previous.Teardown(ctx)
	}

	if err := m.Load(ctx, opts.ExamID); err != nil {
		return m, err
	}
	if err := m.Start(ctx); err != nil {
		m.Teardown(ctx)
		return m, err
	}

	s.mu.Lock()
	s.live[key] = m
	s.mu.Unlock()
	return m, nil
}

func (s *ExamSessionService) submitter(opts SessionOptions) session.SubmitFunc {
	return func(ctx context.Context, sub model.Submission) {
		report, err := s.results.Compute(ctx, opts.UserID, sub)
		if err != nil {
			s.log.Error().Err(err).Str("exam_id", sub.ExamID).Msg("Failed to score submission")
		}
		if opts.OnSubmitted != nil {
			opts.OnSubmitted(report, err)
		}
	}
}

// Close tears m down and forgets it if it is still the live attempt.
func (s *ExamSessionService) Close(ctx context.Context, userID, examID string, m *session.Machine) {
	key := sessionKey(userID, examID)
	s.mu.Lock()
	if s.live[key] == m {
		delete(s.live, key)
	}
	s.mu.Unlock()
	m.Teardown(ctx)
}

// Live returns the number of running attempts.
func (s *ExamSessionService) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Shutdown tears down every live attempt so each gets its final save.
func (s *ExamSessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	machines := make([]*session.Machine, 0, len(s.live))
	for key, m := range s.live {
		machines = append(machines, m)
		delete(s.live, key)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, m := range machines {
		wg.Add(1)
		go func(m *session.Machine) {
			defer wg.Done()
			m.Teardown(ctx)
		}(m)
	}
	wg.Wait()
	s.log.Info().Int("sessions", len(machines)).Msg("Live attempts closed")
}
