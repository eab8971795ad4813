// Package session runs one student's exam attempt: loading, answering,
// the countdown, autosave, violation escalation and submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/proctor"
	"github.com/stemsi/icas-portal/internal/provider"
	"github.com/stemsi/icas-portal/internal/schedule"
	"github.com/stemsi/icas-portal/internal/store"
)

var (
	ErrNotInProgress   = errors.New("attempt is not in progress")
	ErrLoadFailed      = errors.New("exam could not be loaded")
	ErrClosed          = errors.New("session closed")
	ErrUnknownQuestion = errors.New("unknown question")
	ErrUnknownOption   = errors.New("unknown option")
	ErrNoPendingSubmit = errors.New("no submission awaiting confirmation")
	// ErrAwaitingAcknowledgement is returned for student input while the
	// violation modal is open.
	ErrAwaitingAcknowledgement = errors.New("violation warning must be acknowledged first")
)

const (
	DefaultTickInterval        = time.Second
	DefaultAutosaveInterval    = 30 * time.Second
	DefaultEscalationThreshold = 3
)

// Reasons reported by the proctoring callbacks.
const (
	ReasonTabSwitch  = "Tab switching detected"
	ReasonWindowBlur = "Window focus lost"
	ReasonShortcut   = "Keyboard shortcut detected"
)

// SubmitResult tells the caller what RequestSubmit did.
type SubmitResult int

const (
	SubmitDone SubmitResult = iota
	// SubmitNeedsConfirmation means questions are unanswered and
	// ConfirmSubmit or CancelSubmit must follow.
	SubmitNeedsConfirmation
)

// SubmitFunc receives the submission once the attempt has left
// in_progress. It runs without the session lock held.
type SubmitFunc func(ctx context.Context, sub model.Submission)

// Deps are the collaborators of a Machine.
type Deps struct {
	Provider    provider.Provider
	Store       store.Store
	Monitor     *proctor.Monitor
	Environment proctor.Environment
	Notifier    Notifier
	OnSubmit    SubmitFunc
	Logger      zerolog.Logger

	TickInterval        time.Duration
	AutosaveInterval    time.Duration
	EscalationThreshold int
}

// View is a read-only copy of the attempt for rendering.
type View struct {
	ExamID          string            `json:"examId"`
	Title           string            `json:"title"`
	Phase           model.Phase       `json:"phase"`
	CurrentIndex    int               `json:"currentIndex"`
	TotalQuestions  int               `json:"totalQuestions"`
	AnsweredCount   int               `json:"answeredCount"`
	TimeRemaining   int               `json:"timeRemaining"`
	Answers         map[string]string `json:"answers"`
	Flagged         []string          `json:"flagged"`
	ViolationCount  int               `json:"violationCount"`
	ModalOpen       bool              `json:"modalOpen"`
	ConfirmPending  bool              `json:"confirmPending"`
	CurrentQuestion string            `json:"currentQuestion,omitempty"`
}

// Machine is the state machine of one attempt. All methods are safe for
// concurrent use; the countdown and autosave tasks share the session lock
// with student input.
type Machine struct {
	deps Deps
	log  zerolog.Logger

	mu         sync.Mutex
	exam       *model.Exam
	state      model.AttemptState
	fired      map[int]bool
	modalOpen  bool
	confirming bool
	tornDown   bool
	token      *schedule.Token
	handle     *proctor.Handle
}

// New creates a Machine in the loading phase.
func New(deps Deps) *Machine {
	if deps.Notifier == nil {
		deps.Notifier = Discard
	}
	if deps.TickInterval <= 0 {
		deps.TickInterval = DefaultTickInterval
	}
	if deps.AutosaveInterval <= 0 {
		deps.AutosaveInterval = DefaultAutosaveInterval
	}
	if deps.EscalationThreshold <= 0 {
		deps.EscalationThreshold = DefaultEscalationThreshold
	}

	return &Machine{
		deps: deps,
		log:  deps.Logger.With().Str("component", "exam_session").Logger(),
		state: model.AttemptState{
			Answers: make(map[string]string),
			Flagged: []string{},
			Phase:   model.PhaseLoading,
		},
		fired: make(map[int]bool),
	}
}

// Load resolves the exam content and enters in_progress, restoring a saved
// snapshot when one exists. A content failure moves the attempt to the
// terminal failed phase.
func (m *Machine) Load(ctx context.Context, examID string) error {
	m.mu.Lock()
	if m.tornDown {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state.Phase != model.PhaseLoading {
		phase := m.state.Phase
		m.mu.Unlock()
		return fmt.Errorf("load %s: attempt already %s", examID, phase)
	}
	m.state.ExamID = examID
	m.mu.Unlock()

	exam, err := m.deps.Provider.GetExamData(ctx, examID)
	if err == nil {
		err = exam.Validate()
	}
	if err != nil {
		m.mu.Lock()
		m.state.Phase = model.PhaseFailed
		m.deps.Notifier.Notify(Notice{Kind: NoticeDanger, Text: noticeLoadFailed})
		m.mu.Unlock()

		m.log.Error().Err(err).Str("exam_id", examID).Msg("Failed to load exam")
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	snap, restored := m.readProgress(ctx, examID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tornDown {
		return ErrClosed
	}

	m.exam = exam
	m.state.TimeRemaining = exam.TimeLimit
	if restored {
		m.restore(snap)
	}
	m.state.Phase = model.PhaseInProgress

	m.deps.Notifier.Notify(Notice{Kind: NoticeInfo, Text: fmt.Sprintf(noticeWelcome, exam.Title)})
	if restored {
		m.deps.Notifier.Notify(Notice{Kind: NoticeInfo, Text: noticeRestored})
	}

	m.log.Info().
		Str("exam_id", examID).
		Bool("restored", restored).
		Int("time_remaining", m.state.TimeRemaining).
		Msg("Exam attempt started")
	return nil
}

// readProgress returns the stored snapshot. Missing or unreadable
// snapshots report false; the attempt then starts fresh.
func (m *Machine) readProgress(ctx context.Context, examID string) (model.ProgressSnapshot, bool) {
	var snap model.ProgressSnapshot
	if m.deps.Store == nil {
		return snap, false
	}
	err := store.GetJSON(ctx, m.deps.Store, config.StorageKey.ExamProgressKey(examID), &snap)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.log.Warn().Err(err).Str("exam_id", examID).Msg("Discarding unreadable saved progress")
		}
		return model.ProgressSnapshot{}, false
	}
	return snap, true
}

// restore applies snap on top of a fresh state. Unknown ids are dropped
// and a non-positive remaining time keeps the full limit.
func (m *Machine) restore(snap model.ProgressSnapshot) {
	for qid, oid := range snap.Answers {
		if q := m.exam.Question(qid); q != nil && q.HasOption(oid) {
			m.state.Answers[qid] = oid
		}
	}

	seen := make(map[string]bool, len(snap.Flagged))
	for _, qid := range snap.Flagged {
		if m.exam.Question(qid) != nil && !seen[qid] {
			seen[qid] = true
			m.state.Flagged = append(m.state.Flagged, qid)
		}
	}

	idx := snap.CurrentIndex
	if idx < 0 {
		idx = 0
	}
	if last := len(m.exam.Questions) - 1; idx > last {
		idx = last
	}
	m.state.CurrentIndex = idx

	if snap.TimeLeft > 0 {
		m.state.TimeRemaining = min(snap.TimeLeft, m.exam.TimeLimit)
	}
}

// Start launches the countdown and autosave tasks and begins proctoring.
// Calling it again is a no-op.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.activeLocked(); err != nil {
		return err
	}
	if m.token != nil {
		return nil
	}

	m.token = schedule.NewToken(ctx)
	m.token.Every(m.deps.TickInterval, func(context.Context) {
		m.Tick()
	})
	m.token.Every(m.deps.AutosaveInterval, func(ctx context.Context) {
		if err := m.Save(ctx); err != nil && !errors.Is(err, ErrNotInProgress) {
			m.log.Warn().Err(err).Msg("Autosave failed")
		}
	})

	if m.deps.Monitor != nil {
		m.handle = m.deps.Monitor.Start(ctx, m.deps.Environment, proctor.Callbacks{
			OnTabSwitch:        func() { m.Violation(ReasonTabSwitch) },
			OnWindowBlur:       func() { m.Violation(ReasonWindowBlur) },
			OnKeyboardShortcut: func(string) { m.Violation(ReasonShortcut) },
		})
	}
	return nil
}

func (m *Machine) activeLocked() error {
	if m.tornDown {
		return ErrClosed
	}
	if m.state.Phase != model.PhaseInProgress {
		return ErrNotInProgress
	}
	return nil
}

// inputLocked gates student input, which is also blocked by the modal.
func (m *Machine) inputLocked() error {
	if err := m.activeLocked(); err != nil {
		return err
	}
	if m.modalOpen {
		return ErrAwaitingAcknowledgement
	}
	return nil
}

// GoTo moves to question index i. Out-of-range indexes are ignored.
func (m *Machine) GoTo(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.inputLocked(); err != nil {
		return err
	}
	if i >= 0 && i < len(m.exam.Questions) {
		m.state.CurrentIndex = i
	}
	return nil
}

// Next moves to the following question, if any.
func (m *Machine) Next() error {
	m.mu.Lock()
	i := m.state.CurrentIndex + 1
	m.mu.Unlock()
	return m.GoTo(i)
}

// Prev moves to the preceding question, if any.
func (m *Machine) Prev() error {
	m.mu.Lock()
	i := m.state.CurrentIndex - 1
	m.mu.Unlock()
	return m.GoTo(i)
}

// SelectAnswer records optionID for questionID, replacing any earlier
// answer for that question.
func (m *Machine) SelectAnswer(questionID, optionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.inputLocked(); err != nil {
		return err
	}
	q := m.exam.Question(questionID)
	if q == nil {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if !q.HasOption(optionID) {
		return fmt.Errorf("%w: %s", ErrUnknownOption, optionID)
	}
	m.state.Answers[questionID] = optionID
	return nil
}

// ToggleFlag flags or unflags questionID for review.
func (m *Machine) ToggleFlag(questionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.inputLocked(); err != nil {
		return err
	}
	if m.exam.Question(questionID) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	m.toggleFlagLocked(questionID)
	return nil
}

// ToggleFlagCurrent toggles the flag of the current question.
func (m *Machine) ToggleFlagCurrent() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.inputLocked(); err != nil {
		return err
	}
	m.toggleFlagLocked(m.exam.Questions[m.state.CurrentIndex].ID)
	return nil
}

func (m *Machine) toggleFlagLocked(qid string) {
	for i, id := range m.state.Flagged {
		if id == qid {
			m.state.Flagged = append(m.state.Flagged[:i], m.state.Flagged[i+1:]...)
			return
		}
	}
	m.state.Flagged = append(m.state.Flagged, qid)
}

// Tick advances the countdown by one second. Reaching zero forces
// submission.
func (m *Machine) Tick() {
	m.mu.Lock()
	if m.activeLocked() != nil {
		m.mu.Unlock()
		return
	}

	m.state.TimeRemaining--
	remaining := m.state.TimeRemaining
	m.deps.Notifier.Tick(remaining)

	for _, a := range advisories {
		if remaining == a.at && !m.fired[a.at] {
			m.fired[a.at] = true
			m.deps.Notifier.Notify(Notice{Kind: a.kind, Text: a.text})
		}
	}

	if remaining > 0 {
		m.mu.Unlock()
		return
	}

	m.log.Info().Str("exam_id", m.state.ExamID).Msg("Time expired, submitting attempt")
	sub := m.submitLocked(context.Background(), true)
	m.mu.Unlock()
	m.handOff(context.Background(), sub)
}

// Save writes the progress snapshot as one atomic value.
func (m *Machine) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.activeLocked(); err != nil {
		return err
	}
	return m.saveLocked(ctx)
}

func (m *Machine) saveLocked(ctx context.Context) error {
	if m.deps.Store == nil {
		return nil
	}
	key := config.StorageKey.ExamProgressKey(m.state.ExamID)
	if err := store.SetJSON(ctx, m.deps.Store, key, m.progressLocked()); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// RequestSubmit submits immediately when every question is answered and
// otherwise asks for confirmation.
func (m *Machine) RequestSubmit(ctx context.Context) (SubmitResult, error) {
	m.mu.Lock()
	if err := m.inputLocked(); err != nil {
		m.mu.Unlock()
		return SubmitDone, err
	}
	if m.answeredLocked() < len(m.exam.Questions) {
		m.confirming = true
		m.deps.Notifier.Notify(Notice{Kind: NoticeWarning, Text: noticeUnanswered})
		m.mu.Unlock()
		return SubmitNeedsConfirmation, nil
	}
	sub := m.submitLocked(ctx, false)
	m.mu.Unlock()

	m.handOff(ctx, sub)
	return SubmitDone, nil
}

// ConfirmSubmit submits despite unanswered questions. It only applies after
// RequestSubmit raised the unanswered warning and nothing cancelled it.
func (m *Machine) ConfirmSubmit(ctx context.Context) error {
	m.mu.Lock()
	if err := m.inputLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if !m.confirming && m.answeredLocked() < len(m.exam.Questions) {
		m.mu.Unlock()
		return ErrNoPendingSubmit
	}
	sub := m.submitLocked(ctx, false)
	m.mu.Unlock()

	m.handOff(ctx, sub)
	return nil
}

// CancelSubmit dismisses a pending confirmation and keeps the attempt
// running.
func (m *Machine) CancelSubmit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.activeLocked(); err != nil {
		return err
	}
	m.confirming = false
	return nil
}

// submitLocked leaves in_progress. Tasks are cancelled and proctoring is
// stopped before any attempt state changes.
func (m *Machine) submitLocked(ctx context.Context, forced bool) model.Submission {
	if m.token != nil {
		m.token.Cancel()
	}
	m.stopMonitorLocked()

	m.state.Phase = model.PhaseSubmitted
	m.confirming = false
	m.modalOpen = false

	if m.deps.Store != nil {
		key := config.StorageKey.ExamProgressKey(m.state.ExamID)
		if err := m.deps.Store.Delete(context.WithoutCancel(ctx), key); err != nil {
			m.log.Warn().Err(err).Msg("Failed to clear saved progress")
		}
	}

	sub := model.Submission{
		ExamID:   m.state.ExamID,
		Answers:  copyAnswers(m.state.Answers),
		TimeUsed: m.exam.TimeLimit - m.state.TimeRemaining,
		Flagged:  append([]string{}, m.state.Flagged...),
		Forced:   forced,
	}

	m.log.Info().
		Str("exam_id", sub.ExamID).
		Int("answered", len(sub.Answers)).
		Int("time_used", sub.TimeUsed).
		Bool("forced", forced).
		Int("violations", m.state.ViolationCount).
		Msg("Exam attempt submitted")
	return sub
}

func (m *Machine) handOff(ctx context.Context, sub model.Submission) {
	if m.deps.OnSubmit != nil {
		m.deps.OnSubmit(context.WithoutCancel(ctx), sub)
	}
}

func (m *Machine) stopMonitorLocked() {
	if m.deps.Monitor != nil {
		m.deps.Monitor.Stop(m.handle)
	}
	m.handle = nil
}

// Violation counts one proctoring violation. Below the escalation
// threshold a warning notice is shown; from the threshold on the blocking
// modal opens. The count is never reset during the attempt.
func (m *Machine) Violation(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeLocked() != nil {
		return
	}

	m.state.ViolationCount++
	if m.state.ViolationCount >= m.deps.EscalationThreshold {
		m.modalOpen = true
		m.deps.Notifier.Notify(Notice{Kind: NoticeModal, Text: noticeSuspicious})
	} else {
		m.deps.Notifier.Notify(Notice{Kind: NoticeWarning, Text: fmt.Sprintf(noticeViolation, reason)})
	}

	m.log.Warn().
		Str("exam_id", m.state.ExamID).
		Str("reason", reason).
		Int("count", m.state.ViolationCount).
		Msg("Proctoring violation")
}

// AcknowledgeViolation closes the violation modal. The count is kept.
func (m *Machine) AcknowledgeViolation() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.activeLocked(); err != nil {
		return err
	}
	m.modalOpen = false
	return nil
}

// Teardown ends the session: tasks are cancelled and drained, proctoring
// stops, and an attempt still in progress is saved one last time.
func (m *Machine) Teardown(ctx context.Context) {
	m.mu.Lock()
	if m.tornDown {
		m.mu.Unlock()
		return
	}
	m.tornDown = true
	token := m.token
	if token != nil {
		token.Cancel()
	}
	m.mu.Unlock()

	// Wait outside the lock; a task may be blocked on it.
	if token != nil {
		token.Wait()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopMonitorLocked()
	if m.state.Phase == model.PhaseInProgress {
		if err := m.saveLocked(context.WithoutCancel(ctx)); err != nil {
			m.log.Error().Err(err).Str("exam_id", m.state.ExamID).Msg("Final save failed")
		}
	}
	m.log.Debug().Str("exam_id", m.state.ExamID).Str("phase", string(m.state.Phase)).Msg("Session closed")
}

// Snapshot returns a copy of the attempt for rendering.
func (m *Machine) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := View{
		ExamID:         m.state.ExamID,
		Phase:          m.state.Phase,
		CurrentIndex:   m.state.CurrentIndex,
		TimeRemaining:  m.state.TimeRemaining,
		Answers:        copyAnswers(m.state.Answers),
		Flagged:        append([]string{}, m.state.Flagged...),
		ViolationCount: m.state.ViolationCount,
		ModalOpen:      m.modalOpen,
		ConfirmPending: m.confirming,
	}
	if m.exam != nil {
		v.Title = m.exam.Title
		v.TotalQuestions = len(m.exam.Questions)
		v.AnsweredCount = m.answeredLocked()
		v.CurrentQuestion = m.exam.Questions[m.state.CurrentIndex].ID
	}
	return v
}

// Progress returns the snapshot that Save would persist.
func (m *Machine) Progress() model.ProgressSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progressLocked()
}

func (m *Machine) progressLocked() model.ProgressSnapshot {
	return model.ProgressSnapshot{
		Answers:      copyAnswers(m.state.Answers),
		Flagged:      append([]string{}, m.state.Flagged...),
		CurrentIndex: m.state.CurrentIndex,
		TimeLeft:     m.state.TimeRemaining,
	}
}

// State returns a copy of the raw attempt state.
func (m *Machine) State() model.AttemptState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	s.Answers = copyAnswers(m.state.Answers)
	s.Flagged = append([]string{}, m.state.Flagged...)
	return s
}

// Exam returns the loaded exam, or nil before a successful Load.
func (m *Machine) Exam() *model.Exam {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exam
}

func (m *Machine) answeredLocked() int {
	n := 0
	for _, q := range m.exam.Questions {
		if m.state.Answers[q.ID] != "" {
			n++
		}
	}
	return n
}

func copyAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
