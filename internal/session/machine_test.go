package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/model"
	"github.com/stemsi/icas-portal/internal/proctor"
	"github.com/stemsi/icas-portal/internal/provider"
	"github.com/stemsi/icas-portal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const examID = "math-2023"

type recorder struct {
	mu      sync.Mutex
	notices []Notice
	ticks   []int
}

func (r *recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recorder) Tick(remaining int) {
	r.mu.Lock()
	r.ticks = append(r.ticks, remaining)
	r.mu.Unlock()
}

func (r *recorder) count(text string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, notice := range r.notices {
		if notice.Text == text {
			n++
		}
	}
	return n
}

func (r *recorder) last() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}

type submissions struct {
	mu  sync.Mutex
	got []model.Submission
}

func (s *submissions) record(_ context.Context, sub model.Submission) {
	s.mu.Lock()
	s.got = append(s.got, sub)
	s.mu.Unlock()
}

func (s *submissions) all() []model.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Submission{}, s.got...)
}

type fixture struct {
	machine *Machine
	store   *store.Memory
	notes   *recorder
	subs    *submissions
}

func newFixture(t *testing.T, seed *model.ProgressSnapshot) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemory(),
		notes: &recorder{},
		subs:  &submissions{},
	}
	if seed != nil {
		require.NoError(t, store.SetJSON(context.Background(), f.store, config.StorageKey.ExamProgressKey(examID), seed))
	}
	f.machine = New(Deps{
		Provider: provider.NewMock(),
		Store:    f.store,
		Notifier: f.notes,
		OnSubmit: f.subs.record,
		Logger:   zerolog.Nop(),
	})
	return f
}

func loaded(t *testing.T, seed *model.ProgressSnapshot) *fixture {
	t.Helper()
	f := newFixture(t, seed)
	require.NoError(t, f.machine.Load(context.Background(), examID))
	return f
}

func TestLoadFreshAttempt(t *testing.T) {
	f := loaded(t, nil)

	v := f.machine.Snapshot()
	assert.Equal(t, model.PhaseInProgress, v.Phase)
	assert.Equal(t, 20, v.TotalQuestions)
	assert.Equal(t, provider.TimeLimitFor(provider.SubjectMathematics), v.TimeRemaining)
	assert.Equal(t, 0, v.CurrentIndex)
	assert.Empty(t, v.Answers)
	assert.Equal(t, 1, f.notes.count("Welcome to your Mathematics 2023 exam. Good luck!"))
	assert.Equal(t, 0, f.notes.count(noticeRestored))
}

func TestLoadFailureIsTerminal(t *testing.T) {
	f := newFixture(t, nil)

	err := f.machine.Load(context.Background(), "")
	require.ErrorIs(t, err, ErrLoadFailed)
	assert.ErrorIs(t, err, provider.ErrExamNotFound)
	assert.Equal(t, model.PhaseFailed, f.machine.Snapshot().Phase)
	assert.Equal(t, Notice{Kind: NoticeDanger, Text: noticeLoadFailed}, f.notes.last())

	assert.ErrorIs(t, f.machine.GoTo(1), ErrNotInProgress)
	assert.ErrorIs(t, f.machine.Start(context.Background()), ErrNotInProgress)
}

func TestRestoreSavedProgress(t *testing.T) {
	f := loaded(t, &model.ProgressSnapshot{
		Answers:      map[string]string{"q1": "q1_b", "q2": "q2_z", "q99": "q99_a"},
		Flagged:      []string{"q3", "q3", "nope"},
		CurrentIndex: 7,
		TimeLeft:     500,
	})

	v := f.machine.Snapshot()
	assert.Equal(t, map[string]string{"q1": "q1_b"}, v.Answers)
	assert.Equal(t, []string{"q3"}, v.Flagged)
	assert.Equal(t, 7, v.CurrentIndex)
	assert.Equal(t, 500, v.TimeRemaining)
	assert.Equal(t, 1, f.notes.count(noticeRestored))
}

func TestRestoreIgnoresExpiredTime(t *testing.T) {
	f := loaded(t, &model.ProgressSnapshot{TimeLeft: 0, CurrentIndex: 99})

	v := f.machine.Snapshot()
	assert.Equal(t, provider.TimeLimitFor(provider.SubjectMathematics), v.TimeRemaining)
	assert.Equal(t, 19, v.CurrentIndex, "index is clamped into range")
}

func TestRestoreCorruptSnapshotStartsFresh(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Set(context.Background(), config.StorageKey.ExamProgressKey(examID), "{broken"))

	require.NoError(t, f.machine.Load(context.Background(), examID))
	v := f.machine.Snapshot()
	assert.Equal(t, model.PhaseInProgress, v.Phase)
	assert.Empty(t, v.Answers)
	assert.Equal(t, provider.TimeLimitFor(provider.SubjectMathematics), v.TimeRemaining)
	assert.Equal(t, 0, f.notes.count(noticeRestored))
}

func TestSelectAnswerReplaces(t *testing.T) {
	f := loaded(t, nil)

	require.NoError(t, f.machine.SelectAnswer("q1", "q1_b"))
	require.NoError(t, f.machine.SelectAnswer("q1", "q1_c"))
	require.NoError(t, f.machine.SelectAnswer("q1", "q1_c"))

	assert.Equal(t, map[string]string{"q1": "q1_c"}, f.machine.Snapshot().Answers)
	assert.ErrorIs(t, f.machine.SelectAnswer("q404", "q404_a"), ErrUnknownQuestion)
	assert.ErrorIs(t, f.machine.SelectAnswer("q1", "q2_a"), ErrUnknownOption)
}

func TestNavigationBounds(t *testing.T) {
	f := loaded(t, nil)

	require.NoError(t, f.machine.GoTo(-1))
	assert.Equal(t, 0, f.machine.Snapshot().CurrentIndex)
	require.NoError(t, f.machine.Prev())
	assert.Equal(t, 0, f.machine.Snapshot().CurrentIndex)

	require.NoError(t, f.machine.GoTo(19))
	require.NoError(t, f.machine.GoTo(20))
	assert.Equal(t, 19, f.machine.Snapshot().CurrentIndex)
	require.NoError(t, f.machine.Next())
	assert.Equal(t, 19, f.machine.Snapshot().CurrentIndex)

	require.NoError(t, f.machine.Prev())
	assert.Equal(t, 18, f.machine.Snapshot().CurrentIndex)
}

func TestToggleFlag(t *testing.T) {
	f := loaded(t, nil)

	require.NoError(t, f.machine.ToggleFlag("q2"))
	require.NoError(t, f.machine.ToggleFlagCurrent())
	assert.Equal(t, []string{"q2", "q1"}, f.machine.Snapshot().Flagged)

	require.NoError(t, f.machine.ToggleFlag("q2"))
	assert.Equal(t, []string{"q1"}, f.machine.Snapshot().Flagged)
	assert.ErrorIs(t, f.machine.ToggleFlag("q404"), ErrUnknownQuestion)
}

func TestEscalation(t *testing.T) {
	f := loaded(t, nil)
	warning := "Warning: Tab switching detected. This may be considered cheating."

	f.machine.Violation(ReasonTabSwitch)
	f.machine.Violation(ReasonTabSwitch)
	assert.Equal(t, 2, f.notes.count(warning))
	assert.False(t, f.machine.Snapshot().ModalOpen)

	f.machine.Violation(ReasonTabSwitch)
	assert.True(t, f.machine.Snapshot().ModalOpen)
	assert.Equal(t, NoticeModal, f.notes.last().Kind)
	assert.ErrorIs(t, f.machine.GoTo(3), ErrAwaitingAcknowledgement)

	f.machine.Violation(ReasonWindowBlur)
	f.machine.Violation(ReasonShortcut)
	assert.Equal(t, 5, f.machine.Snapshot().ViolationCount)
	assert.Equal(t, 2, f.notes.count(warning))

	require.NoError(t, f.machine.AcknowledgeViolation())
	v := f.machine.Snapshot()
	assert.False(t, v.ModalOpen)
	assert.Equal(t, 5, v.ViolationCount, "acknowledging does not reset the count")
	require.NoError(t, f.machine.GoTo(3))

	f.machine.Violation(ReasonTabSwitch)
	assert.True(t, f.machine.Snapshot().ModalOpen)
}

func TestCountdownAdvisoriesAndForcedSubmit(t *testing.T) {
	f := loaded(t, &model.ProgressSnapshot{TimeLeft: 301})
	require.NoError(t, f.machine.SelectAnswer("q1", "q1_a"))

	f.machine.Tick()
	assert.Equal(t, 300, f.machine.Snapshot().TimeRemaining)
	assert.Equal(t, 1, f.notes.count(noticeFiveMinutes))

	for i := 0; i < 299; i++ {
		f.machine.Tick()
	}
	assert.Equal(t, 1, f.machine.Snapshot().TimeRemaining)
	assert.Empty(t, f.subs.all())

	f.machine.Tick()
	f.machine.Tick()
	f.machine.Tick()

	subs := f.subs.all()
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Forced)
	assert.Equal(t, provider.TimeLimitFor(provider.SubjectMathematics), subs[0].TimeUsed)
	assert.Equal(t, map[string]string{"q1": "q1_a"}, subs[0].Answers)

	assert.Equal(t, 1, f.notes.count(noticeFiveMinutes))
	assert.Equal(t, 1, f.notes.count(noticeTwoMinutes))
	assert.Equal(t, 1, f.notes.count(noticeFinalMinute))

	v := f.machine.Snapshot()
	assert.Equal(t, model.PhaseSubmitted, v.Phase)
	assert.Equal(t, 0, v.TimeRemaining)

	_, err := f.store.Get(context.Background(), config.StorageKey.ExamProgressKey(examID))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, f.machine.SelectAnswer("q2", "q2_a"), ErrNotInProgress)
}

func TestSubmitConfirmation(t *testing.T) {
	f := loaded(t, nil)
	require.NoError(t, f.machine.SelectAnswer("q1", "q1_a"))

	res, err := f.machine.RequestSubmit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SubmitNeedsConfirmation, res)
	assert.True(t, f.machine.Snapshot().ConfirmPending)

	require.NoError(t, f.machine.CancelSubmit())
	assert.False(t, f.machine.Snapshot().ConfirmPending)
	assert.ErrorIs(t, f.machine.ConfirmSubmit(context.Background()), ErrNoPendingSubmit)
	assert.Empty(t, f.subs.all())

	for i := 0; i < 3; i++ {
		f.machine.Tick()
	}
	res, err = f.machine.RequestSubmit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SubmitNeedsConfirmation, res)
	require.NoError(t, f.machine.ConfirmSubmit(context.Background()))

	subs := f.subs.all()
	require.Len(t, subs, 1)
	assert.False(t, subs[0].Forced)
	assert.Equal(t, 3, subs[0].TimeUsed)
	assert.ErrorIs(t, f.machine.ConfirmSubmit(context.Background()), ErrNotInProgress)
}

func TestConfirmWithoutRequestIsRejected(t *testing.T) {
	f := loaded(t, nil)
	require.NoError(t, f.machine.SelectAnswer("q1", "q1_a"))

	assert.ErrorIs(t, f.machine.ConfirmSubmit(context.Background()), ErrNoPendingSubmit)
	assert.Empty(t, f.subs.all())
	assert.Zero(t, f.notes.count(noticeUnanswered))

	v := f.machine.Snapshot()
	assert.Equal(t, model.PhaseInProgress, v.Phase)
	assert.False(t, v.ConfirmPending)
}

func TestConfirmWithAllAnsweredNeedsNoRequest(t *testing.T) {
	f := loaded(t, nil)
	for _, q := range f.machine.Exam().Questions {
		require.NoError(t, f.machine.SelectAnswer(q.ID, q.CorrectAnswer))
	}

	require.NoError(t, f.machine.ConfirmSubmit(context.Background()))
	require.Len(t, f.subs.all(), 1)
}

func TestSubmitAllAnsweredIsImmediate(t *testing.T) {
	f := loaded(t, nil)
	for _, q := range f.machine.Exam().Questions {
		require.NoError(t, f.machine.SelectAnswer(q.ID, q.CorrectAnswer))
	}

	res, err := f.machine.RequestSubmit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SubmitDone, res)
	require.Len(t, f.subs.all(), 1)
	assert.Len(t, f.subs.all()[0].Answers, 20)
}

func TestSaveWritesProgressSnapshot(t *testing.T) {
	f := loaded(t, nil)
	require.NoError(t, f.machine.SelectAnswer("q4", "q4_d"))
	require.NoError(t, f.machine.GoTo(4))
	require.NoError(t, f.machine.ToggleFlagCurrent())
	f.machine.Tick()

	require.NoError(t, f.machine.Save(context.Background()))

	var snap model.ProgressSnapshot
	require.NoError(t, store.GetJSON(context.Background(), f.store, config.StorageKey.ExamProgressKey(examID), &snap))
	assert.Equal(t, f.machine.Progress(), snap)
	assert.Equal(t, 4, snap.CurrentIndex)
	assert.Equal(t, []string{"q5"}, snap.Flagged)
}

type fakeEnv struct {
	proctor.Registry
}

func (e *fakeEnv) PushHistoryGuard() error { return nil }
func (e *fakeEnv) ArmLeaveGuard() error { return nil }
func (e *fakeEnv) DisarmLeaveGuard() {}
func (e *fakeEnv) Location() string { return "http://exam.test/exam/" + examID }

func TestStartRunsTasksAndTeardownSaves(t *testing.T) {
	mem := store.NewMemory()
	env := &fakeEnv{}
	violations := proctor.NewLog(mem, zerolog.Nop())
	notes := &recorder{}

	m := New(Deps{
		Provider:         provider.NewMock(),
		Store:            mem,
		Monitor:          proctor.NewMonitor(violations, zerolog.Nop()),
		Environment:      env,
		Notifier:         notes,
		Logger:           zerolog.Nop(),
		TickInterval:     5 * time.Millisecond,
		AutosaveInterval: 10 * time.Millisecond,
	})
	ctx := context.Background()
	require.NoError(t, m.Load(ctx, examID))
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Start(ctx))
	assert.Equal(t, 5, env.Len())

	key := config.StorageKey.ExamProgressKey(examID)
	require.Eventually(t, func() bool {
		_, err := mem.Get(ctx, key)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	env.Dispatch(&proctor.Signal{Kind: proctor.SignalVisibilityChange, Hidden: true})
	assert.Equal(t, 1, m.Snapshot().ViolationCount)
	assert.Len(t, violations.Entries(ctx), 1)

	m.Teardown(ctx)
	assert.Equal(t, 0, env.Len())

	left := m.Snapshot().TimeRemaining
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, left, m.Snapshot().TimeRemaining, "no ticks after teardown")

	var snap model.ProgressSnapshot
	require.NoError(t, store.GetJSON(ctx, mem, key, &snap))
	assert.Equal(t, left, snap.TimeLeft, "final save reflects the last state")
	assert.Less(t, left, provider.TimeLimitFor(provider.SubjectMathematics))

	m.Teardown(ctx)
	assert.ErrorIs(t, m.Save(ctx), ErrClosed)
}
