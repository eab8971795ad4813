package proctor

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnv struct {
	Registry
	unsupported map[SignalKind]bool
	guards      int
	leaveArmed  bool
}

func (e *fakeEnv) Register(kind SignalKind, h Handler) (Subscription, error) {
	if e.unsupported[kind] {
		return Subscription{}, ErrUnsupportedSignal
	}
	return e.Registry.Register(kind, h)
}

func (e *fakeEnv) PushHistoryGuard() error { e.guards++; return nil }
func (e *fakeEnv) ArmLeaveGuard() error { e.leaveArmed = true; return nil }
func (e *fakeEnv) DisarmLeaveGuard() { e.leaveArmed = false }
func (e *fakeEnv) Location() string { return "http://exam.test/exam/math-2023" }

func newTestMonitor() (*Monitor, *Log) {
	l := NewLog(store.NewMemory(), zerolog.Nop())
	return NewMonitor(l, zerolog.Nop()), l
}

func activities(l *Log) []string {
	var out []string
	for _, e := range l.Entries(context.Background()) {
		out = append(out, e.Activity)
	}
	return out
}

func TestCombination(t *testing.T) {
	tests := []struct {
		sig  Signal
		want string
	}{
		{Signal{Key: "C", Ctrl: true}, "ctrl+c"},
		{Signal{Key: "I", Ctrl: true, Shift: true}, "ctrl+shift+i"},
		{Signal{Key: "i", Meta: true, Alt: true}, "meta+alt+i"},
		{Signal{Key: "a"}, "a"},
		{Signal{Key: "x", Ctrl: true, Meta: true, Shift: true, Alt: true}, "ctrl+meta+shift+alt+x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Combination(&tt.sig))
	}
}

func TestIsMonitoredBareKey(t *testing.T) {
	assert.True(t, IsMonitored(&Signal{Key: "F12", Shift: true}))
	assert.True(t, IsMonitored(&Signal{Key: "t", Meta: true}))
	assert.False(t, IsMonitored(&Signal{Key: "c"}))
	assert.False(t, IsMonitored(&Signal{Key: "c", Ctrl: true, Alt: true}))
}

func TestMonitorCallbacksAndLog(t *testing.T) {
	m, l := newTestMonitor()
	env := &fakeEnv{}

	var tabs, blurs int
	var combos []string
	h := m.Start(context.Background(), env, Callbacks{
		OnTabSwitch:        func() { tabs++ },
		OnWindowBlur:       func() { blurs++ },
		OnKeyboardShortcut: func(c string) { combos = append(combos, c) },
	})
	require.NotNil(t, h)
	assert.Equal(t, 5, env.Len())
	assert.True(t, env.leaveArmed)
	assert.Equal(t, 1, env.guards)

	env.Dispatch(&Signal{Kind: SignalVisibilityChange, Hidden: false})
	env.Dispatch(&Signal{Kind: SignalVisibilityChange, Hidden: true})
	env.Dispatch(&Signal{Kind: SignalWindowBlur})

	copySig := &Signal{Kind: SignalKeyDown, Key: "c", Ctrl: true}
	assert.True(t, env.Dispatch(copySig))
	assert.False(t, env.Dispatch(&Signal{Kind: SignalKeyDown, Key: "a"}))

	menu := &Signal{Kind: SignalContextMenu}
	assert.True(t, env.Dispatch(menu), "context menu is suppressed by default")

	assert.Equal(t, 1, tabs)
	assert.Equal(t, 1, blurs)
	assert.Equal(t, []string{"ctrl+c"}, combos)
	assert.Equal(t, []string{
		ActivityTabSwitch,
		ActivityWindowBlur,
		ActivityShortcut + "ctrl+c",
		ActivityContextMenu,
	}, activities(l))
}

func TestMonitorHistoryGuard(t *testing.T) {
	m, l := newTestMonitor()
	env := &fakeEnv{}
	m.Start(context.Background(), env, Callbacks{})

	assert.False(t, env.Dispatch(&Signal{Kind: SignalPopState}))
	assert.True(t, env.Dispatch(&Signal{Kind: SignalPopState, HasHistoryState: true}))
	assert.Equal(t, 2, env.guards, "guard re-armed after a blocked navigation")
	assert.Equal(t, []string{ActivityNavigation}, activities(l))
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	m, l := newTestMonitor()
	env := &fakeEnv{}
	h := m.Start(context.Background(), env, Callbacks{})

	m.Stop(h)
	m.Stop(h)
	m.Stop(nil)

	assert.True(t, h.Stopped())
	assert.Equal(t, 0, env.Len())
	assert.False(t, env.leaveArmed)

	env.Dispatch(&Signal{Kind: SignalWindowBlur})
	assert.Empty(t, activities(l))
}

func TestMonitorDegradesOnUnsupportedKinds(t *testing.T) {
	m, l := newTestMonitor()
	env := &fakeEnv{unsupported: map[SignalKind]bool{SignalKeyDown: true, SignalPopState: true}}

	h := m.Start(context.Background(), env, Callbacks{})
	assert.Equal(t, 3, env.Len())

	env.Dispatch(&Signal{Kind: SignalWindowBlur})
	assert.Equal(t, []string{ActivityWindowBlur}, activities(l))

	m.Stop(h)
	assert.Equal(t, 0, env.Len())
}

func TestMonitorNilEnvironment(t *testing.T) {
	m, _ := newTestMonitor()
	h := m.Start(context.Background(), nil, Callbacks{})
	require.NotNil(t, h)
	m.Stop(h)
	assert.True(t, h.Stopped())
}
