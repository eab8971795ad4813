// Package proctor detects integrity signals during an exam attempt and keeps
// the violation log.
package proctor

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Activity descriptions written to the violation log.
const (
	ActivityTabSwitch   = "Tab switching detected"
	ActivityWindowBlur  = "Window focus lost"
	ActivityShortcut    = "Keyboard shortcut detected: "
	ActivityContextMenu = "Context menu opened"
	ActivityNavigation  = "Browser navigation attempted"
)

// monitoredShortcuts holds the key combinations that count as violations.
var monitoredShortcuts = map[string]struct{}{
	"ctrl+c":       {},
	"ctrl+v":       {},
	"ctrl+p":       {},
	"meta+c":       {},
	"meta+v":       {},
	"meta+p":       {},
	"ctrl+f":       {},
	"f12":          {},
	"ctrl+shift+i": {},
	"meta+alt+i":   {},
	"alt+tab":      {},
	"ctrl+n":       {},
	"ctrl+t":       {},
	"meta+n":       {},
	"meta+t":       {},
}

// Combination renders a key signal as ctrl+meta+shift+alt+<key>, including
// only the modifiers that were held.
func Combination(sig *Signal) string {
	var b strings.Builder
	if sig.Ctrl {
		b.WriteString("ctrl+")
	}
	if sig.Meta {
		b.WriteString("meta+")
	}
	if sig.Shift {
		b.WriteString("shift+")
	}
	if sig.Alt {
		b.WriteString("alt+")
	}
	b.WriteString(strings.ToLower(sig.Key))
	return b.String()
}

// IsMonitored reports whether combo, or the bare key of sig, is in the
// monitored shortcut set.
func IsMonitored(sig *Signal) bool {
	if _, ok := monitoredShortcuts[Combination(sig)]; ok {
		return true
	}
	_, ok := monitoredShortcuts[strings.ToLower(sig.Key)]
	return ok
}

// Callbacks receive detected violations. Nil callbacks are skipped, except
// OnContextMenu whose default suppresses the menu.
type Callbacks struct {
	OnTabSwitch        func()
	OnWindowBlur       func()
	OnKeyboardShortcut func(combo string)
	OnContextMenu      func(sig *Signal)
}

// Monitor wires environment signals to callbacks and the violation log.
type Monitor struct {
	log    *Log
	logger zerolog.Logger
}

// NewMonitor creates a Monitor that records into log.
func NewMonitor(log *Log, logger zerolog.Logger) *Monitor {
	return &Monitor{
		log:    log,
		logger: logger.With().Str("component", "proctor_monitor").Logger(),
	}
}

// Handle is returned by Start and owns every subscription it made.
type Handle struct {
	env     Environment
	mu      sync.Mutex
	subs    []Subscription
	stopped bool
}

// Start subscribes to every signal kind on env. It never fails: kinds the
// environment cannot observe are skipped with a warning, and a nil env
// yields an unmonitored handle.
func (m *Monitor) Start(ctx context.Context, env Environment, cb Callbacks) *Handle {
	h := &Handle{env: env}
	if env == nil {
		m.logger.Warn().Msg("No proctoring environment; attempt is unmonitored")
		return h
	}
	if cb.OnContextMenu == nil {
		cb.OnContextMenu = func(sig *Signal) { sig.PreventDefault() }
	}

	// Appends outlive the request that triggered them.
	logCtx := context.WithoutCancel(ctx)
	record := func(activity string) {
		if _, err := m.log.Append(logCtx, activity, env.Location()); err != nil {
			m.logger.Error().Err(err).Str("activity", activity).Msg("Failed to record violation")
		}
	}

	handlers := map[SignalKind]Handler{
		SignalVisibilityChange: func(sig *Signal) {
			if !sig.Hidden {
				return
			}
			if cb.OnTabSwitch != nil {
				cb.OnTabSwitch()
			}
			record(ActivityTabSwitch)
		},
		SignalWindowBlur: func(sig *Signal) {
			if cb.OnWindowBlur != nil {
				cb.OnWindowBlur()
			}
			record(ActivityWindowBlur)
		},
		SignalKeyDown: func(sig *Signal) {
			if !IsMonitored(sig) {
				return
			}
			sig.PreventDefault()
			combo := Combination(sig)
			if cb.OnKeyboardShortcut != nil {
				cb.OnKeyboardShortcut(combo)
			}
			record(ActivityShortcut + combo)
		},
		SignalPopState: func(sig *Signal) {
			if !sig.HasHistoryState {
				return
			}
			sig.PreventDefault()
			if err := env.PushHistoryGuard(); err != nil {
				m.logger.Warn().Err(err).Msg("Failed to re-arm history guard")
			}
			record(ActivityNavigation)
		},
		SignalContextMenu: func(sig *Signal) {
			cb.OnContextMenu(sig)
			record(ActivityContextMenu)
		},
	}

	for _, kind := range []SignalKind{
		SignalVisibilityChange,
		SignalWindowBlur,
		SignalKeyDown,
		SignalPopState,
		SignalContextMenu,
	} {
		sub, err := env.Register(kind, handlers[kind])
		if err != nil {
			m.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Signal not monitored")
			continue
		}
		h.subs = append(h.subs, sub)
	}

	if err := env.PushHistoryGuard(); err != nil {
		m.logger.Warn().Err(err).Msg("History guard unavailable")
	}
	if err := env.ArmLeaveGuard(); err != nil {
		m.logger.Warn().Err(err).Msg("Leave guard unavailable")
	}

	m.logger.Debug().Int("subscriptions", len(h.subs)).Msg("Proctoring started")
	return h
}

// Stop releases every subscription made by Start. Nil and already stopped
// handles are ignored.
func (m *Monitor) Stop(h *Handle) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	if h.env == nil {
		return
	}
	for _, sub := range h.subs {
		h.env.Unregister(sub)
	}
	h.subs = nil
	h.env.DisarmLeaveGuard()
	m.logger.Debug().Msg("Proctoring stopped")
}

// Stopped reports whether Stop has run for h.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}
