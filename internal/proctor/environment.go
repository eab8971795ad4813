package proctor

import (
	"errors"
	"sort"
	"sync"
)

// ErrUnsupportedSignal is returned by environments that cannot observe a kind.
var ErrUnsupportedSignal = errors.New("signal kind not supported by environment")

// SignalKind identifies one kind of environment signal.
type SignalKind string

const (
	SignalVisibilityChange SignalKind = "visibility_change"
	SignalWindowBlur       SignalKind = "window_blur"
	SignalKeyDown          SignalKind = "key_down"
	SignalContextMenu      SignalKind = "context_menu"
	SignalPopState         SignalKind = "pop_state"
)

// Signal is one observation delivered by an Environment.
type Signal struct {
	Kind   SignalKind `json:"kind"`
	Hidden bool       `json:"hidden,omitempty"`
	Key    string     `json:"key,omitempty"`
	Ctrl   bool       `json:"ctrl,omitempty"`
	Meta   bool       `json:"meta,omitempty"`
	Shift  bool       `json:"shift,omitempty"`
	Alt    bool       `json:"alt,omitempty"`

	// HasHistoryState is set on pop_state when the popped entry is a guard.
	HasHistoryState bool `json:"hasHistoryState,omitempty"`

	prevented bool
}

// PreventDefault asks the environment to suppress the default action.
func (s *Signal) PreventDefault() { s.prevented = true }

// DefaultPrevented reports whether a handler suppressed the default action.
func (s *Signal) DefaultPrevented() bool { return s.prevented }

// Handler reacts to a signal.
type Handler func(sig *Signal)

// Subscription identifies one registered handler.
type Subscription struct {
	ID   uint64
	Kind SignalKind
}

// Environment is the capability the monitor observes. Implementations deliver
// signals to registered handlers and carry out the guard directives.
type Environment interface {
	Register(kind SignalKind, h Handler) (Subscription, error)
	Unregister(sub Subscription)
	// PushHistoryGuard pushes a history entry so back/forward pops land on it.
	PushHistoryGuard() error
	// ArmLeaveGuard makes close/refresh prompt the user for confirmation.
	ArmLeaveGuard() error
	DisarmLeaveGuard()
	// Location is the current page location, recorded with each violation.
	Location() string
}

// Registry is a concurrency-safe handler table that Environment
// implementations embed to get Register/Unregister/Dispatch.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]registered
}

type registered struct {
	kind SignalKind
	h    Handler
}

// Register adds h for kind.
func (r *Registry) Register(kind SignalKind, h Handler) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[uint64]registered)
	}
	r.nextID++
	r.handlers[r.nextID] = registered{kind: kind, h: h}
	return Subscription{ID: r.nextID, Kind: kind}, nil
}

// Unregister removes a subscription; unknown subscriptions are ignored.
func (r *Registry) Unregister(sub Subscription) {
	r.mu.Lock()
	delete(r.handlers, sub.ID)
	r.mu.Unlock()
}

// Dispatch delivers sig to every handler registered for its kind, in
// registration order, and reports whether any handler prevented the default.
func (r *Registry) Dispatch(sig *Signal) bool {
	r.mu.Lock()
	ids := make([]uint64, 0, len(r.handlers))
	for id, reg := range r.handlers {
		if reg.kind == sig.Kind {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	hs := make([]Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, r.handlers[id].h)
	}
	r.mu.Unlock()

	for _, h := range hs {
		h(sig)
	}
	return sig.DefaultPrevented()
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
