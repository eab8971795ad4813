package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/icas-portal/internal/proctor"
	"github.com/stemsi/icas-portal/internal/session"
)

const sendBuffer = 64

var (
	_ proctor.Environment = (*Stream)(nil)
	_ session.Notifier    = (*Stream)(nil)
)

// Stream is one student connection. It is the proctoring Environment and
// the session Notifier of the attempt bound to it; every outbound message
// goes through a single writer goroutine.
type Stream struct {
	proctor.Registry

	conn *websocket.Conn
	log  zerolog.Logger
	send chan interface{}
	done chan struct{}
	once sync.Once
	// stopped is closed when Run returns.
	stopped chan struct{}
	// overflowed is set when a Send found the buffer full.
	overflowed atomic.Bool

	mu       sync.RWMutex
	location string
}

// NewStream wraps conn. location is the page URL until the client reports
// another one.
func NewStream(conn *websocket.Conn, location string, log zerolog.Logger) *Stream {
	return &Stream{
		conn:     conn,
		log:      log,
		send:     make(chan interface{}, sendBuffer),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		location: location,
	}
}

// Run writes queued messages and pings until ctx ends or Close is called.
// Messages queued before Close are still written.
func (s *Stream) Run(ctx context.Context) {
	defer close(s.stopped)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			if s.overflowed.Load() {
				s.disconnect()
				return
			}
			s.drain()
			return
		case v := <-s.send:
			if err := WriteTyped(s.conn, v); err != nil {
				s.log.Debug().Err(err).Msg("Write failed")
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Stream) drain() {
	for {
		select {
		case v := <-s.send:
			if err := WriteTyped(s.conn, v); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Wait blocks until Run has returned.
func (s *Stream) Wait() {
	<-s.stopped
}

// Send queues v without blocking. A client that stops reading until the
// buffer fills is disconnected rather than left missing events; it gets the
// full state again when it reconnects. Sends after Close are dropped.
func (s *Stream) Send(v interface{}) {
	if s.enqueue(v) {
		return
	}
	s.log.Warn().Msg("Send buffer full, disconnecting slow client")
	s.overflowed.Store(true)
	s.Close()
}

// offer queues v unless the buffer is full. Ticks go through here since
// the next tick supersedes a lost one.
func (s *Stream) offer(v interface{}) {
	if !s.enqueue(v) {
		s.log.Debug().Msg("Send buffer full, skipping tick")
	}
}

// enqueue reports false only when the buffer is full.
func (s *Stream) enqueue(v interface{}) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.send <- v:
	case <-s.done:
	default:
		return false
	}
	return true
}

// disconnect tells the client to come back and drops the connection so the
// read loop ends.
func (s *Stream) disconnect() {
	msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "client too slow")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = s.conn.Close()
}

// Close stops the writer. It is safe to call more than once.
func (s *Stream) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed once the stream has been closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// SetLocation records the page URL reported by the client.
func (s *Stream) SetLocation(url string) {
	if url == "" {
		return
	}
	s.mu.Lock()
	s.location = url
	s.mu.Unlock()
}

func (s *Stream) Location() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location
}

func (s *Stream) PushHistoryGuard() error {
	s.Send(GuardResponse{Event: EventHistoryGuard, Armed: true})
	return nil
}

func (s *Stream) ArmLeaveGuard() error {
	s.Send(GuardResponse{Event: EventLeaveGuard, Armed: true})
	return nil
}

func (s *Stream) DisarmLeaveGuard() {
	s.Send(GuardResponse{Event: EventLeaveGuard, Armed: false})
}

// Notify implements session.Notifier.
func (s *Stream) Notify(n session.Notice) {
	s.Send(NoticeResponse{Event: EventNotice, Notice: n})
}

// Tick implements session.Notifier.
func (s *Stream) Tick(remaining int) {
	s.offer(TickResponse{Event: EventTick, TimeRemaining: remaining})
}
