package extract

import (
	"context"
	"fmt"
	"sync"
)

// Stream is the ordered event channel for one request. The orchestrator is
// the only writer; the consumer reads Events until it closes. Writing after
// a terminal event is a programming error and panics.
type Stream struct {
	ch chan Event

	mu       sync.Mutex
	terminal bool
	closed   bool
}

func NewStream() *Stream {
	return &Stream{ch: make(chan Event, 16)}
}

// Events is the consumer side. The channel closes after the terminal event,
// or without one if the consumer cancelled the request.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// publish appends one event. It returns false when the consumer has gone
// away (ctx cancelled) and the event was dropped.
func (s *Stream) publish(ctx context.Context, ev Event) bool {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		panic(fmt.Sprintf("extract: event published after terminal event: %+v", ev))
	}
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if ev.Terminal() {
		s.terminal = true
	}
	s.mu.Unlock()

	select {
	case s.ch <- ev:
		return true
	case <-ctx.Done():
		// Consumer is gone; nothing will read this stream again.
		return false
	}
}

// close releases the consumer. Safe to call once after the run loop exits.
func (s *Stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
