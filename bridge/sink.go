package bridge

import (
	"errors"
	"sync"

	"github.com/maxpert/statusbridge/status"
)

var (
	// ErrSinkFull is returned by Send when the sink cannot accept an event
	// without blocking.
	ErrSinkFull = errors.New("sink full")
	// ErrSinkClosed is returned by Send after the sink was closed.
	ErrSinkClosed = errors.New("sink closed")
)

// Sink is a consumer-owned destination for bridge events.
// Send must not block: it either accepts the event or returns an error.
type Sink interface {
	Send(event status.Event) error
	Close() error
}

// DefaultBufferSize is the capacity used when a channel sink is created
// with a non-positive size.
const DefaultBufferSize = 16

// ChannelSink delivers events on a buffered channel.
// If the reader cannot keep up, Send returns ErrSinkFull and the event is lost.
// Close is idempotent and may be called by either side.
type ChannelSink struct {
	mu     sync.Mutex
	ch     chan status.Event
	closed bool
}

// NewChannelSink creates a channel sink holding up to size pending events.
func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &ChannelSink{ch: make(chan status.Event, size)}
}

// Events returns the receive side. It is closed when the sink is closed.
func (s *ChannelSink) Events() <-chan status.Event {
	return s.ch
}

// Send enqueues event without blocking.
func (s *ChannelSink) Send(event status.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	select {
	case s.ch <- event:
		return nil
	default:
		return ErrSinkFull
	}
}

// Close closes the event channel if not already closed.
func (s *ChannelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Len returns the number of buffered events.
func (s *ChannelSink) Len() int {
	return len(s.ch)
}

// FuncSink adapts a non-blocking callback to Sink. Close is a no-op.
type FuncSink func(status.Event) error

func (f FuncSink) Send(event status.Event) error { return f(event) }
func (f FuncSink) Close() error                  { return nil }
