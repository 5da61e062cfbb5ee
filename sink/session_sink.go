// Package sink adapts room broadcasts to per-connection delivery channels.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"chat-relay/domain/event"
)

var (
	ErrSessionGone  = fmt.Errorf("session terminated")
	ErrBackpressure = fmt.Errorf("outbound buffer full")
)

// SessionSink buffers events for one connection's write pump.
type SessionSink struct {
	log    *slog.Logger
	events chan event.Event
	closed atomic.Bool
}

func NewSessionSink(log *slog.Logger, bufferSize int) *SessionSink {
	return &SessionSink{log: log, events: make(chan event.Event, bufferSize)}
}

// Consume is called by room actors.
// Redirect the event through the owner of the channel; the write pump will
// take it from now. Consume never blocks a room: a saturated or terminated
// session reports an error and the event is dropped for this one consumer.
func (s *SessionSink) Consume(ctx context.Context, e event.Event) error {
	if s.closed.Load() {
		return ErrSessionGone
	}
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBackpressure
	}
}

// Events is drained by the session's write pump.
func (s *SessionSink) Events() <-chan event.Event {
	return s.events
}

// Close marks the sink as gone. The channel itself is never closed; late
// Consume calls fail cleanly instead of panicking.
func (s *SessionSink) Close() {
	s.closed.Store(true)
}
