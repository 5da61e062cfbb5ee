package sink

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/domain/event"
)

func TestSessionSink_ConsumeAndDrain(t *testing.T) {
	req := require.New(t)
	s := NewSessionSink(slog.Default(), 2)

	// Given two buffered events
	req.NoError(s.Consume(context.Background(), event.Pong("pong")))
	req.NoError(s.Consume(context.Background(), event.UserJoined{Username: "alice"}))

	// When the buffer is full, Consume must not block the caller
	err := s.Consume(context.Background(), event.Pong("pong"))
	req.ErrorIs(err, ErrBackpressure)

	// Then the write pump drains in order
	req.Equal(event.Pong("pong"), <-s.Events())
	req.Equal(event.UserJoined{Username: "alice"}, <-s.Events())
}

func TestSessionSink_ConsumeAfterClose(t *testing.T) {
	req := require.New(t)
	s := NewSessionSink(slog.Default(), 2)

	s.Close()

	err := s.Consume(context.Background(), event.Pong("pong"))
	req.ErrorIs(err, ErrSessionGone)
}
