// Package transport carries the websocket surface of the messaging core:
// one Session per authenticated connection, plus the HTTP glue around it.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/services"
	"chat-relay/sink"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// State is the lifecycle of a connection. Only Active accepts application
// events; the transport delivers a connection's frames in order, so the
// check is defensive.
type State int32

const (
	Connecting State = iota
	Authenticated
	Active
	Terminated
)

type clientEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type serverEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Session is one authenticated client connection. The verified identity is
// fixed at construction and never mutated. The joined-rooms set is only
// touched from the read pump goroutine, which is also the only dispatcher
// of application events, so it needs no lock.
type Session struct {
	id       string
	identity domain.Identity
	conn     *websocket.Conn
	sink     *sink.SessionSink
	chat     services.IChatService
	monitor  *observability.Monitor
	log      *slog.Logger
	state    atomic.Int32
	joined   map[string]struct{}
}

func NewSession(log *slog.Logger, conn *websocket.Conn, identity domain.Identity,
	chat services.IChatService, monitor *observability.Monitor, bufferSize int) *Session {
	id := uuid.NewString()
	s := &Session{
		id:       id,
		identity: identity,
		conn:     conn,
		sink:     sink.NewSessionSink(log, bufferSize),
		chat:     chat,
		monitor:  monitor,
		log:      log.With("connection_id", id, "username", identity.Username),
		joined:   make(map[string]struct{}),
	}
	s.state.Store(int32(Authenticated))
	return s
}

func (s *Session) ID() string                { return s.id }
func (s *Session) Identity() domain.Identity { return s.identity }

func (s *Session) Sink() contract.EventSink { return s.sink }

func (s *Session) Rooms() []string {
	rooms := make([]string, 0, len(s.joined))
	for name := range s.joined {
		rooms = append(rooms, name)
	}
	return rooms
}

func (s *Session) AddRoom(name string)    { s.joined[name] = struct{}{} }
func (s *Session) RemoveRoom(name string) { delete(s.joined, name) }

// Run drives the session until the client goes away or the server stops.
// It blocks the caller; teardown always leaves every joined room exactly
// once before the connection object is discarded.
func (s *Session) Run(ctx context.Context) {
	s.state.Store(int32(Active))
	s.monitor.ConnectionOpened()
	s.log.Info("User connected", "user_id", s.identity.UserID)

	pumpCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump(pumpCtx)
	}()

	s.readPump(pumpCtx)

	// The read pump is gone: no further events from this client. Leave all
	// rooms while the parent context is still alive so the userLeft
	// notifications reach the remaining members.
	s.state.Store(int32(Terminated))
	s.chat.HandleDisconnect(ctx, s)

	cancel()
	wg.Wait()
	s.sink.Close()
	_ = s.conn.Close()
	s.monitor.ConnectionClosed()
	s.log.Info("Session terminated")
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("Unexpected websocket close", "error", err)
			}
			return
		}
		s.dispatch(ctx, data)
	}
}

// dispatch decodes one client envelope and hands it to the router. Events
// arriving outside the Active state are ignored.
func (s *Session) dispatch(ctx context.Context, data []byte) {
	if State(s.state.Load()) != Active {
		return
	}

	var envelope clientEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.reply(ctx, event.MessageError{Error: "invalid message format"})
		return
	}

	switch envelope.Event {
	case "joinRoom":
		var room string
		_ = json.Unmarshal(envelope.Data, &room)
		s.chat.HandleJoin(ctx, s, room)
	case "sendMessage":
		var payload services.SendPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			s.reply(ctx, event.MessageError{Error: errors.ErrInvalidContent.Error()})
			return
		}
		s.chat.HandleSend(ctx, s, payload)
	case "leaveRoom":
		var room string
		_ = json.Unmarshal(envelope.Data, &room)
		s.chat.HandleLeave(ctx, s, room)
	case "ping":
		s.chat.HandlePing(ctx, s)
	default:
		s.log.Debug("Unknown client event", "event", envelope.Event)
	}
}

// writePump drains the sink towards the wire and keeps the transport-level
// keepalive going. Closing the connection on exit also unblocks the read
// pump when the failure started on the write side.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case e := <-s.sink.Events():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(serverEnvelope{Event: e.EventName(), Data: e}); err != nil {
				s.log.Debug("Write failed, dropping connection", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) reply(ctx context.Context, e event.Event) {
	_ = s.sink.Consume(ctx, e)
}
