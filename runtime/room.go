package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/repositories"
)

// Member is one connection's presence in a room.
type Member struct {
	ID       string // connection id, unique per session
	Username string
	Sink     contract.EventSink
}

type command interface{}

type joinCommand struct {
	member Member
	reply  chan error
}

type sendCommand struct {
	member  Member
	content string
	reply   chan error
}

type leaveCommand struct {
	connID   string
	username string
	reply    chan struct{}
}

// roomActor is the single owner of one room: membership changes,
// persistence writes and broadcasts all go through its command channel, so
// a broadcast always sees a consistent membership snapshot and the
// broadcast order matches the persisted order. Blocking store calls only
// suspend this room, never the others.
type roomActor struct {
	name     string
	log      *slog.Logger
	store    repositories.IMessageRepository
	monitor  *observability.Monitor
	commands chan command
	members  map[string]Member
	ref      *repositories.RoomRef // cached after the first upsert
}

func newRoomActor(name string, log *slog.Logger, store repositories.IMessageRepository,
	monitor *observability.Monitor, bufferSize int) *roomActor {
	return &roomActor{
		name:     name,
		log:      log.With("room", name),
		store:    store,
		monitor:  monitor,
		commands: make(chan command, bufferSize),
		members:  make(map[string]Member),
	}
}

// Run consumes commands until the context is cancelled. Membership lives on
// the struct, so a supervised restart after a panic keeps the room intact.
func (a *roomActor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.log.Debug("Stopping room actor")
			return ctx.Err()
		case cmd, ok := <-a.commands:
			if !ok {
				return nil
			}
			switch c := cmd.(type) {
			case joinCommand:
				c.reply <- a.guard(func() error { return a.handleJoin(ctx, c.member) })
			case sendCommand:
				c.reply <- a.guard(func() error { return a.handleSend(ctx, c.member, c.content) })
			case leaveCommand:
				_ = a.guard(func() error {
					a.handleLeave(ctx, c.connID, c.username)
					return nil
				})
				c.reply <- struct{}{}
			}
		}
	}
}

// guard contains a panic inside one command so the waiting caller always
// gets its reply and the actor keeps serving the room. Without it a panicking
// store call would leave the reply channel unwritten and wedge the caller
// for the lifetime of its context.
func (a *roomActor) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("Recovered panic in room command", "panic", r)
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return fn()
}

// handleJoin delivers the full ordered history to the joiner before adding
// it to the member set, so every message the new member will receive live
// was persisted strictly after the history snapshot. Rejoining an already
// joined room re-reads the history but changes nothing and notifies nobody.
func (a *roomActor) handleJoin(ctx context.Context, m Member) error {
	ref, err := a.roomRef()
	if err != nil {
		return err
	}
	messages, err := a.store.ListMessages(ref)
	if err != nil {
		return err
	}

	a.deliver(ctx, m, toHistory(messages))

	if _, alreadyIn := a.members[m.ID]; !alreadyIn {
		a.members[m.ID] = m
		a.broadcastExcluding(ctx, m.ID, event.UserJoined{Username: m.Username})
	}
	return nil
}

// handleSend persists then broadcasts. Any failure before the append
// returns to the caller without a single member having seen anything; a
// failure of the append itself leaves the room upserted with no new
// message, which is a valid state.
func (a *roomActor) handleSend(ctx context.Context, m Member, content string) error {
	ref, err := a.roomRef()
	if err != nil {
		return err
	}
	message, err := a.store.AppendMessage(ref, m.Username, content)
	if err != nil {
		return err
	}
	a.monitor.IncrMessagesPersisted()

	// Private acknowledgment first: if the sender is a member it observes
	// its messageSent before its own live copy.
	a.deliver(ctx, m, event.MessageSent{Success: true, MessageID: message.ID.String()})
	a.broadcast(ctx, event.NewMessage{
		Sender:    message.Sender,
		Content:   message.Content,
		Timestamp: message.CreatedAt,
	})
	return nil
}

func (a *roomActor) handleLeave(ctx context.Context, connID, username string) {
	if _, ok := a.members[connID]; !ok {
		return
	}
	delete(a.members, connID)
	a.broadcast(ctx, event.UserLeft{Username: username})
}

func (a *roomActor) roomRef() (repositories.RoomRef, error) {
	if a.ref != nil {
		return *a.ref, nil
	}
	ref, err := a.store.UpsertRoom(a.name)
	if err != nil {
		return repositories.RoomRef{}, err
	}
	a.ref = &ref
	return ref, nil
}

// broadcast delivers to every current member, the actor being the only
// writer of the member set.
func (a *roomActor) broadcast(ctx context.Context, e event.Event) {
	a.broadcastExcluding(ctx, "", e)
}

func (a *roomActor) broadcastExcluding(ctx context.Context, excludedID string, e event.Event) {
	for id, m := range a.members {
		if id == excludedID {
			continue
		}
		a.deliver(ctx, m, e)
	}
}

// deliver pushes one event into one sink. A gone or saturated consumer is
// logged and dropped, never surfaced as an error to anyone.
func (a *roomActor) deliver(ctx context.Context, m Member, e event.Event) {
	if err := m.Sink.Consume(ctx, e); err != nil {
		a.monitor.IncrDeliveriesDropped()
		a.log.Warn("Dropped delivery",
			"event", e.EventName(),
			"connection_id", m.ID,
			"error", err)
		return
	}
	a.monitor.IncrEventsDelivered()
}

func toHistory(messages []domain.Message) event.MessageHistory {
	return lo.Map(messages, func(m domain.Message, _ int) event.NewMessage {
		return event.NewMessage{
			Sender:    m.Sender,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		}
	})
}
