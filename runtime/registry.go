package runtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/observability"
	"chat-relay/repositories"
)

// Registry maps room names to their single-owner actors. There is no
// global lock around room operations: the registry mutex only guards the
// map itself, and each room serializes its own joins, sends, leaves and
// broadcasts. Rooms are created lazily and never destroyed; an empty room
// keeps its actor (membership is checked, not room existence).
type Registry struct {
	mu         sync.RWMutex
	log        *slog.Logger
	store      repositories.IMessageRepository
	monitor    *observability.Monitor
	supervisor contract.ISupervisor
	bufferSize int
	rooms      map[string]*roomActor
	ctx        context.Context
}

func NewRegistry(log *slog.Logger, store repositories.IMessageRepository,
	monitor *observability.Monitor, supervisor contract.ISupervisor, bufferSize int) *Registry {
	return &Registry{
		log:        log,
		store:      store,
		monitor:    monitor,
		supervisor: supervisor,
		bufferSize: bufferSize,
		rooms:      make(map[string]*roomActor),
	}
}

// Start pins the context under which room actors run. Must be called before
// the first client event is dispatched.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = ctx
}

// Join adds a member to a room, delivering the room history to the joiner
// and a userJoined notification to the other members.
func (r *Registry) Join(ctx context.Context, roomName string, m Member) error {
	reply := make(chan error, 1)
	if err := r.dispatch(ctx, roomName, joinCommand{member: m, reply: reply}); err != nil {
		return err
	}
	return r.await(ctx, reply)
}

// Send persists a message to a room and broadcasts it to every member,
// sender included.
func (r *Registry) Send(ctx context.Context, roomName string, m Member, content string) error {
	reply := make(chan error, 1)
	if err := r.dispatch(ctx, roomName, sendCommand{member: m, content: content, reply: reply}); err != nil {
		return err
	}
	return r.await(ctx, reply)
}

// Leave removes a member from a room and notifies the remaining members.
// Leaving a room the connection is not in is a no-op.
func (r *Registry) Leave(ctx context.Context, roomName, connID, username string) {
	reply := make(chan struct{}, 1)
	cmd := leaveCommand{connID: connID, username: username, reply: reply}
	if err := r.dispatch(ctx, roomName, cmd); err != nil {
		return
	}
	select {
	case <-reply:
	case <-ctx.Done():
	}
}

func (r *Registry) dispatch(ctx context.Context, roomName string, cmd command) error {
	actor := r.room(roomName)
	select {
	case actor.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// room returns the actor for a name, creating and supervising it on first
// use. A panicking actor is restarted with its membership intact.
func (r *Registry) room(name string) *roomActor {
	r.mu.RLock()
	actor, ok := r.rooms[name]
	r.mu.RUnlock()
	if ok {
		return actor
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if actor, ok = r.rooms[name]; ok {
		return actor
	}

	actor = newRoomActor(name, r.log, r.store, r.monitor, r.bufferSize)
	r.rooms[name] = actor

	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	r.supervisor.Start(ctx, actor)
	return actor
}
