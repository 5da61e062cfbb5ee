package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
)

// recordingSink captures everything a connection would receive on the wire.
type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recordingSink) Consume(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) all() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingSink) byName(name string) []event.Event {
	var out []event.Event
	for _, e := range r.all() {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// fakeSession is the connection as the router sees it.
type fakeSession struct {
	id       string
	identity domain.Identity
	sink     *recordingSink
	rooms    map[string]struct{}
}

func newFakeSession(username string) *fakeSession {
	return &fakeSession{
		id:       "conn-" + username,
		identity: domain.Identity{UserID: "uuid-" + username, Username: username},
		sink:     &recordingSink{},
		rooms:    make(map[string]struct{}),
	}
}

func (f *fakeSession) ID() string                { return f.id }
func (f *fakeSession) Identity() domain.Identity { return f.identity }
func (f *fakeSession) Sink() contract.EventSink  { return f.sink }
func (f *fakeSession) AddRoom(name string)       { f.rooms[name] = struct{}{} }
func (f *fakeSession) RemoveRoom(name string)    { delete(f.rooms, name) }
func (f *fakeSession) Rooms() []string {
	out := make([]string, 0, len(f.rooms))
	for name := range f.rooms {
		out = append(out, name)
	}
	return out
}

func newTestChatService(t *testing.T) (*ChatService, repositories.IMessageRepository) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	store := repositories.NewMessageRepository(db, nil, log)
	sup := workers.NewSupervisor(log, 10*time.Millisecond)
	registry := runtime.NewRegistry(log, store, observability.NewMonitor(), sup, 16)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	registry.Start(ctx)

	moderator, err := runtime.NewEmbeddedModerator(log, '*')
	require.NoError(t, err)

	return NewChatService(log, registry, &moderator), store
}

func TestChatService_SendWithoutContent(t *testing.T) {
	req := require.New(t)
	svc, store := newTestChatService(t)
	sess := newFakeSession("alice")
	ctx := context.Background()

	svc.HandleJoin(ctx, sess, "general")
	svc.HandleSend(ctx, sess, SendPayload{Content: "", Room: "general"})

	// The sender gets a private messageError and nothing was persisted
	req.Len(sess.sink.byName("messageError"), 1)
	req.Empty(sess.sink.byName("newMessage"))

	room, err := store.UpsertRoom("general")
	req.NoError(err)
	persisted, err := store.ListMessages(room)
	req.NoError(err)
	req.Empty(persisted)
}

func TestChatService_SendWithoutTarget(t *testing.T) {
	req := require.New(t)
	svc, _ := newTestChatService(t)
	sess := newFakeSession("alice")

	svc.HandleSend(context.Background(), sess, SendPayload{Content: "hello"})

	errs := sess.sink.byName("messageError")
	req.Len(errs, 1)
	req.Contains(errs[0].(event.MessageError).Error, "no room or recipient")
}

func TestChatService_SendToRoom(t *testing.T) {
	req := require.New(t)
	svc, _ := newTestChatService(t)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	ctx := context.Background()

	svc.HandleJoin(ctx, alice, "general")
	svc.HandleJoin(ctx, bob, "general")
	svc.HandleSend(ctx, alice, SendPayload{Content: "hello", Room: "general"})

	req.Len(alice.sink.byName("messageSent"), 1)
	req.Len(alice.sink.byName("newMessage"), 1)
	req.Len(bob.sink.byName("newMessage"), 1)

	broadcast := bob.sink.byName("newMessage")[0].(event.NewMessage)
	req.Equal("alice", broadcast.Sender)
	req.Equal("hello", broadcast.Content)
}

func TestChatService_RecipientResolvesToDirectRoom(t *testing.T) {
	req := require.New(t)
	svc, store := newTestChatService(t)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	ctx := context.Background()

	// Both have the DM open; bob joined it from his side
	svc.HandleJoin(ctx, bob, domain.DirectRoomName("bob", "alice"))

	// An explicit room is ignored when a recipient is given
	svc.HandleSend(ctx, alice, SendPayload{
		Content:           "psst",
		Room:              "general",
		RecipientUsername: "bob",
	})

	req.Len(bob.sink.byName("newMessage"), 1)

	room, err := store.UpsertRoom("dm_alice_bob")
	req.NoError(err)
	persisted, err := store.ListMessages(room)
	req.NoError(err)
	req.Len(persisted, 1)
	req.Equal("psst", persisted[0].Content)

	// Nothing leaked into the explicit room
	general, err := store.UpsertRoom("general")
	req.NoError(err)
	leaked, err := store.ListMessages(general)
	req.NoError(err)
	req.Empty(leaked)
}

func TestChatService_CensorsBeforePersisting(t *testing.T) {
	req := require.New(t)
	svc, store := newTestChatService(t)
	alice := newFakeSession("alice")
	ctx := context.Background()

	svc.HandleJoin(ctx, alice, "general")
	svc.HandleSend(ctx, alice, SendPayload{Content: "you idiot", Room: "general"})

	room, err := store.UpsertRoom("general")
	req.NoError(err)
	persisted, err := store.ListMessages(room)
	req.NoError(err)
	req.Len(persisted, 1)
	req.Equal("you *****", persisted[0].Content)

	// The broadcast copy is the censored one too
	broadcast := alice.sink.byName("newMessage")[0].(event.NewMessage)
	req.Equal("you *****", broadcast.Content)
}

func TestChatService_PersistenceFailureBecomesPrivateError(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockIMessageRepository(ctrl)
	ref := repositories.RoomRef{ID: uuid.New(), Name: "general"}
	store.EXPECT().UpsertRoom("general").Return(ref, nil).AnyTimes()
	store.EXPECT().ListMessages(ref).Return(nil, nil).AnyTimes()
	store.EXPECT().
		AppendMessage(ref, "alice", "hello").
		Return(domain.Message{}, fmt.Errorf("disk full"))

	log := slog.Default()
	sup := workers.NewSupervisor(log, 10*time.Millisecond)
	registry := runtime.NewRegistry(log, store, observability.NewMonitor(), sup, 16)

	actorCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	registry.Start(actorCtx)

	moderator, err := runtime.NewEmbeddedModerator(log, '*')
	req.NoError(err)
	svc := NewChatService(log, registry, &moderator)

	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	ctx := context.Background()

	svc.HandleJoin(ctx, alice, "general")
	svc.HandleJoin(ctx, bob, "general")
	svc.HandleSend(ctx, alice, SendPayload{Content: "hello", Room: "general"})

	// The failure stays private to the sender and never reaches broadcast
	errs := alice.sink.byName("messageError")
	req.Len(errs, 1)
	req.Contains(errs[0].(event.MessageError).Error, "failed to process message")
	req.Empty(alice.sink.byName("newMessage"))
	req.Empty(bob.sink.byName("newMessage"))
}

func TestChatService_JoinWithEmptyName(t *testing.T) {
	req := require.New(t)
	svc, _ := newTestChatService(t)
	sess := newFakeSession("alice")

	svc.HandleJoin(context.Background(), sess, "")

	req.Len(sess.sink.byName("roomError"), 1)
	req.Empty(sess.Rooms())
}

func TestChatService_Ping(t *testing.T) {
	req := require.New(t)
	svc, _ := newTestChatService(t)
	sess := newFakeSession("alice")

	svc.HandlePing(context.Background(), sess)

	events := sess.sink.all()
	req.Len(events, 1)
	req.Equal(event.Pong("pong"), events[0])
}

func TestChatService_DisconnectLeavesEveryRoom(t *testing.T) {
	req := require.New(t)
	svc, _ := newTestChatService(t)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	ctx := context.Background()

	svc.HandleJoin(ctx, alice, "general")
	svc.HandleJoin(ctx, alice, "random")
	svc.HandleJoin(ctx, bob, "general")
	svc.HandleJoin(ctx, bob, "random")

	svc.HandleDisconnect(ctx, alice)

	req.Empty(alice.Rooms())
	req.Len(bob.sink.byName("userLeft"), 2)

	// One userLeft per shared room, never more
	svc.HandleDisconnect(ctx, alice)
	req.Len(bob.sink.byName("userLeft"), 2)
}

func TestChatService_LeaveRestoresNotifications(t *testing.T) {
	req := require.New(t)
	svc, _ := newTestChatService(t)
	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	ctx := context.Background()

	svc.HandleJoin(ctx, alice, "general")
	svc.HandleJoin(ctx, bob, "general")
	svc.HandleLeave(ctx, bob, "general")

	svc.HandleSend(ctx, alice, SendPayload{Content: "anyone here", Room: "general"})

	req.Len(alice.sink.byName("newMessage"), 1)
	req.Empty(bob.sink.byName("newMessage"))
}
