package services

import (
	"context"
	"log/slog"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/runtime"
)

// SendPayload is the client-supplied body of a sendMessage event. Exactly
// one of Room or RecipientUsername selects the target; a recipient wins
// over an explicit room and resolves to the canonical direct-message room.
type SendPayload struct {
	Content           string `json:"content" validate:"required"`
	Room              string `json:"room"`
	RecipientUsername string `json:"recipientUsername"`
}

// IChatService routes the application events of one connection. Handlers
// never return errors to the transport: every outcome the sender must learn
// about is delivered as a private reply through the session's own sink.
type IChatService interface {
	HandleJoin(ctx context.Context, s contract.Session, roomName string)
	HandleSend(ctx context.Context, s contract.Session, payload SendPayload)
	HandleLeave(ctx context.Context, s contract.Session, roomName string)
	HandlePing(ctx context.Context, s contract.Session)
	HandleDisconnect(ctx context.Context, s contract.Session)
}

type ChatService struct {
	log       *slog.Logger
	registry  *runtime.Registry
	moderator *moderation.Moderator
	validate  *validator.Validate
}

func NewChatService(log *slog.Logger, registry *runtime.Registry,
	moderator *moderation.Moderator) *ChatService {
	return &ChatService{
		log:       log,
		registry:  registry,
		moderator: moderator,
		validate:  validator.New(),
	}
}

// HandleJoin joins the room and leaves history delivery and the userJoined
// notification to the room actor, which guarantees the history batch
// causally precedes any later broadcast the joiner receives.
func (s *ChatService) HandleJoin(ctx context.Context, sess contract.Session, roomName string) {
	if roomName == "" {
		s.reply(ctx, sess, event.RoomError{Error: errors.ErrInvalidRoomName.Error()})
		return
	}
	if err := s.registry.Join(ctx, roomName, s.member(sess)); err != nil {
		s.log.Error("Join failed", "room", roomName, "connection_id", sess.ID(), "error", err)
		s.reply(ctx, sess, event.RoomError{Error: "failed to join room"})
		return
	}
	sess.AddRoom(roomName)
}

/// HandleSend validates in a fixed order: content, then target resolution,
// then authentication. Any failure is a private messageError and never
// reaches the broadcast step.
func (s *ChatService) HandleSend(ctx context.Context, sess contract.Session, payload SendPayload) {
	if err := s.validate.Struct(payload); err != nil {
		s.reply(ctx, sess, event.MessageError{Error: errors.ErrInvalidContent.Error()})
		return
	}

	var target string
	switch {
	case payload.RecipientUsername != "":
		target = domain.DirectRoomName(sess.Identity().Username, payload.RecipientUsername)
	case payload.Room != "":
		target = payload.Room
	default:
		s.reply(ctx, sess, event.MessageError{Error: errors.ErrNoTargetSpecified.Error()})
		return
	}

	// Defensive: unreachable after a successful handshake.
	if sess.Identity().UserID == "" {
		s.reply(ctx, sess, event.MessageError{Error: errors.ErrUnauthenticated.Error()})
		return
	}

	content := s.censor(sess, payload.Content)

	if err := s.registry.Send(ctx, target, s.member(sess), content); err != nil {
		s.log.Error("Send failed", "room", target, "connection_id", sess.ID(), "error", err)
		s.reply(ctx, sess, event.MessageError{Error: "failed to process message"})
	}
}

// HandleLeave delegates to the room actor; no reply is owed to the leaver.
func (s *ChatService) HandleLeave(ctx context.Context, sess contract.Session, roomName string) {
	if roomName == "" {
		return
	}
	s.registry.Leave(ctx, roomName, sess.ID(), sess.Identity().Username)
	sess.RemoveRoom(roomName)
}

// HandlePing replies with the fixed liveness token; no state change.
func (s *ChatService) HandlePing(ctx context.Context, sess contract.Session) {
	s.reply(ctx, sess, event.Pong("pong"))
}

// HandleDisconnect leaves every joined room, emitting exactly one userLeft
// per room to the remaining members, then forgets the session.
func (s *ChatService) HandleDisconnect(ctx context.Context, sess contract.Session) {
	for _, roomName := range sess.Rooms() {
		s.registry.Leave(ctx, roomName, sess.ID(), sess.Identity().Username)
		sess.RemoveRoom(roomName)
	}
}

func (s *ChatService) censor(sess contract.Session, content string) string {
	censored, foundWords := s.moderator.Censor(content)
	if len(foundWords) > 0 {
		info := whatlanggo.Detect(content)
		s.log.Warn("Censored message content",
			"author", sess.Identity().Username,
			"lang", info.Lang.Iso6391(),
			"words", len(foundWords))
	}
	return censored
}

func (s *ChatService) member(sess contract.Session) runtime.Member {
	return runtime.Member{
		ID:       sess.ID(),
		Username: sess.Identity().Username,
		Sink:     sess.Sink(),
	}
}

// reply pushes a private event to the initiating connection only.
func (s *ChatService) reply(ctx context.Context, sess contract.Session, e event.Event) {
	if err := sess.Sink().Consume(ctx, e); err != nil {
		s.log.Debug("Private reply dropped", "event", e.EventName(), "connection_id", sess.ID())
	}
}
