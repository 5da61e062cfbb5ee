//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one client's outbound channel. Consume must never block the
// caller: a full or closed sink drops the event and the room keeps going.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Session is the view the message router has of one authenticated
// connection. The joined-rooms set is owned by the session and is only
// touched from its single reader goroutine.
type Session interface {
	ID() string
	Identity() domain.Identity
	Sink() EventSink
	Rooms() []string
	AddRoom(name string)
	RemoveRoom(name string)
}
