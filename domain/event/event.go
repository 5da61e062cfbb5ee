// Package event defines the server-to-client events of the messaging core.
// Every event is named after its wire envelope and marshals to the payload
// the client receives.
package event

import "time"

// Event is anything the core can push to a connected client.
type Event interface {
	EventName() string
}

// NewMessage is the public copy of a persisted message, broadcast to every
// member of the target room, sender included.
type NewMessage struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (NewMessage) EventName() string { return "newMessage" }

// MessageHistory is the full ordered history of a room, delivered to a
// joining connection as a single batch before any live broadcast.
type MessageHistory []NewMessage

func (MessageHistory) EventName() string { return "messageHistory" }

// MessageSent is the private delivery confirmation for the sender.
type MessageSent struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

func (MessageSent) EventName() string { return "messageSent" }

// MessageError is the private failure reply for a send that never reached
// the broadcast step.
type MessageError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (MessageError) EventName() string { return "messageError" }

// RoomError is the private failure reply for a join.
type RoomError struct {
	Error string `json:"error"`
}

func (RoomError) EventName() string { return "roomError" }

// UserJoined notifies the other members of a room about a new arrival.
type UserJoined struct {
	Username string `json:"username"`
}

func (UserJoined) EventName() string { return "userJoined" }

// UserLeft notifies the remaining members of a room about a departure.
type UserLeft struct {
	Username string `json:"username"`
}

func (UserLeft) EventName() string { return "userLeft" }

// Pong is the fixed liveness token replied to a client ping.
type Pong string

func (Pong) EventName() string { return "pong" }
