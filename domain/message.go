package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event.
type Message struct {
	ID        uuid.UUID // unique identifier, assigned by the store
	Room      string
	Sender    string // display name of the author
	Content   string
	CreatedAt time.Time
}
