// Package domain contains core concepts of the chat system.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is the verified user attached to a connection at handshake time.
// It is immutable for the lifetime of the connection.
type Identity struct {
	UserID   string
	Username string
}
