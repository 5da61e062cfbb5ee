package errors

import "fmt"

var (
	// Handshake / credential failure. The only error that terminates a
	// connection; everything below stays scoped to a single operation.
	ErrUnauthenticated = fmt.Errorf("unauthenticated")

	// Client input failures, replied privately to the sender.
	ErrInvalidRoomName   = fmt.Errorf("invalid room name")
	ErrNoTargetSpecified = fmt.Errorf("no room or recipient specified")
	ErrInvalidContent    = fmt.Errorf("missing or invalid content")

	// Account management.
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrMalformedHash      = fmt.Errorf("malformed password hash")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")

	// Runtime.
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")
)
