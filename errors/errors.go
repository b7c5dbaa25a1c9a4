package errors

import "fmt"

var (
	// ErrInvalidAuthentication carries the exact reason string clients see
	// on every state-mutating route with bad credentials.
	ErrInvalidAuthentication = fmt.Errorf("Invalid authentication")
	// ErrRoomNotFound is returned when a join or chat references a room
	// unknown to both the registry and the persistence layer.
	ErrRoomNotFound      = fmt.Errorf("Chatroom doesn't exist")
	ErrUserAlreadyExists = fmt.Errorf("username already taken")
	ErrInvalidSignup     = fmt.Errorf("invalid signup request")
	ErrTokenGeneration   = fmt.Errorf("token generation failed")
	ErrPortExhausted     = fmt.Errorf("no available port in search range")
	ErrFrameTooLarge     = fmt.Errorf("frame exceeds maximum size")
	ErrWorkerPanic       = fmt.Errorf("worker panic")
)
