// Package domain contains core concepts of the chat relay.
// This file defines Message events and related rules.
// Messages are immutable once constructed.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event. Its position in a room's
// history is its index in the append-only sequence.
type Message struct {
	ID        uuid.UUID
	Author    string
	Text      string
	RoomID    RoomID
	CreatedAt time.Time
}

// NewMessage stamps a fresh identifier and creation time on the message.
func NewMessage(author, text string, roomID RoomID) Message {
	return Message{
		ID:        uuid.New(),
		Author:    author,
		Text:      text,
		RoomID:    roomID,
		CreatedAt: time.Now().UTC(),
	}
}
