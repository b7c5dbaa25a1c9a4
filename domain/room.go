package domain

// RoomID is the stable identifier assigned by the persistence layer
// when the room is created.
type RoomID string

// Room holds a chatroom's history. Insertion order is chronological order
// and the sequence is append-only. Room itself carries no locking; callers
// serialize access (see runtime.Registry).
type Room struct {
	ID       RoomID
	Name     string
	messages []Message
}

func NewRoom(id RoomID, name string) *Room {
	return &Room{ID: id, Name: name}
}

func (r *Room) PostMessage(message Message) {
	r.messages = append(r.messages, message)
}

// Messages returns a copy of the history so callers can release the room
// lock before serializing or persisting it.
func (r *Room) Messages() []Message {
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *Room) Len() int {
	return len(r.messages)
}
