// Package runtime owns the process-wide chatroom registry and the worker
// supervision machinery. It contains no protocol or persistence logic.
package runtime

import (
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
)

// roomState pairs a room's history with its active member sinks.
// state.mu serializes every mutation and broadcast snapshot for that room;
// the registry-level lock only guards the rooms map itself.
type roomState struct {
	mu      sync.Mutex
	room    *domain.Room
	members map[string]contract.EventSink // keyed by session ID
}

// Registry is the single source of truth for which rooms are live and who
// is connected to them. Entries are never evicted: a room stays registered
// for the lifetime of the process even after its last member leaves.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]*roomState)}
}

// Register inserts the room if absent and adds the session as a member,
// returning the history known so far. When two connections race to
// register the same identifier, the loser joins the winner's instance,
// so no history is ever lost to a duplicate insert.
func (r *Registry) Register(room *domain.Room, sessionID string, sink contract.EventSink) []domain.Message {
	r.mu.Lock()
	state, ok := r.rooms[room.ID]
	if !ok {
		state = &roomState{room: room, members: make(map[string]contract.EventSink)}
		r.rooms[room.ID] = state
	}
	r.mu.Unlock()

	state.mu.Lock()
	defer state.mu.Unlock()
	state.members[sessionID] = sink
	return state.room.Messages()
}

// Join adds the session to an already-live room and returns its history.
// The second return value is false when the room is not in the registry;
// the caller then decides whether to rehydrate it from persistence.
func (r *Registry) Join(roomID domain.RoomID, sessionID string, sink contract.EventSink) ([]domain.Message, bool) {
	r.mu.RLock()
	state, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	state.members[sessionID] = sink
	return state.room.Messages(), true
}

// Append adds the message to the room's history and returns the full
// sequence (for persistence) together with a snapshot of the member sinks
// (for broadcast). The snapshot lets the caller fan out after releasing
// the room lock so one slow recipient cannot stall the room.
func (r *Registry) Append(roomID domain.RoomID, message domain.Message) ([]domain.Message, []contract.EventSink, bool) {
	r.mu.RLock()
	state, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	state.room.PostMessage(message)

	sinks := make([]contract.EventSink, 0, len(state.members))
	for _, sink := range state.members {
		sinks = append(sinks, sink)
	}
	return state.room.Messages(), sinks, true
}

// Leave removes the session from the room's member set. The room entry
// itself stays registered.
func (r *Registry) Leave(roomID domain.RoomID, sessionID string) {
	r.mu.RLock()
	state, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	delete(state.members, sessionID)
}

// Contains reports whether the room is live in the registry.
func (r *Registry) Contains(roomID domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Stats returns the number of live rooms and active member slots,
// for the heartbeat worker and gauges.
func (r *Registry) Stats() (rooms, members int) {
	r.mu.RLock()
	states := make([]*roomState, 0, len(r.rooms))
	for _, state := range r.rooms {
		states = append(states, state)
	}
	r.mu.RUnlock()

	for _, state := range states {
		state.mu.Lock()
		members += len(state.members)
		state.mu.Unlock()
	}
	return len(states), members
}
