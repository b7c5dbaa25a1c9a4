package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"chat-relay/contract"
	"chat-relay/domain"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	received []domain.Message
}

func (s *recordingSink) Consume(_ context.Context, message domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, message)
	return nil
}

func TestRegistry_RegisterIsInsertIfAbsent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	first := domain.NewRoom("r1", "room1")
	first.PostMessage(domain.NewMessage("alice", "hi", "r1"))
	history := registry.Register(first, "s1", &recordingSink{})
	req.Len(history, 1)

	// A racing register with the same ID must join the live instance,
	// not replace it.
	history = registry.Register(domain.NewRoom("r1", "room1"), "s2", &recordingSink{})
	req.Len(history, 1)
	req.Equal("hi", history[0].Text)
}

func TestRegistry_JoinReturnsHistorySnapshot(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	_, ok := registry.Join("missing", "s1", &recordingSink{})
	req.False(ok)

	registry.Register(domain.NewRoom("r1", "room1"), "s1", &recordingSink{})
	registry.Append("r1", domain.NewMessage("alice", "one", "r1"))
	registry.Append("r1", domain.NewMessage("alice", "two", "r1"))

	history, ok := registry.Join("r1", "s2", &recordingSink{})
	req.True(ok)
	req.Len(history, 2)
	req.Equal("one", history[0].Text)
	req.Equal("two", history[1].Text)
}

func TestRegistry_AppendReachesEveryMember(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	sender := &recordingSink{}
	other := &recordingSink{}
	registry.Register(domain.NewRoom("r1", "room1"), "s1", sender)
	registry.Join("r1", "s2", other)

	sequence, sinks, ok := registry.Append("r1", domain.NewMessage("alice", "hi", "r1"))
	req.True(ok)
	req.Len(sequence, 1)
	// The snapshot includes the sender's own sink.
	req.Len(sinks, 2)
}

func TestRegistry_LeaveKeepsRoomRegistered(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register(domain.NewRoom("r1", "room1"), "s1", &recordingSink{})
	registry.Leave("r1", "s1")

	// No eviction: the room outlives its last member.
	req.True(registry.Contains("r1"))
	rooms, members := registry.Stats()
	req.Equal(1, rooms)
	req.Equal(0, members)

	_, _, ok := registry.Append("r1", domain.NewMessage("alice", "hi", "r1"))
	req.True(ok)
}

func TestRegistry_ConcurrentAppendsLoseNothing(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	registry.Register(domain.NewRoom("r1", "room1"), "s1", &recordingSink{})

	const posters = 50
	var wg sync.WaitGroup
	for i := 0; i < posters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, ok := registry.Append("r1", domain.NewMessage("alice", fmt.Sprintf("m%d", n), "r1"))
			req.True(ok)
		}(i)
	}
	wg.Wait()

	history, ok := registry.Join("r1", "s2", &recordingSink{})
	req.True(ok)
	req.Len(history, posters)

	seen := make(map[string]struct{}, posters)
	for _, message := range history {
		seen[message.Text] = struct{}{}
	}
	req.Len(seen, posters)
}

var _ contract.EventSink = (*recordingSink)(nil)
