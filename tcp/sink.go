package tcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"chat-relay/domain"
)

// connSink is the per-connection outbound path. All frames — responses
// and broadcasts alike — go through one buffered channel drained by a
// single writer goroutine, so frames never interleave on the socket.
// Enqueueing is non-blocking: a full buffer drops the frame rather than
// stalling the dispatcher, which is the failure isolation the broadcast
// fan-out relies on.
type connSink struct {
	mu     sync.Mutex
	closed bool
	out    chan []byte
	done   chan struct{}
	log    *slog.Logger
}

func newConnSink(buffer int, log *slog.Logger) *connSink {
	if buffer <= 0 {
		buffer = 32
	}
	return &connSink{
		out:  make(chan []byte, buffer),
		done: make(chan struct{}),
		log:  log,
	}
}

// Consume implements contract.EventSink for broadcast delivery.
func (s *connSink) Consume(_ context.Context, message domain.Message) error {
	frame, err := json.Marshal(BroadcastFrame{New: WireMessage{
		Author:     message.Author,
		Text:       message.Text,
		ChatroomID: string(message.RoomID),
	}})
	if err != nil {
		return err
	}
	if err := s.enqueue(frame); err != nil {
		BroadcastDrops.Inc()
		return err
	}
	return nil
}

func (s *connSink) enqueue(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return net.ErrClosed
	}
	select {
	case s.out <- frame:
		return nil
	default:
		return fmt.Errorf("outbound buffer full")
	}
}

// Close makes further enqueues fail and lets the writer goroutine drain
// out. Safe to call more than once.
func (s *connSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

// writeLoop drains the outbound channel onto the connection. After the
// first write failure it keeps draining without writing, so enqueuers
// are never blocked by a dead peer. done is closed once the channel is
// fully drained, which the session waits on before closing the socket.
func (s *connSink) writeLoop(conn net.Conn, maxFrameSize int) {
	defer close(s.done)
	broken := false
	for frame := range s.out {
		if broken {
			continue
		}
		if err := WriteFrame(conn, frame, maxFrameSize); err != nil {
			s.log.Debug("outbound write failed", "error", err)
			broken = true
		}
	}
}
