package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"chat-relay/domain"

	"github.com/google/uuid"
)

// Session owns one accepted connection's lifecycle: read a frame,
// dispatch it, respond, repeat until EOF, idle timeout, or a protocol
// error. Each session runs in its own goroutine; its fields are only
// touched from that goroutine except the sink, which is safe for
// concurrent broadcasters.
type Session struct {
	id          string
	conn        net.Conn
	sink        *connSink
	dispatcher  *Dispatcher
	log         *slog.Logger
	idleTimeout time.Duration
	maxFrame    int

	currentRoom domain.RoomID
}

func NewSession(conn net.Conn, dispatcher *Dispatcher, log *slog.Logger,
	idleTimeout time.Duration, maxFrame, bufferSize int) *Session {
	return &Session{
		id:          uuid.NewString(),
		conn:        conn,
		sink:        newConnSink(bufferSize, log),
		dispatcher:  dispatcher,
		log:         log,
		idleTimeout: idleTimeout,
		maxFrame:    maxFrame,
	}
}

func (s *Session) ID() string                          { return s.id }
func (s *Session) Sink() *connSink                     { return s.sink }
func (s *Session) CurrentRoom() domain.RoomID          { return s.currentRoom }
func (s *Session) SetCurrentRoom(roomID domain.RoomID) { s.currentRoom = roomID }

// Run drives the receive → dispatch → respond loop.
func (s *Session) Run(ctx context.Context) {
	ConnectedSessions.Inc()
	go s.sink.writeLoop(s.conn, s.maxFrame)

	defer func() {
		s.dispatcher.release(s)
		s.sink.Close()
		// Give the writer a bounded window to flush queued frames, the
		// final error response included, before tearing the socket down.
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		<-s.sink.done
		_ = s.conn.Close()
		ConnectedSessions.Dec()
		s.log.Info("session closed", "session_id", s.id)
	}()

	for {
		if s.idleTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		payload, err := ReadFrame(s.conn, s.maxFrame)
		if err != nil {
			// Idle expiry and peer hangup get no response: the peer
			// is unreachable by definition. Everything else gets a
			// best-effort 500 before the connection closes.
			if isDisconnect(err) {
				return
			}
			s.respond(errorResponse(err))
			return
		}

		resp, fatal := s.handle(ctx, payload)
		s.respond(resp)
		if fatal != nil {
			s.log.Warn("closing session after protocol error", "session_id", s.id, "error", fatal)
			return
		}
	}
}

// handle shields the loop from dispatcher panics so a broken request can
// never take the listener or sibling sessions down with it.
func (s *Session) handle(ctx context.Context, payload []byte) (resp Response, fatal error) {
	defer func() {
		if r := recover(); r != nil {
			fatal = fmt.Errorf("dispatch panic: %v", r)
			resp = errorResponse(fatal)
		}
	}()
	return s.dispatcher.Dispatch(ctx, payload, s)
}

func (s *Session) respond(resp Response) {
	frame, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("response marshal failed", "session_id", s.id, "error", err)
		return
	}
	if err := s.sink.enqueue(frame); err != nil {
		s.log.Warn("response not delivered", "session_id", s.id, "error", err)
	}
}

func isDisconnect(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
