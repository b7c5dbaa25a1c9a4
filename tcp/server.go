package tcp

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"chat-relay/errors"
)

// Options are the transport knobs supplied by process configuration.
type Options struct {
	IdleTimeout          time.Duration
	MaxFrameSize         int
	ConnectionBufferSize int
	// MaxConnections bounds concurrent sessions; a connection arriving
	// with no free slot is closed immediately. Zero means unbounded.
	MaxConnections int
}

// Server accepts connections and spawns one Session per connection.
// It never waits for sessions to finish.
type Server struct {
	log        *slog.Logger
	dispatcher *Dispatcher
	opts       Options

	listener  net.Listener
	closeOnce sync.Once
}

func NewServer(log *slog.Logger, dispatcher *Dispatcher, opts Options) *Server {
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = 1 << 20
	}
	return &Server{log: log, dispatcher: dispatcher, opts: opts}
}

// Listen binds the first free port at or after the configured one,
// probing forward one port at a time for at most searchRange attempts.
func (s *Server) Listen(host string, port, searchRange int) error {
	if searchRange < 1 {
		searchRange = 1
	}
	for attempt := 0; attempt < searchRange; attempt++ {
		addr := fmt.Sprintf("%s:%d", host, port+attempt)
		listener, err := net.Listen("tcp", addr)
		if err == nil {
			s.listener = listener
			s.log.Info("listening", "addr", listener.Addr().String())
			return nil
		}
		s.log.Debug("port unavailable, probing forward", "addr", addr, "error", err)
	}
	return fmt.Errorf("%w: %d to %d", errors.ErrPortExhausted, port, port+searchRange-1)
}

// Addr returns the bound address; only valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Run accepts connections until the context is canceled or the listening
// socket is closed. It satisfies contract.Worker so the supervisor can
// own its lifecycle.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	var admission chan struct{}
	if s.opts.MaxConnections > 0 {
		admission = make(chan struct{}, s.opts.MaxConnections)
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		if admission != nil {
			select {
			case admission <- struct{}{}:
			default:
				s.log.Warn("connection refused, session limit reached", "addr", conn.RemoteAddr().String())
				_ = conn.Close()
				continue
			}
		}

		s.log.Info("client connected", "addr", conn.RemoteAddr().String())
		session := NewSession(conn, s.dispatcher, s.log,
			s.opts.IdleTimeout, s.opts.MaxFrameSize, s.opts.ConnectionBufferSize)
		go func() {
			defer func() {
				if admission != nil {
					<-admission
				}
			}()
			session.Run(ctx)
		}()
	}
}

// Close shuts the listening socket. Idempotent, and quiet even when the
// socket is already in an error state.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}
