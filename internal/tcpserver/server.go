package tcpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"golang.org/x/sync/semaphore"
)

// Handler serves one accepted connection to completion. The connection is
// owned by the handler once dispatched.
type Handler func(ctx context.Context, conn net.Conn)

// Server owns the listening socket and the accept loop. Every accepted
// connection is dispatched to the handler on its own goroutine, so a slow
// session never blocks accepting the next one.
type Server struct {
	addr    string
	logger  *slog.Logger
	handler Handler

	// sessions is nil when the session count is unbounded.
	sessions *semaphore.Weighted

	mutex    sync.Mutex
	listener net.Listener
}

// New creates a TCP server for the given address and handler.
// The address is validated before creating the server. maxSessions > 0 caps
// the number of concurrently served connections; 0 means unbounded.
func New(addr string, maxSessions int, logger *slog.Logger, handler Handler) (*Server, error) {
	if err := validateHost(addr); err != nil {
		return nil, err
	}

	srv := &Server{
		addr:    addr,
		logger:  logger,
		handler: handler,
	}

	if maxSessions > 0 {
		srv.sessions = semaphore.NewWeighted(int64(maxSessions))
	}

	return srv, nil
}

// Start binds the listen address and accepts connections until ctx is
// cancelled. It returns nil on clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	s.listener = listener
	s.mutex.Unlock()

	return s.serve(ctx, listener)
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	// Closing the listener is what breaks Accept out of its block.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("Load balancer ready",
		slog.String("address", listener.Addr().String()))

	var acceptDelay time.Duration

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info("Listener stopped accepting connections")
				return nil
			}

			// Transient failures like fd exhaustion under a connection
			// burst must not take the whole balancer down; back off and
			// keep accepting, the way net/http's Serve does.
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				if acceptDelay == 0 {
					acceptDelay = 5 * time.Millisecond
				} else {
					acceptDelay *= 2
					if acceptDelay > time.Second {
						acceptDelay = time.Second
					}
				}
				s.logger.Warn("Transient accept error",
					slog.String("error", err.Error()),
					slog.Duration("retry_in", acceptDelay))

				select {
				case <-time.After(acceptDelay):
					continue
				case <-ctx.Done():
					s.logger.Info("Listener stopped accepting connections")
					return nil
				}
			}

			return err
		}
		acceptDelay = 0

		if s.sessions != nil {
			if err := s.sessions.Acquire(ctx, 1); err != nil {
				conn.Close()
				listener.Close()
				return nil
			}
		}

		go func(c net.Conn) {
			if s.sessions != nil {
				defer s.sessions.Release(1)
			}
			s.handler(ctx, c)
		}(conn)
	}
}

// Addr returns the bound listen address, or empty before Start has bound it.
// Useful when the configured address uses port 0.
func (s *Server) Addr() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func validateHost(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}
