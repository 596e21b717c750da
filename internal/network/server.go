// Package network serves the engine over TCP. Each line a client sends is
// a JSON request {"query": "..."}; each answer is one JSON envelope.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/goccy/go-json"

	"github.com/leengari/cardinaldb/internal/engine"
	"github.com/leengari/cardinaldb/internal/executor"
	"github.com/leengari/cardinaldb/internal/logging"
)

type Request struct {
	Query string `json:"query"`
}

// Server accepts connections and gives each its own session
type Server struct {
	engine *engine.Engine
	logger *slog.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	return &Server{
		engine: eng,
		logger: logging.OrDefault(logger).With("component", "server"),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start listens on port and serves until ctx is cancelled
func Start(ctx context.Context, port int, eng *engine.Engine, logger *slog.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", port, err)
	}
	return NewServer(eng, logger).Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then closes
// the open connections and waits for their handlers
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("Running", "addr", listener.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		listener.Close()
		s.closeConns()
	})
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("server stopped")
				return nil
			}
			s.logger.Error("Failed to accept connection", "error", err)
			continue
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	logger := s.logger.With("remote", conn.RemoteAddr().String())
	logger.Debug("client connected")
	defer logger.Debug("client disconnected")

	session := s.engine.Session()
	session.AddObserver(engine.NewLoggingObserver(logger))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error("decode error", "error", err)
			_ = encoder.Encode(executor.Failure(fmt.Sprintf("Invalid request format: %v", err)))
			return
		}

		if req.Query == "exit" || req.Query == "\\q" {
			return
		}

		res, err := session.Execute(ctx, req.Query)
		if err != nil {
			logger.Warn("statement failed", "query", req.Query, "error", err)
		}
		if err := encoder.Encode(engine.Envelope(res, err)); err != nil {
			logger.Error("encode error", "error", err)
			return
		}
	}
}
