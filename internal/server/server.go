// Package server provides the hivewatch query server.
//
// The server accepts TCP connections, reads length-delimited request
// messages, dispatches each one to the query engine and writes the response.
// Requests on one connection are answered in order; connections are
// independent, and a fault on one never affects another.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/hivewatch/config"
	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/logging"
	"github.com/xtxerr/hivewatch/internal/metrics"
	"github.com/xtxerr/hivewatch/internal/query"
	"github.com/xtxerr/hivewatch/internal/wire"
)

var log = logging.Component("server")

// Handler answers one raw request.
type Handler interface {
	Handle(ctx context.Context, typ string, params map[string]any) query.Result
}

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// Listen is the address to listen on (e.g., "127.0.0.1:9470").
	Listen string

	// TLS configuration (optional).
	TLSCertFile string
	TLSKeyFile  string

	// MaxMessageSize bounds a single request frame.
	MaxMessageSize int

	// IdleTimeout closes connections idle for this long. Zero disables it.
	IdleTimeout time.Duration

	// Malformed-frame limiting per peer IP.
	FaultLimit  int
	FaultWindow time.Duration
}

// =============================================================================
// Server
// =============================================================================

// Server is the query server.
type Server struct {
	cfg      Config
	handler  Handler
	listener net.Listener
	faults   *FaultLimiter

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	nextConn atomic.Uint64
	shutdown chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// New creates a new server.
func New(cfg Config, h Handler) *Server {
	// Apply defaults
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultQueryListenAddress
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = config.DefaultMaxMessageSize
	}
	if cfg.FaultWindow <= 0 {
		cfg.FaultWindow = config.DefaultFaultWindow
	}

	return &Server{
		cfg:      cfg,
		handler:  h,
		faults:   NewFaultLimiter(cfg.FaultLimit, cfg.FaultWindow),
		conns:    make(map[net.Conn]struct{}),
		shutdown: make(chan struct{}),
	}
}

// Listen binds the listener. Run calls it when it has not been called.
func (s *Server) Listen() error {
	var ln net.Listener
	var err error

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("load TLS cert: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln, err = tls.Listen("tcp", s.cfg.Listen, tlsCfg)
		if err != nil {
			return fmt.Errorf("TLS listen: %w", err)
		}
		log.Info("listening with TLS", "address", ln.Addr().String())
	} else {
		ln, err = net.Listen("tcp", s.cfg.Listen)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		log.Info("listening without TLS", "address", ln.Addr().String())
	}

	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run accepts connections until ctx ends or Shutdown is called.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.shutdown:
		}
	}()

	// Accept connections
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				log.Error("accept error", "error", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// Shutdown stops accepting, closes open connections and waits for their
// goroutines. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.once.Do(func() {
		log.Info("shutting down")
		close(s.shutdown)

		if s.listener != nil {
			s.listener.Close()
		}

		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
		log.Info("shutdown complete")
	})
}

func (s *Server) track(c net.Conn, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open {
		select {
		case <-s.shutdown:
			// accepted while shutting down; the read loop ends at once
			c.Close()
		default:
		}
		s.conns[c] = struct{}{}
		metrics.ConnectionsActive.Inc()
	} else {
		delete(s.conns, c)
		metrics.ConnectionsActive.Dec()
	}
}

// =============================================================================
// Connection Handling
// =============================================================================

// handleConn serves one connection until the peer leaves, a frame cannot be
// read or the server shuts down.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	remoteIP := extractIP(remote)

	if s.faults.IsBlocked(remoteIP) {
		log.Warn("refused after repeated malformed frames", "remote", remote)
		return
	}

	s.track(conn, true)
	defer s.track(conn, false)

	connID := s.nextConn.Add(1)
	ctx = logging.ContextWithRemote(ctx, remote)
	logger := logging.WithContext(ctx, log).With("conn_id", connID)
	logger.Info("connection opened")

	w := wire.NewConn(conn, s.cfg.MaxMessageSize)

	for {
		if s.cfg.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}

		msg, err := w.Read()
		if err != nil {
			s.readFailed(logger, remoteIP, w, err)
			return
		}

		req, err := wire.DecodeRequest(msg)
		if err != nil {
			// Framing is intact, so the connection can continue.
			logger.Debug("malformed request", "id", req.ID, "error", err)
			if werr := w.WriteResponse(errorResponse(req.ID, err)); werr != nil {
				logger.Debug("write failed", "error", werr)
				return
			}
			continue
		}

		res := s.handler.Handle(logging.ContextWithRequestID(ctx, req.ID), req.Type, req.Params)
		if err := w.WriteResponse(toResponse(req.ID, res)); err != nil {
			logger.Debug("write failed", "error", err)
			return
		}
	}
}

func (s *Server) readFailed(logger *slog.Logger, remoteIP string, w *wire.Conn, err error) {
	select {
	case <-s.shutdown:
		logger.Info("connection closed by shutdown")
		return
	default:
	}

	switch {
	case errors.Is(err, io.EOF):
		logger.Info("connection closed")
	case isTimeout(err):
		logger.Info("connection idle, closing")
	case errors.Is(err, errors.ErrMessageTooLarge):
		s.faults.RecordFault(remoteIP)
		logger.Warn("oversized frame, closing", "error", err)
		w.WriteResponse(errorResponse(0, err))
	default:
		s.faults.RecordFault(remoteIP)
		logger.Warn("unreadable frame, closing", "error", err,
			"fault_count", s.faults.FaultCount(remoteIP))
	}
}

func toResponse(id uint64, res query.Result) wire.Response {
	if res.IsOK() {
		return wire.Response{ID: id, Status: wire.StatusOK, Data: res.Data}
	}
	return wire.Response{ID: id, Status: wire.StatusError, Message: res.Message, Code: res.Code}
}

func errorResponse(id uint64, err error) wire.Response {
	return wire.Response{
		ID:      id,
		Status:  wire.StatusError,
		Message: err.Error(),
		Code:    errors.ErrorToCode(err),
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// extractIP extracts the IP address from a remote address string.
func extractIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

func (s *Server) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FaultWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.faults.Cleanup()
		case <-s.shutdown:
			return
		}
	}
}
