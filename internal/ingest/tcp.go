package ingest

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/xtxerr/hivewatch/config"
	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/metrics"
)

// TCPSource accepts producer connections and reads one JSON event per line.
// Malformed lines are logged and counted, never fatal.
type TCPSource struct {
	addr        string
	maxLineSize int

	mu       sync.Mutex
	listener net.Listener
}

// NewTCPSource creates a source listening on addr.
func NewTCPSource(addr string, maxLineSize int) *TCPSource {
	if addr == "" {
		addr = config.DefaultIngestListenAddress
	}
	if maxLineSize <= 0 {
		maxLineSize = config.DefaultMaxEventLineSize
	}
	return &TCPSource{addr: addr, maxLineSize: maxLineSize}
}

// Name implements Source.
func (s *TCPSource) Name() string { return "tcp" }

// Listen binds the listener. Run calls it when it has not been called.
func (s *TCPSource) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("ingest listen: %w", err)
	}
	s.listener = ln
	log.Info("ingest listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *TCPSource) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run implements Source.
func (s *TCPSource) Run(ctx context.Context, out chan<- Item) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	var wg sync.WaitGroup
	var connMu sync.Mutex
	conns := make(map[net.Conn]struct{})

	go func() {
		<-ctx.Done()
		ln.Close()
		connMu.Lock()
		for c := range conns {
			c.Close()
		}
		connMu.Unlock()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			log.Error("ingest accept error", "error", err)
			continue
		}

		connMu.Lock()
		conns[conn] = struct{}{}
		connMu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				connMu.Lock()
				delete(conns, conn)
				connMu.Unlock()
				conn.Close()
			}()
			s.readLines(ctx, conn, out)
		}()
	}
}

func (s *TCPSource) readLines(ctx context.Context, conn net.Conn, out chan<- Item) {
	remote := conn.RemoteAddr().String()
	log.Info("producer connected", "remote", remote)

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), s.maxLineSize)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		e, err := event.Decode(line)
		if err != nil {
			metrics.EventsRejectedTotal.WithLabelValues(s.Name(), ReasonDecode).Inc()
			log.Warn("malformed event line", "remote", remote, "error", err)
			continue
		}
		if !send(ctx, out, Item{Source: s.Name(), Event: e}) {
			return
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		log.Warn("producer stream ended", "remote", remote, "error", err)
		return
	}
	log.Info("producer disconnected", "remote", remote)
}
