// Package client provides a client for the hivewatch query server.
//
// One connection carries many in-flight requests: each request gets a fresh
// id, a read loop routes responses back by id, and callers wait on their own
// channel with a context deadline.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/hivewatch/config"
	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/logging"
	"github.com/xtxerr/hivewatch/internal/wire"
)

var log = logging.Component("client")

// =============================================================================
// State Machine
// =============================================================================

// ClientState represents the connection state of a client.
type ClientState int32

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
)

// String returns the human-readable name of the state.
func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

type stateTransition struct {
	from ClientState
	to   ClientState
}

// validTransitions defines all allowed state transitions.
var validTransitions = map[stateTransition]bool{
	{StateDisconnected, StateConnecting}: true,
	{StateDisconnected, StateClosed}:     true,

	{StateConnecting, StateConnected}:    true,
	{StateConnecting, StateDisconnected}: true,

	{StateConnected, StateDisconnected}: true,
	{StateConnected, StateClosing}:      true,

	{StateClosing, StateClosed}: true,
}

// =============================================================================
// Errors
// =============================================================================

var (
	ErrClientClosed     = errors.New("client is closed")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrTimeout          = errors.New("request timeout")
)

// =============================================================================
// Client
// =============================================================================

// Config holds client configuration.
type Config struct {
	Addr           string
	TLS            bool
	TLSSkipVerify  bool
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	MaxMessageSize int
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           config.DefaultQueryListenAddress,
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
		MaxMessageSize: config.DefaultMaxMessageSize,
	}
}

// Client talks to a query server.
type Client struct {
	cfg       Config
	tlsConfig *tls.Config

	// Connection - protected by mu
	mu   sync.Mutex
	conn net.Conn
	wire *wire.Conn

	state atomic.Int32

	pendingMu sync.RWMutex
	pending   map[uint64]chan wire.Response
	requestID atomic.Uint64

	onDisconnect func(error)

	shutdown chan struct{}
}

// New creates a new client. Zero fields of cfg take their defaults.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	c := &Client{
		cfg:      cfg,
		pending:  make(map[uint64]chan wire.Response),
		shutdown: make(chan struct{}),
	}
	if cfg.TLS {
		c.tlsConfig = &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify}
	}
	return c
}

func (c *Client) getState() ClientState {
	return ClientState(c.state.Load())
}

// transitionFrom moves from one specific state to another.
func (c *Client) transitionFrom(from, to ClientState) bool {
	if !validTransitions[stateTransition{from: from, to: to}] {
		return false
	}
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// =============================================================================
// Connection Management
// =============================================================================

// Connect dials the server.
func (c *Client) Connect(ctx context.Context) error {
	switch c.getState() {
	case StateClosed, StateClosing:
		return ErrClientClosed
	case StateConnected:
		return ErrAlreadyConnected
	}
	if !c.transitionFrom(StateDisconnected, StateConnecting) {
		return fmt.Errorf("cannot connect: current state is %s", c.getState())
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	dialer := &net.Dialer{}
	var conn net.Conn
	var err error
	if c.tlsConfig != nil {
		td := &tls.Dialer{NetDialer: dialer, Config: c.tlsConfig}
		conn, err = td.DialContext(ctx, "tcp", c.cfg.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	}
	if err != nil {
		c.transitionFrom(StateConnecting, StateDisconnected)
		return fmt.Errorf("%w: dial %s: %w", errors.ErrTransport, c.cfg.Addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.wire = wire.NewConn(conn, c.cfg.MaxMessageSize)
	w := c.wire
	c.mu.Unlock()

	c.transitionFrom(StateConnecting, StateConnected)
	log.Debug("connected", "addr", c.cfg.Addr)

	go c.readLoop(w)
	return nil
}

// Close closes the connection. A closed client cannot reconnect.
func (c *Client) Close() error {
	switch c.getState() {
	case StateClosed, StateClosing:
		return nil
	case StateDisconnected, StateConnecting:
		if c.transitionFrom(StateDisconnected, StateClosed) {
			close(c.shutdown)
			c.dropConn()
			return nil
		}
	}
	if !c.transitionFrom(StateConnected, StateClosing) {
		// lost the race to a disconnect; retry from there
		if c.transitionFrom(StateDisconnected, StateClosed) {
			close(c.shutdown)
			c.dropConn()
		}
		return nil
	}

	close(c.shutdown)
	err := c.dropConn()
	c.failPending()
	c.transitionFrom(StateClosing, StateClosed)
	return err
}

func (c *Client) dropConn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.wire = nil
	return err
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// IsConnected returns true if connected.
func (c *Client) IsConnected() bool {
	return c.getState() == StateConnected
}

// State returns the current state as a string.
func (c *Client) State() string {
	return c.getState().String()
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.cfg.Addr
}

// OnDisconnect sets the handler for unexpected disconnection.
func (c *Client) OnDisconnect(fn func(error)) {
	c.pendingMu.Lock()
	c.onDisconnect = fn
	c.pendingMu.Unlock()
}

// =============================================================================
// Read Loop
// =============================================================================

func (c *Client) readLoop(w *wire.Conn) {
	for {
		resp, err := w.ReadResponse()
		if err != nil {
			if c.transitionFrom(StateConnected, StateDisconnected) {
				log.Debug("disconnected", "addr", c.cfg.Addr, "error", err)
				c.dropConn()
				c.failPending()

				c.pendingMu.RLock()
				fn := c.onDisconnect
				c.pendingMu.RUnlock()
				if fn != nil {
					fn(err)
				}
			}
			return
		}

		c.pendingMu.RLock()
		ch, ok := c.pending[resp.ID]
		c.pendingMu.RUnlock()
		if ok {
			select {
			case ch <- resp:
			default:
			}
		}
	}
}

// =============================================================================
// Request/Response
// =============================================================================

// Query sends one request and waits for its response. The error covers
// transport and timeout failures only; a server-side error arrives as a
// response with status "error".
func (c *Client) Query(ctx context.Context, typ string, params map[string]any) (wire.Response, error) {
	if c.getState() != StateConnected {
		return wire.Response{}, ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	id := c.requestID.Add(1)
	ch := make(chan wire.Response, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.mu.Lock()
	w := c.wire
	var err error
	if w == nil {
		err = ErrNotConnected
	} else {
		err = w.WriteRequest(wire.Request{ID: id, Type: typ, Params: params})
	}
	c.mu.Unlock()
	if err != nil {
		return wire.Response{}, fmt.Errorf("write request: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return wire.Response{}, ErrNotConnected
		}
		return resp, nil

	case <-ctx.Done():
		return wire.Response{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())

	case <-c.shutdown:
		return wire.Response{}, ErrClientClosed
	}
}

// call runs a query and binds ok data to out. Error responses become errors.
func (c *Client) call(ctx context.Context, typ string, params map[string]any, out any) error {
	resp, err := c.Query(ctx, typ, params)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := wire.DecodeData(resp.Data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", typ, err)
	}
	return nil
}
