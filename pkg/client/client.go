// Package client implements the gateway's client side: a reconnection state
// machine that owns the local view of connection state, performs
// exponential-backoff reconnects, and exposes a subscribe/send façade to the
// rest of the application.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vedant-vijay/TaskSync/pkg/protocol"
)

// ErrNotConnected is surfaced by Send when the transport is not open.
// Callers must not assume delivery.
var ErrNotConnected = errors.New("client: transport is not open")

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateAuthenticating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateReady:
		return "READY"
	}
	return "UNKNOWN"
}

// Conn abstracts one transport session so tests can substitute a fake.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// DialFunc opens a transport session to the gateway.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Handler receives the payload of one inbound envelope.
type Handler func(payload json.RawMessage)

type subscription struct {
	fn Handler
}

type Config struct {
	URL string
	// Dial defaults to the WebSocket dialer.
	Dial DialFunc
	// Retry defaults to DefaultRetryPolicy.
	Retry backoff.BackOff
}

type Client struct {
	logger *slog.Logger
	url    string
	dial   DialFunc

	mu         sync.Mutex
	token      string
	state      State
	connecting bool // guards against concurrent connection attempts
	conn       Conn
	readCancel context.CancelFunc
	retryTimer *time.Timer
	retry      backoff.BackOff
	listeners  map[string][]*subscription
	closed     bool
}

func New(logger *slog.Logger, cfg Config) *Client {
	dial := cfg.Dial
	if dial == nil {
		dial = DialWebSocket
	}
	retry := cfg.Retry
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &Client{
		logger:    logger.With(slog.String("component", "gateway_client")),
		url:       cfg.URL,
		dial:      dial,
		retry:     retry,
		listeners: make(map[string][]*subscription),
	}
}

// DefaultRetryPolicy yields the reconnect delay sequence 1s, 2s, 4s, ...
// capped at 30s. A successful open resets it to the start.
func DefaultRetryPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// SetToken stores the credential used for the in-band authenticate. An empty
// token means deliberate logout: any pending reconnect is cancelled.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	if token == "" {
		c.cancelRetryLocked()
	}
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the connection is authenticated. Higher-level actions
// must be deferred or rejected until Ready.
func (c *Client) Ready() bool {
	return c.State() == StateReady
}

// Connect starts a connection attempt unless one is already in flight or a
// live connection exists. The explicit connecting flag, not transport state,
// closes the race between two near-simultaneous triggers.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.closed || c.connecting || c.conn != nil {
		c.mu.Unlock()
		return
	}
	token := c.token
	if token == "" {
		c.logger.Warn("No credential present, not connecting")
		c.mu.Unlock()
		return
	}
	c.connecting = true
	c.state = StateConnecting
	c.mu.Unlock()

	go c.run(token)
}

func (c *Client) run(token string) {
	conn, err := c.dial(context.Background(), c.url)

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.logger.Warn("Connection attempt failed", slog.Any("error", err))
		c.transitionClosedLocked()
		c.mu.Unlock()
		return
	}
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.retry.Reset()
	readCtx, cancel := context.WithCancel(context.Background())
	c.readCancel = cancel
	c.mu.Unlock()

	// Authenticate immediately on open.
	frame, err := protocol.Encode(protocol.TypeAuthenticate, protocol.AuthenticatePayload{Token: token})
	if err == nil {
		err = conn.Write(readCtx, frame)
	}
	if err != nil {
		c.logger.Warn("Failed to send authenticate", slog.Any("error", err))
		c.teardownConn(conn)
		return
	}
	c.mu.Lock()
	if c.conn == conn {
		c.state = StateAuthenticating
	}
	c.mu.Unlock()

	c.readLoop(readCtx, conn)
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.logger.Info("Connection closed", slog.Any("error", err))
			c.teardownConn(conn)
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("Dropping malformed inbound frame", slog.Any("error", err))
			continue
		}
		if env.Type == protocol.TypeAuthenticated {
			c.mu.Lock()
			if c.conn == conn {
				c.state = StateReady
			}
			c.mu.Unlock()
		}
		c.dispatch(env.Type, env.Payload)
	}
}

// dispatch invokes subscribers synchronously in subscription order.
func (c *Client) dispatch(eventType string, payload json.RawMessage) {
	c.mu.Lock()
	subs := make([]*subscription, len(c.listeners[eventType]))
	copy(subs, c.listeners[eventType])
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fn(payload)
	}
}

// teardownConn closes conn and, when it is still the active connection, runs
// the close transition (scheduling a reconnect when a credential remains).
func (c *Client) teardownConn(conn Conn) {
	conn.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	if c.readCancel != nil {
		c.readCancel()
		c.readCancel = nil
	}
	c.conn = nil
	c.transitionClosedLocked()
}

// transitionClosedLocked moves to DISCONNECTED and schedules a reconnect if a
// credential is still present. Caller holds c.mu.
func (c *Client) transitionClosedLocked() {
	c.state = StateDisconnected
	if c.closed || c.token == "" {
		return
	}
	delay := c.retry.NextBackOff()
	c.logger.Info("Scheduling reconnect", slog.Duration("delay", delay))
	c.retryTimer = time.AfterFunc(delay, c.Connect)
}

func (c *Client) cancelRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// Send marshals and writes one envelope. The failure is surfaced, not
// thrown: a client that is not open returns ErrNotConnected.
func (c *Client) Send(msgType string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()
	if conn == nil || state < StateOpen {
		return ErrNotConnected
	}
	frame, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	return conn.Write(context.Background(), frame)
}

// Subscribe registers a callback for one event type and returns the matching
// unsubscribe. Multiple independent subscribers per type are supported;
// unsubscribing removes exactly one callback instance.
func (c *Client) Subscribe(eventType string, fn Handler) (unsubscribe func()) {
	sub := &subscription{fn: fn}
	c.mu.Lock()
	c.listeners[eventType] = append(c.listeners[eventType], sub)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.listeners[eventType]
		for i, s := range subs {
			if s == sub {
				c.listeners[eventType] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Close is deliberate teardown: the credential is dropped, any pending
// reconnect is cancelled, and the transport is closed.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.token = ""
	c.cancelRetryLocked()
	conn := c.conn
	c.conn = nil
	if c.readCancel != nil {
		c.readCancel()
		c.readCancel = nil
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
