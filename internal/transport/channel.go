// Package transport delivers the collaboration message stream across an
// unreliable websocket, reconnecting automatically with exponential backoff.
//
// The connection lifecycle is an explicit state machine
// (disconnected → connecting → connected → reconnecting → disconnected) with
// a single scheduled-timer handle, so a deliberate Disconnect can cancel a
// pending reconnect without racing it. The clock is injected; tests drive
// backoff with a fake clock instead of real timers.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"autoflow.app/collab/common/logger"
	"autoflow.app/collab/internal/protocol"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

const (
	DefaultReconnectBase    = 2 * time.Second
	DefaultMaxReconnects    = 5
	DefaultHeartbeatPeriod  = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// ErrNotConnected is logged (not returned) when a send is dropped because
// the channel is not connected.
var ErrNotConnected = errors.New("channel not connected")

// Conn is the subset of a websocket connection the channel uses.
// *websocket.Conn satisfies it directly.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens the underlying socket. Swapped out in tests.
type Dialer func(ctx context.Context, endpoint string) (Conn, error)

// DefaultDialer dials with gorilla's websocket client.
func DefaultDialer(ctx context.Context, endpoint string) (Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	conn, resp, err := d.DialContext(ctx, endpoint, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Callbacks surface channel lifecycle to the owner. All callbacks are
// optional. OnMessage is invoked serially in delivery order.
type Callbacks struct {
	OnMessage func(data []byte)
	// OnOpen fires on every successful connect, including reconnects.
	// The owner re-sends its join handshake here.
	OnOpen func()
	// OnClose fires when the socket drops, before any reconnect decision.
	OnClose func(err error)
	// OnError reports socket errors. Errors do not change state; the close
	// that follows them drives the state machine.
	OnError func(err error)
	// OnConnectionLost fires once when reconnection attempts are exhausted.
	OnConnectionLost func()
	OnStateChange    func(state State)
}

// Options tune the channel. Zero values fall back to defaults.
type Options struct {
	Clock            clockwork.Clock
	Dialer           Dialer
	ReconnectBase    time.Duration
	MaxReconnects    int
	HeartbeatPeriod  time.Duration
	HeartbeatPayload []byte
}

// Channel is one bidirectional message stream per collaboration session.
type Channel struct {
	opts Options
	cbs  Callbacks

	mu            sync.Mutex
	state         State
	conn          Conn
	endpoint      string
	retryAttempt  int
	intentional   bool
	reconnectTmr  clockwork.Timer
	heartbeatStop chan struct{}
	writeMu       sync.Mutex
}

func NewChannel(opts Options, cbs Callbacks) *Channel {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Dialer == nil {
		opts.Dialer = DefaultDialer
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = DefaultReconnectBase
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = DefaultMaxReconnects
	}
	if opts.HeartbeatPeriod <= 0 {
		opts.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	if opts.HeartbeatPayload == nil {
		opts.HeartbeatPayload, _ = protocol.Encode(protocol.Heartbeat{Type: protocol.TypeHeartbeat})
	}
	return &Channel{
		opts:  opts,
		cbs:   cbs,
		state: StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RetryAttempt returns the current reconnect attempt counter.
func (c *Channel) RetryAttempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryAttempt
}

// Connect opens the socket. Idempotent: calling while already connecting or
// connected is a no-op. A dial failure here is returned to the caller and
// does not start the reconnect loop — automatic recovery only applies to
// connections that drop after being established.
func (c *Channel) Connect(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateReconnecting:
		c.mu.Unlock()
		return nil
	}
	c.endpoint = endpoint
	c.intentional = false
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.opts.Dialer(ctx, endpoint)

	c.mu.Lock()
	if c.intentional {
		// Disconnect won the race while we were dialing.
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return nil
	}
	if err != nil {
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return err
	}
	c.establishLocked(conn)
	c.mu.Unlock()

	if c.cbs.OnOpen != nil {
		c.cbs.OnOpen()
	}
	return nil
}

// Send writes one frame. Valid only while connected: otherwise the message
// is dropped (not queued) with a warning, keeping the caller responsive.
func (c *Channel) Send(data []byte) {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		slog.Warn("dropping message, channel not connected", "error", ErrNotConnected)
		return
	}

	c.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		// The read loop observes the broken socket and drives the close.
		slog.Warn("websocket write failed", "error", err)
		if c.cbs.OnError != nil {
			c.cbs.OnError(err)
		}
	}
}

// Disconnect closes the channel deliberately, suppressing reconnection.
// It synchronously stops the heartbeat and any pending reconnect timer, so
// a leave can never race a scheduled redial. Safe to call in any state.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.stopTimersLocked()
	conn := c.conn
	c.conn = nil
	c.retryAttempt = 0
	changed := c.state != StateDisconnected
	if changed {
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// establishLocked wires up a live connection. Caller holds mu.
func (c *Channel) establishLocked(conn Conn) {
	c.conn = conn
	c.retryAttempt = 0
	c.setStateLocked(StateConnected)

	stop := make(chan struct{})
	c.heartbeatStop = stop
	// Create the ticker before returning so a fake clock advanced right
	// after Connect already sees the heartbeat waiter registered.
	ticker := c.opts.Clock.NewTicker(c.opts.HeartbeatPeriod)
	go c.heartbeatLoop(ticker, stop)
	go c.readLoop(conn)
}

func (c *Channel) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		if c.cbs.OnMessage != nil {
			c.cbs.OnMessage(data)
		}
	}
}

func (c *Channel) heartbeatLoop(ticker clockwork.Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			// Fire-and-forget: peers without heartbeat support just
			// ignore the frame, no ack is expected.
			c.Send(c.opts.HeartbeatPayload)
		}
	}
}

// handleClose runs when the socket drops. The close event, not the error
// that preceded it, drives the reconnect decision, so a failure is never
// handled twice. Only the current connection may drive it: a read loop left
// over from a superseded socket reports its close after the channel has
// already moved on, and must not tear down the live connection.
func (c *Channel) handleClose(conn Conn, err error) {
	c.mu.Lock()
	if c.intentional || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.stopTimersLocked()
	c.conn = nil
	c.mu.Unlock()

	if c.cbs.OnClose != nil {
		c.cbs.OnClose(err)
	}

	c.scheduleReconnect()
}

// scheduleReconnect arms the single reconnect timer, or gives up when the
// retry budget is spent.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		return
	}
	if c.retryAttempt >= c.opts.MaxReconnects {
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		slog.Warn("reconnect attempts exhausted, giving up",
			"attempts", c.opts.MaxReconnects)
		if c.cbs.OnConnectionLost != nil {
			c.cbs.OnConnectionLost()
		}
		return
	}

	delay := c.opts.ReconnectBase << c.retryAttempt
	c.retryAttempt++
	c.setStateLocked(StateReconnecting)
	c.reconnectTmr = c.opts.Clock.AfterFunc(delay, c.redial)
	c.mu.Unlock()

	slog.Info("reconnect scheduled",
		"delay", delay,
		"attempt", c.retryAttempt,
		"max", c.opts.MaxReconnects)
}

func (c *Channel) redial() {
	c.mu.Lock()
	if c.intentional || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	endpoint := c.endpoint
	c.mu.Unlock()

	ctx := logger.WithLogFields(context.Background(), logger.LogFields{
		Component: "collab.transport",
	})

	conn, err := c.opts.Dialer(ctx, endpoint)

	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		slog.WarnContext(ctx, "reconnect attempt failed", "error", err)
		if c.cbs.OnError != nil {
			c.cbs.OnError(err)
		}
		c.scheduleReconnect()
		return
	}
	c.establishLocked(conn)
	c.mu.Unlock()

	slog.InfoContext(ctx, "reconnected", "endpoint", endpoint)
	if c.cbs.OnOpen != nil {
		c.cbs.OnOpen()
	}
}

// stopTimersLocked stops the heartbeat and any pending reconnect timer.
// Caller holds mu.
func (c *Channel) stopTimersLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	if c.reconnectTmr != nil {
		c.reconnectTmr.Stop()
		c.reconnectTmr = nil
	}
}

func (c *Channel) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.cbs.OnStateChange != nil {
		// Callback may call back into the channel; don't hold mu across it.
		go c.cbs.OnStateChange(s)
	}
}
