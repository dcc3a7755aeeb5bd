// Package stream keeps the live signal and insight views in sync with the
// producing service's push streams.
//
// Each stream is a Client with its own connection and state machine. Inbound
// messages go to a Handler, normally a SignalBoard or InsightBoard, which
// merges them and publishes immutable snapshots to subscribers.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

// ErrNoEndpoint is returned by Run when the stream has no URL configured
var ErrNoEndpoint = errors.New("stream endpoint not configured")

// Timing defaults
const (
	DefaultReadTimeout  = 60 * time.Second
	DefaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
)

// Handler consumes one inbound message. Errors wrapping ErrParse drop the
// message and keep the stream running.
type Handler func(ctx context.Context, payload []byte) error

// ClientConfig configures a stream client
type ClientConfig struct {
	Name         string // signals, insights
	URL          string
	Dialer       Dialer
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration

	// OnStateChange observes every transition, e.g. for metrics
	OnStateChange func(name string, from, to State)
}

// Status is the reconnect indicator exposed to the UI
type Status struct {
	Name          string    `json:"name"`
	State         string    `json:"state"`
	Reconnects    int64     `json:"reconnects"`
	Messages      int64     `json:"messages"`
	Dropped       int64     `json:"dropped"`
	LastError     string    `json:"last_error,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	NextRetryIn   string    `json:"next_retry_in,omitempty"`
}

// Client maintains one push stream connection
type Client struct {
	cfg     ClientConfig
	handler Handler
	backoff *Backoff
	logger  *logger.Logger

	mu        sync.Mutex
	state     State
	conn      Conn
	stopped   bool
	lastErr   string
	lastMsgAt time.Time
	nextRetry time.Duration

	stopCh chan struct{}

	reconnects atomic.Int64
	messages   atomic.Int64
	dropped    atomic.Int64
}

// NewClient creates a client in the Disconnected state
func NewClient(cfg ClientConfig, handler Handler, log *logger.Logger) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = WSDialer{}
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.ReadTimeout {
		cfg.PingInterval = cfg.ReadTimeout / 2
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		backoff: NewBackoff(cfg.BackoffBase, cfg.BackoffMax),
		logger:  log.WithComponent("stream").WithField("stream", cfg.Name),
		state:   StateDisconnected,
		stopCh:  make(chan struct{}),
	}
}

// Name returns the stream name
func (c *Client) Name() string {
	return c.cfg.Name
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the connection health
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Name:          c.cfg.Name,
		State:         c.state.String(),
		Reconnects:    c.reconnects.Load(),
		Messages:      c.messages.Load(),
		Dropped:       c.dropped.Load(),
		LastError:     c.lastErr,
		LastMessageAt: c.lastMsgAt,
	}
	if !c.stopped && (c.state == StateError || c.state == StateClosed) && c.nextRetry > 0 {
		st.NextRetryIn = c.nextRetry.Round(time.Millisecond).String()
	}
	return st
}

// Run connects and keeps reconnecting until ctx is cancelled or Stop is
// called. It never gives up on transport errors.
func (c *Client) Run(ctx context.Context) error {
	if c.cfg.URL == "" {
		return ErrNoEndpoint
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if c.isStopped() {
			return nil
		}
		if ctx.Err() != nil {
			c.transition(StateClosed)
			return ctx.Err()
		}

		c.transition(StateConnecting)
		conn, err := c.cfg.Dialer.Dial(ctx, c.cfg.URL)
		switch {
		case err != nil:
			c.fail(err)
		case !c.attach(conn):
			_ = conn.Close()
			return nil
		default:
			c.backoff.Reset()
			c.logger.Info("Stream connected")

			err = c.readLoop(ctx, conn)
			c.detach(conn)
			if c.isStopped() {
				return nil
			}
			if ctx.Err() != nil {
				c.transition(StateClosed)
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("Stream closed by peer")
				c.transition(StateClosed)
			} else {
				c.fail(err)
			}
		}

		if err := c.wait(ctx); err != nil {
			if c.isStopped() {
				return nil
			}
			return err
		}
		c.reconnects.Add(1)
	}
}

// Stop closes the connection and halts retries. No transitions follow.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateClosed)
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	c.logger.Info("Stream stopped")
}

// attach publishes conn and moves to Open unless Stop raced the dial
func (c *Client) attach(conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.conn = conn
	c.setStateLocked(StateOpen)
	return true
}

func (c *Client) detach(conn Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()

	c.logger.WithError(err).Warn("Stream connection error")
	c.transition(StateError)
}

// wait sleeps for the next backoff delay
func (c *Client) wait(ctx context.Context) error {
	delay := c.backoff.Next()

	c.mu.Lock()
	c.nextRetry = delay
	c.mu.Unlock()

	c.logger.WithFields(map[string]interface{}{
		"attempt": c.backoff.Attempt(),
		"delay":   delay.String(),
	}).Info("Reconnecting")

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.transition(StateClosed)
		return ctx.Err()
	case <-c.stopCh:
		return nil
	case <-timer.C:
		return nil
	}
}

// readLoop delivers messages until the connection fails
func (c *Client) readLoop(ctx context.Context, conn Conn) error {
	done := make(chan struct{})
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	go c.pingLoop(ctx, conn, done)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		c.messages.Add(1)
		c.mu.Lock()
		c.lastMsgAt = time.Now()
		c.mu.Unlock()

		if err := c.handler(ctx, payload); err != nil {
			c.dropped.Add(1)
			if errors.Is(err, contracts.ErrParse) {
				c.logger.WithError(err).Warn("Dropped malformed stream message")
			} else {
				c.logger.WithError(err).Error("Stream handler failed")
			}
		}
	}
}

// pingLoop keeps the read deadline alive through idle periods and tears the
// connection down on cancellation
func (c *Client) pingLoop(ctx context.Context, conn Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.Close() // unblocks ReadMessage
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.WithError(err).Debug("Ping failed")
				return
			}
		}
	}
}

func (c *Client) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Client) transition(to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.setStateLocked(to)
}

// setStateLocked applies a transition; caller holds c.mu
func (c *Client) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	if !canTransition(from, to) {
		c.logger.WithFields(map[string]interface{}{
			"from": from.String(),
			"to":   to.String(),
		}).Warn("Ignored invalid state transition")
		return
	}
	c.state = to
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(c.cfg.Name, from, to)
	}
}
