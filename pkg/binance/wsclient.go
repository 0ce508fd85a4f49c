package binance

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"cryptomonitor/config"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnState is the connection lifecycle state of the WSClient.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing    // intentional shutdown in progress
	StateClosed     // unintentional close observed
	StateBackoffWait
	StateFailed // reconnect attempts exhausted; needs external reset
)

func (s ConnState) String() string {
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
	case StateBackoffWait:
		return "backoff_wait"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// WSClient maintains a single logical connection to the Binance
// combined stream for a fixed symbol set (one @trade and one @depth5
// sub-stream per symbol) and keeps it alive across network failure
// with capped exponential backoff. After MaxReconnectAttempts
// consecutive failed cycles it parks in StateFailed until
// ResetConnectionState is called.
type WSClient struct {
	cfg     config.WSConfig
	symbols []string
	logger  *zap.Logger
	handler func([]byte)

	// dial is swappable for tests.
	dial func(url string) (wsConn, error)

	mu             sync.Mutex
	state          ConnState
	conn           wsConn
	attempts       int
	lastAttempt    time.Time
	reconnectTimer *time.Timer
	exit           bool
}

// wsConn is the subset of *websocket.Conn the client uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// NewWSClient creates a client for the given symbols. It does not
// connect; call Connect.
func NewWSClient(cfg config.WSConfig, symbols []string, logger *zap.Logger) *WSClient {
	c := &WSClient{
		cfg:     cfg,
		symbols: symbols,
		logger:  logger,
		state:   StateDisconnected,
	}
	c.dial = func(url string) (wsConn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
		conn, _, err := dialer.Dial(url, nil)
		return conn, err
	}
	return c
}

// SetMessageHandler sets the function to handle incoming raw messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// StreamURL builds the combined-stream URL subscribing every symbol to
// its trade and depth5 sub-streams.
func (c *WSClient) StreamURL() string {
	streams := make([]string, 0, 2*len(c.symbols))
	for _, s := range c.symbols {
		streams = append(streams, strings.ToLower(s)+"@trade")
	}
	for _, s := range c.symbols {
		streams = append(streams, strings.ToLower(s)+"@depth5")
	}
	return fmt.Sprintf("%s/stream?streams=%s", c.cfg.URL, strings.Join(streams, "/"))
}

// Connect establishes the WebSocket connection. It is a no-op while
// already connecting or connected, after Close, while parked in
// StateFailed, or within the debounce window of the previous attempt.
func (c *WSClient) Connect() error {
	c.mu.Lock()
	if c.exit || c.state == StateConnecting || c.state == StateConnected || c.state == StateFailed {
		c.mu.Unlock()
		return nil
	}
	if time.Since(c.lastAttempt) < c.cfg.ConnectDebounce {
		c.mu.Unlock()
		return nil
	}
	// This attempt supersedes any pending backoff timer; without the
	// cancel a stale timer could dial a second live connection.
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.lastAttempt = time.Now()
	c.state = StateConnecting
	url := c.StreamURL()
	c.mu.Unlock()

	conn, err := c.dial(url)
	if err != nil {
		c.logger.Warn("websocket connect failed",
			zap.String("url", c.cfg.URL),
			zap.String("class", classifyNetError(err)),
			zap.Error(err),
		)
		c.mu.Lock()
		c.failAttemptLocked()
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.exit {
		// Close raced the dial; drop the fresh connection.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.onOpenLocked()
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// onOpenLocked transitions to Connected and resets the attempt cycle.
func (c *WSClient) onOpenLocked() {
	c.state = StateConnected
	c.attempts = 0
	c.logger.Info("websocket connected",
		zap.String("url", c.cfg.URL),
		zap.Int("symbols", len(c.symbols)),
	)
}

// readLoop consumes messages until the connection dies.
func (c *WSClient) readLoop(conn wsConn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.onClose(conn, err)
			return
		}
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// onClose handles a connection teardown. Intentional closes terminate
// quietly; unintentional ones schedule a reconnect or park in
// StateFailed once the attempt cap is reached. Teardown of a
// connection that has already been replaced is ignored.
func (c *WSClient) onClose(conn wsConn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn != c.conn {
		return
	}
	c.conn = nil

	if c.exit {
		c.state = StateClosing
		return
	}

	c.state = StateClosed
	c.logger.Warn("websocket closed",
		zap.String("class", classifyNetError(err)),
		zap.Error(err),
	)
	c.failAttemptLocked()
}

// failAttemptLocked advances the retry cycle after a failed connect or
// an unintentional close.
func (c *WSClient) failAttemptLocked() {
	if c.exit {
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.state = StateFailed
		c.logger.Error("reconnect attempts exhausted, giving up until reset",
			zap.Int("attempts", c.attempts),
		)
		return
	}
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked starts the single backoff timer. A second
// request while one is pending is a no-op.
func (c *WSClient) scheduleReconnectLocked() {
	if c.reconnectTimer != nil {
		return
	}

	delay := c.backoffDelay(c.attempts)
	c.state = StateBackoffWait
	c.logger.Info("reconnect scheduled",
		zap.Duration("delay", delay),
		zap.Int("attempts", c.attempts),
	)

	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		// An external Connect or Close may have superseded this timer
		// between firing and acquiring the lock.
		if c.exit || c.state != StateBackoffWait {
			c.mu.Unlock()
			return
		}
		c.reconnectTimer = nil
		c.attempts++
		c.state = StateDisconnected
		c.mu.Unlock()

		c.Connect()
	})
}

// backoffDelay computes min(base * 2^attempts, max).
func (c *WSClient) backoffDelay(attempts int) time.Duration {
	delay := c.cfg.BaseDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= c.cfg.MaxDelay {
			return c.cfg.MaxDelay
		}
	}
	if delay > c.cfg.MaxDelay {
		return c.cfg.MaxDelay
	}
	return delay
}

// ResetConnectionState zeroes the attempt counter and clears the
// Failed marker so a fresh backoff cycle can begin.
func (c *WSClient) ResetConnectionState() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts = 0
	c.lastAttempt = time.Time{}
	if c.state == StateFailed {
		c.state = StateDisconnected
	}
}

// Close intentionally shuts the connection down: no further reconnects
// are scheduled and any pending backoff timer is cancelled. Idempotent.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exit {
		return nil
	}
	c.exit = true
	c.state = StateClosing

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err := c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

// State returns the current connection state.
func (c *WSClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current reconnect attempt count.
func (c *WSClient) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// classifyNetError buckets a connection error for operator diagnostics.
// Classification never changes retry policy.
func classifyNetError(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "refused"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if os.IsTimeout(err) {
		return "timeout"
	}
	return "other"
}

var _ wsConn = (*websocket.Conn)(nil)
