package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// ConnState is the lifecycle state of a WebSocket transport.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateFailed       ConnState = "failed"
	StateClosed       ConnState = "closed"
)

// WSConfig tunes the WebSocket transport.
type WSConfig struct {
	HeartbeatInterval time.Duration // ping cadence, 0 disables heartbeat
	MaxReconnects     int           // reconnect attempts before giving up
	ReconnectDelay    time.Duration // base backoff delay
	MaxBackoff        time.Duration // backoff ceiling
	Subprotocols      []string
	SendBufferSize    int // messages buffered while reconnecting
}

// DefaultWSConfig returns the transport defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HeartbeatInterval: 30 * time.Second,
		MaxReconnects:     5,
		ReconnectDelay:    time.Second,
		MaxBackoff:        30 * time.Second,
		Subprotocols:      []string{"mcp"},
		SendBufferSize:    64,
	}
}

// WSTransport carries JSON-RPC messages over a WebSocket with heartbeat and
// exponential-backoff reconnection. Messages sent while a reconnect is in
// flight are buffered and flushed once the connection is back.
type WSTransport struct {
	url    string
	cfg    WSConfig
	logger *zap.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	state         ConnState
	closed        bool
	reconnecting  bool
	attempts      int
	buffer        []*Message
	onStateChange func(ConnState)
	done          chan struct{}
}

// NewWSTransport creates a transport for the given ws:// or wss:// URL.
// Zero-value config fields get defaults.
func NewWSTransport(url string, cfg WSConfig, logger *zap.Logger) *WSTransport {
	def := DefaultWSConfig()
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.SendBufferSize == 0 {
		cfg.SendBufferSize = def.SendBufferSize
	}
	if cfg.Subprotocols == nil {
		cfg.Subprotocols = def.Subprotocols
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSTransport{
		url:    url,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "mcp_ws")),
		state:  StateDisconnected,
		done:   make(chan struct{}),
	}
}

// OnStateChange registers a callback fired on every state transition.
func (t *WSTransport) OnStateChange(fn func(ConnState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStateChange = fn
}

// State returns the current connection state.
func (t *WSTransport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *WSTransport) setState(s ConnState) {
	t.mu.Lock()
	t.state = s
	fn := t.onStateChange
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Connect dials the server and starts the heartbeat loop.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.setState(StateConnecting)

	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{
		Subprotocols: t.cfg.Subprotocols,
	})
	if err != nil {
		t.setState(StateDisconnected)
		return fmt.Errorf("websocket dial: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.setState(StateConnected)

	if t.cfg.HeartbeatInterval > 0 {
		go t.heartbeat(ctx)
	}
	return nil
}

// Send writes one message. During a reconnect the message is buffered; on a
// write failure the transport reconnects and retries the send once.
func (t *WSTransport) Send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.mu.Lock()
	conn, closed, reconnecting := t.conn, t.closed, t.reconnecting
	t.mu.Unlock()

	switch {
	case closed:
		return fmt.Errorf("transport is closed")
	case reconnecting:
		t.bufferMessage(msg)
		return nil
	case conn == nil:
		return fmt.Errorf("not connected")
	}

	writeErr := conn.Write(ctx, websocket.MessageText, body)
	if writeErr == nil {
		return nil
	}
	if rerr := t.reconnect(ctx); rerr != nil {
		return fmt.Errorf("send failed and reconnect failed: %w", writeErr)
	}

	t.mu.Lock()
	conn = t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected after reconnect")
	}
	return conn.Write(ctx, websocket.MessageText, body)
}

// Receive reads the next message, reconnecting on read errors. Heartbeat
// pongs are consumed silently.
func (t *WSTransport) Receive(ctx context.Context) (*Message, error) {
	for {
		t.mu.Lock()
		conn, closed := t.conn, t.closed
		t.mu.Unlock()

		if closed {
			return nil, fmt.Errorf("transport is closed")
		}
		if conn == nil {
			return nil, fmt.Errorf("not connected")
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-t.done:
				return nil, fmt.Errorf("transport is closed")
			default:
			}
			if rerr := t.reconnect(ctx); rerr != nil {
				return nil, fmt.Errorf("receive failed and reconnect failed: %w", err)
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		if msg.Method == "pong" {
			continue
		}
		return &msg, nil
	}
}

// Close shuts the transport down. Further sends and receives fail.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	conn := t.conn
	t.mu.Unlock()

	t.setState(StateClosed)
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "closing")
	}
	return nil
}

func (t *WSTransport) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-ticker.C:
			ping := &Message{JSONRPC: "2.0", Method: "ping"}
			if err := t.Send(ctx, ping); err != nil {
				t.logger.Warn("heartbeat ping failed", zap.Error(err))
				if err := t.reconnect(ctx); err != nil {
					return
				}
			}
		}
	}
}

// reconnect re-dials with exponential backoff. Only one reconnect loop runs
// at a time; concurrent callers wait for the in-flight attempt.
func (t *WSTransport) reconnect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	if t.reconnecting {
		t.mu.Unlock()
		return t.waitForReconnect(ctx)
	}
	t.reconnecting = true
	oldConn := t.conn
	t.conn = nil
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.reconnecting = false
		t.mu.Unlock()
	}()

	t.setState(StateReconnecting)
	if oldConn != nil {
		_ = oldConn.Close(websocket.StatusNormalClosure, "reconnecting")
	}

	delay := t.cfg.ReconnectDelay
	for {
		t.mu.Lock()
		if t.attempts >= t.cfg.MaxReconnects {
			t.mu.Unlock()
			t.setState(StateFailed)
			return fmt.Errorf("reconnect attempts exhausted after %d tries", t.cfg.MaxReconnects)
		}
		t.attempts++
		attempt := t.attempts
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return fmt.Errorf("transport is closed")
		case <-time.After(delay):
		}

		conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{
			Subprotocols: t.cfg.Subprotocols,
		})
		if err != nil {
			t.logger.Warn("reconnect dial failed",
				zap.Int("attempt", attempt), zap.Error(err))
			delay *= 2
			if delay > t.cfg.MaxBackoff {
				delay = t.cfg.MaxBackoff
			}
			continue
		}

		t.mu.Lock()
		t.conn = conn
		t.attempts = 0
		t.mu.Unlock()
		t.setState(StateConnected)
		t.logger.Info("reconnected", zap.Int("attempt", attempt))

		t.flushBuffer(ctx)
		return nil
	}
}

func (t *WSTransport) waitForReconnect(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return fmt.Errorf("transport is closed")
		case <-ticker.C:
			t.mu.Lock()
			reconnecting, state := t.reconnecting, t.state
			t.mu.Unlock()
			if !reconnecting {
				if state == StateConnected {
					return nil
				}
				return fmt.Errorf("reconnect ended in state %s", state)
			}
		}
	}
}

func (t *WSTransport) bufferMessage(msg *Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.buffer) >= t.cfg.SendBufferSize {
		t.buffer = t.buffer[1:]
		t.logger.Warn("send buffer full, dropping oldest message")
	}
	t.buffer = append(t.buffer, msg)
}

func (t *WSTransport) flushBuffer(ctx context.Context) {
	t.mu.Lock()
	buf := t.buffer
	t.buffer = nil
	t.mu.Unlock()

	for _, msg := range buf {
		if err := t.Send(ctx, msg); err != nil {
			t.logger.Warn("flush buffered message failed",
				zap.String("method", msg.Method), zap.Error(err))
		}
	}
}
