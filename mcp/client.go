package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Client drives the MCP protocol over a Transport: the initialize handshake,
// then request/response correlation and server notifications.
type Client struct {
	transport Transport
	info      ClientInfo
	logger    *zap.Logger

	nextID    atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan *Message

	mu         sync.RWMutex
	serverInfo *ServerInfo
	serverCaps Capabilities
	ready      bool

	notifications chan *Message
	done          chan struct{}
	closeOnce     sync.Once
}

// NewClient wraps a connected transport. Call Initialize before anything
// else.
func NewClient(transport Transport, info ClientInfo, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if info.Name == "" {
		info.Name = "agentscope-go"
	}
	return &Client{
		transport:     transport,
		info:          info,
		logger:        logger.With(zap.String("component", "mcp_client")),
		pending:       make(map[int64]chan *Message),
		notifications: make(chan *Message, 32),
		done:          make(chan struct{}),
	}
}

// Initialize performs the protocol handshake and starts the read loop.
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	go c.readLoop()

	result, err := c.call(ctx, "initialize", initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    Capabilities{Tools: &ToolsCapability{}},
		ClientInfo:      c.info,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	var init InitializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}

	notif, err := NewNotification("notifications/initialized", nil)
	if err != nil {
		return nil, err
	}
	if err := c.transport.Send(ctx, notif); err != nil {
		return nil, fmt.Errorf("send initialized: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = &init.ServerInfo
	c.serverCaps = init.Capabilities
	c.ready = true
	c.mu.Unlock()

	c.logger.Info("mcp session established",
		zap.String("server", init.ServerInfo.Name),
		zap.String("version", init.ServerInfo.Version),
		zap.String("protocol", init.ProtocolVersion))
	return &init, nil
}

// ServerInfo returns the peer identity after a successful handshake.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Ready reports whether the handshake completed.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// ListTools fetches the server's tool catalogue.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	if err := c.requireReady(); err != nil {
		return nil, err
	}
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var out listToolsResult
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode tool list: %w", err)
	}
	return out.Tools, nil
}

// CallTool invokes a server tool. A result with IsError set is returned
// without error so callers can surface it to the model.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*CallToolResult, error) {
	if err := c.requireReady(); err != nil {
		return nil, err
	}
	result, err := c.call(ctx, "tools/call", callToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var out CallToolResult
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode tool result: %w", err)
	}
	return &out, nil
}

// Notifications exposes server-initiated messages, e.g.
// notifications/tools/list_changed. Messages are dropped when the channel
// backs up.
func (c *Client) Notifications() <-chan *Message {
	return c.notifications
}

// Close tears down the session and the underlying transport. Pending calls
// fail.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.transport.Close()
	})
	return err
}

func (c *Client) requireReady() error {
	if !c.Ready() {
		return fmt.Errorf("client not initialized")
	}
	return nil
}

// call sends one request and waits for its response.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	req, err := NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	ch := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.transport.Send(ctx, req); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("client closed")
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

func (c *Client) readLoop() {
	ctx := context.Background()
	for {
		select {
		case <-c.done:
			return
		default:
		}

		msg, err := c.transport.Receive(ctx)
		if err != nil {
			select {
			case <-c.done:
			default:
				if !errors.Is(err, io.EOF) {
					c.logger.Error("receive failed", zap.Error(err))
				}
				_ = c.Close()
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *Message) {
	if msg.IsResponse() {
		c.pendingMu.Lock()
		ch, ok := c.pending[*msg.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- msg
		} else {
			c.logger.Warn("response for unknown request", zap.Int64("id", *msg.ID))
		}
		return
	}

	if msg.IsNotification() {
		select {
		case c.notifications <- msg:
		default:
			c.logger.Warn("notification dropped, channel full",
				zap.String("method", msg.Method))
		}
	}
}
