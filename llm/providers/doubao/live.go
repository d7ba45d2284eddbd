package doubao

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentscope-ai/agentscope-go/llm"
	"github.com/agentscope-ai/agentscope-go/llm/providers"
	"github.com/agentscope-ai/agentscope-go/types"
)

const (
	liveDefaultURL        = "wss://openspeech.bytedance.com/api/v3/realtime/dialogue"
	liveDefaultSampleRate = 16000
)

// LiveEventType identifies a realtime session event.
type LiveEventType string

const (
	LiveEventSessionStarted  LiveEventType = "session.started"
	LiveEventAudioDelta      LiveEventType = "response.audio.delta"
	LiveEventTranscriptDelta LiveEventType = "response.transcript.delta"
	LiveEventResponseDone    LiveEventType = "response.done"
	LiveEventError           LiveEventType = "error"
)

// LiveEvent is one event received from a realtime voice session. Audio
// deltas carry raw PCM in Audio; transcript deltas carry text in Text.
type LiveEvent struct {
	Type      LiveEventType `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Text      string        `json:"text,omitempty"`
	Audio     []byte        `json:"audio,omitempty"`
	Err       *types.Error  `json:"error,omitempty"`
}

// liveWireEvent is the JSON envelope of text frames on the wire. Binary
// frames are model audio and bypass JSON entirely.
type liveWireEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// LiveClient is a realtime voice session client for Doubao's speech
// dialogue models. A session is one WebSocket connection: the caller pushes
// PCM frames and text turns in, and consumes events from Events until the
// channel closes. Writes are mutex-guarded; the WebSocket does not allow
// concurrent writers.
type LiveClient struct {
	cfg       providers.DoubaoLiveConfig
	logger    *zap.Logger
	sessionID string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	events chan LiveEvent
	done   chan struct{}
}

// NewLiveClient creates a realtime voice client. Connect must be called
// before any audio is sent.
func NewLiveClient(cfg providers.DoubaoLiveConfig, logger *zap.Logger) *LiveClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = liveDefaultURL
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = liveDefaultSampleRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveClient{
		cfg:       cfg,
		logger:    logger.With(zap.String("provider", "doubao-live")),
		sessionID: uuid.NewString(),
		events:    make(chan LiveEvent, 16),
		done:      make(chan struct{}),
	}
}

// SessionID returns the identifier assigned to this session.
func (c *LiveClient) SessionID() string { return c.sessionID }

// Events returns the event stream. It is closed when the session ends.
func (c *LiveClient) Events() <-chan LiveEvent { return c.events }

// Connect dials the realtime endpoint, announces the session and starts the
// read loop.
func (c *LiveClient) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.AppID != "" {
		header.Set("X-Api-App-Id", c.cfg.AppID)
	}

	conn, _, err := websocket.Dial(ctx, c.cfg.BaseURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return fmt.Errorf("doubao live dial: %w", err)
	}
	// Audio frames are unbounded by default message limits.
	conn.SetReadLimit(1 << 22)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	start := map[string]any{
		"type":        "session.start",
		"session_id":  c.sessionID,
		"model":       c.cfg.Model,
		"voice":       c.cfg.Voice,
		"sample_rate": c.cfg.SampleRate,
	}
	if err := c.writeJSON(ctx, start); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "session start failed")
		return fmt.Errorf("doubao live session start: %w", err)
	}

	go c.readLoop(ctx)
	return nil
}

// SendAudio pushes one PCM frame to the model as a binary message.
func (c *LiveClient) SendAudio(ctx context.Context, pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return fmt.Errorf("doubao live: session closed")
	}
	return c.conn.Write(ctx, websocket.MessageBinary, pcm)
}

// SendText pushes a text turn into the dialogue, for mixed text/voice use.
func (c *LiveClient) SendText(ctx context.Context, text string) error {
	return c.writeJSON(ctx, map[string]any{
		"type":       "input_text",
		"session_id": c.sessionID,
		"text":       text,
	})
}

// CommitAudio marks the end of the current user utterance so the model can
// respond without waiting for silence detection.
func (c *LiveClient) CommitAudio(ctx context.Context) error {
	return c.writeJSON(ctx, map[string]any{
		"type":       "input_audio.commit",
		"session_id": c.sessionID,
	})
}

// HistoryMessages converts accumulated transcript events into chat messages
// so a voice exchange can be continued over the text Provider.
func HistoryMessages(events []LiveEvent) []llm.Message {
	var msgs []llm.Message
	var pending strings.Builder
	for _, ev := range events {
		switch ev.Type {
		case LiveEventTranscriptDelta:
			pending.WriteString(ev.Text)
		case LiveEventResponseDone:
			if pending.Len() > 0 {
				msgs = append(msgs, llm.NewAssistantMessage(pending.String()))
				pending.Reset()
			}
		}
	}
	if pending.Len() > 0 {
		msgs = append(msgs, llm.NewAssistantMessage(pending.String()))
	}
	return msgs
}

// Close ends the session. Pending events are discarded.
func (c *LiveClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "session finished")
	}
	return nil
}

func (c *LiveClient) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return fmt.Errorf("doubao live: session closed")
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// readLoop turns wire frames into LiveEvents until the connection drops or
// the client is closed.
func (c *LiveClient) readLoop(ctx context.Context) {
	defer close(c.events)

	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			return
		}

		msgType, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-c.done:
			case <-ctx.Done():
			default:
				c.deliver(ctx, LiveEvent{
					Type:      LiveEventError,
					SessionID: c.sessionID,
					Err: &types.Error{
						Code: types.ErrUpstreamError, Message: err.Error(),
						Retryable: true, Provider: "doubao-live",
					},
				})
			}
			return
		}

		if msgType == websocket.MessageBinary {
			if !c.deliver(ctx, LiveEvent{Type: LiveEventAudioDelta, SessionID: c.sessionID, Audio: data}) {
				return
			}
			continue
		}

		var wire liveWireEvent
		if err := json.Unmarshal(data, &wire); err != nil {
			c.logger.Warn("unparseable live event", zap.Error(err))
			continue
		}

		ev := LiveEvent{SessionID: c.sessionID}
		switch wire.Type {
		case "session.started":
			ev.Type = LiveEventSessionStarted
		case "response.transcript.delta":
			ev.Type = LiveEventTranscriptDelta
			ev.Text = wire.Text
		case "response.done":
			ev.Type = LiveEventResponseDone
		case "error":
			ev.Type = LiveEventError
			msg := "live session error"
			if wire.Error != nil {
				msg = wire.Error.Message
			}
			ev.Err = &types.Error{Code: types.ErrUpstreamError, Message: msg, Provider: "doubao-live"}
		default:
			c.logger.Debug("ignoring live event", zap.String("type", wire.Type))
			continue
		}
		if !c.deliver(ctx, ev) {
			return
		}
		if ev.Type == LiveEventError {
			return
		}
	}
}

func (c *LiveClient) deliver(ctx context.Context, ev LiveEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}
