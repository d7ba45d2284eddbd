package doubao

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentscope-ai/agentscope-go/llm/providers"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// liveTestServer upgrades to WebSocket, asserts the session.start frame and
// then runs the given script against the connection.
func liveTestServer(t *testing.T, script func(ctx context.Context, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer live-key", r.Header.Get("Authorization"))
		assert.Equal(t, "app-1", r.Header.Get("X-Api-App-Id"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		_, data, err := conn.Read(r.Context())
		require.NoError(t, err)
		var start map[string]any
		require.NoError(t, json.Unmarshal(data, &start))
		assert.Equal(t, "session.start", start["type"])
		assert.NotEmpty(t, start["session_id"])
		assert.Equal(t, float64(16000), start["sample_rate"])

		sid := start["session_id"].(string)
		started, _ := json.Marshal(map[string]any{"type": "session.started", "session_id": sid})
		require.NoError(t, conn.Write(r.Context(), websocket.MessageText, started))

		script(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newLiveClient(srv *httptest.Server) *LiveClient {
	return NewLiveClient(providers.DoubaoLiveConfig{
		BaseConfig: providers.BaseConfig{APIKey: "live-key", BaseURL: wsURL(srv), Model: "doubao-voice"},
		AppID:      "app-1",
	}, nil)
}

func TestLiveSessionTranscriptAndAudio(t *testing.T) {
	srv := liveTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		// Wait for one audio frame from the client.
		typ, pcm, err := conn.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageBinary, typ)
		assert.Equal(t, []byte{1, 2, 3, 4}, pcm)

		delta, _ := json.Marshal(map[string]any{"type": "response.transcript.delta", "text": "hi there"})
		require.NoError(t, conn.Write(ctx, websocket.MessageText, delta))
		require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte{9, 9}))
		done, _ := json.Marshal(map[string]any{"type": "response.done"})
		require.NoError(t, conn.Write(ctx, websocket.MessageText, done))

		// Hold the connection open until the client closes it.
		conn.Read(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := newLiveClient(srv)
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.SendAudio(ctx, []byte{1, 2, 3, 4}))

	var got []LiveEvent
	for ev := range c.Events() {
		got = append(got, ev)
		if ev.Type == LiveEventResponseDone {
			break
		}
	}

	require.Len(t, got, 4)
	assert.Equal(t, LiveEventSessionStarted, got[0].Type)
	assert.Equal(t, LiveEventTranscriptDelta, got[1].Type)
	assert.Equal(t, "hi there", got[1].Text)
	assert.Equal(t, LiveEventAudioDelta, got[2].Type)
	assert.Equal(t, []byte{9, 9}, got[2].Audio)
	assert.Equal(t, LiveEventResponseDone, got[3].Type)
}

func TestLiveSessionError(t *testing.T) {
	srv := liveTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		fail, _ := json.Marshal(map[string]any{
			"type":  "error",
			"error": map[string]any{"code": "model_busy", "message": "no capacity"},
		})
		conn.Write(ctx, websocket.MessageText, fail)
		conn.Read(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := newLiveClient(srv)
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Close() })

	var last LiveEvent
	for ev := range c.Events() {
		last = ev
	}
	assert.Equal(t, LiveEventError, last.Type)
	require.NotNil(t, last.Err)
	assert.Contains(t, last.Err.Message, "no capacity")
}

func TestLiveSendAfterClose(t *testing.T) {
	srv := liveTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		conn.Read(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := newLiveClient(srv)
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Close())

	err := c.SendAudio(ctx, []byte{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session closed")
}

func TestHistoryMessages(t *testing.T) {
	msgs := HistoryMessages([]LiveEvent{
		{Type: LiveEventSessionStarted},
		{Type: LiveEventTranscriptDelta, Text: "hel"},
		{Type: LiveEventTranscriptDelta, Text: "lo"},
		{Type: LiveEventResponseDone},
		{Type: LiveEventTranscriptDelta, Text: "bye"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "bye", msgs[1].Content)
}
