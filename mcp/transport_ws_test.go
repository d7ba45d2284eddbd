package mcp

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
	"go.uber.org/zap"
)

// newEchoWSServer upgrades to WebSocket, answers "ping" with "pong" and
// echoes everything else.
func newEchoWSServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols: []string{"mcp"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				return
			}
			if msg.Method == "ping" {
				body, _ := json.Marshal(Message{JSONRPC: "2.0", Method: "pong"})
				if err := conn.Write(r.Context(), websocket.MessageText, body); err != nil {
					return
				}
				continue
			}
			if err := conn.Write(r.Context(), websocket.MessageText, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDefaultWSConfig(t *testing.T) {
	cfg := DefaultWSConfig()
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5, cfg.MaxReconnects)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, []string{"mcp"}, cfg.Subprotocols)
}

func TestWSTransportConnectAndClose(t *testing.T) {
	srv := newEchoWSServer(t)
	tr := NewWSTransport(wsURL(srv), WSConfig{}, zap.NewNop())

	require.Equal(t, StateDisconnected, tr.State())
	require.NoError(t, tr.Connect(context.Background()))
	assert.Equal(t, StateConnected, tr.State())

	require.NoError(t, tr.Close())
	assert.Equal(t, StateClosed, tr.State())

	// Closing twice is fine; sending after close is not.
	require.NoError(t, tr.Close())
	err := tr.Send(context.Background(), &Message{JSONRPC: "2.0", Method: "ping"})
	require.ErrorContains(t, err, "closed")
}

func TestWSTransportRoundTrip(t *testing.T) {
	srv := newEchoWSServer(t)
	tr := NewWSTransport(wsURL(srv), WSConfig{}, zap.NewNop())
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	req, err := NewRequest(7, "tools/list", nil)
	require.NoError(t, err)
	require.NoError(t, tr.Send(context.Background(), req))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.ID)
	assert.Equal(t, int64(7), *got.ID)
	assert.Equal(t, "tools/list", got.Method)
}

func TestWSTransportConsumesPongs(t *testing.T) {
	srv := newEchoWSServer(t)
	tr := NewWSTransport(wsURL(srv), WSConfig{}, zap.NewNop())
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	// A ping gets a pong back; Receive must skip it and surface the echo of
	// the follow-up message instead.
	require.NoError(t, tr.Send(context.Background(), &Message{JSONRPC: "2.0", Method: "ping"}))
	notif, err := NewNotification("tools/changed", nil)
	require.NoError(t, err)
	require.NoError(t, tr.Send(context.Background(), notif))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tools/changed", got.Method)
}

func TestWSTransportStateCallback(t *testing.T) {
	srv := newEchoWSServer(t)
	tr := NewWSTransport(wsURL(srv), WSConfig{}, zap.NewNop())

	var states []ConnState
	tr.OnStateChange(func(s ConnState) { states = append(states, s) })

	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Close())

	assert.Equal(t, []ConnState{StateConnecting, StateConnected, StateClosed}, states)
}

func TestWSTransportDialFailure(t *testing.T) {
	tr := NewWSTransport("ws://127.0.0.1:1", WSConfig{}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := tr.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, tr.State())
}

func TestWSTransportReconnectExhaustion(t *testing.T) {
	srv := newEchoWSServer(t)
	tr := NewWSTransport(wsURL(srv), WSConfig{
		MaxReconnects:  2,
		ReconnectDelay: 10 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, tr.Connect(context.Background()))

	// Kill the server so reads fail and every redial is refused.
	srv.CloseClientConnections()
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := tr.Receive(ctx)
	require.Error(t, err)
	assert.Equal(t, StateFailed, tr.State())
}
