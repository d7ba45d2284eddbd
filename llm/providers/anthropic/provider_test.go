package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentscope-ai/agentscope-go/llm"
	"github.com/agentscope-ai/agentscope-go/llm/providers"
	"github.com/agentscope-ai/agentscope-go/types"
)

func newTestProvider(baseURL string) *Provider {
	return New(providers.AnthropicConfig{
		BaseConfig: providers.BaseConfig{APIKey: "test-key", BaseURL: baseURL, Model: "claude-test"},
	}, zap.NewNop())
}

func TestConvertMessages(t *testing.T) {
	system, msgs := convertMessages([]llm.Message{
		llm.NewSystemMessage("be brief"),
		llm.NewUserMessage("hi"),
		{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				ID: "toolu_1", Name: "lookup", Arguments: json.RawMessage(`{"k":"v"}`),
			}},
		},
		llm.NewToolMessage("lookup", "toolu_1", "found it"),
	})

	assert.Equal(t, "be brief", system)
	require.Len(t, msgs, 3)

	assert.Equal(t, "user", msgs[0].Role)
	require.Len(t, msgs[0].Content, 1)
	assert.Equal(t, "text", msgs[0].Content[0].Type)
	assert.Equal(t, "hi", msgs[0].Content[0].Text)

	assert.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[1].Content, 1)
	assert.Equal(t, "tool_use", msgs[1].Content[0].Type)
	assert.Equal(t, "toolu_1", msgs[1].Content[0].ID)
	assert.Equal(t, "lookup", msgs[1].Content[0].Name)

	// Tool results become user messages with a tool_result block.
	assert.Equal(t, "user", msgs[2].Role)
	require.Len(t, msgs[2].Content, 1)
	assert.Equal(t, "tool_result", msgs[2].Content[0].Type)
	assert.Equal(t, "toolu_1", msgs[2].Content[0].ToolUseID)
	assert.Equal(t, "found it", msgs[2].Content[0].Content)
}

func TestCompletionSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var body anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body.Model)
		assert.Equal(t, "be brief", body.System)
		assert.Equal(t, defaultMaxTokens, body.MaxTokens)

		json.NewEncoder(w).Encode(anthropicResponse{
			ID:    "msg_1",
			Model: "claude-test",
			Content: []anthropicContent{
				{Type: "text", Text: "hello "},
				{Type: "text", Text: "world"},
			},
			StopReason: "end_turn",
			Usage:      &anthropicUsage{InputTokens: 10, OutputTokens: 4},
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.NewSystemMessage("be brief"), llm.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, "hello world", resp.FirstMessage().Content)
	assert.Equal(t, "end_turn", resp.Choices[0].FinishReason)
	assert.Equal(t, 14, resp.Usage.TotalTokens)
}

func TestCompletionToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Tools, 1)
		assert.Equal(t, "get_weather", body.Tools[0].Name)
		assert.JSONEq(t, `{"type":"object"}`, string(body.Tools[0].InputSchema))

		json.NewEncoder(w).Encode(anthropicResponse{
			ID:    "msg_2",
			Model: "claude-test",
			Content: []anthropicContent{{
				Type: "tool_use", ID: "toolu_9", Name: "get_weather",
				Input: json.RawMessage(`{"city":"Tokyo"}`),
			}},
			StopReason: "tool_use",
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.NewUserMessage("weather?")},
		Tools:    []llm.ToolSchema{{Name: "get_weather", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})
	require.NoError(t, err)
	msg := resp.FirstMessage()
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "toolu_9", msg.ToolCalls[0].ID)
	assert.JSONEq(t, `{"city":"Tokyo"}`, string(msg.ToolCalls[0].Arguments))
}

func TestCompletionOverloaded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.NewUserMessage("hi")},
	})
	require.Error(t, err)
	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.ErrModelOverloaded, terr.Code)
	assert.True(t, terr.Retryable)
	assert.Contains(t, terr.Message, "Overloaded")
}

func TestStreamTextDeltas(t *testing.T) {
	events := []string{
		`{"type":"message_start","message":{"id":"msg_s","model":"claude-test"}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"input_tokens":5,"output_tokens":2}}`,
		`{"type":"message_stop"}`,
	}
	server := newSSEServer(t, events)
	defer server.Close()

	p := newTestProvider(server.URL)
	ch, err := p.Stream(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	var content, finish string
	var usage *llm.ChatUsage
	for chunk := range ch {
		require.Nil(t, chunk.Err)
		assert.Equal(t, "msg_s", chunk.ID)
		content += chunk.Delta.Content
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	assert.Equal(t, "Hello", content)
	assert.Equal(t, "end_turn", finish)
	require.NotNil(t, usage)
	assert.Equal(t, 7, usage.TotalTokens)
}

func TestStreamToolUseAccumulation(t *testing.T) {
	events := []string{
		`{"type":"message_start","message":{"id":"msg_t","model":"claude-test"}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_5","name":"search"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"q\":"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"go\"}"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_stop"}`,
	}
	server := newSSEServer(t, events)
	defer server.Close()

	p := newTestProvider(server.URL)
	ch, err := p.Stream(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	var calls []llm.ToolCall
	for chunk := range ch {
		calls = append(calls, chunk.Delta.ToolCalls...)
	}
	require.Len(t, calls, 1)
	assert.Equal(t, "toolu_5", calls[0].ID)
	assert.Equal(t, "search", calls[0].Name)
	assert.JSONEq(t, `{"q":"go"}`, string(calls[0].Arguments))
}

func newSSEServer(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, e := range events {
			var parsed struct {
				Type string `json:"type"`
			}
			json.Unmarshal([]byte(e), &parsed)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", parsed.Type, e)
			flusher.Flush()
		}
	}))
}
