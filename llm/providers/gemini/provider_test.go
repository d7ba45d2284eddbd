package gemini

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
	return New(providers.GeminiConfig{
		BaseConfig: providers.BaseConfig{APIKey: "test-key", BaseURL: baseURL, Model: "gemini-test"},
	}, zap.NewNop())
}

func TestConvertContents(t *testing.T) {
	system, contents := convertContents([]llm.Message{
		llm.NewSystemMessage("be helpful"),
		llm.NewUserMessage("hi"),
		{
			Role:    llm.RoleAssistant,
			Content: "let me check",
			ToolCalls: []llm.ToolCall{{
				ID: "call_lookup_0_0", Name: "lookup", Arguments: json.RawMessage(`{"k":"v"}`),
			}},
		},
		llm.NewToolMessage("lookup", "call_lookup_0_0", `{"value":42}`),
		llm.NewToolMessage("lookup", "call_lookup_0_1", "plain text"),
	})

	require.NotNil(t, system)
	assert.Equal(t, "be helpful", system.Parts[0].Text)
	require.Len(t, contents, 4)

	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "hi", contents[0].Parts[0].Text)

	// Assistant maps to role "model" with text and functionCall parts.
	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	assert.Equal(t, "let me check", contents[1].Parts[0].Text)
	require.NotNil(t, contents[1].Parts[1].FunctionCall)
	assert.Equal(t, "lookup", contents[1].Parts[1].FunctionCall.Name)
	assert.Equal(t, map[string]any{"k": "v"}, contents[1].Parts[1].FunctionCall.Args)

	// JSON tool output passes through as-is.
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, map[string]any{"value": float64(42)}, contents[2].Parts[0].FunctionResponse.Response)

	// Non-JSON tool output gets wrapped.
	require.NotNil(t, contents[3].Parts[0].FunctionResponse)
	assert.Equal(t, map[string]any{"result": "plain text"}, contents[3].Parts[0].FunctionResponse.Response)
}

func TestCompletionSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var body geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotNil(t, body.SystemInstruction)

		json.NewEncoder(w).Encode(geminiResponse{
			ResponseID: "resp_1",
			Candidates: []geminiCandidate{{
				Content:      geminiContent{Role: "model", Parts: []geminiPart{{Text: "hello"}}},
				FinishReason: "STOP",
			}},
			UsageMetadata: &geminiUsageMetadata{PromptTokenCount: 6, CandidatesTokenCount: 1, TotalTokenCount: 7},
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.NewSystemMessage("be helpful"), llm.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini", resp.Provider)
	assert.Equal(t, "hello", resp.FirstMessage().Content)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestCompletionFunctionCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Tools, 1)
		require.Len(t, body.Tools[0].FunctionDeclarations, 1)
		assert.Equal(t, "get_weather", body.Tools[0].FunctionDeclarations[0].Name)

		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Role: "model", Parts: []geminiPart{{
					FunctionCall: &geminiFunctionCall{Name: "get_weather", Args: map[string]any{"city": "Oslo"}},
				}}},
				FinishReason: "STOP",
			}},
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
	assert.Equal(t, "call_get_weather_0_0", msg.ToolCalls[0].ID)
	assert.JSONEq(t, `{"city":"Oslo"}`, string(msg.ToolCalls[0].Arguments))
}

func TestCompletionErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"Resource exhausted","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.NewUserMessage("hi")},
	})
	require.Error(t, err)
	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.ErrRateLimited, terr.Code)
	assert.Contains(t, terr.Message, "RESOURCE_EXHAUSTED")
}

func TestStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hel"}]},"index":0}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"lo"}]},"index":0,"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":2,"totalTokenCount":6}}`,
		}
		flusher := w.(http.Flusher)
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			flusher.Flush()
		}
	}))
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
		content += chunk.Delta.Content
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	assert.Equal(t, "Hello", content)
	assert.Equal(t, "STOP", finish)
	require.NotNil(t, usage)
	assert.Equal(t, 6, usage.TotalTokens)
}

func TestStreamSurfacesMalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\": [truncated\n\n")
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	ch, err := p.Stream(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	var streamErr *llm.Error
	for chunk := range ch {
		if chunk.Err != nil {
			streamErr = chunk.Err
		}
	}
	require.NotNil(t, streamErr, "unparseable payload must surface, not be dropped")
	assert.Equal(t, types.ErrUpstreamError, streamErr.Code)
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"models/gemini-2.0-flash"},{"name":"models/gemini-2.0-pro"}]}`)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gemini-2.0-flash", models[0].ID)
	assert.Equal(t, "google", models[0].OwnedBy)
}
