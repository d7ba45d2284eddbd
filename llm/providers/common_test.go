package providers

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentscope-ai/agentscope-go/llm"
	"github.com/agentscope-ai/agentscope-go/types"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		msg       string
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"unauthorized", 401, "bad key", types.ErrUnauthorized, false},
		{"forbidden", 403, "nope", types.ErrForbidden, false},
		{"rate limited", 429, "slow down", types.ErrRateLimited, true},
		{"bad request", 400, "missing field", types.ErrInvalidRequest, false},
		{"quota in 400", 400, "insufficient quota remaining", types.ErrQuotaExceeded, false},
		{"credit in 400", 400, "credit balance too low", types.ErrQuotaExceeded, false},
		{"request timeout", 408, "timed out", types.ErrUpstreamTimeout, true},
		{"gateway timeout", 504, "timed out", types.ErrUpstreamTimeout, true},
		{"service unavailable", 503, "down", types.ErrUpstreamError, true},
		{"overloaded", 529, "overloaded", types.ErrModelOverloaded, true},
		{"unknown 5xx", 500, "boom", types.ErrUpstreamError, true},
		{"unknown 4xx", 418, "teapot", types.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "vendor")
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, "vendor", err.Provider)
		})
	}
}

func TestReadErrorMessage(t *testing.T) {
	got := ReadErrorMessage(strings.NewReader(`{"error":{"message":"broken","type":"api_error"}}`))
	assert.Equal(t, "broken (type: api_error)", got)

	got = ReadErrorMessage(strings.NewReader("plain text failure"))
	assert.Equal(t, "plain text failure", got)
}

func TestConvertMessagesToOpenAI(t *testing.T) {
	out := ConvertMessagesToOpenAI([]llm.Message{
		llm.NewUserMessage("hi"),
		{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				ID: "call_1", Name: "search", Arguments: json.RawMessage(`{"q":"x"}`),
			}},
		},
		llm.NewToolMessage("search", "call_1", "result"),
	})

	require.Len(t, out, 3)
	assert.Equal(t, "user", out[0].Role)

	require.Len(t, out[1].ToolCalls, 1)
	assert.Equal(t, "function", out[1].ToolCalls[0].Type)
	assert.Equal(t, "search", out[1].ToolCalls[0].Function.Name)

	assert.Equal(t, "tool", out[2].Role)
	assert.Equal(t, "call_1", out[2].ToolCallID)
}

func TestConvertToolsToOpenAI(t *testing.T) {
	assert.Nil(t, ConvertToolsToOpenAI(nil))

	out := ConvertToolsToOpenAI([]llm.ToolSchema{{
		Name:        "get_time",
		Description: "current time",
		Parameters:  json.RawMessage(`{"type":"object"}`),
	}})
	require.Len(t, out, 1)
	assert.Equal(t, "function", out[0].Type)
	assert.Equal(t, "get_time", out[0].Function.Name)
	assert.Equal(t, "current time", out[0].Function.Description)
	assert.JSONEq(t, `{"type":"object"}`, string(out[0].Function.Parameters))
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req-model", ChooseModel(&llm.ChatRequest{Model: "req-model"}, "default", "fallback"))
	assert.Equal(t, "default", ChooseModel(&llm.ChatRequest{}, "default", "fallback"))
	assert.Equal(t, "fallback", ChooseModel(nil, "", "fallback"))
}
