package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/agentscope-ai/agentscope-go/llm"
	"github.com/agentscope-ai/agentscope-go/types"
)

// scriptedProvider returns canned responses for tracing assertions.
type scriptedProvider struct {
	resp   *llm.ChatResponse
	err    error
	chunks []llm.StreamChunk
}

func (p *scriptedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make(chan llm.StreamChunk, len(p.chunks))
	for _, c := range p.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func (p *scriptedProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *scriptedProvider) Name() string                        { return "scripted" }
func (p *scriptedProvider) SupportsNativeFunctionCalling() bool { return true }

func newRecordedProvider(t *testing.T, inner llm.Provider) (*TracingProvider, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	return NewTracingProvider(inner, WithTracer(tp.Tracer("test"))), recorder
}

func attrMap(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestCompletionSpan(t *testing.T) {
	inner := &scriptedProvider{resp: &llm.ChatResponse{
		Model: "gpt-4o",
		Choices: []llm.ChatChoice{{
			FinishReason: "stop",
			Message:      llm.NewAssistantMessage("hello"),
		}},
		Usage: llm.ChatUsage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
	}}
	traced, recorder := newRecordedProvider(t, inner)

	resp, err := traced.Completion(context.Background(), &llm.ChatRequest{
		Model:     "gpt-4o",
		SessionID: "s-1",
		Messages:  []llm.Message{llm.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.FirstMessage().Content)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "chat gpt-4o", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)

	attrs := attrMap(span)
	assert.Equal(t, "scripted", attrs["gen_ai.system"].AsString())
	assert.Equal(t, "gpt-4o", attrs["gen_ai.request.model"].AsString())
	assert.Equal(t, int64(12), attrs["gen_ai.usage.input_tokens"].AsInt64())
	assert.Equal(t, int64(3), attrs["gen_ai.usage.output_tokens"].AsInt64())
	assert.Equal(t, "stop", attrs["gen_ai.response.finish_reasons"].AsString())
	assert.Equal(t, "s-1", attrs["session.id"].AsString())
}

func TestCompletionSpanError(t *testing.T) {
	callErr := &types.Error{Code: types.ErrRateLimited, Message: "slow down"}
	traced, recorder := newRecordedProvider(t, &scriptedProvider{err: callErr})

	_, err := traced.Completion(context.Background(), &llm.ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, string(types.ErrRateLimited), attrMap(span)["error.type"].AsString())
	require.NotEmpty(t, span.Events(), "error should be recorded as a span event")
}

func TestStreamSpanEndsAfterDrain(t *testing.T) {
	inner := &scriptedProvider{chunks: []llm.StreamChunk{
		{Delta: llm.NewAssistantMessage("he")},
		{Delta: llm.NewAssistantMessage("llo")},
		{FinishReason: "stop", Usage: &llm.ChatUsage{PromptTokens: 5, CompletionTokens: 2}},
	}}
	traced, recorder := newRecordedProvider(t, inner)

	ch, err := traced.Stream(context.Background(), &llm.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)

	var got []llm.StreamChunk
	for chunk := range ch {
		got = append(got, chunk)
	}
	require.Len(t, got, 3)

	require.Eventually(t, func() bool {
		return len(recorder.Ended()) == 1
	}, time.Second, 10*time.Millisecond)

	span := recorder.Ended()[0]
	assert.Equal(t, "chat_stream gpt-4o", span.Name())
	attrs := attrMap(span)
	assert.Equal(t, int64(3), attrs["gen_ai.response.chunk_count"].AsInt64())
	assert.Equal(t, "stop", attrs["gen_ai.response.finish_reasons"].AsString())
	assert.Equal(t, int64(5), attrs["gen_ai.usage.input_tokens"].AsInt64())
}

func TestStreamSpanEndsWhenConsumerAbandons(t *testing.T) {
	inner := &scriptedProvider{chunks: []llm.StreamChunk{
		{Delta: llm.NewAssistantMessage("a")},
		{Delta: llm.NewAssistantMessage("b")},
		{Delta: llm.NewAssistantMessage("c")},
	}}
	traced, recorder := newRecordedProvider(t, inner)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := traced.Stream(ctx, &llm.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)

	<-ch
	cancel() // walk away without draining

	require.Eventually(t, func() bool {
		return len(recorder.Ended()) == 1
	}, time.Second, 10*time.Millisecond, "span must end when the consumer abandons the stream")
}

func TestStreamDialFailureEndsSpan(t *testing.T) {
	traced, recorder := newRecordedProvider(t, &scriptedProvider{err: assert.AnError})

	_, err := traced.Stream(context.Background(), &llm.ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)
	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, codes.Error, recorder.Ended()[0].Status().Code)
}

func TestPassthroughMethods(t *testing.T) {
	inner := &scriptedProvider{}
	traced := NewTracingProvider(inner)

	assert.Equal(t, "scripted", traced.Name())
	assert.True(t, traced.SupportsNativeFunctionCalling())
	assert.Same(t, inner, traced.Unwrap())

	health, err := traced.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, health.Healthy)
}
