package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agentscope-ai/agentscope-go/llm"
)

const tracerName = "github.com/agentscope-ai/agentscope-go/llm/observability"

// TracingProvider wraps a Provider and emits one span per call.
type TracingProvider struct {
	inner  llm.Provider
	tracer trace.Tracer
	logger *zap.Logger
}

// TracingOption configures a TracingProvider.
type TracingOption func(*TracingProvider)

// WithTracer overrides the tracer. Defaults to otel.Tracer(tracerName).
func WithTracer(t trace.Tracer) TracingOption {
	return func(tp *TracingProvider) { tp.tracer = t }
}

// WithLogger sets the logger used for span lifecycle debug output.
func WithLogger(logger *zap.Logger) TracingOption {
	return func(tp *TracingProvider) { tp.logger = logger }
}

// NewTracingProvider wraps inner so every Completion and Stream call is
// recorded as a span.
func NewTracingProvider(inner llm.Provider, opts ...TracingOption) *TracingProvider {
	tp := &TracingProvider{
		inner:  inner,
		tracer: otel.Tracer(tracerName),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(tp)
	}
	tp.logger = tp.logger.With(zap.String("component", "tracing"), zap.String("provider", inner.Name()))
	return tp
}

// Unwrap returns the wrapped provider.
func (tp *TracingProvider) Unwrap() llm.Provider { return tp.inner }

func (tp *TracingProvider) Name() string { return tp.inner.Name() }

func (tp *TracingProvider) SupportsNativeFunctionCalling() bool {
	return tp.inner.SupportsNativeFunctionCalling()
}

func (tp *TracingProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return tp.inner.HealthCheck(ctx)
}

// Completion records a "chat <model>" span around the wrapped call.
func (tp *TracingProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	ctx, span := tp.tracer.Start(ctx, "chat "+req.Model,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(requestAttrs(tp.inner.Name(), "chat", req)...))
	defer span.End()

	resp, err := tp.inner.Completion(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(responseAttrs(resp)...)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// Stream opens the span before dialing and keeps it alive until the chunk
// channel drains, so streaming latency is measured end to end.
func (tp *TracingProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	ctx, span := tp.tracer.Start(ctx, "chat_stream "+req.Model,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(requestAttrs(tp.inner.Name(), "chat_stream", req)...))

	inner, err := tp.inner.Stream(ctx, req)
	if err != nil {
		recordError(span, err)
		span.End()
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer span.End()

		var chunks int
		for chunk := range inner {
			chunks++
			if chunk.Err != nil {
				recordError(span, chunk.Err)
			}
			if chunk.Usage != nil {
				span.SetAttributes(usageAttrs(*chunk.Usage)...)
			}
			if chunk.FinishReason != "" {
				span.SetAttributes(attribute.String("gen_ai.response.finish_reasons", chunk.FinishReason))
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				// Consumer gone; end the span instead of blocking forever.
				recordError(span, ctx.Err())
				return
			}
		}
		span.SetAttributes(attribute.Int("gen_ai.response.chunk_count", chunks))
		tp.logger.Debug("stream span closed", zap.Int("chunks", chunks))
	}()
	return out, nil
}

func requestAttrs(provider, operation string, req *llm.ChatRequest) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("gen_ai.system", provider),
		attribute.String("gen_ai.operation.name", operation),
		attribute.String("gen_ai.request.model", req.Model),
		attribute.Int("gen_ai.request.message_count", len(req.Messages)),
	}
	if len(req.Tools) > 0 {
		attrs = append(attrs, attribute.Int("gen_ai.request.tool_count", len(req.Tools)))
	}
	if req.MaxTokens > 0 {
		attrs = append(attrs, attribute.Int("gen_ai.request.max_tokens", req.MaxTokens))
	}
	if req.SessionID != "" {
		attrs = append(attrs, attribute.String("session.id", req.SessionID))
	}
	return attrs
}

func responseAttrs(resp *llm.ChatResponse) []attribute.KeyValue {
	attrs := append(usageAttrs(resp.Usage),
		attribute.String("gen_ai.response.model", resp.Model))
	if len(resp.Choices) > 0 && resp.Choices[0].FinishReason != "" {
		attrs = append(attrs, attribute.String("gen_ai.response.finish_reasons", resp.Choices[0].FinishReason))
	}
	return attrs
}

func usageAttrs(usage llm.ChatUsage) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("gen_ai.usage.input_tokens", usage.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", usage.CompletionTokens),
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	var te *llm.Error
	if errors.As(err, &te) {
		span.SetAttributes(attribute.String("error.type", string(te.Code)))
	}
}
