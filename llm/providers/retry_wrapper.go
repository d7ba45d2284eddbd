package providers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentscope-ai/agentscope-go/llm"
	"github.com/agentscope-ai/agentscope-go/llm/retry"
)

// RetryableProvider wraps an llm.Provider with the retry.ExecutionConfig
// backoff policy. Completion calls are retried whole; for Stream only the
// connection phase is retried, a chunk error mid-stream is final.
type RetryableProvider struct {
	inner         llm.Provider
	retryer       retry.Retryer
	streamRetryer retry.Retryer
	dialTimeout   time.Duration
	logger        *zap.Logger
}

// NewRetryableProvider creates a retrying wrapper around the given provider.
// The per-attempt timeout applies to whole Completion calls but only to the
// connection phase of Stream: once chunks are flowing the stream lives until
// it closes or the caller's context is cancelled.
func NewRetryableProvider(inner llm.Provider, cfg retry.ExecutionConfig, logger *zap.Logger) *RetryableProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "retry_provider"), zap.String("provider", inner.Name()))

	streamCfg := cfg
	streamCfg.Timeout = 0
	return &RetryableProvider{
		inner:         inner,
		retryer:       retry.NewRetryer(cfg, logger),
		streamRetryer: retry.NewRetryer(streamCfg, logger),
		dialTimeout:   cfg.Timeout,
		logger:        logger,
	}
}

var _ llm.Provider = (*RetryableProvider)(nil)

func (p *RetryableProvider) Name() string { return p.inner.Name() }

func (p *RetryableProvider) SupportsNativeFunctionCalling() bool {
	return p.inner.SupportsNativeFunctionCalling()
}

func (p *RetryableProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return p.inner.HealthCheck(ctx)
}

// Completion performs a chat completion, retrying transient failures.
func (p *RetryableProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return retry.DoWithResult(p.retryer, ctx, func(ctx context.Context) (*llm.ChatResponse, error) {
		return p.inner.Completion(ctx, req)
	})
}

// Stream opens a streaming completion, retrying connection failures. The
// producer captures the context it is dialed with, so the per-attempt
// timeout must not cancel on return; instead a timer guards the dial and is
// stopped as soon as the channel is handed back.
func (p *RetryableProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return retry.DoWithResult(p.streamRetryer, ctx, func(ctx context.Context) (<-chan llm.StreamChunk, error) {
		streamCtx, cancel := context.WithCancel(ctx)

		var dialTimer *time.Timer
		if p.dialTimeout > 0 {
			dialTimer = time.AfterFunc(p.dialTimeout, cancel)
		}
		inner, err := p.inner.Stream(streamCtx, req)
		if dialTimer != nil {
			dialTimer.Stop()
		}
		if err != nil {
			cancel()
			return nil, err
		}

		out := make(chan llm.StreamChunk)
		go func() {
			defer close(out)
			defer cancel()
			for chunk := range inner {
				select {
				case out <- chunk:
				case <-streamCtx.Done():
					return
				}
			}
		}()
		return out, nil
	})
}
