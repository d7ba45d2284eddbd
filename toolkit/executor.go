package toolkit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentscope-ai/agentscope-go/llm"
	"github.com/agentscope-ai/agentscope-go/types"
)

// ToolChunkType marks what a streamed ToolChunk carries.
type ToolChunkType string

const (
	// ChunkStarted announces that a tool call began executing.
	ChunkStarted ToolChunkType = "started"
	// ChunkResult carries the finished result of one call.
	ChunkResult ToolChunkType = "result"
	// ChunkError carries a result whose execution failed.
	ChunkError ToolChunkType = "error"
)

// ToolChunk is one event in a streaming tool execution. Started chunks carry
// only the call; result and error chunks carry the finished ToolResult.
type ToolChunk struct {
	Type   ToolChunkType    `json:"type"`
	Call   llm.ToolCall     `json:"call"`
	Result types.ToolResult `json:"result,omitempty"`
	Index  int              `json:"index"`
}

// ParallelConfig tunes batch tool execution.
type ParallelConfig struct {
	MaxConcurrency   int           // simultaneous calls, default 5
	ExecutionTimeout time.Duration // budget for the whole batch, 0 means none
	Sequential       bool          // run calls one at a time, in order
	FailFast         bool          // cancel the batch after the first error
	CollectPartial   bool          // keep finished results when the batch aborts
	MaxRetries       int           // re-runs of a failed call, 0 disables retry
	RetryDelay       time.Duration // pause between re-runs
}

// DefaultParallelConfig is the tuning used when the zero config is given.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxConcurrency: 5, CollectPartial: true}
}

// ParallelResult is the outcome of one batch.
type ParallelResult struct {
	Results       []types.ToolResult
	TotalDuration time.Duration
	Completed     int
	Failed        int
	Cancelled     int
	PartialResult bool // the batch aborted before every call finished
}

// ParallelExecutor runs batches of tool calls against a Toolkit, in parallel
// or sequentially, and can stream per-call lifecycle events.
type ParallelExecutor struct {
	tk     *Toolkit
	cfg    ParallelConfig
	logger *zap.Logger
}

// NewParallelExecutor creates an executor. A zero config gets defaults.
func NewParallelExecutor(tk *Toolkit, cfg ParallelConfig, logger *zap.Logger) *ParallelExecutor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultParallelConfig().MaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParallelExecutor{
		tk:     tk,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "tool_executor")),
	}
}

// Execute runs the batch and returns when every call finished or the batch
// aborted. Results keep the order of the incoming calls; aborted slots hold
// an interrupted ToolResult.
func (pe *ParallelExecutor) Execute(ctx context.Context, calls []llm.ToolCall) *ParallelResult {
	res := &ParallelResult{}
	// Restore call order by submission index; the stream yields in
	// completion order and ToolCallIDs are not guaranteed unique.
	slots := make([]*types.ToolResult, len(calls))
	for chunk := range pe.ExecuteStream(ctx, calls) {
		if chunk.Type == ChunkStarted {
			continue
		}
		if chunk.Index >= 0 && chunk.Index < len(slots) {
			r := chunk.Result
			slots[chunk.Index] = &r
		}
	}
	ordered := make([]types.ToolResult, 0, len(calls))
	for _, slot := range slots {
		if slot == nil {
			continue
		}
		r := *slot
		ordered = append(ordered, r)
		switch {
		case r.Interrupted:
			res.Cancelled++
		case r.IsError():
			res.Failed++
		default:
			res.Completed++
		}
		res.TotalDuration += r.Duration
	}
	res.Results = ordered
	res.PartialResult = res.Cancelled > 0
	if res.PartialResult && !pe.cfg.CollectPartial {
		kept := res.Results[:0]
		for _, r := range res.Results {
			if !r.Interrupted {
				kept = append(kept, r)
			}
		}
		res.Results = kept
	}
	return res
}

// ExecuteStream runs the batch and emits lifecycle chunks on the returned
// channel: a started chunk when a call begins, then a result or error chunk
// when it finishes. The channel closes after the last call.
func (pe *ParallelExecutor) ExecuteStream(ctx context.Context, calls []llm.ToolCall) <-chan ToolChunk {
	out := make(chan ToolChunk, len(calls)*2)
	if len(calls) == 0 {
		close(out)
		return out
	}

	execCtx := ctx
	var cancel context.CancelFunc = func() {}
	if pe.cfg.ExecutionTimeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, pe.cfg.ExecutionTimeout)
	}

	go func() {
		defer close(out)
		defer cancel()
		if pe.cfg.Sequential {
			pe.runSequential(execCtx, calls, out)
		} else {
			pe.runParallel(execCtx, calls, out)
		}
	}()
	return out
}

func (pe *ParallelExecutor) runSequential(ctx context.Context, calls []llm.ToolCall, out chan<- ToolChunk) {
	aborted := false
	for i, call := range calls {
		if aborted || ctx.Err() != nil {
			out <- ToolChunk{Type: ChunkError, Call: call, Index: i, Result: interruptedResult(call)}
			continue
		}
		out <- ToolChunk{Type: ChunkStarted, Call: call, Index: i}
		result := pe.callWithRetry(ctx, call)
		out <- ToolChunk{Type: chunkTypeFor(result), Call: call, Index: i, Result: result}
		if result.IsError() && pe.cfg.FailFast {
			aborted = true
		}
	}
}

func (pe *ParallelExecutor) runParallel(ctx context.Context, calls []llm.ToolCall, out chan<- ToolChunk) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pe.cfg.MaxConcurrency)

	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			if gctx.Err() != nil {
				out <- ToolChunk{Type: ChunkError, Call: call, Index: i, Result: interruptedResult(call)}
				return nil
			}
			out <- ToolChunk{Type: ChunkStarted, Call: call, Index: i}

			result := pe.callWithRetry(gctx, call)

			out <- ToolChunk{Type: chunkTypeFor(result), Call: call, Index: i, Result: result}

			if result.IsError() && !result.Interrupted && pe.cfg.FailFast {
				pe.logger.Warn("aborting batch after tool failure",
					zap.String("tool", call.Name), zap.String("error", result.Error))
				return &types.Error{Code: types.ErrInternal, Message: result.Error}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// callWithRetry re-runs failed calls up to MaxRetries. Interruptions are
// final; only genuine execution errors are retried.
func (pe *ParallelExecutor) callWithRetry(ctx context.Context, call llm.ToolCall) types.ToolResult {
	result := pe.tk.CallTool(ctx, call)
	for attempt := 0; attempt < pe.cfg.MaxRetries && result.IsError() && !result.Interrupted; attempt++ {
		if pe.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return result
			case <-time.After(pe.cfg.RetryDelay):
			}
		}
		pe.logger.Debug("retrying tool call",
			zap.String("tool", call.Name), zap.Int("attempt", attempt+1))
		result = pe.tk.CallTool(ctx, call)
	}
	return result
}

func chunkTypeFor(r types.ToolResult) ToolChunkType {
	if r.IsError() {
		return ChunkError
	}
	return ChunkResult
}

func interruptedResult(call llm.ToolCall) types.ToolResult {
	return types.ToolResult{
		ToolCallID:  call.ID,
		Name:        call.Name,
		Interrupted: true,
		Error:       "execution interrupted",
	}
}
