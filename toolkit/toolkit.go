package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agentscope-ai/agentscope-go/llm"
	"github.com/agentscope-ai/agentscope-go/types"
)

// DefaultGroup is the group tools land in when none is named. It is always
// active and cannot be deactivated.
const DefaultGroup = "basic"

const defaultToolTimeout = 30 * time.Second

// ToolFunc is the executable behind a registered tool. Arguments arrive as
// the raw JSON object produced by the model; the result is re-encoded JSON.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// RateLimitConfig caps the call rate of one tool.
type RateLimitConfig struct {
	PerSecond float64 // sustained calls per second
	Burst     int     // burst size, default 1
}

// ToolMetadata carries everything registered alongside a ToolFunc.
type ToolMetadata struct {
	Schema    llm.ToolSchema
	Timeout   time.Duration // per-call timeout, default 30s
	RateLimit *RateLimitConfig
}

type toolEntry struct {
	fn        ToolFunc
	meta      ToolMetadata
	validator *argValidator
	limiter   *rate.Limiter
}

// Toolkit is a thread-safe registry and dispatcher of tools.
type Toolkit struct {
	mu      sync.RWMutex
	tools   map[string]*toolEntry
	groups  *GroupManager
	logger  *zap.Logger
	metrics *Metrics
}

// Option configures a Toolkit.
type Option func(*Toolkit)

// WithMetrics attaches Prometheus execution metrics.
func WithMetrics(m *Metrics) Option {
	return func(tk *Toolkit) { tk.metrics = m }
}

// New creates an empty Toolkit with the reset_equipped_tools meta tool
// pre-registered.
func New(logger *zap.Logger, opts ...Option) *Toolkit {
	if logger == nil {
		logger = zap.NewNop()
	}
	tk := &Toolkit{
		tools:  make(map[string]*toolEntry),
		groups: NewGroupManager(),
		logger: logger.With(zap.String("component", "toolkit")),
	}
	for _, opt := range opts {
		opt(tk)
	}
	tk.registerMetaTools()
	return tk
}

// Groups exposes the group manager.
func (tk *Toolkit) Groups() *GroupManager { return tk.groups }

// Register adds a tool. The schema name defaults to the registration name
// and must match it when set; the parameter schema is compiled for argument
// validation up front so bad schemas fail at registration, not dispatch.
func (tk *Toolkit) Register(name string, fn ToolFunc, meta ToolMetadata) error {
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if fn == nil {
		return fmt.Errorf("tool %s: function is nil", name)
	}

	if meta.Schema.Name == "" {
		meta.Schema.Name = name
	}
	if meta.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", meta.Schema.Name, name)
	}
	if meta.Schema.Group == "" {
		meta.Schema.Group = DefaultGroup
	}
	if meta.Timeout <= 0 {
		meta.Timeout = defaultToolTimeout
	}

	validator, err := compileValidator(meta.Schema.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	entry := &toolEntry{fn: fn, meta: meta, validator: validator}
	if rl := meta.RateLimit; rl != nil && rl.PerSecond > 0 {
		burst := rl.Burst
		if burst < 1 {
			burst = 1
		}
		entry.limiter = rate.NewLimiter(rate.Limit(rl.PerSecond), burst)
	}

	tk.mu.Lock()
	defer tk.mu.Unlock()
	if _, exists := tk.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	tk.tools[name] = entry
	tk.groups.track(meta.Schema.Group)

	tk.logger.Info("tool registered",
		zap.String("name", name),
		zap.String("group", meta.Schema.Group),
		zap.Duration("timeout", meta.Timeout))
	return nil
}

// Unregister removes a tool.
func (tk *Toolkit) Unregister(name string) error {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	if _, exists := tk.tools[name]; !exists {
		return fmt.Errorf("tool %s not found", name)
	}
	delete(tk.tools, name)
	tk.logger.Info("tool unregistered", zap.String("name", name))
	return nil
}

// Has reports whether a tool is registered.
func (tk *Toolkit) Has(name string) bool {
	tk.mu.RLock()
	defer tk.mu.RUnlock()
	_, ok := tk.tools[name]
	return ok
}

// Schemas returns the schemas of tools in active groups, sorted by name.
// This is what gets advertised to the model.
func (tk *Toolkit) Schemas() []llm.ToolSchema {
	tk.mu.RLock()
	defer tk.mu.RUnlock()

	out := make([]llm.ToolSchema, 0, len(tk.tools))
	for _, e := range tk.tools {
		if tk.groups.IsActive(e.meta.Schema.Group) {
			out = append(out, e.meta.Schema)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AllSchemas returns every registered schema regardless of group state.
func (tk *Toolkit) AllSchemas() []llm.ToolSchema {
	tk.mu.RLock()
	defer tk.mu.RUnlock()

	out := make([]llm.ToolSchema, 0, len(tk.tools))
	for _, e := range tk.tools {
		out = append(out, e.meta.Schema)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GroupSchema merges the parameter schemas of every tool in the group into
// one object schema keyed by tool name.
func (tk *Toolkit) GroupSchema(group string) (json.RawMessage, error) {
	tk.mu.RLock()
	defer tk.mu.RUnlock()

	named := make(map[string]json.RawMessage)
	for name, e := range tk.tools {
		if e.meta.Schema.Group == group {
			named[name] = e.meta.Schema.Parameters
		}
	}
	if len(named) == 0 {
		return nil, fmt.Errorf("group %s has no tools", group)
	}
	return MergeToolSchemas(named)
}

func (tk *Toolkit) entry(name string) (*toolEntry, error) {
	tk.mu.RLock()
	defer tk.mu.RUnlock()
	e, ok := tk.tools[name]
	if !ok {
		return nil, &types.Error{Code: types.ErrToolNotFound, Message: fmt.Sprintf("tool %s not found", name)}
	}
	return e, nil
}

// CallTool validates and executes one tool call. The error surface is folded
// into the ToolResult; callers always get a result to hand back to the model.
func (tk *Toolkit) CallTool(ctx context.Context, call llm.ToolCall) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{ToolCallID: call.ID, Name: call.Name}

	finish := func() types.ToolResult {
		result.Duration = time.Since(start)
		if tk.metrics != nil {
			tk.metrics.Observe(call.Name, result)
		}
		return result
	}

	e, err := tk.entry(call.Name)
	if err != nil {
		result.Error = err.Error()
		return finish()
	}

	if !tk.groups.IsActive(e.meta.Schema.Group) {
		result.Error = fmt.Sprintf("tool %s belongs to inactive group %s", call.Name, e.meta.Schema.Group)
		return finish()
	}

	if e.limiter != nil && !e.limiter.Allow() {
		result.Error = fmt.Sprintf("rate limit exceeded for tool %s", call.Name)
		return finish()
	}

	if err := e.validator.Validate(call.Arguments); err != nil {
		result.Error = err.Error()
		tk.logger.Warn("tool arguments rejected", zap.String("name", call.Name), zap.Error(err))
		return finish()
	}

	execCtx, cancel := context.WithTimeout(ctx, e.meta.Timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	// Buffered so the worker can exit even when nobody is left to receive.
	done := make(chan outcome, 1)
	go func() {
		res, err := e.fn(execCtx, call.Arguments)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			result.Error = out.err.Error()
			tk.logger.Error("tool execution failed",
				zap.String("name", call.Name), zap.Error(out.err))
		} else {
			result.Result = out.res
		}
	case <-execCtx.Done():
		if ctx.Err() != nil {
			result.Interrupted = true
			result.Error = "execution interrupted"
		} else {
			result.Error = fmt.Sprintf("execution timeout after %s", e.meta.Timeout)
		}
		tk.logger.Warn("tool execution aborted",
			zap.String("name", call.Name),
			zap.Bool("interrupted", result.Interrupted))
	}
	return finish()
}
