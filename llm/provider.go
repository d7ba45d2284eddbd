package llm

import (
	"context"
	"time"

	"github.com/agentscope-ai/agentscope-go/types"
)

// Aliases into types so callers of this package rarely need both imports.
type (
	Role       = types.Role
	Message    = types.Message
	ToolCall   = types.ToolCall
	ToolSchema = types.ToolSchema
	Error      = types.Error
	ErrorCode  = types.ErrorCode
)

const (
	RoleSystem    = types.RoleSystem
	RoleUser      = types.RoleUser
	RoleAssistant = types.RoleAssistant
	RoleTool      = types.RoleTool
)

// Error codes re-exported from types.
const (
	ErrInvalidRequest      = types.ErrInvalidRequest
	ErrUnauthorized        = types.ErrUnauthorized
	ErrForbidden           = types.ErrForbidden
	ErrRateLimited         = types.ErrRateLimited
	ErrQuotaExceeded       = types.ErrQuotaExceeded
	ErrContentFiltered     = types.ErrContentFiltered
	ErrToolValidation      = types.ErrToolValidation
	ErrToolNotFound        = types.ErrToolNotFound
	ErrToolTimeout         = types.ErrToolTimeout
	ErrToolInterrupted     = types.ErrToolInterrupted
	ErrModelOverloaded     = types.ErrModelOverloaded
	ErrUpstreamTimeout     = types.ErrUpstreamTimeout
	ErrUpstreamError       = types.ErrUpstreamError
	ErrProviderUnavailable = types.ErrProviderUnavailable
	ErrSessionNotFound     = types.ErrSessionNotFound
	ErrInternal            = types.ErrInternal
)

// Message constructors re-exported from types.
var (
	NewSystemMessage    = types.NewSystemMessage
	NewUserMessage      = types.NewUserMessage
	NewAssistantMessage = types.NewAssistantMessage
	NewToolMessage      = types.NewToolMessage
)

// ChatRequest is the unified chat-completion request sent to any provider.
type ChatRequest struct {
	TraceID     string            `json:"trace_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Model       string            `json:"model,omitempty"`
	Messages    []Message         `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
	TopP        float32           `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Tools       []ToolSchema      `json:"tools,omitempty"`
	ToolChoice  string            `json:"tool_choice,omitempty"` // auto/none/<tool name>
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ChatUsage reports token consumption for a completed request.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatChoice is one candidate answer in a ChatResponse.
type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

// ChatResponse is the unified non-streaming completion response.
type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// FirstMessage returns the message of the first choice, or a zero Message.
func (r *ChatResponse) FirstMessage() Message {
	if len(r.Choices) == 0 {
		return Message{}
	}
	return r.Choices[0].Message
}

// StreamChunk is one incremental event of a streaming completion.
// The final chunk may carry Usage; a transport failure is delivered as a
// chunk with Err set, after which the channel is closed.
type StreamChunk struct {
	ID           string     `json:"id,omitempty"`
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	Index        int        `json:"index,omitempty"`
	Delta        Message    `json:"delta"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *ChatUsage `json:"usage,omitempty"`
	Err          *Error     `json:"error,omitempty"`
}

// Model describes one model exposed by a provider.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// HealthStatus is the result of a provider health probe.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider is the unified adapter interface implemented by every vendor
// client. Tool schemas travel in ChatRequest.Tools; the model returns
// ToolCalls in its messages and execution is the toolkit package's job.
type Provider interface {
	// Completion performs a synchronous chat request.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream performs a streaming chat request. The returned channel is
	// closed when the stream ends or ctx is cancelled.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// HealthCheck performs a lightweight reachability probe.
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name returns the provider's unique identifier.
	Name() string

	// SupportsNativeFunctionCalling reports whether the provider accepts
	// tool schemas natively. Callers must not send Tools to providers that
	// return false.
	SupportsNativeFunctionCalling() bool
}
