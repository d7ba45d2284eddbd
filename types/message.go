package types

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the model.
// Arguments is the raw JSON object the model produced; it is validated
// against the tool's schema before dispatch.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// AudioContent carries audio data for voice-capable models (e.g. Doubao live).
type AudioContent struct {
	Format string `json:"format,omitempty"` // pcm, wav, ogg
	Data   []byte `json:"data,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Message is a single conversation turn.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content,omitempty"`
	Name       string        `json:"name,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"` // set on tool result messages
	Audio      *AudioContent `json:"audio,omitempty"`
	Metadata   any           `json:"metadata,omitempty"`
	Timestamp  time.Time     `json:"timestamp,omitempty"`
}

// NewMessage creates a message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message { return NewMessage(RoleSystem, content) }

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message { return NewMessage(RoleUser, content) }

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message { return NewMessage(RoleAssistant, content) }

// NewToolMessage creates a tool result message bound to a tool call ID.
func NewToolMessage(name, toolCallID, content string) Message {
	m := NewMessage(RoleTool, content)
	m.Name = name
	m.ToolCallID = toolCallID
	return m
}

// HasToolCalls reports whether the message requests any tool invocations.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }
