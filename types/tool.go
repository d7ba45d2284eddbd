package types

import (
	"encoding/json"
	"time"
)

// ToolSchema declares a tool to the model: a name, a human description and a
// JSON Schema for its parameters. Group is the tool group the tool belongs
// to; tools in inactive groups are not advertised to the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
	Group       string          `json:"group,omitempty"`
	Version     string          `json:"version,omitempty"`
}

// ToolResult is the outcome of executing one tool call.
type ToolResult struct {
	ToolCallID  string          `json:"tool_call_id"`
	Name        string          `json:"name"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Interrupted bool            `json:"interrupted,omitempty"`
	Duration    time.Duration   `json:"duration"`
}

// ToMessage converts the result into a tool message for the next model turn.
func (tr ToolResult) ToMessage() Message {
	content := string(tr.Result)
	if tr.Error != "" {
		content = "Error: " + tr.Error
	}
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       tr.Name,
		ToolCallID: tr.ToolCallID,
	}
}

// IsError reports whether the tool execution failed.
func (tr ToolResult) IsError() bool { return tr.Error != "" }
