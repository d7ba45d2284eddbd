// Package types provides the shared domain types of the agentscope framework.
// It depends on no other agentscope package so that every layer (llm, toolkit,
// mcp, session) can import it without cycles.
//
// The package defines the conversation model (Message, Role, ToolCall), the
// tool contract (ToolSchema, ToolResult), a JSON Schema representation used
// for tool parameter declarations, and the structured Error type shared by
// all provider clients.
package types
