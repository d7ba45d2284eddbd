// Package mcp implements a Model Context Protocol client: JSON-RPC 2.0
// framing over stdio or WebSocket, the initialize handshake, and tool
// discovery and invocation against an MCP server. Discovered tools can be
// registered into a toolkit group so the model calls them like local tools.
package mcp
