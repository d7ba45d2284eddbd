// Package llm defines the unified model-provider abstraction: the Provider
// interface, the chat request/response DTOs shared by every vendor client,
// and a provider registry.
//
// Vendor clients live under llm/providers. They all speak the same
// ChatRequest/ChatResponse/StreamChunk contract so that routing, retry
// wrapping and tool dispatch never depend on a specific vendor.
package llm
