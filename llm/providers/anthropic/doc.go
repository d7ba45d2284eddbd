// Package anthropic adapts the Anthropic Messages API to the unified
// llm.Provider interface. The wire format differs from OpenAI-compatible
// vendors in several ways: authentication uses the x-api-key header, the
// system prompt travels in a dedicated field, message content is a list of
// typed blocks, and streaming is a sequence of typed SSE events rather than
// uniform deltas. max_tokens is mandatory; a default is applied when the
// request omits it.
package anthropic
