// Package providers holds the vendor client implementations of llm.Provider
// and the conversion helpers they share.
//
// Vendors whose APIs are OpenAI-compatible (OpenAI, DashScope, Doubao,
// Ollama's compat mode) embed openaicompat.Provider and only override what
// differs: base URL, endpoint path, headers and default model. Anthropic and
// Gemini have their own wire formats and implement the interface directly.
package providers
