// Package ollama adapts a local Ollama server to the unified llm.Provider
// interface through Ollama's OpenAI-compatible endpoint. No API key is
// required; the default base URL is http://localhost:11434.
package ollama
