// Package doubao adapts ByteDance Doubao to the unified llm.Provider
// interface. Text chat goes through the Ark OpenAI-compatible endpoint; the
// realtime voice model uses a WebSocket session, see LiveClient.
package doubao
