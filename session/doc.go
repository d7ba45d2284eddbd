// Package session manages conversation state: per-session message history
// with token-aware windowing, metadata, idle eviction, and pluggable
// persistence (in-memory, Redis, SQLite).
package session
