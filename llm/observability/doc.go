// Package observability decorates providers with OpenTelemetry tracing.
//
// TracingProvider wraps any llm.Provider and records one span per
// Completion or Stream call, carrying gen_ai semantic attributes
// (system, model, token usage, finish reason). Span export is the
// caller's concern: wire a real TracerProvider through otel.SetTracerProvider
// or pass a trace.Tracer explicitly; with none configured the wrapper is
// a no-op passthrough.
package observability
