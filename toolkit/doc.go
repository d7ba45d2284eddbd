// Package toolkit is the tool registration and execution core. A Toolkit
// holds tools (name + JSON Schema + Go function), organized into groups the
// model can equip and unequip at runtime. Arguments coming back from the
// model are validated against each tool's compiled schema before dispatch.
//
// Plain functions taking a struct argument are registered through
// RegisterFunc, which derives the parameter schema by reflection; whole
// receivers are walked by RegisterMethods. The ParallelExecutor runs batches
// of tool calls with bounded concurrency, per-tool timeouts, retry for
// retryable failures, fail-fast cancellation, and a streaming event channel
// for callers that surface progress incrementally.
package toolkit
