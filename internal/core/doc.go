// Package core provides the task and target models consumed by cache
// invalidation.
//
// # Core Types
//
// Node: the contract a task exposes (kind, parameters, dependencies, output).
// Task: an immutable, declarative Node.
// Target: a handle to one persisted artifact at a storage location.
// Output: a tagged variant, either nothing, one Target, or named Targets.
// TaskID: structural identity over kind and parameters.
//
// Nothing in this package performs I/O.
package core
