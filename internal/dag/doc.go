// Package dag discovers the transitive dependency closure of a root task.
//
// Traversal is depth-first and post-order, memoized by structural identity
// (core.TaskID), so a task reachable through several parents appears once and
// always after its own dependencies. Cycles are rejected with ErrCycleFound
// instead of producing a truncated closure.
package dag
