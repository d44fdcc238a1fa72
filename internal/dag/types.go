package dag

import "cachepurge/internal/core"

// ClosureHash is the deterministic identity of a Closure.
//
// It is computed from the member TaskIDs and the dependency edges between
// them, and is stable across declaration orders.
type ClosureHash string

// String returns the string representation of the ClosureHash.
func (h ClosureHash) String() string { return string(h) }

// Edge represents a dependency relation: Parent requires Child.
type Edge struct {
	Parent core.TaskID
	Child  core.TaskID
}
