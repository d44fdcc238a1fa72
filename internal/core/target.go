package core

import "sort"

// Target is a handle to a persisted artifact.
//
// Location is URI-like; its scheme selects the storage backend. A location
// without a registered scheme is a local filesystem path.
type Target struct {
	Location string `json:"location" yaml:"location"`
}

// NewTarget returns a Target at the given location.
func NewTarget(location string) Target {
	return Target{Location: location}
}

// OutputKind discriminates the shape of a task's output.
type OutputKind int

const (
	// OutputNone means the task persists nothing of its own.
	OutputNone OutputKind = iota
	// OutputSingle means the task persists exactly one deletable artifact.
	OutputSingle
	// OutputNamed means the output is a mapping of targets by role name.
	OutputNamed
)

func (k OutputKind) String() string {
	switch k {
	case OutputSingle:
		return "single"
	case OutputNamed:
		return "named"
	default:
		return "none"
	}
}

// Output is the tagged variant returned by Node.Output.
//
// Only OutputSingle denotes a concrete deletable target. Named outputs are
// aggregations of other tasks' targets and are never deleted through the task
// that exposes them.
type Output struct {
	kind   OutputKind
	single Target
	named  map[string]Target
}

// NoOutput returns an output that owns no artifact.
func NoOutput() Output { return Output{kind: OutputNone} }

// SingleOutput returns an output that owns exactly one target.
func SingleOutput(t Target) Output { return Output{kind: OutputSingle, single: t} }

// NamedOutput returns an output made of named targets. The map is copied.
func NamedOutput(targets map[string]Target) Output {
	named := make(map[string]Target, len(targets))
	for role, t := range targets {
		named[role] = t
	}
	return Output{kind: OutputNamed, named: named}
}

// Kind returns the output shape.
func (o Output) Kind() OutputKind { return o.kind }

// Single reports whether the output is a concrete single deletable target.
func (o Output) Single() (Target, bool) {
	if o.kind != OutputSingle {
		return Target{}, false
	}
	return o.single, true
}

// Targets returns the named targets ordered by role, or nil when the output
// is not a named mapping.
func (o Output) Targets() []NamedTarget {
	if o.kind != OutputNamed {
		return nil
	}
	roles := make([]string, 0, len(o.named))
	for role := range o.named {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	out := make([]NamedTarget, 0, len(roles))
	for _, role := range roles {
		out = append(out, NamedTarget{Role: role, Target: o.named[role]})
	}
	return out
}

// NamedTarget pairs a role name with its target.
type NamedTarget struct {
	Role   string
	Target Target
}
