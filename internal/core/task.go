package core

import (
	"sort"
	"strings"
)

// Param is a single named task parameter.
type Param struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Params is the ordered parameter list of a task.
//
// Declaration order is kept for display only; identity treats Params as a
// mapping keyed by Name (see IdentityOf).
type Params []Param

// Get returns the value of the named parameter.
func (p Params) Get(name string) (string, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return "", false
}

// Sorted returns a copy of the parameters ordered by name.
func (p Params) Sorted() Params {
	out := make(Params, len(p))
	copy(out, p)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// String renders the parameters as "a=x, b=y" in declaration order.
func (p Params) String() string {
	parts := make([]string, 0, len(p))
	for _, param := range p {
		parts = append(parts, param.Name+"="+param.Value)
	}
	return strings.Join(parts, ", ")
}

// Node is the contract the invalidation core needs from a task.
//
// Implementations must be pure: calling Requires or Output has no side
// effects and returns equal values on every call.
type Node interface {
	// Kind identifies the computation the task represents.
	Kind() string

	// Params returns the task parameters.
	Params() Params

	// Requires returns the direct dependencies, positional or by role name.
	Requires() Requirements

	// Output describes the artifact(s) the task persists.
	Output() Output
}

// Requirements holds the direct dependencies of a task.
//
// A task depends on others either positionally or by role name, never both.
type Requirements struct {
	list  []Node
	named map[string]Node
}

// RequireList declares positional dependencies.
func RequireList(nodes ...Node) Requirements {
	out := make([]Node, len(nodes))
	copy(out, nodes)
	return Requirements{list: out}
}

// RequireNamed declares dependencies keyed by role name.
func RequireNamed(nodes map[string]Node) Requirements {
	out := make(map[string]Node, len(nodes))
	for role, n := range nodes {
		out[role] = n
	}
	return Requirements{named: out}
}

// Len returns the number of direct dependencies.
func (r Requirements) Len() int {
	return len(r.list) + len(r.named)
}

// Named returns the role mapping, or nil for positional requirements.
func (r Requirements) Named() map[string]Node {
	if r.named == nil {
		return nil
	}
	out := make(map[string]Node, len(r.named))
	for role, n := range r.named {
		out[role] = n
	}
	return out
}

// Flatten returns every direct dependency with role names discarded.
//
// Named dependencies are returned in role-name order so traversal over the
// result is deterministic.
func (r Requirements) Flatten() []Node {
	out := make([]Node, 0, r.Len())
	out = append(out, r.list...)
	if len(r.named) == 0 {
		return out
	}
	roles := make([]string, 0, len(r.named))
	for role := range r.named {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		out = append(out, r.named[role])
	}
	return out
}

// Task is an immutable, declarative Node.
type Task struct {
	kind     string
	params   Params
	requires Requirements
	output   Output

	inputsAsOutput bool
}

// TaskOption configures a Task at construction time.
type TaskOption func(*Task)

// WithRequires sets the task's direct dependencies.
func WithRequires(r Requirements) TaskOption {
	return func(t *Task) { t.requires = r }
}

// WithOutput sets the task's output.
func WithOutput(o Output) TaskOption {
	return func(t *Task) { t.output = o }
}

// WithInputsAsOutput makes the task's output the named mapping of its named
// dependencies' single targets. Such a task owns no artifact of its own.
func WithInputsAsOutput() TaskOption {
	return func(t *Task) { t.inputsAsOutput = true }
}

// NewTask builds a Task. The params slice is copied.
func NewTask(kind string, params Params, opts ...TaskOption) *Task {
	p := make(Params, len(params))
	copy(p, params)
	t := &Task{kind: kind, params: p, output: NoOutput()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Kind returns the task kind.
func (t *Task) Kind() string { return t.kind }

// Params returns a copy of the parameters in declaration order.
func (t *Task) Params() Params {
	out := make(Params, len(t.params))
	copy(out, t.params)
	return out
}

// Requires returns the direct dependencies.
func (t *Task) Requires() Requirements { return t.requires }

// Output returns the declared output, or for a task built WithInputsAsOutput
// the named single targets of its named dependencies.
func (t *Task) Output() Output {
	if !t.inputsAsOutput {
		return t.output
	}
	targets := make(map[string]Target)
	for role, dep := range t.requires.named {
		if IsNil(dep) {
			continue
		}
		if target, ok := dep.Output().Single(); ok {
			targets[role] = target
		}
	}
	return NamedOutput(targets)
}

var _ Node = (*Task)(nil)
