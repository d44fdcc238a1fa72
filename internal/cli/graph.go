package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"cachepurge/internal/core"
	"cachepurge/internal/dag"
)

type graphFile struct {
	Tasks map[string]taskDecl `yaml:"tasks"`
}

type taskDecl struct {
	Kind     string       `yaml:"kind"`
	Params   paramsDecl   `yaml:"params"`
	Requires requiresDecl `yaml:"requires"`
	Output   *outputDecl  `yaml:"output"`
}

// paramsDecl accepts either a mapping (declaration order kept) or a list of
// {name, value} entries.
type paramsDecl core.Params

func (p *paramsDecl) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(paramsDecl, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var name, value string
			if err := node.Content[i].Decode(&name); err != nil {
				return err
			}
			if err := node.Content[i+1].Decode(&value); err != nil {
				return fmt.Errorf("param %q: %w", name, err)
			}
			out = append(out, core.Param{Name: name, Value: value})
		}
		*p = out
		return nil
	case yaml.SequenceNode:
		var list []core.Param
		if err := node.Decode(&list); err != nil {
			return err
		}
		*p = paramsDecl(list)
		return nil
	default:
		return fmt.Errorf("line %d: params must be a mapping or a list", node.Line)
	}
}

// requiresDecl accepts a list of task names or a mapping of role -> task name.
type requiresDecl struct {
	list  []string
	named map[string]string
}

func (r *requiresDecl) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(&r.list)
	case yaml.MappingNode:
		return node.Decode(&r.named)
	default:
		return fmt.Errorf("line %d: requires must be a list or a mapping", node.Line)
	}
}

type outputDecl struct {
	Target  string            `yaml:"target"`
	Targets map[string]string `yaml:"targets"`
	Inputs  bool              `yaml:"inputs"`
}

// Graph is a set of named task declarations resolved into core.Nodes.
type Graph struct {
	tasks map[string]core.Node
}

// Task returns the task declared under name.
func (g *Graph) Task(name string) (core.Node, bool) {
	n, ok := g.tasks[name]
	return n, ok
}

// Names returns the declared task names, sorted.
func (g *Graph) Names() []string {
	out := make([]string, 0, len(g.tasks))
	for name := range g.tasks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LoadGraphFromFile reads and parses the graph definition at path.
//
// JSON and YAML are both accepted. Relative local target locations are
// resolved under workDir; locations with a scheme prefix are kept verbatim.
func LoadGraphFromFile(path, workDir string) (*Graph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	return ParseGraph(b, workDir)
}

// ParseGraph parses a graph definition. Unknown fields are rejected.
func ParseGraph(data []byte, workDir string) (*Graph, error) {
	var gf graphFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&gf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse graph: empty document")
		}
		return nil, fmt.Errorf("parse graph: %w", err)
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("parse graph: trailing document")
		}
		return nil, fmt.Errorf("parse graph: %w", err)
	}
	if len(gf.Tasks) == 0 {
		return nil, fmt.Errorf("parse graph: no tasks")
	}

	b := &graphBuilder{
		decls:   gf.Tasks,
		workDir: workDir,
		built:   make(map[string]core.Node, len(gf.Tasks)),
		onPath:  make(map[string]bool),
	}
	names := make([]string, 0, len(gf.Tasks))
	for name := range gf.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := b.build(name); err != nil {
			return nil, err
		}
	}
	return &Graph{tasks: b.built}, nil
}

type graphBuilder struct {
	decls   map[string]taskDecl
	workDir string
	built   map[string]core.Node
	onPath  map[string]bool
	path    []string
}

func (b *graphBuilder) build(name string) (core.Node, error) {
	if n, ok := b.built[name]; ok {
		return n, nil
	}
	if b.onPath[name] {
		cycle := append(append([]string{}, b.path[indexOf(b.path, name):]...), name)
		return nil, &dag.GraphError{Kind: dag.ErrCycleFound, Cycle: cycle}
	}
	decl, ok := b.decls[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown task %q", dag.ErrInvalidGraph, name)
	}
	if strings.TrimSpace(decl.Kind) == "" {
		return nil, fmt.Errorf("%w: task %q: kind is required", dag.ErrInvalidGraph, name)
	}

	b.onPath[name] = true
	b.path = append(b.path, name)
	defer func() {
		delete(b.onPath, name)
		b.path = b.path[:len(b.path)-1]
	}()

	var opts []core.TaskOption
	switch {
	case decl.Requires.named != nil:
		deps := make(map[string]core.Node, len(decl.Requires.named))
		for role, depName := range decl.Requires.named {
			dep, err := b.build(depName)
			if err != nil {
				return nil, err
			}
			deps[role] = dep
		}
		opts = append(opts, core.WithRequires(core.RequireNamed(deps)))
	case len(decl.Requires.list) > 0:
		deps := make([]core.Node, 0, len(decl.Requires.list))
		for _, depName := range decl.Requires.list {
			dep, err := b.build(depName)
			if err != nil {
				return nil, err
			}
			deps = append(deps, dep)
		}
		opts = append(opts, core.WithRequires(core.RequireList(deps...)))
	}

	outOpt, err := b.output(name, decl)
	if err != nil {
		return nil, err
	}
	if outOpt != nil {
		opts = append(opts, outOpt)
	}

	n := core.NewTask(decl.Kind, core.Params(decl.Params), opts...)
	b.built[name] = n
	return n, nil
}

func (b *graphBuilder) output(name string, decl taskDecl) (core.TaskOption, error) {
	o := decl.Output
	if o == nil {
		return nil, nil
	}
	set := 0
	for _, present := range []bool{o.Target != "", len(o.Targets) > 0, o.Inputs} {
		if present {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("%w: task %q: output must set only one of target, targets, inputs", dag.ErrInvalidGraph, name)
	}

	switch {
	case o.Target != "":
		return core.WithOutput(core.SingleOutput(core.NewTarget(b.resolve(o.Target)))), nil
	case len(o.Targets) > 0:
		targets := make(map[string]core.Target, len(o.Targets))
		for role, loc := range o.Targets {
			targets[role] = core.NewTarget(b.resolve(loc))
		}
		return core.WithOutput(core.NamedOutput(targets)), nil
	case o.Inputs:
		if decl.Requires.named == nil {
			return nil, fmt.Errorf("%w: task %q: inputs output needs named requires", dag.ErrInvalidGraph, name)
		}
		return core.WithInputsAsOutput(), nil
	}
	return nil, nil
}

func (b *graphBuilder) resolve(loc string) string {
	if b.workDir == "" || strings.Contains(loc, "://") || filepath.IsAbs(loc) {
		return loc
	}
	return filepath.Join(b.workDir, loc)
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return 0
}
