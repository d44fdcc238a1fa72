package dag

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"cachepurge/internal/core"
)

// Closure is the deduplicated, dependency-first set of tasks reachable from a
// root. It is immutable once Walk returns.
type Closure struct {
	root  core.TaskID
	order []core.TaskID
	nodes map[core.TaskID]core.Node

	edges    []Edge
	edgeSeen map[Edge]struct{}
}

func newClosure(root core.TaskID) *Closure {
	return &Closure{
		root:     root,
		nodes:    make(map[core.TaskID]core.Node),
		edgeSeen: make(map[Edge]struct{}),
	}
}

func (c *Closure) add(id core.TaskID, n core.Node) {
	if _, exists := c.nodes[id]; exists {
		return
	}
	c.nodes[id] = n
	c.order = append(c.order, id)
}

func (c *Closure) addEdge(parent, child core.TaskID) {
	e := Edge{Parent: parent, Child: child}
	if _, exists := c.edgeSeen[e]; exists {
		return
	}
	c.edgeSeen[e] = struct{}{}
	c.edges = append(c.edges, e)
}

// Root returns the identity of the root task.
func (c *Closure) Root() core.TaskID { return c.root }

// Len returns the number of distinct tasks.
func (c *Closure) Len() int { return len(c.order) }

// Contains reports whether the task with the given identity is in the closure.
func (c *Closure) Contains(id core.TaskID) bool {
	_, ok := c.nodes[id]
	return ok
}

// Task returns the first-encountered node for the given identity.
func (c *Closure) Task(id core.TaskID) (core.Node, bool) {
	n, ok := c.nodes[id]
	return n, ok
}

// IDs returns task identities in dependency-first order.
func (c *Closure) IDs() []core.TaskID {
	out := make([]core.TaskID, len(c.order))
	copy(out, c.order)
	return out
}

// Tasks returns the nodes in dependency-first order.
func (c *Closure) Tasks() []core.Node {
	out := make([]core.Node, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.nodes[id])
	}
	return out
}

// Edges returns the distinct dependency edges sorted by (Parent, Child).
func (c *Closure) Edges() []Edge {
	out := make([]Edge, len(c.edges))
	copy(out, c.edges)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Parent != out[j].Parent {
			return out[i].Parent < out[j].Parent
		}
		return out[i].Child < out[j].Child
	})
	return out
}

// Hash returns the stable identity of the closure.
func (c *Closure) Hash() ClosureHash {
	h := sha256.New()

	core.WriteField(h, []byte(c.root))

	ids := c.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	core.WriteCount(h, len(ids))
	for _, id := range ids {
		core.WriteField(h, []byte(id))
	}

	edges := c.Edges()
	core.WriteCount(h, len(edges))
	for _, e := range edges {
		core.WriteField(h, []byte(e.Parent))
		core.WriteField(h, []byte(e.Child))
	}

	return ClosureHash(hex.EncodeToString(h.Sum(nil)))
}
