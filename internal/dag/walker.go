package dag

import "cachepurge/internal/core"

const (
	white = 0
	gray  = 1
	black = 2
)

// frame is one entry of the explicit traversal stack.
type frame struct {
	id       core.TaskID
	node     core.Node
	children []core.Node
	next     int
}

// Walk computes the transitive dependency closure of root, root included.
//
// The traversal is an explicit-stack DFS:
//   - white tasks have not been reached yet,
//   - gray tasks are on the current path,
//   - black tasks are finished and already in the closure.
//
// Reaching a black task again is a no-op (diamond shapes). Reaching a gray
// task again is a back-edge and fails with ErrCycleFound.
func Walk(root core.Node) (*Closure, error) {
	if core.IsNil(root) {
		return nil, invalidf("root task is nil")
	}

	color := make(map[core.TaskID]int)
	closure := newClosure(core.IdentityOf(root))

	enter := func(n core.Node, id core.TaskID) *frame {
		color[id] = gray
		return &frame{id: id, node: n, children: n.Requires().Flatten()}
	}

	stack := []*frame{enter(root, closure.root)}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next == len(top.children) {
			color[top.id] = black
			closure.add(top.id, top.node)
			stack = stack[:len(stack)-1]
			continue
		}

		child := top.children[top.next]
		top.next++
		if core.IsNil(child) {
			return nil, invalidf("%s has a nil dependency", core.Describe(top.node))
		}

		childID := core.IdentityOf(child)
		closure.addEdge(top.id, childID)

		switch color[childID] {
		case black:
			continue
		case gray:
			return nil, &GraphError{Kind: ErrCycleFound, Cycle: cyclePath(stack, childID, child)}
		}
		stack = append(stack, enter(child, childID))
	}

	return closure, nil
}

// cyclePath renders the path from the first occurrence of id on the stack
// back to id, e.g. A -> B -> A.
func cyclePath(stack []*frame, id core.TaskID, again core.Node) []string {
	start := 0
	for i, f := range stack {
		if f.id == id {
			start = i
			break
		}
	}
	out := make([]string, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		out = append(out, core.Describe(f.node))
	}
	return append(out, core.Describe(again))
}
