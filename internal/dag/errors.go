package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph = errors.New("invalid task graph")
	ErrCycleFound   = errors.New("cycle detected")
)

// GraphError is returned by Walk. Kind is ErrInvalidGraph or ErrCycleFound;
// for cycles, Cycle holds the described tasks along the back-edge, first and
// last being the same task.
type GraphError struct {
	Kind   error
	Detail string
	Cycle  []string
}

func (e *GraphError) Error() string {
	switch {
	case len(e.Cycle) > 0:
		return e.Kind.Error() + ": " + strings.Join(e.Cycle, " -> ")
	case e.Detail != "":
		return e.Kind.Error() + ": " + e.Detail
	default:
		return e.Kind.Error()
	}
}

func (e *GraphError) Is(target error) bool { return target == e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Detail: fmt.Sprintf(format, args...)}
}
