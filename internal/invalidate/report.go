package invalidate

import (
	"errors"
	"fmt"

	"cachepurge/internal/core"
	"cachepurge/internal/dag"
)

// TaskFailure is a per-task deletion failure that did not stop the run.
type TaskFailure struct {
	Task     core.TaskID
	Name     string
	Location string
	Reason   string
	Err      error
}

func (f TaskFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Name, f.Err)
}

func (f TaskFailure) Unwrap() error { return f.Err }

// Report summarizes one invalidation run.
type Report struct {
	RunID       string
	ClosureHash dag.ClosureHash

	// Tasks lists the closure in dependency-first order.
	Tasks []core.TaskID

	// Planned holds eligible locations when running dry.
	Planned []string

	Deleted []string
	Absent  []string
	Skipped []core.TaskID

	Failures []TaskFailure

	// Aborted is set when the run stopped before visiting every task.
	Aborted bool
}

// Err joins the per-task failures, or returns nil when there were none.
func (r *Report) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}
