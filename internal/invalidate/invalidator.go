// Package invalidate deletes the persisted outputs of a task and of every
// task it transitively depends on.
package invalidate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cachepurge/internal/core"
	"cachepurge/internal/dag"
	"cachepurge/internal/logger"
	"cachepurge/internal/obs"
	"cachepurge/internal/storage"
	"cachepurge/internal/trace"
)

// Invalidator orchestrates closure discovery and artifact deletion.
//
// It holds no per-run state; each Invalidate call opens and closes its own
// storage session.
type Invalidator struct {
	dispatcher *storage.Dispatcher
	log        logger.Logger
	metrics    *obs.Metrics
	sink       trace.Sink
	dryRun     bool
}

// Option configures an Invalidator.
type Option func(*Invalidator)

// WithLogger sets the logger. Without it, Invalidate logs through
// logger.FromContext.
func WithLogger(l logger.Logger) Option {
	return func(inv *Invalidator) {
		if l != nil {
			inv.log = l
		}
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *obs.Metrics) Option {
	return func(inv *Invalidator) { inv.metrics = m }
}

// WithTraceSink sets where per-task decisions are recorded.
func WithTraceSink(s trace.Sink) Option {
	return func(inv *Invalidator) { inv.sink = s }
}

// WithDryRun walks and classifies tasks without deleting anything.
func WithDryRun(dry bool) Option {
	return func(inv *Invalidator) { inv.dryRun = dry }
}

// New returns an Invalidator deleting through d.
func New(d *storage.Dispatcher, opts ...Option) *Invalidator {
	inv := &Invalidator{
		dispatcher: d,
		sink:       trace.NopSink{},
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invalidate deletes the output of root and of every task root transitively
// depends on.
//
// Tasks whose output is not a single target are skipped. An absent artifact
// counts as success. Malformed locations and other per-task failures are
// recorded in the report and the run continues. A backend connectivity or
// authentication failure aborts the run; the partial report is returned
// together with the error.
func (inv *Invalidator) Invalidate(ctx context.Context, root core.Node) (report *Report, err error) {
	start := time.Now()
	defer inv.metrics.ObserveRun(start)

	runID := uuid.NewString()
	log := inv.log
	if log == nil {
		log = logger.FromContext(ctx)
	}
	log = log.With("run", runID)

	closure, err := dag.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("discover dependencies of %s: %w", core.Describe(root), err)
	}
	inv.metrics.TasksVisited(closure.Len())

	report = &Report{
		RunID:       runID,
		ClosureHash: closure.Hash(),
		Tasks:       closure.IDs(),
	}

	tasks := closure.Tasks()
	log.Debug("dependency closure", "root", core.Describe(root), "tasks", len(tasks))
	for _, n := range tasks {
		log.Debug("closure member", "id", core.IdentityOf(n).Short(), "task", core.Describe(n))
	}

	session := inv.dispatcher.NewSession()
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn("closing storage backends", "err", cerr)
			err = errors.Join(err, cerr)
		}
	}()

	for _, n := range tasks {
		if cerr := ctx.Err(); cerr != nil {
			inv.abort(report, trace.ReasonCancelled)
			return report, fmt.Errorf("invalidation cancelled: %w", cerr)
		}
		if abortErr := inv.invalidateTask(ctx, log, session, report, n); abortErr != nil {
			return report, abortErr
		}
	}

	log.Info("invalidation finished",
		"tasks", len(tasks),
		"deleted", len(report.Deleted),
		"absent", len(report.Absent),
		"skipped", len(report.Skipped),
		"failed", len(report.Failures),
	)
	return report, nil
}

// invalidateTask handles one closure member. It returns a non-nil error only
// when the whole run must stop.
func (inv *Invalidator) invalidateTask(
	ctx context.Context,
	log logger.Logger,
	session *storage.Session,
	report *Report,
	n core.Node,
) error {
	id := core.IdentityOf(n)
	name := core.Describe(n)

	target, ok := n.Output().Single()
	if !ok {
		report.Skipped = append(report.Skipped, id)
		trace.SafeRecord(inv.sink, trace.TraceEvent{Kind: trace.EventTaskSkipped, TaskID: id.String(), Reason: trace.ReasonNonDeletableOutput})
		log.Debug("skipped", "task", name, "output", n.Output().Kind())
		return nil
	}

	if inv.dryRun {
		if _, err := inv.dispatcher.Parse(target.Location); err != nil {
			inv.fail(log, report, id, name, target.Location, err)
			return nil
		}
		report.Planned = append(report.Planned, target.Location)
		trace.SafeRecord(inv.sink, trace.TraceEvent{Kind: trace.EventDeletionPlanned, TaskID: id.String(), Location: target.Location})
		log.Info("would delete", "location", target.Location)
		return nil
	}

	loc, outcome, err := session.Delete(ctx, target.Location)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			inv.abort(report, trace.ReasonCancelled)
			return fmt.Errorf("invalidation cancelled: %w", cerr)
		}
		if errors.Is(err, storage.ErrBackendUnavailable) {
			inv.metrics.Failure(trace.ReasonBackendUnavailable)
			trace.SafeRecord(inv.sink, trace.TraceEvent{Kind: trace.EventTaskFailed, TaskID: id.String(), Reason: trace.ReasonBackendUnavailable, Location: target.Location})
			inv.abort(report, trace.ReasonBackendUnavailable)
			log.Error("storage backend unavailable, aborting", "task", name, "location", target.Location, "err", err)
			return fmt.Errorf("invalidate %s: %w", name, err)
		}
		inv.fail(log, report, id, name, target.Location, err)
		return nil
	}

	inv.metrics.Deletion(loc.Scheme, outcome.String())
	switch outcome {
	case storage.OutcomeAbsent:
		report.Absent = append(report.Absent, loc.Raw)
		trace.SafeRecord(inv.sink, trace.TraceEvent{Kind: trace.EventArtifactAbsent, TaskID: id.String(), Location: loc.Raw})
		log.Debug("already absent", "location", loc.Raw)
	default:
		report.Deleted = append(report.Deleted, loc.Raw)
		trace.SafeRecord(inv.sink, trace.TraceEvent{Kind: trace.EventArtifactDeleted, TaskID: id.String(), Location: loc.Raw})
		log.Info("deleted", "location", loc.Raw)
	}
	return nil
}

func (inv *Invalidator) fail(log logger.Logger, report *Report, id core.TaskID, name, location string, err error) {
	reason := trace.ReasonDeleteFailed
	if errors.Is(err, storage.ErrMalformedLocation) {
		reason = trace.ReasonMalformedLocation
	}
	report.Failures = append(report.Failures, TaskFailure{
		Task:     id,
		Name:     name,
		Location: location,
		Reason:   reason,
		Err:      err,
	})
	inv.metrics.Failure(reason)
	trace.SafeRecord(inv.sink, trace.TraceEvent{Kind: trace.EventTaskFailed, TaskID: id.String(), Reason: reason, Location: location})
	log.Error("invalidation failed for task", "task", name, "location", location, "reason", reason, "err", err)
}

func (inv *Invalidator) abort(report *Report, reason string) {
	report.Aborted = true
	trace.SafeRecord(inv.sink, trace.TraceEvent{Kind: trace.EventRunAborted, Reason: reason})
}
