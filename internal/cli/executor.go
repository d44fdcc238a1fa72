package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"cachepurge/internal/config"
	"cachepurge/internal/core"
	"cachepurge/internal/dag"
	"cachepurge/internal/invalidate"
	"cachepurge/internal/logger"
	"cachepurge/internal/obs"
	"cachepurge/internal/storage"
	"cachepurge/internal/trace"
)

// Streams are the output writers of a command.
type Streams struct {
	Stdout io.Writer
	Stderr io.Writer
}

type environment struct {
	cfg  *config.Config
	log  logger.Logger
	root core.Node
}

func prepare(inv Invocation, streams Streams) (*environment, error) {
	if err := inv.canonicalize(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(inv.ConfigPath, inv.Overrides)
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		Output:     streams.Stderr,
		JSON:       cfg.Log.JSON,
		TimeFormat: logger.DefaultConfig().TimeFormat,
	})

	g, err := LoadGraphFromFile(inv.GraphPath, inv.WorkDir)
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}
	root, ok := g.Task(inv.Root)
	if !ok {
		return nil, invalidInvocationf("unknown root task %q (declared: %v)", inv.Root, g.Names())
	}
	return &environment{cfg: cfg, log: log, root: root}, nil
}

func newDispatcher(cfg *config.Config, fs afero.Fs) (*storage.Dispatcher, error) {
	d := storage.NewDispatcher(storage.LocalOpener(fs))
	err := d.Register(storage.S3Scheme, storage.NewS3Opener(storage.S3Config{
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		PathStyle: cfg.S3.PathStyle,
	}))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ExecuteInvalidate runs one invalidation for inv and prints a summary to
// streams.Stdout.
func ExecuteInvalidate(ctx context.Context, inv Invocation, streams Streams) error {
	env, err := prepare(inv, streams)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	dispatcher, err := newDispatcher(env.cfg, fs)
	if err != nil {
		return withExitCode(ExitInternalError, err)
	}

	reg := prometheus.NewRegistry()
	metrics, err := obs.NewMetrics(reg)
	if err != nil {
		return withExitCode(ExitInternalError, err)
	}

	recorder := trace.NewRecorder()
	invalidator := invalidate.New(dispatcher,
		invalidate.WithMetrics(metrics),
		invalidate.WithTraceSink(recorder),
		invalidate.WithDryRun(inv.DryRun),
	)

	report, runErr := invalidator.Invalidate(logger.ContextWithLogger(ctx, env.log), env.root)

	var sideErr error
	if report != nil {
		if path := env.cfg.Trace.Path; path != "" {
			if err := trace.WriteFile(fs, resolveUnderWorkDir(inv.WorkDir, path), recorder.Trace(report.ClosureHash.String())); err != nil {
				sideErr = errors.Join(sideErr, err)
			}
		}
		printSummary(streams.Stdout, report, inv.DryRun)
	}
	if path := env.cfg.Metrics.Textfile; path != "" {
		if err := prometheus.WriteToTextfile(resolveUnderWorkDir(inv.WorkDir, path), reg); err != nil {
			sideErr = errors.Join(sideErr, fmt.Errorf("write metrics: %w", err))
		}
	}

	switch {
	case runErr != nil:
		return classifyRunError(runErr)
	case report.Err() != nil:
		return withExitCode(ExitInvalidationFailure, report.Err())
	case sideErr != nil:
		return withExitCode(ExitInternalError, sideErr)
	}
	return nil
}

func classifyRunError(err error) error {
	switch {
	case errors.Is(err, dag.ErrCycleFound), errors.Is(err, dag.ErrInvalidGraph):
		return withExitCode(ExitConfigError, err)
	case errors.Is(err, storage.ErrBackendUnavailable):
		return withExitCode(ExitBackendUnavailable, err)
	default:
		return withExitCode(ExitInternalError, err)
	}
}

func printSummary(w io.Writer, r *invalidate.Report, dryRun bool) {
	if dryRun {
		for _, loc := range r.Planned {
			fmt.Fprintf(w, "would delete %s\n", loc)
		}
		fmt.Fprintf(w, "%d tasks, %d planned, %d skipped, %d failed\n",
			len(r.Tasks), len(r.Planned), len(r.Skipped), len(r.Failures))
		return
	}
	fmt.Fprintf(w, "%d tasks, %d deleted, %d absent, %d skipped, %d failed\n",
		len(r.Tasks), len(r.Deleted), len(r.Absent), len(r.Skipped), len(r.Failures))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "failed %s: %v\n", f.Name, f.Err)
	}
}

// ExecutePlan prints the dependency closure of the root task and what
// invalidation would do with each member. Nothing is deleted.
func ExecutePlan(_ context.Context, inv Invocation, streams Streams) error {
	env, err := prepare(inv, streams)
	if err != nil {
		return err
	}
	dispatcher, err := newDispatcher(env.cfg, afero.NewOsFs())
	if err != nil {
		return withExitCode(ExitInternalError, err)
	}

	closure, err := dag.Walk(env.root)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	fmt.Fprintf(streams.Stdout, "closure %s (%d tasks)\n", closure.Hash(), closure.Len())
	for _, n := range closure.Tasks() {
		fmt.Fprintf(streams.Stdout, "%s  %s  %s\n",
			core.IdentityOf(n).Short(), core.Describe(n), planAction(dispatcher, n))
	}
	return nil
}

func planAction(d *storage.Dispatcher, n core.Node) string {
	out := n.Output()
	target, ok := out.Single()
	if !ok {
		return fmt.Sprintf("skip (%s output)", out.Kind())
	}
	loc, err := d.Parse(target.Location)
	if err != nil {
		return fmt.Sprintf("fail (%v)", err)
	}
	return fmt.Sprintf("delete %s (%s)", loc.Raw, loc.Scheme)
}
