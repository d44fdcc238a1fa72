package invalidate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachepurge/internal/core"
	"cachepurge/internal/dag"
	"cachepurge/internal/logger"
	"cachepurge/internal/obs"
	"cachepurge/internal/storage"
	"cachepurge/internal/trace"
)

func single(loc string) core.TaskOption {
	return core.WithOutput(core.SingleOutput(core.NewTarget(loc)))
}

func param(v string) core.Params { return core.Params{{Name: "param", Value: v}} }

// pipeline builds D -> C -> {a: A(x), b: B(y)}, B(y) -> A(x), where C's output
// is the named mapping of its inputs.
func pipeline(locA, locB, locD string) core.Node {
	b := core.NewTask("TaskB", param("y"),
		core.WithRequires(core.RequireList(core.NewTask("TaskA", param("x"), single(locA)))),
		single(locB),
	)
	c := core.NewTask("TaskC", param("c"),
		core.WithRequires(core.RequireNamed(map[string]core.Node{
			"a": core.NewTask("TaskA", param("x"), single(locA)),
			"b": b,
		})),
		core.WithInputsAsOutput(),
	)
	return core.NewTask("TaskD", param("d"),
		core.WithRequires(core.RequireNamed(map[string]core.Node{"c": c})),
		single(locD),
	)
}

type recordingBackend struct {
	calls  []string
	absent map[string]bool
}

func (b *recordingBackend) Delete(_ context.Context, loc storage.Location) (storage.Outcome, error) {
	b.calls = append(b.calls, loc.Raw)
	if b.absent[loc.Raw] {
		return storage.OutcomeAbsent, nil
	}
	return storage.OutcomeDeleted, nil
}

type closeCounter struct {
	recordingBackend
	closes *int
}

func (c *closeCounter) Close() error {
	*c.closes++
	return nil
}

func writeFiles(t *testing.T, fs afero.Fs, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, afero.WriteFile(fs, p, []byte("cached"), 0o644))
	}
}

func TestInvalidate_DiamondDeletesEachArtifactOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/cache/a.pkl", "/cache/b.pkl", "/cache/d.pkl")
	inv := New(storage.NewDispatcher(storage.LocalOpener(fs)))

	report, err := inv.Invalidate(t.Context(), pipeline("/cache/a.pkl", "/cache/b.pkl", "/cache/d.pkl"))
	require.NoError(t, err)
	require.NoError(t, report.Err())

	assert.Len(t, report.Tasks, 4)
	assert.Equal(t, []string{"/cache/a.pkl", "/cache/b.pkl", "/cache/d.pkl"}, report.Deleted)
	assert.Empty(t, report.Absent)
	require.Len(t, report.Skipped, 1)
	assert.False(t, report.Aborted)
	assert.NotEmpty(t, report.RunID)

	for _, p := range []string{"/cache/a.pkl", "/cache/b.pkl", "/cache/d.pkl"} {
		exists, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.False(t, exists, p)
	}
}

func TestInvalidate_CompositeOutputNeverReachesBackend(t *testing.T) {
	backend := &recordingBackend{}
	d := storage.NewDispatcher(func(context.Context) (storage.Backend, error) { return backend, nil })
	root := pipeline("a.pkl", "b.pkl", "d.pkl")

	report, err := New(d).Invalidate(t.Context(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.pkl", "b.pkl", "d.pkl"}, backend.calls)

	closure, err := dag.Walk(root)
	require.NoError(t, err)
	ids := closure.IDs()
	assert.Equal(t, []core.TaskID{ids[2]}, report.Skipped, "only TaskC owns no artifact")
}

func TestInvalidate_SecondRunIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/cache/a.pkl")
	inv := New(storage.NewDispatcher(storage.LocalOpener(fs)))
	root := pipeline("/cache/a.pkl", "/cache/b.pkl", "/cache/d.pkl")

	first, err := inv.Invalidate(t.Context(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"/cache/a.pkl"}, first.Deleted)
	assert.Equal(t, []string{"/cache/b.pkl", "/cache/d.pkl"}, first.Absent)

	second, err := inv.Invalidate(t.Context(), root)
	require.NoError(t, err)
	require.NoError(t, second.Err())
	assert.Empty(t, second.Deleted)
	assert.Len(t, second.Absent, 3)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.ClosureHash, second.ClosureHash)
}

func TestInvalidate_MalformedLocationContinues(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/cache/b.pkl", "/cache/d.pkl")
	d := storage.NewDispatcher(storage.LocalOpener(fs))
	require.NoError(t, d.Register(storage.S3Scheme, func(context.Context) (storage.Backend, error) {
		return &recordingBackend{}, nil
	}))

	report, err := New(d).Invalidate(t.Context(), pipeline("s3://onlybucket", "/cache/b.pkl", "/cache/d.pkl"))
	require.NoError(t, err)

	assert.Equal(t, []string{"/cache/b.pkl", "/cache/d.pkl"}, report.Deleted)
	require.Len(t, report.Failures, 1)
	f := report.Failures[0]
	assert.Equal(t, "s3://onlybucket", f.Location)
	assert.Equal(t, trace.ReasonMalformedLocation, f.Reason)
	assert.Equal(t, "TaskA(param=x)", f.Name)
	assert.ErrorIs(t, report.Err(), storage.ErrMalformedLocation)
	assert.False(t, report.Aborted)
}

func TestInvalidate_BackendUnavailableAborts(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/cache/b.pkl", "/cache/d.pkl")
	d := storage.NewDispatcher(storage.LocalOpener(fs))
	require.NoError(t, d.Register(storage.S3Scheme, func(context.Context) (storage.Backend, error) {
		return nil, errors.New("dial tcp: connection refused")
	}))
	rec := trace.NewRecorder()

	report, err := New(d, WithTraceSink(rec)).Invalidate(t.Context(), pipeline("s3://bucket/a.pkl", "/cache/b.pkl", "/cache/d.pkl"))
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrBackendUnavailable)

	require.NotNil(t, report)
	assert.True(t, report.Aborted)
	assert.Empty(t, report.Deleted)

	exists, err := afero.Exists(fs, "/cache/b.pkl")
	require.NoError(t, err)
	assert.True(t, exists, "tasks after the abort must not be touched")

	events := rec.Trace(report.ClosureHash.String()).Events
	require.Len(t, events, 2)
	assert.Equal(t, trace.EventRunAborted, events[0].Kind)
	assert.Equal(t, trace.ReasonBackendUnavailable, events[0].Reason)
	assert.Equal(t, trace.EventTaskFailed, events[1].Kind)
}

func TestInvalidate_CycleDeletesNothing(t *testing.T) {
	opened := false
	d := storage.NewDispatcher(func(context.Context) (storage.Backend, error) {
		opened = true
		return &recordingBackend{}, nil
	})
	root := core.NewTask("TaskA", param("x"),
		core.WithRequires(core.RequireList(core.NewTask("TaskA", param("x")))),
		single("a.pkl"),
	)

	report, err := New(d).Invalidate(t.Context(), root)
	require.Error(t, err)
	assert.ErrorIs(t, err, dag.ErrCycleFound)
	assert.Nil(t, report)
	assert.False(t, opened)
}

func TestInvalidate_DryRunDeletesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/cache/a.pkl", "/cache/b.pkl", "/cache/d.pkl")
	d := storage.NewDispatcher(storage.LocalOpener(fs))
	require.NoError(t, d.Register(storage.S3Scheme, func(context.Context) (storage.Backend, error) {
		t.Fatal("dry run must not open backends")
		return nil, nil
	}))

	report, err := New(d, WithDryRun(true)).Invalidate(t.Context(), pipeline("/cache/a.pkl", "s3://onlybucket", "/cache/d.pkl"))
	require.NoError(t, err)

	assert.Equal(t, []string{"/cache/a.pkl", "/cache/d.pkl"}, report.Planned)
	assert.Empty(t, report.Deleted)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, trace.ReasonMalformedLocation, report.Failures[0].Reason)

	exists, err := afero.Exists(fs, "/cache/a.pkl")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInvalidate_LogsOneLinePerDeletion(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/cache/a.pkl", "/cache/d.pkl")
	var buf bytes.Buffer
	l := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Output: &buf})

	_, err := New(storage.NewDispatcher(storage.LocalOpener(fs)), WithLogger(l)).
		Invalidate(t.Context(), pipeline("/cache/a.pkl", "/cache/b.pkl", "/cache/d.pkl"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var deleted []string
	for _, line := range lines {
		if strings.Contains(line, "location=") {
			deleted = append(deleted, line)
		}
	}
	require.Len(t, deleted, 2, buf.String())
	assert.Contains(t, deleted[0], "location=/cache/a.pkl")
	assert.Contains(t, deleted[1], "location=/cache/d.pkl")
	assert.NotContains(t, buf.String(), "/cache/b.pkl", "absent artifacts are not logged at info level")
}

func TestInvalidate_LogsThroughContextLogger(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/cache/d.pkl")
	var buf bytes.Buffer
	ctx := logger.ContextWithLogger(t.Context(), logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Output: &buf}))

	_, err := New(storage.NewDispatcher(storage.LocalOpener(fs))).
		Invalidate(ctx, pipeline("/cache/a.pkl", "/cache/b.pkl", "/cache/d.pkl"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "location=/cache/d.pkl")
}

func TestInvalidate_RecordsMetrics(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, "/cache/a.pkl")
	reg := prometheus.NewRegistry()
	m, err := obs.NewMetrics(reg)
	require.NoError(t, err)

	_, err = New(storage.NewDispatcher(storage.LocalOpener(fs)), WithMetrics(m)).
		Invalidate(t.Context(), pipeline("/cache/a.pkl", "/cache/b.pkl", "/cache/d.pkl"))
	require.NoError(t, err)

	expected := `
# HELP cachepurge_deletions_total Artifact deletions by backend scheme and outcome.
# TYPE cachepurge_deletions_total counter
cachepurge_deletions_total{backend="file",outcome="absent"} 2
cachepurge_deletions_total{backend="file",outcome="deleted"} 1
# HELP cachepurge_tasks_visited_total Tasks discovered in dependency closures.
# TYPE cachepurge_tasks_visited_total counter
cachepurge_tasks_visited_total 4
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"cachepurge_deletions_total", "cachepurge_tasks_visited_total"))
}

func TestInvalidate_BackendOpenedAndClosedPerRun(t *testing.T) {
	opens, closes := 0, 0
	d := storage.NewDispatcher(func(context.Context) (storage.Backend, error) {
		opens++
		return &closeCounter{closes: &closes}, nil
	})
	inv := New(d)
	root := pipeline("a.pkl", "b.pkl", "d.pkl")

	for i := 0; i < 2; i++ {
		_, err := inv.Invalidate(t.Context(), root)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, opens)
	assert.Equal(t, 2, closes)
}

func TestInvalidate_CancelledContextAborts(t *testing.T) {
	backend := &recordingBackend{}
	d := storage.NewDispatcher(func(context.Context) (storage.Backend, error) { return backend, nil })
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	report, err := New(d).Invalidate(ctx, pipeline("a.pkl", "b.pkl", "d.pkl"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Aborted)
	assert.Empty(t, backend.calls)
}
