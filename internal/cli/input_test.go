package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvocationCanonicalize(t *testing.T) {
	t.Run("Should resolve relative paths against the work dir", func(t *testing.T) {
		workDir := t.TempDir()
		inv := Invocation{
			WorkDir:    workDir + "/./",
			GraphPath:  "graphs/../graph.yaml",
			ConfigPath: "conf/cachepurge.yaml",
			Root:       "d",
		}
		require.NoError(t, inv.canonicalize())
		assert.Equal(t, filepath.Clean(workDir), inv.WorkDir)
		assert.Equal(t, filepath.Join(workDir, "graph.yaml"), inv.GraphPath)
		assert.Equal(t, filepath.Join(workDir, "conf", "cachepurge.yaml"), inv.ConfigPath)
	})

	t.Run("Should keep absolute paths and an empty config path", func(t *testing.T) {
		inv := Invocation{WorkDir: "/work", GraphPath: "/srv/graph.yaml", Root: "d"}
		require.NoError(t, inv.canonicalize())
		assert.Equal(t, "/srv/graph.yaml", inv.GraphPath)
		assert.Empty(t, inv.ConfigPath)
	})

	cases := []struct {
		name string
		inv  Invocation
	}{
		{name: "relative work dir", inv: Invocation{WorkDir: "work", GraphPath: "g.yaml", Root: "d"}},
		{name: "missing graph", inv: Invocation{WorkDir: "/work", Root: "d"}},
		{name: "missing root", inv: Invocation{WorkDir: "/work", GraphPath: "g.yaml", Root: "  "}},
	}
	for _, tc := range cases {
		t.Run("Should reject "+tc.name, func(t *testing.T) {
			err := tc.inv.canonicalize()
			require.Error(t, err)
			assert.Equal(t, ExitInvalidInvocation, ExitCode(err))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitInternalError, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitConfigError, ExitCode(fmt.Errorf("wrapped: %w", withExitCode(ExitConfigError, errors.New("bad")))))
	assert.Equal(t, ExitInvalidInvocation, ExitCode(&InvocationError{Message: "no code"}))
}

func TestWithExitCodeKeepsCause(t *testing.T) {
	cause := errors.New("cause")
	err := withExitCode(ExitBackendUnavailable, cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "cause", err.Error())
	assert.NoError(t, withExitCode(ExitInternalError, nil))
}
