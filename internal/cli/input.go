package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	ExitSuccess             = 0
	ExitInvalidationFailure = 1
	ExitInvalidInvocation   = 2
	ExitConfigError         = 3
	ExitInternalError       = 4
	ExitBackendUnavailable  = 5
)

// Invocation is the canonicalized description of one command run.
//
// GraphPath is resolved against WorkDir, which is always absolute.
type Invocation struct {
	GraphPath  string
	Root       string
	WorkDir    string
	ConfigPath string
	DryRun     bool

	// Overrides are dotted config keys set explicitly on the command line.
	Overrides map[string]any
}

// InvocationError carries the semantic exit code of a failed command.
type InvocationError struct {
	ExitCode int
	Message  string
	Err      error
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *InvocationError) Unwrap() error { return e.Err }

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &InvocationError{ExitCode: code, Message: err.Error(), Err: err}
}

// ExitCode extracts a semantic exit code from a command error.
// Errors that carry no code map to ExitInternalError.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	return ExitInternalError
}

// canonicalize validates required fields and resolves paths under WorkDir.
func (inv *Invocation) canonicalize() error {
	workDir := filepath.Clean(inv.WorkDir)
	if !filepath.IsAbs(workDir) {
		return invalidInvocationf("--workdir must be an absolute path (got %q)", inv.WorkDir)
	}
	inv.WorkDir = workDir

	if strings.TrimSpace(inv.GraphPath) == "" {
		return invalidInvocationf("--graph is required")
	}
	if strings.TrimSpace(inv.Root) == "" {
		return invalidInvocationf("--root is required")
	}

	inv.GraphPath = resolveUnderWorkDir(workDir, inv.GraphPath)
	if inv.ConfigPath != "" {
		inv.ConfigPath = resolveUnderWorkDir(workDir, inv.ConfigPath)
	}
	return nil
}

func resolveUnderWorkDir(workDir, p string) string {
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Join(workDir, clean)
}
