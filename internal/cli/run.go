package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type commonFlags struct {
	graph    string
	root     string
	workDir  string
	config   string
	logLevel string
	logJSON  bool
}

// RootCmd builds the cachepurge command tree writing to the given streams.
func RootCmd(streams Streams) *cobra.Command {
	flags := &commonFlags{}

	root := &cobra.Command{
		Use:           "cachepurge",
		Short:         "Delete cached task outputs and everything they depend on",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          noArgs,
		RunE: func(*cobra.Command, []string) error {
			return invalidInvocationf("a command is required: invalidate or plan")
		},
	}
	root.SetOut(streams.Stdout)
	root.SetErr(streams.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&flags.graph, "graph", "", "Path to the task graph definition (JSON or YAML)")
	pf.StringVar(&flags.root, "root", "", "Name of the task to invalidate")
	pf.StringVar(&flags.workDir, "workdir", "", "Absolute directory relative paths resolve against (default: current directory)")
	pf.StringVar(&flags.config, "config", "", "Path to a YAML config file")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&flags.logJSON, "log-json", false, "Emit logs as JSON")

	root.AddCommand(
		invalidateCmd(flags, streams),
		planCmd(flags, streams),
	)
	return root
}

func invalidateCmd(flags *commonFlags, streams Streams) *cobra.Command {
	var (
		dryRun          bool
		tracePath       string
		metricsTextfile string
	)
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Delete the outputs of a task and of its transitive dependencies",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inv, err := flags.invocation(cmd.Flags())
			if err != nil {
				return err
			}
			inv.DryRun = dryRun
			if cmd.Flags().Changed("trace") {
				inv.Overrides["trace.path"] = tracePath
			}
			if cmd.Flags().Changed("metrics-textfile") {
				inv.Overrides["metrics.textfile"] = metricsTextfile
			}
			return ExecuteInvalidate(cmd.Context(), inv, streams)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be deleted without deleting")
	cmd.Flags().StringVar(&tracePath, "trace", "", "Write the canonical invalidation trace to this file")
	cmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file")
	return cmd
}

func planCmd(flags *commonFlags, streams Streams) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the dependency closure of a task and the action for each member",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inv, err := flags.invocation(cmd.Flags())
			if err != nil {
				return err
			}
			return ExecutePlan(cmd.Context(), inv, streams)
		},
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return invalidInvocationf("%s takes no positional arguments (got %q)", cmd.CommandPath(), args)
	}
	return nil
}

func (f *commonFlags) invocation(fs *pflag.FlagSet) (Invocation, error) {
	workDir := f.workDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Invocation{}, withExitCode(ExitInternalError, err)
		}
		workDir = wd
	}

	overrides := make(map[string]any)
	if fs.Changed("log-level") {
		overrides["log.level"] = f.logLevel
	}
	if fs.Changed("log-json") {
		overrides["log.json"] = f.logJSON
	}
	return Invocation{
		GraphPath:  f.graph,
		Root:       f.root,
		WorkDir:    workDir,
		ConfigPath: f.config,
		Overrides:  overrides,
	}, nil
}

// Run executes the command line args (excluding argv[0]) and returns the
// semantic exit code with the error that caused it, if any.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) (int, error) {
	if args == nil {
		args = []string{}
	}
	root := RootCmd(Streams{Stdout: stdout, Stderr: stderr})
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		return ExitCode(err), err
	}
	return ExitSuccess, nil
}
