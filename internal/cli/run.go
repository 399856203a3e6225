// Package cli: run.go implements the "ktp-tester run" command.
//
// The run command is the primary user-facing operation. It grades one
// student project end to end:
//  1. Resolve the reference (argument or interactive prompt)
//  2. Fetch the project into a temporary or stored location
//  3. Create a virtual environment and install requirements.txt
//  4. Run main.py with its output shown unmodified
//  5. Remove the environment and any temporary checkout
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/ktp-tester/internal/config"
	"github.com/shinji-kodama/ktp-tester/internal/model"
	"github.com/shinji-kodama/ktp-tester/internal/pipeline"
	"github.com/shinji-kodama/ktp-tester/internal/runner"
	"github.com/shinji-kodama/ktp-tester/internal/source"
	"github.com/shinji-kodama/ktp-tester/internal/ui"
)

// runFlags holds the flag values for the run command.
// These are bound to cobra flags in NewRunCommand.
type runFlags struct {
	store        bool          // --store: keep the project under projects_dir
	dest         string        // --dest: explicit permanent directory
	overwrite    bool          // --overwrite: replace an existing stored project
	timeout      time.Duration // --timeout: entry point time bound
	python       string        // --python: base interpreter for the venv
	noPipUpgrade bool          // --no-pip-upgrade: skip upgrading pip
}

// NewRunCommand creates the "run" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [reference]",
		Short: "Fetch a student project, install its requirements and run it",
		Long: `Fetch a student project, install its requirements in a fresh virtual
environment, and run its entry point.

The reference may be a clone URL, a web link to a commit or a branch, or
any clone URL or path followed by #<branch-or-commit>. Without a
reference, you are prompted for one.

By default the project is cloned into a temporary directory that is
removed afterwards. With --store it is kept under projects/<owner>/<repo>.

Examples:
  ktp-tester run https://github.com/alice/lab1
  ktp-tester run https://github.com/alice/lab1/commit/3f2a9c1
  ktp-tester run https://github.com/alice/lab1.git#week-2
  ktp-tester run --store --overwrite https://github.com/alice/lab1
  ktp-tester run`,

		// At most one positional argument: the reference.
		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), cmd, args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.store, "store", false, "Keep the project under projects_dir after the run")
	cmd.Flags().StringVar(&flags.dest, "dest", "", "Keep the project at this directory (implies --store)")
	cmd.Flags().BoolVar(&flags.overwrite, "overwrite", false, "Replace an existing stored project")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Time limit for the entry point (default: run_timeout, 5m)")
	cmd.Flags().StringVar(&flags.python, "python", "", "Interpreter used to create the virtual environment")
	cmd.Flags().BoolVar(&flags.noPipUpgrade, "no-pip-upgrade", false, "Do not upgrade pip before installing requirements")

	return cmd
}

// runRun is the main orchestration function for the run command.
func runRun(ctx context.Context, cmd *cobra.Command, args []string, flags *runFlags) error {
	stderr := cmd.ErrOrStderr()
	logger := newLogger(stderr)

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, &cfg, flags); err != nil {
		return err
	}

	// Step 1: Resolve the reference.
	var reference string
	store := flags.store || flags.dest != ""
	if len(args) == 1 {
		reference = args[0]
	} else {
		req, err := ui.NewPrompter(cmd.InOrStdin(), stderr).Ask(ctx, store)
		if err != nil {
			return err
		}
		reference, store = req.Reference, req.Store
	}
	if flags.overwrite && !store {
		return model.NewCLIError(model.ExitGeneralError, "--overwrite requires --store or --dest")
	}

	// Steps 2-5 are the pipeline.
	console := ui.NewConsole(stderr)
	toolOutput := console.ToolOutput()
	defer func() { _ = toolOutput.Close() }()

	p := pipeline.New(newLauncher(), cfg,
		pipeline.WithLogger(logger),
		pipeline.WithProgress(console),
		pipeline.WithToolOutput(toolOutput),
		pipeline.WithOutput(runner.Output{Stdout: cmd.OutOrStdout(), Stderr: stderr}),
	)

	res, err := p.Run(ctx, reference, source.Destination{
		Permanent: store,
		Path:      flags.dest,
		Overwrite: flags.overwrite,
	})
	if err != nil {
		return err
	}

	console.Success("Finished testing in %s", res.Duration.Round(time.Millisecond))
	if !res.Succeeded() {
		return &model.ChildExitError{Code: res.ExitCode}
	}
	return nil
}

// applyRunFlags overrides config values with explicitly set flags and
// re-validates the result.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, flags *runFlags) error {
	if cmd.Flags().Changed("timeout") {
		cfg.RunTimeout = config.Duration(flags.timeout)
	}
	if flags.python != "" {
		cfg.Python = flags.python
	}
	if flags.noPipUpgrade {
		cfg.UpgradePip = false
	}
	if err := cfg.Validate(); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid options", err)
	}
	return nil
}
