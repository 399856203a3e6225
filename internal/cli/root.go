// Package cli implements the cobra-based CLI commands for ktp-tester.
//
// Each subcommand (run, list) is defined in its own file within this
// package. This file defines the root command that serves as the parent for
// all subcommands and handles global flags, logging and exit codes.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/ktp-tester/internal/config"
	"github.com/shinji-kodama/ktp-tester/internal/model"
	"github.com/shinji-kodama/ktp-tester/internal/process"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput switches error output, diagnostics and the list command
	// to JSON for machine consumption.
	jsonOutput bool

	// verbose enables debug-level diagnostics on stderr.
	verbose bool

	// configPath is an explicit config file. Empty means searching the
	// working directory for config.DefaultFileNames.
	configPath string
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// newLauncher builds the process launcher used by every command.
var newLauncher = func() process.Launcher {
	return process.NewExecLauncher()
}

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
//
// The root command itself does not perform any action; it only provides
// help text and global flags. Actual functionality is provided by the
// run and list subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ktp-tester",
		Short: "Fetch, install and run student Python projects for grading",
		Long: `ktp-tester grades a student project in one command.

Given a repository reference it clones the project (a branch tip or a
specific commit), creates a fresh virtual environment, installs the
project's requirements.txt, runs main.py, and removes the environment
again. The program's own output is shown unmodified and its exit status
becomes the exit status of ktp-tester.`,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	// PersistentFlags are inherited by all subcommands.
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output errors, logs and listings as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default: ./ktp-tester.yaml or ./ktp-tester.jsonc if present)")

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewListCommand())

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
// This is the main entry point called from main.go.
//
// The exit code is 0 on success, the evaluated program's own status when
// it exited non-zero, the CLIError's code for stage failures, and 1 for any
// other error. Every error except a program's exit status is printed.
func Execute(ctx context.Context, rootCmd *cobra.Command) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return int(model.ExitSuccess)
	}
	return handleError(rootCmd.ErrOrStderr(), err)
}

// handleError prints err and maps it to an exit code.
func handleError(w io.Writer, err error) int {
	// The program ran and failed: its status is the result, not an error
	// of the tool, so nothing is printed.
	var childErr *model.ChildExitError
	if errors.As(err, &childErr) {
		return childErr.Code
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(w, cliErr.Message, cliErr.Err)
		return int(cliErr.Code)
	}

	// Generic error (e.g. an unknown flag): exit with code 1.
	printError(w, err.Error(), nil)
	return int(model.ExitGeneralError)
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode, because stdout carries
		// the evaluated program's output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	// Text format: "Error: <message>" on stderr.
	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// newLogger creates the structured diagnostics logger. Diagnostics are
// quiet by default (warnings and errors only) because progress is shown
// by the console; --verbose lowers the level to debug.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// loadConfig reads the --config file, or the default file in the working
// directory, on top of the built-in defaults.
func loadConfig(logger *slog.Logger) (config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.Config{}, model.WrapCLIError(model.ExitGeneralError, "failed to determine working directory", err)
	}

	cfg, path, err := config.Load(configPath, cwd)
	if err != nil {
		return config.Config{}, model.WrapCLIError(model.ExitGeneralError, "failed to load configuration", err)
	}
	if path != "" {
		logger.Debug("loaded config", slog.String("path", path))
	}
	return cfg, nil
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}
