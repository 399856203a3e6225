package model

import (
	"errors"
	"fmt"
)

// ExitCode defines the CLI exit codes for fatal stage failures.
//
// When the pipeline completes, the tool exits with the entry point's own
// status instead, so stage codes sit in a high range that student programs
// rarely use.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitFetchFailed indicates the reference was malformed or unreachable,
	// or the requested revision does not exist.
	ExitFetchFailed ExitCode = 101

	// ExitManifestMissing indicates the project has no dependency manifest.
	ExitManifestMissing ExitCode = 102

	// ExitInstallFailed indicates the environment could not be created or a
	// dependency failed to install.
	ExitInstallFailed ExitCode = 103

	// ExitEntryPointMissing indicates the project has no entry point file.
	ExitEntryPointMissing ExitCode = 104

	// ExitRunnerTimeout indicates the entry point exceeded its time bound.
	ExitRunnerTimeout ExitCode = 105

	// ExitCancelled indicates the run was interrupted or the user cancelled
	// an interactive prompt.
	ExitCancelled ExitCode = 106
)

// Error kinds. Stage failures are returned as *CLIError; errors.Is matches
// them against these sentinels through CLIError.Is.
var (
	ErrFetch             = errors.New("fetch failed")
	ErrManifestMissing   = errors.New("dependency manifest missing")
	ErrInstall           = errors.New("dependency install failed")
	ErrEntryPointMissing = errors.New("entry point missing")
	ErrRunnerTimeout     = errors.New("runner timed out")
	ErrCancelled         = errors.New("cancelled")
)

var kindByCode = map[ExitCode]error{
	ExitFetchFailed:       ErrFetch,
	ExitManifestMissing:   ErrManifestMissing,
	ExitInstallFailed:     ErrInstall,
	ExitEntryPointMissing: ErrEntryPointMissing,
	ExitRunnerTimeout:     ErrRunnerTimeout,
	ExitCancelled:         ErrCancelled,
}

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate stage failures into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the error kind associated with e.Code.
func (e *CLIError) Is(target error) bool {
	kind, ok := kindByCode[e.Code]
	return ok && kind == target
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// ChildExitError carries a non-zero exit status of the evaluated project
// up to the process boundary. It is not a failure of the tool: Execute
// exits with Code without printing anything.
type ChildExitError struct {
	Code int
}

// Error satisfies the error interface.
func (e *ChildExitError) Error() string {
	return fmt.Sprintf("entry point exited with status %d", e.Code)
}
