// Package model defines the domain types and value objects for the
// ktp-tester CLI.
//
// This package contains pure data structures with no external dependencies.
// Both run-scoped entities (ProjectLocation and Environment) live only for
// the duration of a single invocation; nothing here is persisted.
//
// The package also defines exit codes (ExitCode) and the error types that
// carry them (CLIError, ChildExitError) for proper OS process exit handling.
package model
