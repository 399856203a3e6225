// Package runner implements the run stage: it executes a project's entry
// point with the interpreter of a provisioned environment and reports the
// child's exit status.
package runner
