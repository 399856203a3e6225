// Package ui renders user-facing progress messages and collects the
// repository reference interactively.
//
// Messages are tagged (system, warning, error, success) and styled with
// lipgloss only when the destination is a terminal; redirected output gets
// plain "[tag] message" lines. Output produced by the evaluated project is
// never passed through this package.
package ui
