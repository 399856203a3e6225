// Package model defines the domain types for the ktp-tester CLI.
//
// A run moves through four stages (fetch, provision, run, reclaim). The
// types here are what flows between them: a Reference parsed from user
// input, the ProjectLocation produced by the fetcher, the Environment
// produced by the provisioner, and the RunResult produced by the runner.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Stage identifies one step of the grading pipeline. It is used in log
// attributes and in user-facing error messages.
type Stage string

const (
	// StageFetch retrieves the student repository.
	StageFetch Stage = "fetch"

	// StageProvision creates the virtual environment and installs the manifest.
	StageProvision Stage = "provision"

	// StageRun executes the entry point.
	StageRun Stage = "run"

	// StageReclaim deletes the environment and any temporary project tree.
	StageReclaim Stage = "reclaim"
)

// String returns the string representation of Stage.
func (s Stage) String() string {
	return string(s)
}

// Reference is the parsed form of a repository reference string.
//
// At most one of Branch and Revision is set. When both are empty the
// default branch tip is fetched.
//
// Examples of accepted input and the resulting fields:
//
//	https://github.com/alice/lab1                 -> URL=.../lab1
//	https://github.com/alice/lab1/commit/3f2a9c1  -> URL=.../lab1.git, Revision=3f2a9c1
//	https://github.com/alice/lab1/tree/week-2     -> URL=.../lab1.git, Branch=week-2
//	https://github.com/alice/lab1.git#week-2      -> URL=.../lab1.git, Branch=week-2
type Reference struct {
	// Raw is the trimmed input exactly as the user supplied it.
	Raw string `json:"raw"`

	// URL is the clone URL passed to git.
	URL string `json:"url"`

	// Branch is the branch whose tip should be checked out.
	Branch string `json:"branch,omitempty"`

	// Revision is a specific commit to check out after cloning.
	Revision string `json:"revision,omitempty"`

	// Owner is the account or group segment of the URL path ("alice").
	// Empty for local paths without a parent directory.
	Owner string `json:"owner,omitempty"`

	// Name is the repository name without a ".git" suffix ("lab1").
	Name string `json:"name"`
}

// String renders the reference in a compact human-readable form.
func (r Reference) String() string {
	switch {
	case r.Revision != "":
		return fmt.Sprintf("%s@%s", r.URL, r.Revision)
	case r.Branch != "":
		return fmt.Sprintf("%s#%s", r.URL, r.Branch)
	default:
		return r.URL
	}
}

// Slug returns "owner/name", or just the name when the owner is unknown.
func (r Reference) Slug() string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "/" + r.Name
}

// ProjectLocation is a local directory holding a fetched student project.
//
// Temporary locations are owned by the run: Root is a directory created by
// the fetcher and the Reclaimer deletes it. Permanent locations are owned by
// the caller and are never mutated or deleted once fetched.
type ProjectLocation struct {
	// Path is the project tree root (where the manifest and entry point live).
	Path string `json:"path"`

	// Root is the directory reclaimed when Temporary is set. For temporary
	// locations Path is a child of Root; for permanent ones Root == Path.
	Root string `json:"root"`

	// Temporary marks the location as run-owned and reclaimable.
	Temporary bool `json:"temporary"`
}

// Environment is an isolated interpreter installation (a Python virtual
// environment) tied to one ProjectLocation for the duration of one run.
//
// The environment directory lives outside the project tree, so creating and
// deleting it never touches a permanent ProjectLocation.
type Environment struct {
	// Path is the virtual environment directory.
	Path string `json:"path"`

	// Python is the interpreter inside the environment.
	Python string `json:"python"`
}

// RunResult is what the runner reports about a completed child process.
type RunResult struct {
	// RunID correlates log lines of one invocation.
	RunID string `json:"runId"`

	// ExitCode is the entry point's exit status. Non-zero values are
	// reported, not treated as tool failures.
	ExitCode int `json:"exitCode"`

	// Signal names the signal that killed the entry point, if any.
	// ExitCode is then 128 plus the signal number.
	Signal string `json:"signal,omitempty"`

	// Duration is the wall-clock time the entry point ran for.
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the entry point exited with status zero.
func (r *RunResult) Succeeded() bool {
	return r.ExitCode == 0
}

// StoredProject describes a permanent project tree found under the
// projects directory. It backs the list command.
type StoredProject struct {
	// Owner and Name mirror the <projects>/<owner>/<name> layout.
	Owner string `json:"owner"`
	Name  string `json:"name"`

	// Path is the absolute project directory.
	Path string `json:"path"`

	// Head is the checked-out commit SHA, empty if it could not be read.
	Head string `json:"head,omitempty"`

	// Branch is the checked-out branch, or "HEAD" when detached.
	Branch string `json:"branch,omitempty"`
}

// Slug returns "owner/name" for display.
func (p StoredProject) Slug() string {
	return strings.TrimPrefix(p.Owner+"/"+p.Name, "/")
}
