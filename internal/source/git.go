package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shinji-kodama/ktp-tester/internal/model"
	"github.com/shinji-kodama/ktp-tester/internal/process"
)

// runGit executes a git command with the given arguments.
//
// When dir is non-empty it is passed to git via -C, so git operates in that
// directory without changing the process's working directory. On success the
// stdout output is returned. On failure the error is a model.CLIError with
// ExitFetchFailed whose message includes git's stderr.
func (f *Fetcher) runGit(ctx context.Context, dir string, args ...string) (string, error) {
	fullArgs := args
	if dir != "" {
		fullArgs = append([]string{"-C", dir}, args...)
	}

	output, err := process.Output(ctx, f.launcher, process.Command{
		Name: f.git,
		Args: fullArgs,
		// Never block on a credential prompt for a private or mistyped URL.
		Env: []string{"GIT_TERMINAL_PROMPT=0"},
	})
	if err != nil {
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))

		var exitErr *process.ExitError
		switch {
		case errors.As(err, &exitErr) && exitErr.Stderr != "":
			message = fmt.Sprintf("%s: %s", message, exitErr.Stderr)
		case errors.Is(err, context.DeadlineExceeded):
			message = fmt.Sprintf("git %s timed out after %s", args[0], f.timeout)
		}
		return "", model.WrapCLIError(model.ExitFetchFailed, message, err)
	}
	return output, nil
}

// Head returns the commit SHA checked out at path.
func (f *Fetcher) Head(ctx context.Context, path string) (string, error) {
	output, err := f.runGit(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// CurrentBranch returns the short name of the branch checked out at path,
// or "HEAD" when the tree is in a detached HEAD state (as it is after a
// revision fetch).
func (f *Fetcher) CurrentBranch(ctx context.Context, path string) (string, error) {
	output, err := f.runGit(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}
