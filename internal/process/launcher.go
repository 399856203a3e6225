package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// defaultWaitDelay bounds how long Wait keeps copying output after the
// child exits or is killed. A grandchild that inherited the output pipes
// can otherwise keep the launcher blocked forever.
const defaultWaitDelay = 2 * time.Second

// Command describes one child process.
type Command struct {
	// Name is the executable name or path.
	Name string

	// Args are the command arguments, not including Name.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string

	// Stdout and Stderr receive the child's output as it is produced.
	// A nil writer discards that stream.
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	parts = append(parts, c.Args...)
	return strings.Join(parts, " ")
}

// Result is the outcome of a child process that ran to completion.
type Result struct {
	// ExitCode is the child's exit status. Zero on success. A child
	// killed by a signal reports 128 plus the signal number, as shells do.
	ExitCode int

	// Signal names the signal that killed the child, if any.
	Signal string

	// Duration is the wall-clock time between start and exit.
	Duration time.Duration
}

// Launcher runs child processes.
//
// Launch blocks until the child exits or ctx is done. A child that exits
// with a non-zero status is not an error: the status is reported in
// Result.ExitCode. Launch returns an error only when the child could not be
// started or was stopped because ctx ended; in the latter case the error
// wraps ctx.Err().
type Launcher interface {
	Launch(ctx context.Context, cmd Command) (*Result, error)
}

// ExecLauncher implements Launcher using os/exec.
//
// Each child is started in its own process group (on Unix) so that
// cancellation kills everything the child spawned, not only the child.
type ExecLauncher struct {
	waitDelay time.Duration
}

// NewExecLauncher creates the production Launcher.
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{waitDelay: defaultWaitDelay}
}

// Launch starts cmd and waits for it.
func (l *ExecLauncher) Launch(ctx context.Context, c Command) (*Result, error) {
	if c.Name == "" {
		return nil, errors.New("process: command name is required")
	}

	// #nosec G204 -- the interpreter and git invocations are built by the
	// pipeline; only file paths come from the fetched project.
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = orDiscard(c.Stdout)
	cmd.Stderr = orDiscard(c.Stderr)
	cmd.WaitDelay = l.waitDelay
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Name, err)
	}

	err := cmd.Wait()
	result := &Result{Duration: time.Since(start)}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%s: %w", c.Name, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode, result.Signal = exitStatus(exitErr.ProcessState)
			return result, nil
		}
		// exec.ErrWaitDelay: the child exited but its output pipes stayed
		// open. The exit status is still valid.
		if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
			result.ExitCode, result.Signal = exitStatus(cmd.ProcessState)
			return result, nil
		}
		return result, fmt.Errorf("wait %s: %w", c.Name, err)
	}

	return result, nil
}

// Output runs cmd and returns its captured stdout. A non-zero exit becomes
// an *ExitError carrying the trimmed stderr, which is the form git helpers
// want.
func Output(ctx context.Context, l Launcher, c Command) (string, error) {
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	res, err := l.Launch(ctx, c)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", &ExitError{
			Command:  c.String(),
			ExitCode: res.ExitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}
	return stdout.String(), nil
}

// ExitError describes a child that exited with a non-zero status when the
// caller required success.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

// Error returns "command (exit N): stderr".
func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
