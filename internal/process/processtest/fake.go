// Package processtest provides a scriptable process.Launcher for unit
// tests, so stage logic can be exercised without spawning real processes.
package processtest

import (
	"context"
	"io"
	"sync"

	"github.com/shinji-kodama/ktp-tester/internal/process"
)

// Handler decides the outcome of one launched command.
type Handler func(ctx context.Context, cmd process.Command) (*process.Result, error)

// FakeLauncher records every command it is asked to launch and delegates
// the outcome to Handler. A nil Handler makes every command succeed
// silently.
type FakeLauncher struct {
	Handler Handler

	mu    sync.Mutex
	calls []process.Command
}

// Launch implements process.Launcher.
func (f *FakeLauncher) Launch(ctx context.Context, cmd process.Command) (*process.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if f.Handler == nil {
		return &process.Result{}, nil
	}
	return f.Handler(ctx, cmd)
}

// Calls returns a copy of the recorded commands in launch order.
func (f *FakeLauncher) Calls() []process.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]process.Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// CommandLines returns Command.String() for every recorded call.
func (f *FakeLauncher) CommandLines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}

// Exit returns a Handler that writes stdout and stderr to the command's
// writers and then reports exit status code.
func Exit(code int, stdout, stderr string) Handler {
	return func(_ context.Context, cmd process.Command) (*process.Result, error) {
		write(cmd.Stdout, stdout)
		write(cmd.Stderr, stderr)
		return &process.Result{ExitCode: code}, nil
	}
}

// BlockUntilDone returns a Handler that behaves like a child that never
// exits on its own: it returns only when ctx ends.
func BlockUntilDone() Handler {
	return func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		<-ctx.Done()
		return &process.Result{ExitCode: -1}, ctx.Err()
	}
}

func write(w io.Writer, s string) {
	if w != nil && s != "" {
		_, _ = io.WriteString(w, s)
	}
}
