package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shinji-kodama/ktp-tester/internal/model"
	"github.com/shinji-kodama/ktp-tester/internal/process"
)

const (
	defaultEntryPoint = "main.py"
	defaultRunTimeout = 5 * time.Minute
)

// noBytecodeEnv keeps the interpreter from writing __pycache__ into the
// project tree, which must stay as fetched.
const noBytecodeEnv = "PYTHONDONTWRITEBYTECODE=1"

// Output holds the writers that receive the entry point's output. A nil
// writer discards that stream.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes entry points.
type Runner struct {
	launcher   process.Launcher
	entryPoint string
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures the Runner.
type Option func(*Runner)

// WithEntryPoint sets the entry point file, relative to the project root.
func WithEntryPoint(name string) Option {
	return func(r *Runner) {
		r.entryPoint = name
	}
}

// WithTimeout bounds how long the entry point may run.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner that launches children through launcher.
func NewRunner(launcher process.Launcher, opts ...Option) *Runner {
	r := &Runner{
		launcher:   launcher,
		entryPoint: defaultEntryPoint,
		timeout:    defaultRunTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the entry point of loc with the interpreter of env, using
// loc.Path as the working directory, and waits for it to exit.
//
// The child's output is forwarded unmodified to out. A non-zero exit
// status is reported in RunResult.ExitCode and is not an error. Errors
// are returned only when the entry point is missing (ExitEntryPointMissing),
// when it outlives the run timeout (ExitRunnerTimeout), when ctx is
// cancelled (ExitCancelled), or when the interpreter cannot be started.
// In the timeout and cancel cases the child's whole process group has
// been killed before Run returns.
func (r *Runner) Run(ctx context.Context, env *model.Environment, loc *model.ProjectLocation, out Output) (*model.RunResult, error) {
	entry := filepath.Join(loc.Path, r.entryPoint)
	info, err := os.Stat(entry)
	if err != nil || !info.Mode().IsRegular() {
		return nil, model.NewCLIError(model.ExitEntryPointMissing,
			fmt.Sprintf("entry point %s not found in %s", r.entryPoint, loc.Path))
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Debug("running entry point",
		slog.String("python", env.Python),
		slog.String("entry", entry),
		slog.Duration("timeout", r.timeout),
	)

	res, err := r.launcher.Launch(runCtx, process.Command{
		Name:   env.Python,
		Args:   []string{entry},
		Dir:    loc.Path,
		Env:    []string{noBytecodeEnv},
		Stdout: out.Stdout,
		Stderr: out.Stderr,
	})
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, model.WrapCLIError(model.ExitCancelled, "run interrupted", ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			return nil, model.WrapCLIError(model.ExitRunnerTimeout,
				fmt.Sprintf("entry point did not finish within %s", r.timeout), err)
		default:
			return nil, model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("failed to start %s", env.Python), err)
		}
	}

	r.logger.Debug("entry point exited",
		slog.Int("exit_code", res.ExitCode),
		slog.String("signal", res.Signal),
		slog.Duration("duration", res.Duration),
	)
	return &model.RunResult{ExitCode: res.ExitCode, Signal: res.Signal, Duration: res.Duration}, nil
}
