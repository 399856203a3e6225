package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/shinji-kodama/ktp-tester/internal/config"
	"github.com/shinji-kodama/ktp-tester/internal/model"
	"github.com/shinji-kodama/ktp-tester/internal/process"
	"github.com/shinji-kodama/ktp-tester/internal/provision"
	"github.com/shinji-kodama/ktp-tester/internal/reclaim"
	"github.com/shinji-kodama/ktp-tester/internal/runner"
	"github.com/shinji-kodama/ktp-tester/internal/source"
)

// Progress receives human-readable progress messages.
type Progress interface {
	System(format string, args ...any)
	Warning(format string, args ...any)
}

type nopProgress struct{}

func (nopProgress) System(string, ...any)  {}
func (nopProgress) Warning(string, ...any) {}

// Pipeline runs one grading run per call to Run.
type Pipeline struct {
	launcher   process.Launcher
	cfg        config.Config
	logger     *slog.Logger
	progress   Progress
	toolOutput io.Writer
	output     runner.Output
	newRunID   func() string
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithLogger sets the structured logger. Every line logged during a run
// carries the run's run_id.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithProgress sets the receiver of progress messages.
func WithProgress(progress Progress) Option {
	return func(p *Pipeline) {
		p.progress = progress
	}
}

// WithToolOutput sets where git, venv and pip output is written.
func WithToolOutput(w io.Writer) Option {
	return func(p *Pipeline) {
		p.toolOutput = w
	}
}

// WithOutput sets the writers that receive the entry point's output.
func WithOutput(out runner.Output) Option {
	return func(p *Pipeline) {
		p.output = out
	}
}

// WithRunIDFunc overrides run ID generation.
func WithRunIDFunc(fn func() string) Option {
	return func(p *Pipeline) {
		p.newRunID = fn
	}
}

// New creates a Pipeline whose stages are configured from cfg and launch
// every child through launcher.
func New(launcher process.Launcher, cfg config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		launcher:   launcher,
		cfg:        cfg,
		logger:     slog.Default(),
		progress:   nopProgress{},
		toolOutput: os.Stderr,
		output:     runner.Output{Stdout: os.Stdout, Stderr: os.Stderr},
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// stages holds the stage implementations for one run.
type stages struct {
	fetcher     *source.Fetcher
	provisioner *provision.Provisioner
	runner      *runner.Runner
	reclaimer   *reclaim.Reclaimer
}

func (p *Pipeline) stages(logger *slog.Logger) stages {
	return stages{
		fetcher: source.NewFetcher(p.launcher,
			source.WithGit(p.cfg.Git),
			source.WithProjectsDir(p.cfg.ProjectsDir),
			source.WithTimeout(p.cfg.FetchTimeout.Std()),
			source.WithLogger(logger),
		),
		provisioner: provision.NewProvisioner(p.launcher,
			provision.WithPython(p.cfg.Python),
			provision.WithManifest(p.cfg.Manifest),
			provision.WithUpgradePip(p.cfg.UpgradePip),
			provision.WithTimeout(p.cfg.InstallTimeout.Std()),
			provision.WithOutput(p.toolOutput),
			provision.WithLogger(logger),
		),
		runner: runner.NewRunner(p.launcher,
			runner.WithEntryPoint(p.cfg.EntryPoint),
			runner.WithTimeout(p.cfg.RunTimeout.Std()),
			runner.WithLogger(logger),
		),
		reclaimer: reclaim.NewReclaimer(logger),
	}
}

// Run grades the project named by input and returns the entry point's
// result.
//
// A non-zero exit status of the entry point is part of the result, not an
// error. Any stage failure aborts the run with a *model.CLIError; if ctx
// was cancelled meanwhile the error reports ExitCancelled. Release of the
// environment and of a temporary project tree always happens before Run
// returns, and release failures are logged without replacing the run's
// own outcome.
func (p *Pipeline) Run(ctx context.Context, input string, dest source.Destination) (*model.RunResult, error) {
	runID := p.newRunID()
	logger := p.logger.With(slog.String("run_id", runID))
	s := p.stages(logger)

	ref, err := source.ParseReference(input)
	if err != nil {
		return nil, err
	}
	logger.Info("run started",
		slog.String("reference", ref.String()),
		slog.Bool("store", dest.Permanent),
	)

	// Fetch
	p.progress.System("Cloning %s", ref.URL)
	switch {
	case ref.Revision != "":
		p.progress.System("Checking out commit %s", ref.Revision)
	case ref.Branch != "":
		p.progress.System("Checking out branch %s", ref.Branch)
	}
	loc, err := s.fetcher.Fetch(ctx, ref, dest)
	if err != nil {
		return nil, p.stageError(ctx, logger, model.StageFetch, err)
	}
	if loc.Temporary {
		defer p.release(logger, func() error { return s.reclaimer.ReclaimProject(loc) })
	} else {
		p.progress.System("Stored project at %s", loc.Path)
	}

	// Provision
	p.progress.System("Creating virtual environment")
	env, err := s.provisioner.Create(ctx, loc)
	if env != nil {
		defer p.release(logger, func() error { return s.reclaimer.ReclaimEnvironment(env) })
	}
	if err != nil {
		return nil, p.stageError(ctx, logger, model.StageProvision, err)
	}

	p.progress.System("%s found, installing dependencies", p.cfg.Manifest)
	if err := s.provisioner.Install(ctx, env, loc); err != nil {
		return nil, p.stageError(ctx, logger, model.StageProvision, err)
	}

	// Run
	p.progress.System("Running %s", p.cfg.EntryPoint)
	res, err := s.runner.Run(ctx, env, loc, p.output)
	if err != nil {
		return nil, p.stageError(ctx, logger, model.StageRun, err)
	}
	res.RunID = runID

	logger.Info("run finished",
		slog.Int("exit_code", res.ExitCode),
		slog.Duration("duration", res.Duration),
	)
	switch {
	case res.Signal != "":
		p.progress.Warning("%s was killed by signal %s (status %d)", p.cfg.EntryPoint, res.Signal, res.ExitCode)
	case !res.Succeeded():
		p.progress.Warning("%s exited with status %d", p.cfg.EntryPoint, res.ExitCode)
	}
	return res, nil
}

// release runs a reclaim step, logging instead of returning its error.
func (p *Pipeline) release(logger *slog.Logger, reclaimFn func() error) {
	if err := reclaimFn(); err != nil {
		logger.Error("failed to reclaim run resources",
			slog.String("stage", model.StageReclaim.String()),
			slog.Any("error", err),
		)
		p.progress.Warning("cleanup incomplete: %v", err)
	}
}

// stageError tags err with its stage in the log and converts failures
// caused by an interrupted run into ExitCancelled.
func (p *Pipeline) stageError(ctx context.Context, logger *slog.Logger, stage model.Stage, err error) error {
	logger.Debug("stage failed", slog.String("stage", stage.String()), slog.Any("error", err))

	if errors.Is(ctx.Err(), context.Canceled) && !errors.Is(err, model.ErrCancelled) {
		return model.WrapCLIError(model.ExitCancelled, fmt.Sprintf("run interrupted during %s", stage), err)
	}
	return err
}
