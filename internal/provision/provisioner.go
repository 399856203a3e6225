package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shinji-kodama/ktp-tester/internal/model"
	"github.com/shinji-kodama/ktp-tester/internal/process"
)

const (
	defaultManifest       = "requirements.txt"
	defaultInstallTimeout = 10 * time.Minute
)

// Provisioner creates virtual environments and installs dependencies.
type Provisioner struct {
	launcher   process.Launcher
	python     string
	manifest   string
	upgradePip bool
	timeout    time.Duration
	output     io.Writer
	logger     *slog.Logger
}

// Option configures the Provisioner.
type Option func(*Provisioner)

// WithPython sets the base interpreter used to create environments.
func WithPython(bin string) Option {
	return func(p *Provisioner) {
		p.python = bin
	}
}

// WithManifest sets the manifest file name, relative to the project root.
func WithManifest(name string) Option {
	return func(p *Provisioner) {
		p.manifest = name
	}
}

// WithUpgradePip controls whether pip upgrades itself before installing.
func WithUpgradePip(enabled bool) Option {
	return func(p *Provisioner) {
		p.upgradePip = enabled
	}
}

// WithTimeout bounds environment creation and, separately, installation.
func WithTimeout(d time.Duration) Option {
	return func(p *Provisioner) {
		p.timeout = d
	}
}

// WithOutput sets where venv and pip output is written.
func WithOutput(w io.Writer) Option {
	return func(p *Provisioner) {
		p.output = w
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// NewProvisioner creates a Provisioner that shells out through launcher.
func NewProvisioner(launcher process.Launcher, opts ...Option) *Provisioner {
	p := &Provisioner{
		launcher:   launcher,
		python:     DefaultPython(),
		manifest:   defaultManifest,
		upgradePip: true,
		timeout:    defaultInstallTimeout,
		output:     os.Stderr,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultPython returns the base interpreter name for the host platform.
func DefaultPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// InterpreterPath returns the interpreter inside the virtual environment
// rooted at dir.
func InterpreterPath(dir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(dir, "Scripts", "python.exe")
	}
	return filepath.Join(dir, "bin", "python")
}

// Create checks that loc declares a dependency manifest and then creates a
// fresh virtual environment for it.
//
// A missing manifest fails with ExitManifestMissing before anything is
// created, and the returned Environment is nil. Once the environment
// directory exists the Environment is always returned, even alongside an
// error, so the caller can reclaim it.
func (p *Provisioner) Create(ctx context.Context, loc *model.ProjectLocation) (*model.Environment, error) {
	if _, err := p.manifestPath(loc); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "ktp-env-*")
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInstallFailed, "failed to create environment directory", err)
	}
	env := &model.Environment{Path: dir, Python: InterpreterPath(dir)}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.logger.Debug("creating virtual environment",
		slog.String("python", p.python),
		slog.String("path", dir),
	)
	if err := p.launch(ctx, "creating virtual environment", p.python, "-m", "venv", dir); err != nil {
		return env, err
	}

	if _, err := os.Stat(env.Python); err != nil {
		return env, model.WrapCLIError(model.ExitInstallFailed,
			fmt.Sprintf("virtual environment has no interpreter at %s", env.Python), err)
	}
	return env, nil
}

// Install installs the manifest of loc into env.
//
// When pip upgrading is enabled it runs first; its failure is logged and
// does not stop the install. Any failure of the manifest install itself is
// fatal: the project is never run against a partial environment.
func (p *Provisioner) Install(ctx context.Context, env *model.Environment, loc *model.ProjectLocation) error {
	manifest, err := p.manifestPath(loc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if p.upgradePip {
		if err := p.launch(ctx, "upgrading pip", env.Python, "-m", "pip", "install", "--upgrade", "pip"); err != nil {
			if ctx.Err() != nil {
				return err
			}
			p.logger.Warn("pip upgrade failed, continuing with the bundled pip", slog.Any("error", err))
		}
	}

	p.logger.Debug("installing dependencies", slog.String("manifest", manifest))
	return p.launch(ctx, "installing dependencies", env.Python, "-m", "pip", "install", "-r", manifest)
}

// manifestPath returns the absolute manifest path, or a ManifestMissing
// error when it is absent or not a regular file.
func (p *Provisioner) manifestPath(loc *model.ProjectLocation) (string, error) {
	path := filepath.Join(loc.Path, p.manifest)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", model.NewCLIError(model.ExitManifestMissing,
			fmt.Sprintf("dependency manifest %s not found in %s", p.manifest, loc.Path))
	case err != nil:
		return "", model.WrapCLIError(model.ExitManifestMissing,
			fmt.Sprintf("dependency manifest %s is not readable", path), err)
	case !info.Mode().IsRegular():
		return "", model.NewCLIError(model.ExitManifestMissing,
			fmt.Sprintf("dependency manifest %s is not a regular file", path))
	}
	return path, nil
}

// launch runs one installer command with its output forwarded, mapping
// every failure to ExitInstallFailed.
func (p *Provisioner) launch(ctx context.Context, step, name string, args ...string) error {
	res, err := p.launcher.Launch(ctx, process.Command{
		Name:   name,
		Args:   args,
		Stdout: p.output,
		Stderr: p.output,
		Env:    []string{"PIP_DISABLE_PIP_VERSION_CHECK=1"},
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.WrapCLIError(model.ExitInstallFailed,
			fmt.Sprintf("%s timed out after %s", step, p.timeout), err)
	case err != nil:
		return model.WrapCLIError(model.ExitInstallFailed, fmt.Sprintf("%s failed", step), err)
	case res.ExitCode != 0:
		return model.NewCLIError(model.ExitInstallFailed,
			fmt.Sprintf("%s failed: %s exited with status %d", step, name, res.ExitCode))
	}
	return nil
}
