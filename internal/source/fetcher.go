package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shinji-kodama/ktp-tester/internal/model"
	"github.com/shinji-kodama/ktp-tester/internal/process"
)

const defaultFetchTimeout = 5 * time.Minute

// Destination selects where a fetched project is placed.
type Destination struct {
	// Permanent keeps the tree after the run. When false the tree goes into
	// a fresh temporary directory that the Reclaimer deletes.
	Permanent bool

	// Path is an explicit permanent directory. Empty means
	// <projects>/<owner>/<repo>. Ignored for temporary destinations.
	Path string

	// Overwrite replaces an existing non-empty permanent directory instead
	// of failing.
	Overwrite bool
}

// Fetcher retrieves repositories into local directories.
type Fetcher struct {
	launcher    process.Launcher
	git         string
	projectsDir string
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures the Fetcher.
type Option func(*Fetcher)

// WithGit sets the git binary.
func WithGit(bin string) Option {
	return func(f *Fetcher) {
		f.git = bin
	}
}

// WithProjectsDir sets the root for permanent destinations.
func WithProjectsDir(dir string) Option {
	return func(f *Fetcher) {
		f.projectsDir = dir
	}
}

// WithTimeout bounds a whole fetch (clone plus checkout).
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher that shells out through launcher.
func NewFetcher(launcher process.Launcher, opts ...Option) *Fetcher {
	f := &Fetcher{
		launcher:    launcher,
		git:         "git",
		projectsDir: "projects",
		timeout:     defaultFetchTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch clones ref into dest and returns the resulting location.
//
// The branch named by ref is cloned directly; a revision is checked out
// after a full clone. On success the location exists and contains at least
// one entry besides .git. On failure nothing created by this call is left
// behind, and the error is a CLIError with ExitFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, ref model.Reference, dest Destination) (*model.ProjectLocation, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	loc, created, err := f.prepare(ref, dest)
	if err != nil {
		return nil, err
	}

	if err := f.retrieve(ctx, ref, loc.Path); err != nil {
		f.discard(loc, created)
		return nil, err
	}

	f.logger.Debug("fetched repository",
		slog.String("reference", ref.String()),
		slog.String("path", loc.Path),
		slog.Bool("temporary", loc.Temporary),
	)
	return loc, nil
}

func (f *Fetcher) retrieve(ctx context.Context, ref model.Reference, path string) error {
	args := []string{"clone"}
	if ref.Branch != "" {
		args = append(args, "--branch", ref.Branch)
	}
	// "--" keeps a URL from ever being parsed as an option.
	args = append(args, "--", ref.URL, path)

	f.logger.Debug("cloning", slog.String("url", ref.URL), slog.String("branch", ref.Branch))
	if _, err := f.runGit(ctx, "", args...); err != nil {
		return err
	}

	if ref.Revision != "" {
		f.logger.Debug("checking out revision", slog.String("revision", ref.Revision))
		if _, err := f.runGit(ctx, path, "checkout", "--quiet", ref.Revision); err != nil {
			return err
		}
	}

	return verifyNonEmpty(path)
}

// prepare resolves the destination directory. created reports whether this
// call is responsible for the directory (and so may remove it on failure).
func (f *Fetcher) prepare(ref model.Reference, dest Destination) (*model.ProjectLocation, bool, error) {
	if !dest.Permanent {
		root, err := os.MkdirTemp("", "ktp-project-*")
		if err != nil {
			return nil, false, model.WrapCLIError(model.ExitFetchFailed, "failed to create temporary directory", err)
		}
		return &model.ProjectLocation{
			Path:      filepath.Join(root, ref.Name),
			Root:      root,
			Temporary: true,
		}, true, nil
	}

	path := dest.Path
	if path == "" {
		path = filepath.Join(f.projectsDir, ref.Owner, ref.Name)
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, false, model.WrapCLIError(model.ExitFetchFailed, "failed to resolve destination path", err)
	}

	created := true
	entries, err := os.ReadDir(path)
	switch {
	case err == nil && len(entries) > 0:
		if !dest.Overwrite {
			return nil, false, model.NewCLIError(model.ExitFetchFailed,
				fmt.Sprintf("destination %s already exists and is not empty (use --overwrite to replace it)", path))
		}
		f.logger.Info("replacing stored project", slog.String("path", path))
		if err := os.RemoveAll(path); err != nil {
			return nil, false, model.WrapCLIError(model.ExitFetchFailed,
				fmt.Sprintf("failed to remove old project at %s", path), err)
		}
	case err == nil:
		// Existing empty directory: git clones into it, and it belongs to
		// the caller.
		created = false
	case !errors.Is(err, os.ErrNotExist):
		return nil, false, model.WrapCLIError(model.ExitFetchFailed,
			fmt.Sprintf("destination %s is not a usable directory", path), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, false, model.WrapCLIError(model.ExitFetchFailed,
			fmt.Sprintf("failed to create parent directory for %s", path), err)
	}

	return &model.ProjectLocation{Path: path, Root: path}, created, nil
}

// discard removes what a failed fetch left behind.
func (f *Fetcher) discard(loc *model.ProjectLocation, created bool) {
	target := loc.Root
	if !loc.Temporary {
		if !created {
			return
		}
		target = loc.Path
	}
	if err := os.RemoveAll(target); err != nil {
		f.logger.Warn("failed to remove partial fetch", slog.String("path", target), slog.Any("error", err))
	}
}

// verifyNonEmpty fails when the checked-out tree contains nothing but .git.
func verifyNonEmpty(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return model.WrapCLIError(model.ExitFetchFailed, fmt.Sprintf("fetched tree %s is not readable", path), err)
	}
	for _, e := range entries {
		if e.Name() != ".git" {
			return nil
		}
	}
	return model.NewCLIError(model.ExitFetchFailed, "fetched repository is empty")
}
