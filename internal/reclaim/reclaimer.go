package reclaim

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shinji-kodama/ktp-tester/internal/model"
)

// Reclaimer deletes run-owned directories.
type Reclaimer struct {
	logger *slog.Logger
}

// NewReclaimer creates a Reclaimer. A nil logger means slog.Default().
func NewReclaimer(logger *slog.Logger) *Reclaimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reclaimer{logger: logger}
}

// Reclaim deletes env and, when it is temporary, loc.
//
// Either argument may be nil, in which case it is skipped, so Reclaim can
// run on every exit path of a partially completed run. Both removals are
// attempted; their errors are joined. Removing something that is already
// gone is not an error.
func (r *Reclaimer) Reclaim(env *model.Environment, loc *model.ProjectLocation) error {
	var errs []error

	if env != nil {
		if err := r.remove("environment", env.Path); err != nil {
			errs = append(errs, err)
		}
	}

	if loc != nil && loc.Temporary {
		if err := r.remove("project", loc.Root); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ReclaimEnvironment deletes env only.
func (r *Reclaimer) ReclaimEnvironment(env *model.Environment) error {
	return r.Reclaim(env, nil)
}

// ReclaimProject deletes loc if it is temporary.
func (r *Reclaimer) ReclaimProject(loc *model.ProjectLocation) error {
	return r.Reclaim(nil, loc)
}

func (r *Reclaimer) remove(kind, path string) error {
	if err := checkRemovable(path); err != nil {
		return fmt.Errorf("refusing to remove %s directory: %w", kind, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s directory %s: %w", kind, path, err)
	}
	r.logger.Debug("reclaimed", slog.String("kind", kind), slog.String("path", path))
	return nil
}

// checkRemovable rejects paths whose recursive removal could only be a bug.
func checkRemovable(path string) error {
	if path == "" {
		return errors.New("path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if filepath.Dir(abs) == abs {
		return fmt.Errorf("%s is a filesystem root", abs)
	}
	if home, err := os.UserHomeDir(); err == nil && filepath.Clean(home) == abs {
		return fmt.Errorf("%s is the home directory", abs)
	}
	return nil
}
