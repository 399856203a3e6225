package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/shinji-kodama/ktp-tester/internal/model"
)

// maxConcurrentInspections caps how many git processes ListStored runs at once.
const maxConcurrentInspections = 4

// ListStored returns the permanent projects found under the projects
// directory, sorted by owner/name.
//
// Both the <projects>/<owner>/<repo> layout and ownerless
// <projects>/<repo> trees are recognised; a directory counts as a project
// when it contains .git. A missing projects directory yields an empty list.
//
// The HEAD commit and branch of each project are read concurrently. A
// project whose git metadata cannot be read is still listed with empty
// Head and Branch.
func (f *Fetcher) ListStored(ctx context.Context) ([]model.StoredProject, error) {
	root, err := filepath.Abs(f.projectsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve projects directory: %w", err)
	}

	projects, err := scanProjects(root)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentInspections)
	for i := range projects {
		p := &projects[i]
		g.Go(func() error {
			head, err := f.Head(gctx, p.Path)
			if err != nil {
				f.logger.Debug("could not read HEAD", slog.String("path", p.Path), slog.Any("error", err))
				return nil
			}
			p.Head = head
			if branch, err := f.CurrentBranch(gctx, p.Path); err == nil {
				p.Branch = branch
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Slug() < projects[j].Slug()
	})
	return projects, nil
}

// scanProjects walks at most two directory levels below root.
func scanProjects(root string) ([]model.StoredProject, error) {
	owners, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read projects directory %s: %w", root, err)
	}

	var projects []model.StoredProject
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		ownerPath := filepath.Join(root, owner.Name())

		if isGitTree(ownerPath) {
			projects = append(projects, model.StoredProject{Name: owner.Name(), Path: ownerPath})
			continue
		}

		repos, err := os.ReadDir(ownerPath)
		if err != nil {
			continue
		}
		for _, repo := range repos {
			repoPath := filepath.Join(ownerPath, repo.Name())
			if repo.IsDir() && isGitTree(repoPath) {
				projects = append(projects, model.StoredProject{
					Owner: owner.Name(),
					Name:  repo.Name(),
					Path:  repoPath,
				})
			}
		}
	}
	return projects, nil
}

func isGitTree(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}
