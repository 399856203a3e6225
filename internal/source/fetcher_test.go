package source

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/ktp-tester/internal/model"
	"github.com/shinji-kodama/ktp-tester/internal/process"
)

// setupTestRepo creates a Git repository named lab1 with one commit on
// branch main, plus a second branch "week-2" carrying an extra file.
// It returns the repository path.
func setupTestRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}

	dir := filepath.Join(t.TempDir(), "students", "lab1")
	require.NoError(t, os.MkdirAll(dir, 0755))

	runTestGit(t, dir, "init", "--quiet")
	// Pin the initial branch name regardless of init.defaultBranch.
	runTestGit(t, dir, "symbolic-ref", "HEAD", "refs/heads/main")

	// Repo-level identity so commits work without a global Git config (CI).
	runTestGit(t, dir, "config", "user.email", "test@example.com")
	runTestGit(t, dir, "config", "user.name", "Test User")
	runTestGit(t, dir, "config", "commit.gpgsign", "false")

	writeTestFile(t, filepath.Join(dir, "main.py"), "print('hello')\n")
	writeTestFile(t, filepath.Join(dir, "requirements.txt"), "")
	runTestGit(t, dir, "add", ".")
	runTestGit(t, dir, "commit", "--quiet", "-m", "initial commit")

	runTestGit(t, dir, "checkout", "--quiet", "-b", "week-2")
	writeTestFile(t, filepath.Join(dir, "week2.py"), "print('week 2')\n")
	runTestGit(t, dir, "add", ".")
	runTestGit(t, dir, "commit", "--quiet", "-m", "week 2")
	runTestGit(t, dir, "checkout", "--quiet", "main")

	return dir
}

// runTestGit runs a git command in dir and fails the test on a non-zero
// exit. It returns the combined output.
func runTestGit(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(output))
	return string(output)
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestFetcher(t *testing.T, opts ...Option) *Fetcher {
	t.Helper()
	opts = append([]Option{WithProjectsDir(t.TempDir())}, opts...)
	return NewFetcher(process.NewExecLauncher(), opts...)
}

func mustParse(t *testing.T, input string) model.Reference {
	t.Helper()
	ref, err := ParseReference(input)
	require.NoError(t, err)
	return ref
}

// TestFetch_Temporary verifies a temporary fetch lands in a fresh
// directory outside the projects directory.
func TestFetch_Temporary(t *testing.T) {
	repo := setupTestRepo(t)
	f := newTestFetcher(t)

	loc, err := f.Fetch(context.Background(), mustParse(t, repo), Destination{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(loc.Root) })

	assert.True(t, loc.Temporary)
	assert.Equal(t, "lab1", filepath.Base(loc.Path))
	assert.Equal(t, loc.Root, filepath.Dir(loc.Path))
	assert.FileExists(t, filepath.Join(loc.Path, "main.py"))
	assert.NoFileExists(t, filepath.Join(loc.Path, "week2.py"), "default branch should be checked out")
}

// TestFetch_Permanent verifies the default <projects>/<owner>/<repo> layout.
func TestFetch_Permanent(t *testing.T) {
	repo := setupTestRepo(t)
	projects := t.TempDir()
	f := newTestFetcher(t, WithProjectsDir(projects))

	loc, err := f.Fetch(context.Background(), mustParse(t, repo), Destination{Permanent: true})
	require.NoError(t, err)

	assert.False(t, loc.Temporary)
	assert.Equal(t, filepath.Join(projects, "students", "lab1"), loc.Path)
	assert.Equal(t, loc.Path, loc.Root)
	assert.FileExists(t, filepath.Join(loc.Path, "main.py"))
}

// TestFetch_ExplicitPath verifies Destination.Path overrides the layout.
func TestFetch_ExplicitPath(t *testing.T) {
	repo := setupTestRepo(t)
	dest := filepath.Join(t.TempDir(), "grading", "alice")
	f := newTestFetcher(t)

	loc, err := f.Fetch(context.Background(), mustParse(t, repo), Destination{Permanent: true, Path: dest})
	require.NoError(t, err)
	assert.Equal(t, dest, loc.Path)
	assert.FileExists(t, filepath.Join(dest, "main.py"))
}

// TestFetch_Branch verifies a "#branch" reference checks out that branch tip.
func TestFetch_Branch(t *testing.T) {
	repo := setupTestRepo(t)
	f := newTestFetcher(t)

	loc, err := f.Fetch(context.Background(), mustParse(t, repo+"#week-2"), Destination{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(loc.Root) })

	assert.FileExists(t, filepath.Join(loc.Path, "week2.py"))

	branch, err := f.CurrentBranch(context.Background(), loc.Path)
	require.NoError(t, err)
	assert.Equal(t, "week-2", branch)
}

// TestFetch_Revision verifies a revision reference checks out that exact
// commit in a detached HEAD.
func TestFetch_Revision(t *testing.T) {
	repo := setupTestRepo(t)
	initial := strings.TrimSpace(runTestGit(t, repo, "rev-parse", "main"))
	f := newTestFetcher(t)

	loc, err := f.Fetch(context.Background(), mustParse(t, repo+"#"+initial[:12]), Destination{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(loc.Root) })

	head, err := f.Head(context.Background(), loc.Path)
	require.NoError(t, err)
	assert.Equal(t, initial, head)

	branch, err := f.CurrentBranch(context.Background(), loc.Path)
	require.NoError(t, err)
	assert.Equal(t, "HEAD", branch)
}

// TestFetch_UnknownRepository verifies an unreachable source fails with
// ErrFetch and leaves no temporary directory behind.
func TestFetch_UnknownRepository(t *testing.T) {
	setupTestRepo(t)
	missing := filepath.Join(t.TempDir(), "nobody", "missing")
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	f := newTestFetcher(t)

	_, err := f.Fetch(context.Background(), mustParse(t, missing), Destination{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFetch)

	leaked, err := filepath.Glob(filepath.Join(tmp, "ktp-project-*"))
	require.NoError(t, err)
	assert.Empty(t, leaked, "failed fetch must not leak a temporary directory")
}

// TestFetch_UnknownRevision verifies a failed checkout removes the
// permanent directory the fetch created.
func TestFetch_UnknownRevision(t *testing.T) {
	repo := setupTestRepo(t)
	dest := filepath.Join(t.TempDir(), "alice")
	f := newTestFetcher(t)

	_, err := f.Fetch(context.Background(), mustParse(t, repo+"#deadbeefdeadbeef"),
		Destination{Permanent: true, Path: dest})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFetch)
	assert.NoDirExists(t, dest)
}

// TestFetch_UnknownBranch verifies git's stderr reaches the error message.
func TestFetch_UnknownBranch(t *testing.T) {
	repo := setupTestRepo(t)
	f := newTestFetcher(t)

	_, err := f.Fetch(context.Background(), mustParse(t, repo+"#no-such-branch"), Destination{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFetch)
	assert.Contains(t, err.Error(), "no-such-branch")
}

// TestFetch_EmptyRepository verifies a repository with no files is rejected.
func TestFetch_EmptyRepository(t *testing.T) {
	setupTestRepo(t)
	empty := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.MkdirAll(empty, 0755))
	runTestGit(t, empty, "init", "--quiet")
	f := newTestFetcher(t)

	_, err := f.Fetch(context.Background(), mustParse(t, empty), Destination{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFetch)
	assert.Contains(t, err.Error(), "empty")
}

// TestFetch_ExistingDestination verifies a non-empty destination is left
// untouched unless overwrite is requested.
func TestFetch_ExistingDestination(t *testing.T) {
	repo := setupTestRepo(t)
	dest := filepath.Join(t.TempDir(), "alice")
	require.NoError(t, os.MkdirAll(dest, 0755))
	writeTestFile(t, filepath.Join(dest, "notes.txt"), "grader notes\n")
	f := newTestFetcher(t)

	_, err := f.Fetch(context.Background(), mustParse(t, repo), Destination{Permanent: true, Path: dest})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFetch)
	assert.Contains(t, err.Error(), "--overwrite")
	assert.FileExists(t, filepath.Join(dest, "notes.txt"), "refused fetch must not touch the destination")

	loc, err := f.Fetch(context.Background(), mustParse(t, repo),
		Destination{Permanent: true, Path: dest, Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, dest, loc.Path)
	assert.NoFileExists(t, filepath.Join(dest, "notes.txt"))
	assert.FileExists(t, filepath.Join(dest, "main.py"))
}

// TestFetch_EmptyDestination verifies an existing empty directory is used
// and survives a failed fetch.
func TestFetch_EmptyDestination(t *testing.T) {
	repo := setupTestRepo(t)
	dest := filepath.Join(t.TempDir(), "alice")
	require.NoError(t, os.MkdirAll(dest, 0755))
	f := newTestFetcher(t)

	_, err := f.Fetch(context.Background(), mustParse(t, repo+"#deadbeefdeadbeef"),
		Destination{Permanent: true, Path: dest})
	require.Error(t, err)

	assert.DirExists(t, dest, "a directory the caller created must not be removed")
}

// TestFetch_Timeout verifies an expired fetch deadline is a fetch failure.
func TestFetch_Timeout(t *testing.T) {
	repo := setupTestRepo(t)
	f := newTestFetcher(t, WithTimeout(time.Nanosecond))

	_, err := f.Fetch(context.Background(), mustParse(t, repo), Destination{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFetch)
}

// TestListStored verifies stored projects are discovered with their HEAD.
func TestListStored(t *testing.T) {
	repo := setupTestRepo(t)
	projects := t.TempDir()
	f := newTestFetcher(t, WithProjectsDir(projects))
	ctx := context.Background()

	_, err := f.Fetch(ctx, mustParse(t, repo), Destination{Permanent: true})
	require.NoError(t, err)
	_, err = f.Fetch(ctx, mustParse(t, repo+"#week-2"),
		Destination{Permanent: true, Path: filepath.Join(projects, "bob", "lab1")})
	require.NoError(t, err)

	// Directories without .git are ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(projects, "scratch", "notes"), 0755))

	stored, err := f.ListStored(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	assert.Equal(t, "bob/lab1", stored[0].Slug())
	assert.Equal(t, "week-2", stored[0].Branch)
	assert.Equal(t, strings.TrimSpace(runTestGit(t, repo, "rev-parse", "week-2")), stored[0].Head)

	assert.Equal(t, "students/lab1", stored[1].Slug())
	assert.Equal(t, "main", stored[1].Branch)
	assert.Equal(t, strings.TrimSpace(runTestGit(t, repo, "rev-parse", "main")), stored[1].Head)
}

// TestListStored_MissingDirectory verifies a missing projects directory
// is an empty list, not an error.
func TestListStored_MissingDirectory(t *testing.T) {
	f := NewFetcher(process.NewExecLauncher(), WithProjectsDir(filepath.Join(t.TempDir(), "absent")))

	stored, err := f.ListStored(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}
