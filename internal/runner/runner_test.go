package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/ktp-tester/internal/model"
	"github.com/shinji-kodama/ktp-tester/internal/process"
	"github.com/shinji-kodama/ktp-tester/internal/process/processtest"
)

var testEnv = &model.Environment{Path: "/venv", Python: "/venv/bin/python"}

func newProject(t *testing.T, files ...string) *model.ProjectLocation {
	t.Helper()
	dir := t.TempDir()
	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("print('hi')\n"), 0644))
	}
	return &model.ProjectLocation{Path: dir, Root: dir}
}

// TestRun verifies the entry point is launched in the project directory
// and its output forwarded unmodified.
func TestRun(t *testing.T) {
	loc := newProject(t, "main.py")
	launcher := &processtest.FakeLauncher{Handler: processtest.Exit(0, "hello\n\x1b[31mred\x1b[0m\n", "warn\n")}
	r := NewRunner(launcher)

	var stdout, stderr bytes.Buffer
	res, err := r.Run(context.Background(), testEnv, loc, Output{Stdout: &stdout, Stderr: &stderr})
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "hello\n\x1b[31mred\x1b[0m\n", stdout.String())
	assert.Equal(t, "warn\n", stderr.String())

	calls := launcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/venv/bin/python", calls[0].Name)
	assert.Equal(t, []string{filepath.Join(loc.Path, "main.py")}, calls[0].Args)
	assert.Equal(t, loc.Path, calls[0].Dir)
	assert.Contains(t, calls[0].Env, "PYTHONDONTWRITEBYTECODE=1")
}

// TestRun_NonZeroExit verifies a failing program is a result, not an error.
func TestRun_NonZeroExit(t *testing.T) {
	loc := newProject(t, "main.py")
	r := NewRunner(&processtest.FakeLauncher{Handler: processtest.Exit(3, "", "Traceback\n")})

	res, err := r.Run(context.Background(), testEnv, loc, Output{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Succeeded())
}

// TestRun_EntryPointMissing verifies nothing is launched without an entry
// point.
func TestRun_EntryPointMissing(t *testing.T) {
	loc := newProject(t, "requirements.txt")
	launcher := &processtest.FakeLauncher{}
	r := NewRunner(launcher)

	res, err := r.Run(context.Background(), testEnv, loc, Output{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, model.ErrEntryPointMissing)
	assert.Contains(t, err.Error(), "main.py")
	assert.Empty(t, launcher.Calls())
}

// TestRun_CustomEntryPoint verifies the entry point is configurable,
// including a nested path.
func TestRun_CustomEntryPoint(t *testing.T) {
	loc := newProject(t)
	require.NoError(t, os.MkdirAll(filepath.Join(loc.Path, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(loc.Path, "src", "app.py"), nil, 0644))
	launcher := &processtest.FakeLauncher{}
	r := NewRunner(launcher, WithEntryPoint(filepath.Join("src", "app.py")))

	_, err := r.Run(context.Background(), testEnv, loc, Output{})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(loc.Path, "src", "app.py")}, launcher.Calls()[0].Args)
}

// TestRun_Timeout verifies a program outliving the timeout is stopped and
// reported as a runner timeout.
func TestRun_Timeout(t *testing.T) {
	loc := newProject(t, "main.py")
	r := NewRunner(&processtest.FakeLauncher{Handler: processtest.BlockUntilDone()},
		WithTimeout(20*time.Millisecond))

	start := time.Now()
	res, err := r.Run(context.Background(), testEnv, loc, Output{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, model.ErrRunnerTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// TestRun_Cancelled verifies cancelling the caller's context is reported
// as a cancellation rather than a timeout.
func TestRun_Cancelled(t *testing.T) {
	loc := newProject(t, "main.py")
	ctx, cancel := context.WithCancel(context.Background())
	launcher := &processtest.FakeLauncher{
		Handler: func(runCtx context.Context, cmd process.Command) (*process.Result, error) {
			cancel()
			<-runCtx.Done()
			return &process.Result{ExitCode: -1}, runCtx.Err()
		},
	}
	r := NewRunner(launcher)

	_, err := r.Run(ctx, testEnv, loc, Output{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestRun_StartFailure verifies an interpreter that cannot start is a
// general error.
func TestRun_StartFailure(t *testing.T) {
	loc := newProject(t, "main.py")
	startErr := errors.New("exec format error")
	r := NewRunner(&processtest.FakeLauncher{
		Handler: func(context.Context, process.Command) (*process.Result, error) {
			return nil, startErr
		},
	})

	_, err := r.Run(context.Background(), testEnv, loc, Output{})
	require.Error(t, err)
	assert.ErrorIs(t, err, startErr)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitGeneralError, cliErr.Code)
}

// TestRun_KilledBySignal verifies a signal death is a result carrying the
// signal name, not an error.
func TestRun_KilledBySignal(t *testing.T) {
	loc := newProject(t, "main.py")
	r := NewRunner(&processtest.FakeLauncher{
		Handler: func(context.Context, process.Command) (*process.Result, error) {
			return &process.Result{ExitCode: 137, Signal: "killed"}, nil
		},
	})

	res, err := r.Run(context.Background(), testEnv, loc, Output{})
	require.NoError(t, err)
	assert.Equal(t, 137, res.ExitCode)
	assert.Equal(t, "killed", res.Signal)
	assert.False(t, res.Succeeded())
}

// TestRun_LeavesProjectUnchanged runs a real interpreter on a project
// whose entry point imports a sibling module and checks no bytecode
// cache appears in the project tree.
func TestRun_LeavesProjectUnchanged(t *testing.T) {
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 is not installed")
	}
	t.Setenv("PYTHONDONTWRITEBYTECODE", "")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("import helper\nprint(helper.VALUE)\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.py"), []byte("VALUE = 1\n"), 0644))
	loc := &model.ProjectLocation{Path: dir, Root: dir}
	env := &model.Environment{Path: filepath.Dir(python), Python: python}

	var stdout bytes.Buffer
	res, err := NewRunner(process.NewExecLauncher()).Run(context.Background(), env, loc, Output{Stdout: &stdout})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "1\n", stdout.String())
	assert.NoDirExists(t, filepath.Join(dir, "__pycache__"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
