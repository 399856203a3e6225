package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// writeFile creates name inside dir with the given content.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestDefault_IsValid guards against shipping defaults that fail validation.
func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "projects", cfg.ProjectsDir)
	assert.Equal(t, "requirements.txt", cfg.Manifest)
	assert.Equal(t, "main.py", cfg.EntryPoint)
	assert.True(t, cfg.UpgradePip)
	assert.Equal(t, 5*time.Minute, cfg.RunTimeout.Std())
}

// TestLoad_NoFileReturnsDefaults verifies a directory without a config file
// yields the defaults and no path.
func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	cfg, path, err := Load("", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, Default(), cfg)
}

// TestLoad_YAML verifies YAML overrides are applied on top of the defaults.
func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ktp-tester.yaml", `
projects_dir: graded
entry_point: app/run.py
upgrade_pip: false
run_timeout: 90s
`)

	cfg, path, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ktp-tester.yaml"), path)

	assert.Equal(t, "graded", cfg.ProjectsDir)
	assert.Equal(t, "app/run.py", cfg.EntryPoint)
	assert.False(t, cfg.UpgradePip)
	assert.Equal(t, 90*time.Second, cfg.RunTimeout.Std())

	// Untouched fields keep their defaults.
	assert.Equal(t, "requirements.txt", cfg.Manifest)
	assert.Equal(t, 10*time.Minute, cfg.InstallTimeout.Std())
}

// TestLoad_JSONC verifies comments and trailing commas are accepted in JSON files.
func TestLoad_JSONC(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "grading.jsonc", `{
  // course-specific interpreter
  "python": "python3.12",
  /* shorter bound for lab sessions */
  "run_timeout": "30s",
}`)

	cfg, got, err := Load(path, dir)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, "python3.12", cfg.Python)
	assert.Equal(t, 30*time.Second, cfg.RunTimeout.Std())
}

// TestLoad_ExplicitMissingFile verifies an explicit path must exist.
func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

// TestLoad_InvalidDuration verifies malformed durations are rejected.
func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "run_timeout: forever\n")

	_, _, err := Load(path, dir)
	assert.Error(t, err)
}

// TestLoad_ValidationFailure verifies Load reports invalid values.
func TestLoad_ValidationFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "run_timeout: 0s\n")

	_, _, err := Load(path, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_timeout must be positive")
}

// TestValidate covers each rejected field.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty projects dir", func(c *Config) { c.ProjectsDir = " " }, "projects_dir"},
		{"empty manifest", func(c *Config) { c.Manifest = "" }, "manifest must not be empty"},
		{"absolute entry point", func(c *Config) { c.EntryPoint = "/etc/passwd" }, "entry_point must be relative"},
		{"escaping manifest", func(c *Config) { c.Manifest = "../requirements.txt" }, "manifest must stay inside"},
		{"empty python", func(c *Config) { c.Python = "" }, "python must not be empty"},
		{"empty git", func(c *Config) { c.Git = "" }, "git must not be empty"},
		{"negative install timeout", func(c *Config) { c.InstallTimeout = Duration(-time.Second) }, "install_timeout"},
		{"zero fetch timeout", func(c *Config) { c.FetchTimeout = 0 }, "fetch_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestDuration_YAMLRoundTrip verifies durations marshal as strings.
func TestDuration_YAMLRoundTrip(t *testing.T) {
	data, err := yaml.Marshal(Default())
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_timeout: 5m0s")

	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, Default(), back)
}
