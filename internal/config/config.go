package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// DefaultFileNames are looked up in the working directory, in order, when no
// explicit config path is given.
var DefaultFileNames = []string{"ktp-tester.yaml", "ktp-tester.yml", "ktp-tester.jsonc", "ktp-tester.json"}

// Config holds every tunable of a grading run.
type Config struct {
	// ProjectsDir is where stored (permanent) projects are cloned, laid out
	// as <ProjectsDir>/<owner>/<repo>.
	ProjectsDir string `yaml:"projects_dir" json:"projects_dir"`

	// Manifest is the dependency manifest, relative to the project root.
	Manifest string `yaml:"manifest" json:"manifest"`

	// EntryPoint is the file executed for evaluation, relative to the
	// project root.
	EntryPoint string `yaml:"entry_point" json:"entry_point"`

	// Python is the host interpreter used to create virtual environments.
	Python string `yaml:"python" json:"python"`

	// Git is the git binary used by the fetcher.
	Git string `yaml:"git" json:"git"`

	// UpgradePip upgrades pip inside the fresh environment before the
	// manifest is installed.
	UpgradePip bool `yaml:"upgrade_pip" json:"upgrade_pip"`

	// FetchTimeout, InstallTimeout and RunTimeout bound the corresponding
	// subprocesses. RunTimeout applies to the student's entry point.
	FetchTimeout   Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	InstallTimeout Duration `yaml:"install_timeout" json:"install_timeout"`
	RunTimeout     Duration `yaml:"run_timeout" json:"run_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	python := "python3"
	if runtime.GOOS == "windows" {
		python = "python"
	}
	return Config{
		ProjectsDir:    "projects",
		Manifest:       "requirements.txt",
		EntryPoint:     "main.py",
		Python:         python,
		Git:            "git",
		UpgradePip:     true,
		FetchTimeout:   Duration(5 * time.Minute),
		InstallTimeout: Duration(10 * time.Minute),
		RunTimeout:     Duration(5 * time.Minute),
	}
}

// Load reads the config file at path on top of the defaults.
//
// If path is empty, the DefaultFileNames are looked up in dir and the first one
// found is used; when none exists the defaults are returned unchanged. An
// explicit path that does not exist is an error.
func Load(path, dir string) (Config, string, error) {
	cfg := Default()

	if path == "" {
		found, err := findDefault(dir)
		if err != nil {
			return cfg, "", err
		}
		if found == "" {
			return cfg, "", nil
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, path, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := decode(path, data, &cfg); err != nil {
		return cfg, path, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, path, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, path, nil
}

// decode picks the decoder from the file extension. Unknown extensions are
// treated as YAML, which also accepts plain JSON.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// Strip comments (// and /* */) and trailing commas first.
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return nil
}

func findDefault(dir string) (string, error) {
	for _, name := range DefaultFileNames {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
	}
	return "", nil
}

// Validate checks that the configuration can drive a run.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ProjectsDir) == "" {
		errs = append(errs, errors.New("projects_dir must not be empty"))
	}
	if err := validateProjectFile("manifest", c.Manifest); err != nil {
		errs = append(errs, err)
	}
	if err := validateProjectFile("entry_point", c.EntryPoint); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Python) == "" {
		errs = append(errs, errors.New("python must not be empty"))
	}
	if strings.TrimSpace(c.Git) == "" {
		errs = append(errs, errors.New("git must not be empty"))
	}

	timeouts := []struct {
		field string
		value Duration
	}{
		{"fetch_timeout", c.FetchTimeout},
		{"install_timeout", c.InstallTimeout},
		{"run_timeout", c.RunTimeout},
	}
	for _, tt := range timeouts {
		if tt.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", tt.field, tt.value))
		}
	}

	return errors.Join(errs...)
}

// validateProjectFile rejects names that would resolve outside the project
// root.
func validateProjectFile(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if filepath.IsAbs(name) {
		return fmt.Errorf("%s must be relative to the project root, got %q", field, name)
	}
	if !filepath.IsLocal(name) {
		return fmt.Errorf("%s must stay inside the project root, got %q", field, name)
	}
	return nil
}
