// Package cli: list.go implements the "ktp-tester list" command.
//
// The list command displays the projects kept under projects_dir by
// earlier "run --store" invocations, with the commit and branch each one
// has checked out. Results are presented as a text table or JSON array,
// depending on the --json flag.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/ktp-tester/internal/model"
	"github.com/shinji-kodama/ktp-tester/internal/source"
)

// shortHeadLength is the number of SHA characters shown in the text table.
const shortHeadLength = 12

// NewListCommand creates the "list" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored student projects",
		Long: `List the student projects stored under projects_dir.

Each project is shown with its owner/name, checked-out commit and branch
("HEAD" for a project stored at a specific commit).

Examples:
  ktp-tester list
  ktp-tester list --json`,

		// No positional arguments are required for the list command.
		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	return cmd
}

// runList discovers stored projects and prints them.
func runList(ctx context.Context, stdout, stderr io.Writer) error {
	logger := newLogger(stderr)

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}

	fetcher := source.NewFetcher(newLauncher(),
		source.WithGit(cfg.Git),
		source.WithProjectsDir(cfg.ProjectsDir),
		source.WithTimeout(cfg.FetchTimeout.Std()),
		source.WithLogger(logger),
	)

	projects, err := fetcher.ListStored(ctx)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to list stored projects", err)
	}
	logger.Debug("listed stored projects",
		slog.Int("count", len(projects)),
		slog.String("projects_dir", cfg.ProjectsDir),
	)

	printListResult(stdout, projects)
	return nil
}

// printListResult outputs the project list in text or JSON format,
// depending on the global --json flag.
func printListResult(w io.Writer, projects []model.StoredProject) {
	if IsJSONOutput() {
		printListResultJSON(w, projects)
	} else {
		printListResultText(w, projects)
	}
}

// printListResultJSON outputs the project list as structured JSON.
// The top-level key is "projects" containing an array of project objects.
func printListResultJSON(w io.Writer, projects []model.StoredProject) {
	type resultJSON struct {
		Projects []model.StoredProject `json:"projects"`
	}

	// Use an empty slice instead of nil so the output shows [] instead of
	// null when nothing is stored.
	result := resultJSON{Projects: make([]model.StoredProject, 0, len(projects))}
	result.Projects = append(result.Projects, projects...)

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(w, string(data))
}

// printListResultText outputs the project list as a human-readable text
// table with aligned columns.
//
// The table format is:
//
//	PROJECT              HEAD          BRANCH    PATH
//	alice/lab1           3f2a9c1d0e4b  main      /home/grader/projects/alice/lab1
//	bob/lab1             -             -         /home/grader/projects/bob/lab1
func printListResultText(w io.Writer, projects []model.StoredProject) {
	if len(projects) == 0 {
		fmt.Fprintln(w, "No stored projects found.")
		return
	}

	fmt.Fprintf(w, "%-24s %-13s %-20s %s\n", "PROJECT", "HEAD", "BRANCH", "PATH")
	for _, p := range projects {
		fmt.Fprintf(w, "%-24s %-13s %-20s %s\n",
			p.Slug(),
			FormatHead(p.Head),
			orDash(p.Branch),
			p.Path,
		)
	}
}

// FormatHead shortens a commit SHA for the text table. Returns "-" when the
// HEAD could not be read.
//
// Example:
//
//	"3f2a9c1d0e4b5a6978877665544332211000ffee" → "3f2a9c1d0e4b"
//	""                                         → "-"
func FormatHead(sha string) string {
	if sha == "" {
		return "-"
	}
	if len(sha) > shortHeadLength {
		return sha[:shortHeadLength]
	}
	return sha
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
