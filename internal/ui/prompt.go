package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/shinji-kodama/ktp-tester/internal/model"
)

// Request is what the user asked for when no reference was given on the
// command line.
type Request struct {
	Reference string
	Store     bool
}

// Prompter asks for a repository reference.
type Prompter struct {
	in          io.Reader
	out         io.Writer
	interactive bool
}

// NewPrompter creates a Prompter reading from in. The interactive form is
// used only when in is a terminal; otherwise a single line is read.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out, interactive: IsTerminal(in)}
}

// Ask collects a reference and, interactively, whether the project should
// be stored locally. store is the initial answer to that question and the
// answer used in non-interactive mode.
//
// An aborted form is reported as ExitCancelled; empty input as
// ExitFetchFailed.
func (p *Prompter) Ask(ctx context.Context, store bool) (Request, error) {
	if !p.interactive {
		return p.readLine(store)
	}

	req := Request{Store: store}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Student repository").
				Description("Clone URL, commit link, or URL#branch").
				Placeholder("https://github.com/user/repo").
				Value(&req.Reference).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("a repository reference is required")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Store project locally?").
				Affirmative("Yes").
				Negative("No").
				Value(&req.Store),
		),
	).WithInput(p.in).WithOutput(p.out)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, context.Canceled) {
			return Request{}, model.WrapCLIError(model.ExitCancelled, "prompt cancelled", err)
		}
		return Request{}, model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
	}
	req.Reference = strings.TrimSpace(req.Reference)
	return req, nil
}

// readLine reads one reference from a non-terminal input, such as a pipe.
func (p *Prompter) readLine(store bool) (Request, error) {
	_, _ = fmt.Fprint(p.out, "Student repository: ")

	// bufio.Scanner handles both LF and CRLF line endings.
	scanner := bufio.NewScanner(p.in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Request{}, model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
		}
		return Request{}, model.NewCLIError(model.ExitFetchFailed, "no repository reference given")
	}

	ref := strings.TrimSpace(scanner.Text())
	if ref == "" {
		return Request{}, model.NewCLIError(model.ExitFetchFailed, "no repository reference given")
	}
	return Request{Reference: ref, Store: store}, nil
}
