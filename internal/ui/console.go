package ui

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Tag classifies a console message.
type Tag string

const (
	// TagSystem marks progress of the pipeline itself.
	TagSystem Tag = "system"

	// TagWarning marks a problem that does not stop the run.
	TagWarning Tag = "warning"

	// TagError marks a failure that ends the run.
	TagError Tag = "error"

	// TagSuccess marks a completed run.
	TagSuccess Tag = "success"
)

// Palette used when the console is a terminal.
var (
	colorSystem  = lipgloss.Color("#3B82F6") // blue
	colorWarning = lipgloss.Color("#F59E0B") // amber
	colorError   = lipgloss.Color("#E74C3C") // red
	colorSuccess = lipgloss.Color("#2CD7C7") // teal
	colorMuted   = lipgloss.Color("#6B7280") // gray, installer output
)

var icons = map[Tag]string{
	TagSystem:  "→",
	TagWarning: "⚠",
	TagError:   "✗",
	TagSuccess: "✓",
}

// Console writes tagged progress messages to a diagnostic stream.
// It is safe for concurrent use.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	styled bool
	styles map[Tag]lipgloss.Style
	muted  lipgloss.Style
}

// NewConsole creates a Console writing to w. Styling is enabled only when
// w is a terminal.
func NewConsole(w io.Writer) *Console {
	return newConsole(w, IsTerminal(w))
}

func newConsole(w io.Writer, styled bool) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:      w,
		styled: styled,
		styles: map[Tag]lipgloss.Style{
			TagSystem:  r.NewStyle().Foreground(colorSystem),
			TagWarning: r.NewStyle().Foreground(colorWarning),
			TagError:   r.NewStyle().Foreground(colorError).Bold(true),
			TagSuccess: r.NewStyle().Foreground(colorSuccess),
		},
		muted: r.NewStyle().Foreground(colorMuted),
	}
}

// IsTerminal reports whether w is a terminal (including Cygwin/MSYS ptys).
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// System reports pipeline progress.
func (c *Console) System(format string, args ...any) {
	c.print(TagSystem, fmt.Sprintf(format, args...))
}

// Warning reports a recoverable problem.
func (c *Console) Warning(format string, args ...any) {
	c.print(TagWarning, fmt.Sprintf(format, args...))
}

// Error reports a fatal problem.
func (c *Console) Error(format string, args ...any) {
	c.print(TagError, fmt.Sprintf(format, args...))
}

// Success reports a completed run.
func (c *Console) Success(format string, args ...any) {
	c.print(TagSuccess, fmt.Sprintf(format, args...))
}

func (c *Console) print(tag Tag, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.styled {
		_, _ = fmt.Fprintf(c.w, "[%s] %s\n", tag, msg)
		return
	}
	style := c.styles[tag]
	_, _ = fmt.Fprintf(c.w, "%s %s\n", style.Render(icons[tag]), style.Render(msg))
}

// ToolOutput returns a writer for the output of helper tools (git, venv,
// pip). On a terminal each complete line is rendered muted; otherwise
// bytes pass through unchanged. Close flushes a trailing partial line.
func (c *Console) ToolOutput() io.WriteCloser {
	return &lineWriter{console: c}
}

// lineWriter buffers until a newline so styles never span lines.
type lineWriter struct {
	console *Console
	buf     bytes.Buffer
}

func (lw *lineWriter) Write(p []byte) (int, error) {
	c := lw.console
	if !c.styled {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.w.Write(p)
	}

	lw.buf.Write(p)
	for {
		line, err := lw.buf.ReadBytes('\n')
		if err != nil {
			// Incomplete line: keep it for the next Write.
			rest := append([]byte(nil), line...)
			lw.buf.Reset()
			lw.buf.Write(rest)
			break
		}
		lw.emit(bytes.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (lw *lineWriter) Close() error {
	if lw.buf.Len() > 0 {
		lw.emit(lw.buf.Bytes())
		lw.buf.Reset()
	}
	return nil
}

func (lw *lineWriter) emit(line []byte) {
	c := lw.console
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, c.muted.Render(string(line)))
}
