package report

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// DefaultWidth is used when the output is not a terminal.
const DefaultWidth = 100

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Width returns the terminal width of f, or DefaultWidth.
func Width(f *os.File) int {
	if !IsTerminal(f) {
		return DefaultWidth
	}
	w, _, err := term.GetSize(f.Fd())
	if err != nil || w <= 0 {
		return DefaultWidth
	}
	return w
}

// SetupColor picks the lipgloss colour profile for f. Colour is disabled when
// f is not a terminal or NO_COLOR is set.
func SetupColor(f *os.File) {
	if !IsTerminal(f) || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(f).EnvColorProfile())
}
