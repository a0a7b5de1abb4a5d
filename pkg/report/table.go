package report

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
)

// Table is a plain column-aligned table. Cells may contain ANSI styling;
// widths are measured in visible terminal cells.
type Table struct {
	Headers []string

	// Right marks columns that are right-aligned.
	Right map[int]bool

	rows [][]string
}

// Row appends a row. Missing cells render empty.
func (t *Table) Row(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Render lays the table out within maxWidth cells. The last column is
// truncated when the table is too wide.
func (t *Table) Render(maxWidth int) string {
	cols := len(t.Headers)
	for _, r := range t.rows {
		cols = max(cols, len(r))
	}
	if cols == 0 {
		return ""
	}
	widths := make([]int, cols)
	measure := func(cells []string) {
		for i, c := range cells {
			widths[i] = max(widths[i], ansi.StringWidth(c))
		}
	}
	measure(t.Headers)
	for _, r := range t.rows {
		measure(r)
	}

	var b strings.Builder
	line := func(cells []string, style *lipgloss.Style) {
		parts := make([]string, cols)
		for i := range cols {
			var c string
			if i < len(cells) {
				c = cells[i]
			}
			if style != nil {
				c = style.Render(c)
			}
			if i == cols-1 && !t.Right[i] {
				parts[i] = c
				continue
			}
			if t.Right[i] {
				parts[i] = padLeft(c, widths[i])
			} else {
				parts[i] = padRight(c, widths[i])
			}
		}
		l := strings.Join(parts, "  ")
		if maxWidth > 0 {
			l = ansi.Truncate(l, maxWidth, "…")
		}
		b.WriteString(strings.TrimRight(l, " "))
		b.WriteByte('\n')
	}
	if len(t.Headers) > 0 {
		line(t.Headers, &headerStyle)
	}
	for _, r := range t.rows {
		line(r, nil)
	}
	return b.String()
}

func padRight(s string, width int) string {
	vis := ansi.StringWidth(s)
	if vis >= width {
		return s
	}
	return s + strings.Repeat(" ", width-vis)
}

func padLeft(s string, width int) string {
	vis := ansi.StringWidth(s)
	if vis >= width {
		return s
	}
	return strings.Repeat(" ", width-vis) + s
}
