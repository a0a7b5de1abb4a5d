// Package progress is the live terminal view of a running measurement. It
// renders engine events with bubbletea; the engine itself never blocks on
// the view beyond handing over each event.
package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"gitlab.com/tinyland/lab/toolbench/pkg/engine"
)

const historyLen = 6

// EventMsg carries an engine event into the program.
type EventMsg struct{ engine.Event }

// tickMsg refreshes the elapsed-time display.
type tickMsg time.Time

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// Model is the bubbletea model of the progress view.
type Model struct {
	bar      progress.Model
	spin     spinner.Model
	interval time.Duration
	cancel   func()

	width      int
	started    time.Time
	now        time.Time
	state      engine.EventKind
	toolchain  string
	benchmark  string
	done       int
	total      int
	recorded   int
	skipped    int
	failed     int
	history    []string
	finished   bool
	cancelling bool
	err        error
}

// NewModel returns a model that refreshes every interval. cancel is called
// when the user presses ctrl+c; the view keeps running until the engine
// reports that it has finished.
func NewModel(interval time.Duration, cancel func()) Model {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return Model{
		bar:      progress.New(progress.WithDefaultGradient()),
		spin:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		interval: interval,
		cancel:   cancel,
		width:    80,
	}
}

// Init starts the spinner and the refresh tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tickCmd(m.interval))
}

// Update handles events, key presses, resizes and ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if !m.cancelling && m.cancel != nil {
				m.cancel()
			}
			m.cancelling = true
		}
		return m, nil

	case EventMsg:
		m = m.apply(msg.Event)
		if m.finished {
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.finished {
			return m, nil
		}
		return m, tickCmd(m.interval)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) apply(ev engine.Event) Model {
	m.state = ev.Kind
	m.done, m.total = ev.Done, ev.Total
	if !ev.Time.IsZero() {
		m.now = ev.Time
	}
	if !ev.Toolchain.IsZero() {
		m.toolchain = ev.Toolchain.String()
	}
	m.benchmark = ev.Benchmark

	switch ev.Kind {
	case engine.EventStarted:
		m.started = ev.Time
	case engine.EventInstallFailed:
		m.push(failStyle.Render("✗ install "+ev.Toolchain.String()) + dimStyle.Render(": "+errText(ev.Err)))
	case engine.EventSkipped:
		m.skipped++
	case engine.EventRecorded:
		m.recorded++
		wall := ""
		if ev.Result != nil {
			wall = " " + ev.Result.Wall.Round(time.Millisecond).String()
		}
		m.push(okStyle.Render("✓ ") + ev.Toolchain.String() + "/" + ev.Benchmark + dimStyle.Render(wall))
	case engine.EventFailed:
		m.failed++
		m.push(failStyle.Render("✗ ") + ev.Toolchain.String() + "/" + ev.Benchmark + dimStyle.Render(": "+errText(ev.Err)))
	case engine.EventFinished:
		m.finished = true
		m.err = ev.Err
	}
	return m
}

func (m *Model) push(line string) {
	m.history = append(m.history, line)
	if len(m.history) > historyLen {
		m.history = m.history[len(m.history)-historyLen:]
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	s, _, _ := strings.Cut(err.Error(), "\n")
	return s
}

// Percent returns the completed fraction of the plan.
func (m Model) Percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

// View renders the model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("toolbench") + " ")
	switch {
	case m.finished && m.err != nil:
		b.WriteString(failStyle.Render("failed"))
	case m.finished:
		b.WriteString(okStyle.Render("done"))
	case m.cancelling:
		b.WriteString(failStyle.Render("cancelling…"))
	default:
		b.WriteString(m.spin.View() + " " + m.state.String())
		if m.toolchain != "" {
			b.WriteString(" " + m.toolchain)
		}
		if m.benchmark != "" {
			b.WriteString("/" + m.benchmark)
		}
	}
	b.WriteString("\n\n")

	m.bar.Width = max(10, min(m.width-4, 60))
	b.WriteString(m.bar.ViewAs(m.Percent()) + "\n")
	elapsed := time.Duration(0)
	if !m.started.IsZero() && m.now.After(m.started) {
		elapsed = m.now.Sub(m.started).Round(time.Second)
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d/%d slots  %d recorded  %d skipped  %d failed  %s",
		m.done, m.total, m.recorded, m.skipped, m.failed, elapsed)) + "\n")

	if len(m.history) > 0 {
		b.WriteString("\n")
		for _, line := range m.history {
			b.WriteString(ansi.Truncate(line, max(m.width, 20), "…") + "\n")
		}
	}
	return b.String()
}
