package progress

import (
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gitlab.com/tinyland/lab/toolbench/pkg/engine"
)

// View runs the progress program in its own goroutine and implements
// engine.Observer by forwarding events to it.
type View struct {
	p    *tea.Program
	done chan error
}

// Start launches the view on out, reading keys from in. cancel is invoked
// when the user interrupts from the keyboard.
func Start(in io.Reader, out io.Writer, interval time.Duration, cancel func()) *View {
	p := tea.NewProgram(NewModel(interval, cancel),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithoutSignalHandler(),
	)
	v := &View{p: p, done: make(chan error, 1)}
	go func() {
		_, err := p.Run()
		v.done <- err
	}()
	return v
}

// Observe implements engine.Observer. It is a no-op once the program exited.
func (v *View) Observe(ev engine.Event) {
	v.p.Send(EventMsg{ev})
}

// Wait blocks until the program has exited.
func (v *View) Wait() error {
	return <-v.done
}

// Stop ends the program without waiting for a finished event.
func (v *View) Stop() error {
	v.p.Quit()
	return v.Wait()
}
