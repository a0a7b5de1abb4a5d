package engine

import (
	"sync"
	"time"

	"gitlab.com/tinyland/lab/toolbench/pkg/bench"
	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

// EventKind is a state transition of the run.
type EventKind int

const (
	EventStarted EventKind = iota
	EventInstalling
	EventInstalled
	EventInstallFailed
	EventSkipped
	EventShielded
	EventRunning
	EventRecorded
	EventFailed
	EventFinished
)

var eventNames = [...]string{
	EventStarted:       "started",
	EventInstalling:    "installing",
	EventInstalled:     "installed",
	EventInstallFailed: "install-failed",
	EventSkipped:       "skipped",
	EventShielded:      "shielded",
	EventRunning:       "running",
	EventRecorded:      "recorded",
	EventFailed:        "failed",
	EventFinished:      "finished",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event describes one transition. Toolchain and Benchmark are set when the
// transition concerns them; Result only on EventRecorded.
type Event struct {
	Kind      EventKind
	Time      time.Time
	Toolchain toolchain.Toolchain
	Benchmark string

	// Done and Total count benchmark slots, including skipped ones.
	Done  int
	Total int

	Result *bench.Result
	Err    error

	// Summary is set on EventFinished.
	Summary *Summary
}

// Observer receives events synchronously from the engine goroutine.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Observers fans an event out to several observers in order.
type Observers []Observer

func (obs Observers) Observe(ev Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(ev)
		}
	}
}

// Recorder keeps every event it sees. It is used by tests and by the
// end-of-run report.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Observe(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
