package engine

import (
	"log/slog"
	"os"

	"gitlab.com/tinyland/lab/toolbench/pkg/runstate"
)

// StatusFile is an Observer that mirrors the run state into a status file
// after every event.
type StatusFile struct {
	Path   string
	Logger *slog.Logger

	status runstate.Status
}

// NewStatusFile returns an observer writing to path for the given run.
func NewStatusFile(path, runID string, logger *slog.Logger) *StatusFile {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StatusFile{
		Path:   path,
		Logger: logger,
		status: runstate.Status{RunID: runID, PID: os.Getpid(), State: EventStarted.String()},
	}
}

func (s *StatusFile) Observe(ev Event) {
	st := &s.status
	if ev.Kind == EventStarted {
		st.Started = ev.Time
	}
	st.State = ev.Kind.String()
	st.Updated = ev.Time
	st.Done, st.Total = ev.Done, ev.Total
	if !ev.Toolchain.IsZero() {
		st.Toolchain = ev.Toolchain.String()
	}
	st.Benchmark = ev.Benchmark
	switch ev.Kind {
	case EventRecorded:
		st.Recorded++
	case EventSkipped:
		st.Skipped++
	case EventFailed:
		st.Failed++
	}
	st.Error = ""
	if ev.Err != nil {
		st.Error = ev.Err.Error()
	}
	if err := runstate.WriteStatus(s.Path, st); err != nil {
		s.Logger.Warn("could not write status file", "path", s.Path, "error", err)
	}
}
