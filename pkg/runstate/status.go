package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Status is a snapshot of an in-progress or finished run, rewritten after
// every state change so an operator can inspect a long measurement.
type Status struct {
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	State     string    `json:"state"`
	Toolchain string    `json:"toolchain,omitempty"`
	Benchmark string    `json:"benchmark,omitempty"`
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	Recorded  int       `json:"recorded"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
	Started   time.Time `json:"started"`
	Updated   time.Time `json:"updated"`
}

// WriteStatus writes status as indented JSON to path. The write is atomic:
// content goes to a temporary file first, then is renamed into place so
// readers never see a partial file.
func WriteStatus(path string, status *Status) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create status directory: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp status file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename status file: %w", err)
	}
	return nil
}

// ReadStatus reads and parses the status JSON at path.
func ReadStatus(path string) (*Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status file: %w", err)
	}
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal status file: %w", err)
	}
	return &status, nil
}
