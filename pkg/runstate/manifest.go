package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/toolbench/pkg/hostinfo"
)

// RunsDir holds one manifest per run inside the data directory.
const RunsDir = "runs"

// RunManifest records what a run was asked to do and where it ran.
type RunManifest struct {
	RunID      string             `json:"run_id"`
	Version    string             `json:"version"`
	Started    time.Time          `json:"started"`
	Finished   time.Time          `json:"finished,omitzero"`
	Args       []string           `json:"args"`
	Toolchains string             `json:"toolchains"`
	Runner     string             `json:"runner,omitempty"`
	CPUs       string             `json:"cpus,omitempty"`
	Slots      int                `json:"slots"`
	Outcome    string             `json:"outcome,omitempty"`
	Host       *hostinfo.Snapshot `json:"host,omitempty"`
}

// WriteRunManifest writes m to <dataDir>/runs/<run-id>.json, replacing any
// earlier version of the same run's manifest.
func WriteRunManifest(dataDir string, m *RunManifest) error {
	if m.RunID == "" || strings.ContainsAny(m.RunID, `/\`) {
		return fmt.Errorf("invalid run id %q", m.RunID)
	}
	path := filepath.Join(dataDir, RunsDir, m.RunID+".json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create runs directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename run manifest: %w", err)
	}
	return nil
}

// ListRuns returns the manifests under dataDir, oldest first. Unreadable
// manifests are skipped.
func ListRuns(dataDir string) ([]*RunManifest, error) {
	entries, err := os.ReadDir(filepath.Join(dataDir, RunsDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read runs directory: %w", err)
	}
	var runs []*RunManifest
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dataDir, RunsDir, e.Name()))
		if err != nil {
			continue
		}
		var m RunManifest
		if json.Unmarshal(data, &m) != nil {
			continue
		}
		runs = append(runs, &m)
	}
	slices.SortFunc(runs, func(a, b *RunManifest) int { return a.Started.Compare(b.Started) })
	return runs, nil
}
