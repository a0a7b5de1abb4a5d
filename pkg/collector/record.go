package collector

import (
	"encoding/json"
	"fmt"
	"time"

	"gitlab.com/tinyland/lab/toolbench/pkg/bench"
	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

// RecordVersion is the on-disk record format written by this package.
const RecordVersion = 1

// Key identifies a measurement point.
type Key struct {
	Toolchain toolchain.Toolchain
	Benchmark string
}

func (k Key) String() string { return k.Toolchain.String() + "/" + k.Benchmark }

// Less orders keys by toolchain name, then benchmark name. Dated nightlies
// therefore sort chronologically.
func (k Key) Less(o Key) bool {
	if a, b := k.Toolchain.String(), o.Toolchain.String(); a != b {
		return a < b
	}
	return k.Benchmark < o.Benchmark
}

// Status is the outcome stored in a record.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

func (s Status) valid() bool { return s == StatusSuccess || s == StatusFailure }

// Record is one persisted outcome.
type Record struct {
	Version   int                 `json:"version"`
	Toolchain toolchain.Toolchain `json:"toolchain"`
	Benchmark string              `json:"benchmark"`
	Status    Status              `json:"status"`
	RunID     string              `json:"run_id,omitempty"`
	Recorded  time.Time           `json:"recorded"`

	// Result is set for successful measurements.
	Result *bench.Result `json:"result,omitempty"`

	// Failure details.
	ExitCode int    `json:"exit_code,omitempty"`
	Error    string `json:"error,omitempty"`
	Output   string `json:"output,omitempty"`
}

// Key returns the record's key.
func (r *Record) Key() Key { return Key{Toolchain: r.Toolchain, Benchmark: r.Benchmark} }

func encodeRecord(r *Record) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", r.Key(), err)
	}
	return append(data, '\n'), nil
}

func decodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	switch {
	case r.Version <= 0:
		return nil, fmt.Errorf("missing record version")
	case r.Version > RecordVersion:
		return nil, fmt.Errorf("record version %d is newer than supported version %d", r.Version, RecordVersion)
	case r.Toolchain.IsZero():
		return nil, fmt.Errorf("record has no toolchain")
	case r.Benchmark == "":
		return nil, fmt.Errorf("record has no benchmark")
	case !r.Status.valid():
		return nil, fmt.Errorf("unknown record status %q", r.Status)
	case r.Status == StatusSuccess && r.Result == nil:
		return nil, fmt.Errorf("successful record has no result")
	}
	return &r, nil
}
