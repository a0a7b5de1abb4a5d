package engine

import "fmt"

// FailurePolicy decides what a failed benchmark does to the rest of the run.
type FailurePolicy string

const (
	// FailAbort stops the run at the first failed benchmark.
	FailAbort FailurePolicy = "abort"

	// FailContinue records the failure and moves on. The run still ends
	// with an error.
	FailContinue FailurePolicy = "continue"
)

// ShieldScope decides how long a CPU reservation is held.
type ShieldScope string

const (
	// ShieldPerBenchmark acquires and releases the shield around each
	// benchmark.
	ShieldPerBenchmark ShieldScope = "benchmark"

	// ShieldPerToolchain holds one reservation for all benchmarks of a
	// toolchain. It is released before the next toolchain is installed.
	ShieldPerToolchain ShieldScope = "toolchain"
)

// Policy groups the engine's configurable behaviour. The zero value is
// FailAbort with a per-benchmark shield.
type Policy struct {
	OnFailure   FailurePolicy
	ShieldScope ShieldScope
}

// Validate fills defaults and rejects unknown values.
func (p *Policy) Validate() error {
	switch p.OnFailure {
	case "":
		p.OnFailure = FailAbort
	case FailAbort, FailContinue:
	default:
		return fmt.Errorf("unknown failure policy %q (want %q or %q)", p.OnFailure, FailAbort, FailContinue)
	}
	switch p.ShieldScope {
	case "":
		p.ShieldScope = ShieldPerBenchmark
	case ShieldPerBenchmark, ShieldPerToolchain:
	default:
		return fmt.Errorf("unknown shield scope %q (want %q or %q)", p.ShieldScope, ShieldPerBenchmark, ShieldPerToolchain)
	}
	return nil
}
