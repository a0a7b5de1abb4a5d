// Package plan resolves a toolchain and benchmark selection into the ordered
// list of measurements a run performs.
package plan

import (
	"slices"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/toolbench/pkg/bench"
	"gitlab.com/tinyland/lab/toolbench/pkg/shield"
	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

// BenchOpts is the complete input to planning.
type BenchOpts struct {
	Toolchains toolchain.Spec

	// Runner restricts the plan to benchmarks with this runner tag. Empty
	// selects every benchmark.
	Runner string

	// Shield is nil for unshielded runs.
	Shield *shield.Spec
}

// Selection is the raw command-line selection a BenchOpts is built from.
type Selection struct {
	SingleToolchain string
	NightliesSince  string
	Runner          string
	CPUs            string
	MoveKthreads    bool
}

// NewBenchOpts validates sel and builds BenchOpts from it. Exactly one of
// SingleToolchain and NightliesSince must be set; anything else is a
// *toolchain.ConfigError. MoveKthreads without CPUs requests no shield.
func NewBenchOpts(sel Selection, today time.Time) (BenchOpts, error) {
	var since *time.Time
	if s := strings.TrimSpace(sel.NightliesSince); s != "" {
		d, err := toolchain.ParseDate(s)
		if err != nil {
			return BenchOpts{}, &toolchain.ConfigError{Msg: err.Error()}
		}
		since = &d
	}
	spec, err := toolchain.FromSelection(strings.TrimSpace(sel.SingleToolchain), since, today)
	if err != nil {
		return BenchOpts{}, err
	}

	opts := BenchOpts{Toolchains: spec, Runner: strings.TrimSpace(sel.Runner)}
	if cpus := strings.TrimSpace(sel.CPUs); cpus != "" {
		opts.Shield = &shield.Spec{CPUMask: cpus, KthreadOn: sel.MoveKthreads}
	}
	return opts, nil
}

// Entry is one toolchain and the benchmarks measured under it.
type Entry struct {
	Toolchain  toolchain.Toolchain
	Benchmarks []bench.Benchmark
}

// RunPlan is the ordered list of entries. Toolchains are installed and
// measured in this order.
type RunPlan []Entry

// Len returns the number of (toolchain, benchmark) slots in the plan.
func (p RunPlan) Len() int {
	n := 0
	for _, e := range p {
		n += len(e.Benchmarks)
	}
	return n
}

// Toolchains returns the planned toolchains in order.
func (p RunPlan) Toolchains() []toolchain.Toolchain {
	out := make([]toolchain.Toolchain, len(p))
	for i, e := range p {
		out[i] = e.Toolchain
	}
	return out
}

// PlanBenchmarks resolves opts against the registered benchmarks. The result
// depends only on its inputs, so a resumed run visits the same slots in the
// same order.
func PlanBenchmarks(opts BenchOpts, reg *bench.Registry) (RunPlan, error) {
	tcs, err := opts.Toolchains.Resolve()
	if err != nil {
		return nil, err
	}

	var benches []bench.Benchmark
	if opts.Runner != "" {
		benches = reg.Filter(opts.Runner)
	} else {
		benches = reg.All()
	}

	p := make(RunPlan, 0, len(tcs))
	for _, tc := range tcs {
		p = append(p, Entry{Toolchain: tc, Benchmarks: slices.Clone(benches)})
	}
	return p, nil
}
