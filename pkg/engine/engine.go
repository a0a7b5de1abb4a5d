// Package engine drives a run plan: it installs each toolchain in order,
// shields CPUs around every benchmark, and hands each measurement to the
// collector. The engine owns the policy for benchmark failures and the scope
// of a CPU shield.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gitlab.com/tinyland/lab/toolbench/pkg/bench"
	"gitlab.com/tinyland/lab/toolbench/pkg/collector"
	"gitlab.com/tinyland/lab/toolbench/pkg/install"
	"gitlab.com/tinyland/lab/toolbench/pkg/plan"
	"gitlab.com/tinyland/lab/toolbench/pkg/shield"
	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

// Store is the part of *collector.Collector the engine uses.
type Store interface {
	Pending(k collector.Key) bool
	Run(ctx context.Context, tc toolchain.Toolchain, b bench.Benchmark, exec collector.ExecFunc) (collector.Outcome, error)
}

// Summary counts what a run did.
type Summary struct {
	Slots     int
	Installed int
	Recorded  int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
}

// Engine runs plans. Installer, Shield, Store and Executor are required.
type Engine struct {
	Installer install.Installer
	Shield    shield.Controller
	Store     Store
	Executor  bench.Executor
	Policy    Policy
	Logger    *slog.Logger
	Observer  Observer

	// Now defaults to time.Now.
	Now func() time.Time
}

// run is the state of one Run call.
type run struct {
	*Engine
	sum      Summary
	done     int
	failures []error
}

// Run executes p. It returns the first fatal error: a shield that cannot be
// provided, a failed install, a store error, cancellation, or a benchmark
// failure under FailAbort. Under FailContinue benchmark failures are joined
// into the returned error after the plan completes.
//
// A shield reservation is released on every return path, using a context
// that survives cancellation of ctx.
func (e *Engine) Run(ctx context.Context, p plan.RunPlan) (Summary, error) {
	if err := e.Policy.Validate(); err != nil {
		return Summary{}, err
	}
	r := &run{Engine: e, sum: Summary{Slots: p.Len()}}
	start := e.now()
	r.emit(Event{Kind: EventStarted})

	err := r.execute(ctx, p)
	if err == nil && len(r.failures) > 0 {
		err = errors.Join(r.failures...)
	}
	r.sum.Elapsed = e.now().Sub(start)
	sum := r.sum
	r.emit(Event{Kind: EventFinished, Err: err, Summary: &sum})
	return sum, err
}

func (r *run) execute(ctx context.Context, p plan.RunPlan) error {
	if err := r.Shield.Check(ctx); err != nil {
		return err
	}
	for _, entry := range p {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// runEntry installs one toolchain and measures its benchmarks.
func (r *run) runEntry(ctx context.Context, entry plan.Entry) (err error) {
	tc := entry.Toolchain
	log := r.logger().With("toolchain", tc.String())

	pending := 0
	for _, b := range entry.Benchmarks {
		if r.Store.Pending(collector.Key{Toolchain: tc, Benchmark: b.Name}) {
			pending++
		}
	}
	if pending == 0 {
		log.Info("nothing to measure, skipping install", "benchmarks", len(entry.Benchmarks))
		for _, b := range entry.Benchmarks {
			r.skip(tc, b.Name)
		}
		return nil
	}

	r.emit(Event{Kind: EventInstalling, Toolchain: tc})
	if err := r.Installer.Install(ctx, tc); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.emit(Event{Kind: EventInstallFailed, Toolchain: tc, Err: err})
		log.Error("install failed, aborting remaining plan", "error", err)
		return err
	}
	r.sum.Installed++
	r.emit(Event{Kind: EventInstalled, Toolchain: tc})
	log.Info("toolchain ready", "pending", pending)

	var batch shield.Reservation
	if r.Policy.ShieldScope == ShieldPerToolchain {
		batch, err = r.Shield.Acquire(ctx)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, r.release(ctx, batch)) }()
	}

	for _, b := range entry.Benchmarks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runBenchmark(ctx, tc, b, batch); err != nil {
			return err
		}
	}
	return nil
}

// runBenchmark measures one slot. held is the toolchain-scoped reservation,
// or nil when the shield is taken per benchmark.
func (r *run) runBenchmark(ctx context.Context, tc toolchain.Toolchain, b bench.Benchmark, held shield.Reservation) (err error) {
	if !r.Store.Pending(collector.Key{Toolchain: tc, Benchmark: b.Name}) {
		r.skip(tc, b.Name)
		return nil
	}

	res := held
	if res == nil {
		res, err = r.Shield.Acquire(ctx)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, r.release(ctx, res)) }()
	}
	r.emit(Event{Kind: EventShielded, Toolchain: tc, Benchmark: b.Name})

	var result bench.Result
	outcome, runErr := r.Store.Run(ctx, tc, b, func(ctx context.Context) (bench.Result, error) {
		r.emit(Event{Kind: EventRunning, Toolchain: tc, Benchmark: b.Name})
		var err error
		result, err = r.Executor.Execute(ctx, bench.Invocation{Toolchain: tc, Benchmark: b, Wrap: res.Wrap})
		return result, err
	})

	switch outcome {
	case collector.OutcomeSkipped:
		r.skip(tc, b.Name)
		return nil
	case collector.OutcomeRecorded:
		r.done++
		r.sum.Recorded++
		r.emit(Event{Kind: EventRecorded, Toolchain: tc, Benchmark: b.Name, Result: &result})
		return nil
	}

	var ee *bench.ExecutionError
	if ctx.Err() != nil || !errors.As(runErr, &ee) {
		return runErr
	}
	r.done++
	r.sum.Failed++
	r.emit(Event{Kind: EventFailed, Toolchain: tc, Benchmark: b.Name, Err: runErr})
	if r.Policy.OnFailure == FailContinue {
		r.logger().Warn("benchmark failed, continuing", "toolchain", tc.String(), "benchmark", b.Name, "error", runErr)
		r.failures = append(r.failures, runErr)
		return nil
	}
	return runErr
}

func (r *run) skip(tc toolchain.Toolchain, name string) {
	r.done++
	r.sum.Skipped++
	r.emit(Event{Kind: EventSkipped, Toolchain: tc, Benchmark: name})
}

// release frees res even when ctx has been cancelled.
func (r *run) release(ctx context.Context, res shield.Reservation) error {
	if err := res.Release(context.WithoutCancel(ctx)); err != nil {
		r.logger().Error("shield release failed", "cpus", res.CPUs(), "error", err)
		return fmt.Errorf("release shield: %w", err)
	}
	return nil
}

func (r *run) emit(ev Event) {
	ev.Time = r.now()
	ev.Done = r.done
	ev.Total = r.sum.Slots
	if r.Observer != nil {
		r.Observer.Observe(ev)
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}
