// Package collector is the persistent, append-only store of benchmark
// outcomes. A Collector is rebuilt from its data directory on start
// (Rehydrate) and uses the resulting key index to skip measurements that are
// already on disk, which is what makes an interrupted run resumable.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/toolbench/pkg/bench"
	"gitlab.com/tinyland/lab/toolbench/pkg/runstate"
	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

// LockFile is the name of the single-writer lock inside the data directory.
const LockFile = "toolbench.lock"

// CorruptError reports persisted data that cannot be loaded. It is never
// repaired automatically.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt store entry %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// WriteError reports a record that could not be persisted. When the record
// was a failure, Cause holds the benchmark error for display only: WriteError
// does not unwrap to it, so a store fault is never mistaken for a benchmark
// failure.
type WriteError struct {
	Key   Key
	Cause error
	Err   error
}

func (e *WriteError) Error() string {
	msg := fmt.Sprintf("persist record %s: %v", e.Key, e.Err)
	if e.Cause != nil {
		msg += " (after: " + e.Cause.Error() + ")"
	}
	return msg
}

func (e *WriteError) Unwrap() error { return e.Err }

// Options configures a Collector.
type Options struct {
	// ReadOnly opens the store without taking the lock. Run is rejected.
	ReadOnly bool

	// Force re-measures keys recorded by earlier runs.
	Force bool

	// RetryFailed re-measures keys whose record is a failure.
	RetryFailed bool

	// RunID is stamped on every record written.
	RunID string

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Outcome describes what Run did.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeRecorded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRecorded:
		return "recorded"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ExecFunc performs the measurement for one key.
type ExecFunc func(ctx context.Context) (bench.Result, error)

// Collector owns the record store under a data directory.
type Collector struct {
	dir    string
	opts   Options
	logger *slog.Logger
	lock   *runstate.Lock // nil when read-only

	mu     sync.RWMutex
	index  map[Key]*Record
	closed bool
}

// Rehydrate opens the store rooted at dir, creating it if absent, and
// rebuilds the key index from the records on disk. Unless opts.ReadOnly is
// set the data directory lock is held until Close.
func Rehydrate(dir string, opts Options) (*Collector, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Collector{
		dir:    dir,
		opts:   opts,
		logger: opts.Logger,
		index:  make(map[Key]*Record),
	}

	if !opts.ReadOnly {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		lock, err := runstate.AcquireLock(filepath.Join(dir, LockFile))
		if err != nil {
			return nil, fmt.Errorf("lock data directory: %w", err)
		}
		c.lock = lock
	}

	if err := c.load(); err != nil {
		_ = c.lock.Release()
		return nil, err
	}
	c.logger.Info("store rehydrated", "dir", dir, "records", len(c.index))
	return c, nil
}

// Dir returns the data directory.
func (c *Collector) Dir() string { return c.dir }

// Has reports whether a record exists for k, successful or not.
func (c *Collector) Has(k Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[k]
	return ok
}

// Get returns a copy of the record for k.
func (c *Collector) Get(k Key) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.index[k]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Keys returns every recorded key, sorted.
func (c *Collector) Keys() []Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]Key, 0, len(c.index))
	for k := range c.index {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return keys
}

// Records returns copies of every record in key order.
func (c *Collector) Records() []Record {
	keys := c.Keys()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		if rec, ok := c.index[k]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

// Len returns the number of records.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}

// Pending reports whether Run would execute the benchmark for k.
func (c *Collector) Pending(k Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.needsRunLocked(k)
}

func (c *Collector) needsRunLocked(k Key) bool {
	rec, ok := c.index[k]
	if !ok {
		return true
	}
	if c.opts.Force && (c.opts.RunID == "" || rec.RunID != c.opts.RunID) {
		return true
	}
	return rec.Status == StatusFailure && c.opts.RetryFailed
}

// Run measures benchmark b under tc unless the store already holds its
// outcome. A successful measurement is on disk before Run returns. When exec
// fails with a *bench.ExecutionError a failure record is written and the
// error is returned; if that write fails, only the *WriteError is returned.
// A cancelled context records nothing.
func (c *Collector) Run(ctx context.Context, tc toolchain.Toolchain, b bench.Benchmark, exec ExecFunc) (Outcome, error) {
	if c.opts.ReadOnly {
		return OutcomeFailed, errors.New("collector is read-only")
	}
	key := Key{Toolchain: tc, Benchmark: b.Name}

	c.mu.RLock()
	closed, pending := c.closed, c.needsRunLocked(key)
	c.mu.RUnlock()
	if closed {
		return OutcomeFailed, errors.New("collector is closed")
	}
	if !pending {
		c.logger.Debug("already recorded", "key", key.String())
		return OutcomeSkipped, nil
	}
	if err := ctx.Err(); err != nil {
		return OutcomeFailed, err
	}

	res, err := exec(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeFailed, err
		}
		var ee *bench.ExecutionError
		if !errors.As(err, &ee) {
			return OutcomeFailed, err
		}
		rec := c.newRecord(key, StatusFailure)
		rec.ExitCode = ee.ExitCode
		rec.Error = ee.Error()
		rec.Output = ee.Output
		if werr := c.commit(rec); werr != nil {
			werr.Cause = err
			return OutcomeFailed, werr
		}
		return OutcomeFailed, err
	}

	rec := c.newRecord(key, StatusSuccess)
	rec.Result = &res
	if err := c.commit(rec); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeRecorded, nil
}

func (c *Collector) newRecord(k Key, status Status) *Record {
	return &Record{
		Version:   RecordVersion,
		Toolchain: k.Toolchain,
		Benchmark: k.Benchmark,
		Status:    status,
		RunID:     c.opts.RunID,
		Recorded:  c.opts.Now().UTC(),
	}
}

func (c *Collector) commit(rec *Record) *WriteError {
	if err := c.writeRecord(rec); err != nil {
		return &WriteError{Key: rec.Key(), Err: err}
	}
	c.mu.Lock()
	c.index[rec.Key()] = rec
	c.mu.Unlock()
	c.logger.Debug("record written", "key", rec.Key().String(), "status", string(rec.Status))
	return nil
}

// Close releases the data directory lock. It is safe to call more than once.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.lock.Release()
}
