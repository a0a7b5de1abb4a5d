// Package shield reserves CPUs for exclusive use by benchmark processes.
//
// A Controller turns a Spec into Reservations. The engine acquires a
// reservation before running a benchmark and releases it on every exit path;
// a nil Spec yields a controller whose reservations do nothing, which is how
// unshielded runs are expressed.
package shield

import (
	"context"
	"fmt"
	"log/slog"
)

// Spec is a CPU isolation request.
type Spec struct {
	// CPUMask is a pattern of CPU IDs and ranges, e.g. "0-2,4".
	CPUMask string

	// KthreadOn asks the host to move movable kernel threads off the
	// shielded CPUs. Best effort.
	KthreadOn bool
}

// UnavailableError reports that a requested shield cannot be provided. It is
// fatal to the run: benchmarking without the requested isolation would
// silently invalidate the measurements.
type UnavailableError struct {
	Mask   string
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("cannot shield CPUs %q: %s", e.Mask, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Controller hands out CPU reservations.
type Controller interface {
	// Check validates that reservations can be made, without making one.
	Check(ctx context.Context) error

	// Acquire reserves the CPUs. The caller must Release the reservation.
	Acquire(ctx context.Context) (Reservation, error)
}

// Reservation is an active CPU shield.
type Reservation interface {
	// CPUs returns the reserved CPU IDs; empty when unshielded.
	CPUs() []int

	// Wrap returns the command line that runs argv inside the shield.
	Wrap(argv []string) []string

	// Release frees the CPUs. It is safe to call more than once.
	Release(ctx context.Context) error
}

// New returns the controller for spec. A nil spec disables shielding.
func New(spec *Spec, cfg Config, logger *slog.Logger) (Controller, error) {
	if spec == nil {
		return Noop{}, nil
	}
	return NewCset(*spec, cfg, logger)
}

// Noop is the controller used when no isolation is requested.
type Noop struct{}

func (Noop) Check(context.Context) error { return nil }

func (Noop) Acquire(context.Context) (Reservation, error) { return noopReservation{}, nil }

type noopReservation struct{}

func (noopReservation) CPUs() []int                 { return nil }
func (noopReservation) Wrap(argv []string) []string { return argv }
func (noopReservation) Release(context.Context) error {
	return nil
}
