package shield

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"

	"gitlab.com/tinyland/lab/toolbench/pkg/hostexec"
)

// Config controls the cset-backed controller.
type Config struct {
	// Cset is the cset binary. Default: "cset".
	Cset string

	// Runner runs cset. Default: the local host.
	Runner hostexec.Runner

	// Host answers topology and privilege questions. Default: the local host.
	Host Host

	// LookPath resolves Cset. Default: hostexec.LookPath.
	LookPath func(string) (string, error)
}

// Host describes the CPUs this process can reserve.
type Host interface {
	// LogicalCPUs returns the number of logical CPUs on the machine.
	LogicalCPUs(ctx context.Context) (int, error)

	// Schedulable returns the CPU IDs this process may run on.
	Schedulable() ([]int, error)

	// Privileged reports whether the process may reconfigure cpusets.
	Privileged() bool
}

// localHost probes the running machine.
type localHost struct{}

func (localHost) LogicalCPUs(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, true)
}

func (localHost) Schedulable() ([]int, error) { return schedulableCPUs() }

func (localHost) Privileged() bool { return privileged() }

// Cset shields CPUs with the cpuset "cset shield" tool. While a shield is
// active, ordinary tasks are confined to the unshielded CPUs and benchmark
// processes are started inside the shield with "cset shield --exec".
type Cset struct {
	spec   Spec
	cpus   []int
	mask   string
	cfg    Config
	logger *slog.Logger
}

// NewCset validates the pattern of spec and returns a controller for it.
func NewCset(spec Spec, cfg Config, logger *slog.Logger) (*Cset, error) {
	cpus, err := ParseCPUList(spec.CPUMask)
	if err != nil {
		return nil, &UnavailableError{Mask: spec.CPUMask, Reason: "invalid CPU pattern", Err: err}
	}
	if cfg.Cset == "" {
		cfg.Cset = "cset"
	}
	if cfg.Runner == nil {
		cfg.Runner = &hostexec.Local{}
	}
	if cfg.Host == nil {
		cfg.Host = localHost{}
	}
	if cfg.LookPath == nil {
		cfg.LookPath = hostexec.LookPath
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cset{
		spec:   spec,
		cpus:   cpus,
		mask:   FormatCPUList(cpus),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// CPUs returns the parsed CPU IDs.
func (c *Cset) CPUs() []int { return slices.Clone(c.cpus) }

// Check implements Controller.
func (c *Cset) Check(ctx context.Context) error {
	n, err := c.cfg.Host.LogicalCPUs(ctx)
	if err != nil {
		return c.unavailable("cannot count host CPUs", err)
	}
	for _, id := range c.cpus {
		if id >= n {
			return c.unavailable(fmt.Sprintf("CPU %d does not exist (host has %d)", id, n), nil)
		}
	}
	allowed, err := c.cfg.Host.Schedulable()
	if err != nil {
		return c.unavailable("cannot read CPU affinity", err)
	}
	for _, id := range c.cpus {
		if !slices.Contains(allowed, id) {
			return c.unavailable(fmt.Sprintf("CPU %d is offline or outside this process's affinity", id), nil)
		}
	}
	if len(c.cpus) >= len(allowed) {
		return c.unavailable("shield would leave no CPU for the rest of the system", nil)
	}
	if !c.cfg.Host.Privileged() {
		return c.unavailable("shielding requires root", nil)
	}
	if _, err := c.cfg.LookPath(c.cfg.Cset); err != nil {
		return c.unavailable("cset not found", err)
	}
	return nil
}

// Acquire implements Controller.
func (c *Cset) Acquire(ctx context.Context) (Reservation, error) {
	if err := c.Check(ctx); err != nil {
		return nil, err
	}
	if _, err := c.cfg.Runner.Run(ctx, c.cfg.Cset, "shield", "--cpu="+c.mask); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A partially applied shield must not outlive the failure.
		c.reset(context.WithoutCancel(ctx))
		return nil, c.unavailable("cset shield failed", err)
	}
	if c.spec.KthreadOn {
		if _, err := c.cfg.Runner.Run(ctx, c.cfg.Cset, "shield", "--kthread=on"); err != nil {
			c.logger.Warn("could not move kernel threads off shielded CPUs", "cpus", c.mask, "error", err)
		}
	}
	c.logger.Debug("CPU shield acquired", "cpus", c.mask, "kthreads", c.spec.KthreadOn)
	return &csetReservation{ctl: c}, nil
}

func (c *Cset) reset(ctx context.Context) error {
	_, err := c.cfg.Runner.Run(ctx, c.cfg.Cset, "shield", "--reset")
	return err
}

func (c *Cset) unavailable(reason string, err error) error {
	return &UnavailableError{Mask: c.spec.CPUMask, Reason: reason, Err: err}
}

type csetReservation struct {
	ctl  *Cset
	once sync.Once
	err  error
}

func (r *csetReservation) CPUs() []int { return r.ctl.CPUs() }

func (r *csetReservation) Wrap(argv []string) []string {
	out := []string{r.ctl.cfg.Cset, "shield", "--exec", "--"}
	return append(out, argv...)
}

func (r *csetReservation) Release(ctx context.Context) error {
	r.once.Do(func() {
		r.err = r.ctl.reset(ctx)
		if r.err != nil {
			r.err = fmt.Errorf("release CPU shield %s: %w", r.ctl.mask, r.err)
			return
		}
		r.ctl.logger.Debug("CPU shield released", "cpus", r.ctl.mask)
	})
	return r.err
}
