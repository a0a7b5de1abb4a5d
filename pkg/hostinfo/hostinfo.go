// Package hostinfo captures a snapshot of the machine a run measures on. The
// snapshot is stored with every run so results from different hosts or
// kernels are never compared by accident.
package hostinfo

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot describes the host at the start of a run.
type Snapshot struct {
	Taken           time.Time `json:"taken"`
	Hostname        string    `json:"hostname,omitempty"`
	OS              string    `json:"os"`
	Platform        string    `json:"platform,omitempty"`
	PlatformVersion string    `json:"platform_version,omitempty"`
	KernelVersion   string    `json:"kernel_version,omitempty"`
	Arch            string    `json:"arch"`
	Virtualization  string    `json:"virtualization,omitempty"`
	Container       string    `json:"container,omitempty"`
	CPUModel        string    `json:"cpu_model,omitempty"`
	LogicalCPUs     int       `json:"logical_cpus,omitempty"`
	PhysicalCPUs    int       `json:"physical_cpus,omitempty"`
	MemTotalBytes   uint64    `json:"mem_total_bytes,omitempty"`
	MemAvailBytes   uint64    `json:"mem_available_bytes,omitempty"`
	Load1           float64   `json:"load1"`
	Load5           float64   `json:"load5"`
	Load15          float64   `json:"load15"`
	UptimeSeconds   uint64    `json:"uptime_seconds,omitempty"`
}

// Collect gathers the snapshot. If individual probes fail the method still
// returns as much data as possible; errors are aggregated.
func Collect(ctx context.Context) (*Snapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s := &Snapshot{
		Taken: time.Now().UTC(),
		OS:    runtime.GOOS,
		Arch:  runtime.GOARCH,
	}

	var errs []string
	for _, probe := range []struct {
		name string
		fn   func(context.Context, *Snapshot) error
	}{
		{"host", collectHost},
		{"cpu", collectCPU},
		{"memory", collectMemory},
		{"load", collectLoad},
		{"container", collectContainer},
	} {
		if err := probe.fn(ctx, s); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", probe.name, err))
		}
	}

	if len(errs) > 0 {
		return s, fmt.Errorf("hostinfo: partial errors: %s", strings.Join(errs, "; "))
	}
	return s, nil
}

func collectHost(ctx context.Context, s *Snapshot) error {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return err
	}
	s.Hostname = info.Hostname
	s.Platform = info.Platform
	s.PlatformVersion = info.PlatformVersion
	s.KernelVersion = info.KernelVersion
	s.UptimeSeconds = info.Uptime
	if info.KernelArch != "" {
		s.Arch = info.KernelArch
	}
	if info.VirtualizationRole == "guest" {
		s.Virtualization = info.VirtualizationSystem
	}
	return nil
}

func collectCPU(ctx context.Context, s *Snapshot) error {
	logical, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return err
	}
	s.LogicalCPUs = logical
	if physical, err := cpu.CountsWithContext(ctx, false); err == nil {
		s.PhysicalCPUs = physical
	}
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return err
	}
	if len(infos) > 0 {
		s.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	return nil
}

func collectMemory(ctx context.Context, s *Snapshot) error {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return err
	}
	s.MemTotalBytes = vm.Total
	s.MemAvailBytes = vm.Available
	return nil
}

func collectLoad(ctx context.Context, s *Snapshot) error {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return err
	}
	s.Load1, s.Load5, s.Load15 = avg.Load1, avg.Load5, avg.Load15
	return nil
}

// Busy reports whether the one-minute load average is above the number of
// logical CPUs times frac. A busy host makes measurements noisy.
func (s *Snapshot) Busy(frac float64) bool {
	if s == nil || s.LogicalCPUs == 0 {
		return false
	}
	return s.Load1 > float64(s.LogicalCPUs)*frac
}

// String returns a one-line description.
func (s *Snapshot) String() string {
	if s == nil {
		return "unknown host"
	}
	parts := []string{s.OS + "/" + s.Arch}
	if s.KernelVersion != "" {
		parts = append(parts, "kernel "+s.KernelVersion)
	}
	if s.Container != "" {
		parts = append(parts, "in "+s.Container)
	}
	if s.CPUModel != "" {
		parts = append(parts, s.CPUModel)
	}
	if s.LogicalCPUs > 0 {
		parts = append(parts, fmt.Sprintf("%d CPUs", s.LogicalCPUs))
	}
	if s.MemTotalBytes > 0 {
		parts = append(parts, fmt.Sprintf("%.1f GiB", float64(s.MemTotalBytes)/(1<<30)))
	}
	return strings.Join(parts, ", ")
}
