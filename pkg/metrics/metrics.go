// Package metrics exports run statistics in the Prometheus text format, for
// node_exporter's textfile collector or any scraper that reads files.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"gitlab.com/tinyland/lab/toolbench/pkg/engine"
)

// Metrics bundles the prometheus collectors fed by engine events.
type Metrics struct {
	registry *prometheus.Registry

	Installs          *prometheus.CounterVec
	Benchmarks        *prometheus.CounterVec
	BenchmarkDuration *prometheus.HistogramVec
	BenchmarkMaxRSS   *prometheus.GaugeVec
	SlotsTotal        prometheus.Gauge
	SlotsDone         prometheus.Gauge
	LastRunSuccess    prometheus.Gauge
	LastRunTimestamp  prometheus.Gauge
	LastRunDuration   prometheus.Gauge
}

// New creates the collectors and registers them with registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		Installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolbench_installs_total",
			Help: "Toolchain install attempts by result.",
		}, []string{"result"}),
		Benchmarks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolbench_benchmarks_total",
			Help: "Benchmark slots handled by outcome.",
		}, []string{"outcome"}),
		BenchmarkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toolbench_benchmark_duration_seconds",
			Help:    "Wall time of recorded benchmark executions.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"benchmark"}),
		BenchmarkMaxRSS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "toolbench_benchmark_max_rss_bytes",
			Help: "Peak resident set size of the last recorded execution.",
		}, []string{"toolchain", "benchmark"}),
		SlotsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolbench_plan_slots",
			Help: "Number of (toolchain, benchmark) slots in the current plan.",
		}),
		SlotsDone: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolbench_plan_slots_done",
			Help: "Slots recorded, skipped or failed so far.",
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolbench_last_run_success",
			Help: "1 if the last run completed without error.",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolbench_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		LastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolbench_last_run_duration_seconds",
			Help: "Duration of the last run.",
		}),
	}

	registry.MustRegister(
		m.Installs,
		m.Benchmarks,
		m.BenchmarkDuration,
		m.BenchmarkMaxRSS,
		m.SlotsTotal,
		m.SlotsDone,
		m.LastRunSuccess,
		m.LastRunTimestamp,
		m.LastRunDuration,
	)

	return m
}

// Observe implements engine.Observer.
func (m *Metrics) Observe(ev engine.Event) {
	m.SlotsTotal.Set(float64(ev.Total))
	m.SlotsDone.Set(float64(ev.Done))

	switch ev.Kind {
	case engine.EventInstalled:
		m.Installs.WithLabelValues("ok").Inc()
	case engine.EventInstallFailed:
		m.Installs.WithLabelValues("error").Inc()
	case engine.EventSkipped:
		m.Benchmarks.WithLabelValues("skipped").Inc()
	case engine.EventFailed:
		m.Benchmarks.WithLabelValues("failed").Inc()
	case engine.EventRecorded:
		m.Benchmarks.WithLabelValues("recorded").Inc()
		if ev.Result != nil {
			m.BenchmarkDuration.WithLabelValues(ev.Benchmark).Observe(ev.Result.Wall.Seconds())
			if ev.Result.MaxRSSKB > 0 {
				m.BenchmarkMaxRSS.WithLabelValues(ev.Toolchain.String(), ev.Benchmark).Set(float64(ev.Result.MaxRSSKB) * 1024)
			}
		}
	case engine.EventFinished:
		success := 0.0
		if ev.Err == nil {
			success = 1
		}
		m.LastRunSuccess.Set(success)
		m.LastRunTimestamp.Set(float64(ev.Time.Unix()))
		if ev.Summary != nil {
			m.LastRunDuration.Set(ev.Summary.Elapsed.Seconds())
		}
	}
}

// WriteFile writes the registry to path atomically in the text exposition
// format.
func (m *Metrics) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
