package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"gitlab.com/tinyland/lab/toolbench/pkg/bench"
	"gitlab.com/tinyland/lab/toolbench/pkg/collector"
	"gitlab.com/tinyland/lab/toolbench/pkg/engine"
	"gitlab.com/tinyland/lab/toolbench/pkg/hostinfo"
	"gitlab.com/tinyland/lab/toolbench/pkg/install"
	"gitlab.com/tinyland/lab/toolbench/pkg/metrics"
	"gitlab.com/tinyland/lab/toolbench/pkg/plan"
	"gitlab.com/tinyland/lab/toolbench/pkg/progress"
	"gitlab.com/tinyland/lab/toolbench/pkg/report"
	"gitlab.com/tinyland/lab/toolbench/pkg/runstate"
	"gitlab.com/tinyland/lab/toolbench/pkg/shield"
)

const (
	statusFile = "status.json"
	logFile    = "toolbench.log"
)

func runMeasure(args []string, stdout, stderr io.Writer) error {
	var (
		common      commonFlags
		fs          = newFlagSet("measure", stderr)
		keepGoing   = fs.Bool("keep-going", false, "Record benchmark failures and continue with the plan")
		force       = fs.Bool("force", false, "Re-run slots recorded by earlier runs")
		shieldScope = fs.String("shield-scope", "", "Hold the CPU shield per benchmark or per toolchain (default from config)")
		metricsFile = fs.String("metrics-file", "", "Write Prometheus text-format metrics here when the run ends")
		useTUI      = fs.Bool("tui", false, "Show a live progress view (requires a terminal)")
		verbose     = fs.Bool("verbose", false, "Enable verbose logging and stream benchmark output")
	)
	common.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	// The toolchain selection is checked before anything is read from disk.
	opts, err := plan.NewBenchOpts(common.sel, time.Now().UTC())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(common.configPath)
	if err != nil {
		return err
	}
	reg, err := common.resolve(cfg)
	if err != nil {
		return err
	}
	if common.dataDir == "" {
		return configError("--data-dir is required")
	}
	p, err := plan.PlanBenchmarks(opts, reg)
	if err != nil {
		return err
	}

	policy := engine.Policy{
		OnFailure:   engine.FailurePolicy(cfg.Run.OnFailure),
		ShieldScope: engine.ShieldScope(cfg.Shield.Scope),
	}
	if *keepGoing {
		policy.OnFailure = engine.FailContinue
	}
	if *shieldScope != "" {
		policy.ShieldScope = engine.ShieldScope(*shieldScope)
	}
	if err := policy.Validate(); err != nil {
		return configError("%v", err)
	}
	if *metricsFile == "" {
		*metricsFile = cfg.Metrics.File
	}

	tui := *useTUI && report.IsTerminal(os.Stdout)
	if err := os.MkdirAll(common.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Logs go to a file while the progress view owns the terminal.
	level := parseLevel(cfg.General.LogLevel)
	if *verbose {
		level = slog.LevelDebug
	}
	logOut := stderr
	if tui {
		f, err := os.OpenFile(filepath.Join(common.dataDir, logFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl, err := shield.New(opts.Shield, shield.Config{Cset: cfg.Shield.Cset}, logger.With("component", "shield"))
	if err != nil {
		return err
	}
	if opts.Shield == nil && common.sel.MoveKthreads {
		logger.Warn("--move-kthreads has no effect without --cpus")
	}

	runID := uuid.NewString()
	store, err := collector.Rehydrate(common.dataDir, collector.Options{
		Force:       *force,
		RetryFailed: common.retry,
		RunID:       runID,
		Logger:      logger.With("component", "collector"),
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("close result store", "error", cerr)
		}
	}()

	host, err := hostinfo.Collect(ctx)
	if err != nil {
		logger.Warn("host snapshot incomplete", "error", err)
	}
	if opts.Shield != nil && host != nil && host.Container != "" {
		logger.Warn("shielding CPUs from inside a container", "container", host.Container)
	}
	if host.Busy(0.5) {
		logger.Warn("host is busy, measurements may be noisy", "load1", host.Load1, "cpus", host.LogicalCPUs)
	}
	manifest := &runstate.RunManifest{
		RunID:      runID,
		Version:    version,
		Started:    time.Now().UTC(),
		Args:       append([]string{"measure"}, args...),
		Toolchains: opts.Toolchains.String(),
		Runner:     common.sel.Runner,
		CPUs:       common.sel.CPUs,
		Slots:      p.Len(),
		Host:       host,
	}
	if err := runstate.WriteRunManifest(common.dataDir, manifest); err != nil {
		return err
	}
	logger.Info("starting run", "run_id", runID, "toolchains", manifest.Toolchains,
		"slots", p.Len(), "recorded", store.Len(), "host", host.String())

	events := &engine.Recorder{}
	observers := engine.Observers{
		events,
		engine.NewStatusFile(filepath.Join(common.dataDir, statusFile), runID, logger),
	}
	var m *metrics.Metrics
	if *metricsFile != "" {
		m = metrics.New(prometheus.NewRegistry())
		observers = append(observers, m)
	}
	var view *progress.View
	if tui {
		report.SetupColor(os.Stdout)
		view = progress.Start(os.Stdin, stdout, cfg.Run.ProgressInterval.Duration, stop)
		observers = append(observers, view)
	}

	executor := &bench.Local{
		ToolchainEnv: cfg.Run.ToolchainEnv,
		OutputLimit:  cfg.Run.OutputLimit,
		Logger:       logger.With("component", "bench"),
	}
	if *verbose && !tui {
		executor.Stream = stderr
	}

	eng := &engine.Engine{
		Installer: install.NewRustup(install.Config{
			Rustup:     cfg.Install.Rustup,
			Profile:    cfg.Install.Profile,
			Components: cfg.Install.Components,
		}, nil, logger.With("component", "install")),
		Shield:   ctrl,
		Store:    store,
		Executor: executor,
		Policy:   policy,
		Logger:   logger,
		Observer: observers,
	}
	sum, runErr := eng.Run(ctx, p)

	if view != nil {
		if err := view.Stop(); err != nil {
			logger.Warn("progress view", "error", err)
		}
	}

	manifest.Finished = time.Now().UTC()
	manifest.Outcome = outcome(runErr)
	if err := runstate.WriteRunManifest(common.dataDir, manifest); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if m != nil {
		if err := m.WriteFile(*metricsFile); err != nil {
			logger.Error("write metrics", "path", *metricsFile, "error", err)
		}
	}

	report.SetupColor(os.Stdout)
	if err := report.WriteSummary(stdout, sum, runErr); err != nil {
		logger.Warn("write summary", "error", err)
	}
	if err := report.WriteFailures(stdout, events.Events()); err != nil {
		logger.Warn("write failures", "error", err)
	}
	logger.Info("run finished", "run_id", runID, "outcome", manifest.Outcome, "elapsed", sum.Elapsed)
	return runErr
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	if stage, _ := classify(err); stage != "error" {
		return stage + " failed"
	}
	return "failed"
}
