package main

import (
	"io"
	"time"

	"gitlab.com/tinyland/lab/toolbench/pkg/collector"
	"gitlab.com/tinyland/lab/toolbench/pkg/plan"
	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

// runPlan prints the plan measure would execute. With --data-dir, slots the
// store already holds are marked done; the store is opened read-only, so this
// is safe next to a running measure.
func runPlan(args []string, stdout, stderr io.Writer) error {
	var (
		common commonFlags
		fs     = newFlagSet("plan", stderr)
		format = fs.String("format", "text", "Output format: text or yaml")
	)
	common.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *format != "text" && *format != "yaml" {
		return configError("unknown format %q (want text or yaml)", *format)
	}

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
	p, err := plan.PlanBenchmarks(opts, reg)
	if err != nil {
		return err
	}

	var done plan.DoneFunc
	if common.dataDir != "" {
		store, err := collector.Rehydrate(common.dataDir, collector.Options{
			ReadOnly:    true,
			RetryFailed: common.retry,
		})
		if err != nil {
			return err
		}
		defer store.Close()
		done = func(tc toolchain.Toolchain, benchmark string) bool {
			return !store.Pending(collector.Key{Toolchain: tc, Benchmark: benchmark})
		}
	}

	if *format == "yaml" {
		return p.WriteYAML(stdout, done)
	}
	return p.WriteText(stdout, done)
}
