package main

import (
	"errors"
	"flag"
	"io"
	"log/slog"
	"strings"

	"gitlab.com/tinyland/lab/toolbench/pkg/bench"
	"gitlab.com/tinyland/lab/toolbench/pkg/config"
	"gitlab.com/tinyland/lab/toolbench/pkg/plan"
)

// commonFlags are shared by measure and plan.
type commonFlags struct {
	configPath string
	dataDir    string
	manifest   string
	retry      bool
	sel        plan.Selection
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to configuration file (default: $XDG_CONFIG_HOME/toolbench/config.toml)")
	fs.StringVar(&c.dataDir, "data-dir", "", "Directory holding the result store")
	fs.StringVar(&c.manifest, "manifest", "", "Benchmark manifest, TOML or YAML (default from config)")
	fs.BoolVar(&c.retry, "retry-failed", false, "Re-run slots whose stored record is a failure (default from config)")
	fs.StringVar(&c.sel.SingleToolchain, "single-toolchain", "", "Benchmark exactly one toolchain, e.g. stable")
	fs.StringVar(&c.sel.NightliesSince, "nightlies-since", "", "Benchmark every nightly from this date (YYYY-MM-DD) through today")
	fs.StringVar(&c.sel.Runner, "runner", "", "Only run benchmarks with this runner tag")
	fs.StringVar(&c.sel.CPUs, "cpus", "", "Shield these CPUs for benchmarks, e.g. 2-3")
	fs.BoolVar(&c.sel.MoveKthreads, "move-kthreads", false, "Move kernel threads off the shielded CPUs (requires --cpus)")
}

// parseFlags parses args into fs. Flag errors are config errors; -h yields
// errHelp so the caller can exit cleanly.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return configError("%v", err)
	}
	if fs.NArg() > 0 {
		return configError("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

var errHelp = errors.New("help requested")

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("toolbench "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// loadConfig reads .env, then the config file, and validates the result.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, configError("%v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, configError("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, configError("invalid config: %v", err)
	}
	return cfg, nil
}

// resolve fills flag defaults from cfg and loads the benchmark registry.
func (c *commonFlags) resolve(cfg *config.Config) (*bench.Registry, error) {
	if c.dataDir == "" {
		c.dataDir = cfg.General.DataDir
	}
	if c.manifest == "" {
		c.manifest = cfg.General.Manifest
	}
	c.retry = c.retry || cfg.Run.RetryFailed
	reg, err := bench.LoadManifest(c.manifest)
	if err != nil {
		return nil, configError("benchmark manifest: %v", err)
	}
	return reg, nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
