package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const appName = "toolbench"

// Load reads configuration. An explicit path must exist; otherwise the
// search order is:
//  1. $XDG_CONFIG_HOME/toolbench/config.toml
//  2. ~/.config/toolbench/config.toml
//
// If no file exists, returns DefaultConfig() with environment overrides.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return LoadFromFile(p)
		}
	}
	cfg := DefaultConfig()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader reads configuration from an io.Reader. Unknown keys are
// rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored. With no arguments it reads ./.env.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			Manifest: "benchmarks.toml",
			LogLevel: "info",
		},
		Install: InstallConfig{
			Rustup:  "rustup",
			Profile: "minimal",
		},
		Shield: ShieldConfig{
			Cset:  "cset",
			Scope: "benchmark",
		},
		Run: RunConfig{
			OnFailure:        "abort",
			ToolchainEnv:     "RUSTUP_TOOLCHAIN",
			OutputLimit:      16 << 10,
			ProgressInterval: Duration{250 * time.Millisecond},
		},
	}
}

// applyEnvOverrides checks TOOLBENCH_* environment variables and overrides
// config values.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"TOOLBENCH_DATA_DIR":     &cfg.General.DataDir,
		"TOOLBENCH_MANIFEST":     &cfg.General.Manifest,
		"TOOLBENCH_LOG_LEVEL":    &cfg.General.LogLevel,
		"TOOLBENCH_RUSTUP":       &cfg.Install.Rustup,
		"TOOLBENCH_PROFILE":      &cfg.Install.Profile,
		"TOOLBENCH_CSET":         &cfg.Shield.Cset,
		"TOOLBENCH_SHIELD_SCOPE": &cfg.Shield.Scope,
		"TOOLBENCH_ON_FAILURE":   &cfg.Run.OnFailure,
		"TOOLBENCH_METRICS_FILE": &cfg.Metrics.File,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("TOOLBENCH_RETRY_FAILED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TOOLBENCH_RETRY_FAILED: %w", err)
		}
		cfg.Run.RetryFailed = b
	}
	if v := os.Getenv("TOOLBENCH_COMPONENTS"); v != "" {
		cfg.Install.Components = strings.Split(v, ",")
	}
	return nil
}

// configSearchPaths returns the ordered list of config file paths to try.
func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	var paths []string

	xdg := xdgConfigHome(home)
	paths = append(paths, filepath.Join(xdg, appName, "config.toml"))

	// If XDG_CONFIG_HOME was explicitly set, also try the fallback default.
	defaultXDG := filepath.Join(home, ".config")
	if xdg != defaultXDG {
		paths = append(paths, filepath.Join(defaultXDG, appName, "config.toml"))
	}

	return paths
}

// xdgConfigHome returns XDG_CONFIG_HOME or ~/.config as fallback.
func xdgConfigHome(home string) string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".config")
}
