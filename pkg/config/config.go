// Package config provides TOML-based configuration for toolbench.
//
// Command-line flags take precedence over the values loaded here; the file
// holds the settings that rarely change between runs on one machine.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration.
type Config struct {
	General GeneralConfig `toml:"general"`
	Install InstallConfig `toml:"install"`
	Shield  ShieldConfig  `toml:"shield"`
	Run     RunConfig     `toml:"run"`
	Metrics MetricsConfig `toml:"metrics"`
}

// GeneralConfig holds paths and logging.
type GeneralConfig struct {
	// DataDir is used when --data-dir is not given.
	DataDir string `toml:"data_dir"`

	// Manifest is the benchmark manifest (TOML or YAML).
	Manifest string `toml:"manifest"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// InstallConfig configures the rustup installer.
type InstallConfig struct {
	Rustup     string   `toml:"rustup"`
	Profile    string   `toml:"profile"`
	Components []string `toml:"components"`
}

// ShieldConfig configures CPU shielding.
type ShieldConfig struct {
	// Cset is the cset binary.
	Cset string `toml:"cset"`

	// Scope is "benchmark" or "toolchain".
	Scope string `toml:"scope"`
}

// RunConfig configures benchmark execution.
type RunConfig struct {
	// OnFailure is "abort" or "continue".
	OnFailure string `toml:"on_failure"`

	// RetryFailed re-measures keys whose stored record is a failure. Off by
	// default: a stored record of either kind is final unless asked otherwise.
	RetryFailed bool `toml:"retry_failed"`

	// ToolchainEnv is the variable that selects the toolchain in the
	// benchmark's environment.
	ToolchainEnv string `toml:"toolchain_env"`

	// OutputLimit bounds the output tail stored with each record, in bytes.
	OutputLimit int `toml:"output_limit"`

	// ProgressInterval is the refresh rate of the live progress view.
	ProgressInterval Duration `toml:"progress_interval"`
}

// MetricsConfig configures the Prometheus textfile written after a run.
type MetricsConfig struct {
	// File is written when non-empty, e.g. a node_exporter textfile path.
	File string `toml:"file"`
}

// Validate reports configuration values that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("general.log_level: unknown level %q", c.General.LogLevel))
	}
	if c.General.Manifest == "" {
		errs = append(errs, errors.New("general.manifest: must not be empty"))
	}
	switch c.Shield.Scope {
	case "benchmark", "toolchain":
	default:
		errs = append(errs, fmt.Errorf("shield.scope: want benchmark or toolchain, got %q", c.Shield.Scope))
	}
	switch c.Run.OnFailure {
	case "abort", "continue":
	default:
		errs = append(errs, fmt.Errorf("run.on_failure: want abort or continue, got %q", c.Run.OnFailure))
	}
	if c.Install.Profile == "" {
		errs = append(errs, errors.New("install.profile: must not be empty"))
	}
	if c.Run.OutputLimit < 0 {
		errs = append(errs, fmt.Errorf("run.output_limit: negative limit %d", c.Run.OutputLimit))
	}
	if c.Run.ProgressInterval.Duration > 0 && c.Run.ProgressInterval.Duration < 10*time.Millisecond {
		errs = append(errs, fmt.Errorf("run.progress_interval: %s is too short", c.Run.ProgressInterval))
	}
	return errors.Join(errs...)
}
