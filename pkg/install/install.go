// Package install makes toolchains available on the local host before they
// are benchmarked. Installs are idempotent: a toolchain that is already
// present is detected with a local check and never downloaded again.
package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gitlab.com/tinyland/lab/toolbench/pkg/hostexec"
	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

// Installer ensures a toolchain is installed and runnable.
type Installer interface {
	Install(ctx context.Context, tc toolchain.Toolchain) error
}

// Error reports a toolchain that could not be installed. Missing is set when
// the toolchain does not exist upstream, e.g. a nightly that was never
// published.
type Error struct {
	Toolchain toolchain.Toolchain
	Missing   bool
	Err       error
}

func (e *Error) Error() string {
	if e.Missing {
		return fmt.Sprintf("toolchain %s is not available upstream: %v", e.Toolchain, e.Err)
	}
	return fmt.Sprintf("install toolchain %s: %v", e.Toolchain, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config controls the rustup-backed installer.
type Config struct {
	// Rustup is the rustup binary. Default: "rustup".
	Rustup string

	// Profile is the rustup install profile. Default: "minimal".
	Profile string

	// Components are extra components installed with every toolchain.
	Components []string
}

// Rustup installs toolchains with rustup.
type Rustup struct {
	cfg    Config
	run    hostexec.Runner
	logger *slog.Logger

	mu       sync.Mutex
	verified map[string]bool
}

// NewRustup returns a rustup-backed Installer. A nil runner uses the local
// host; a nil logger discards output.
func NewRustup(cfg Config, run hostexec.Runner, logger *slog.Logger) *Rustup {
	if cfg.Rustup == "" {
		cfg.Rustup = "rustup"
	}
	if cfg.Profile == "" {
		cfg.Profile = "minimal"
	}
	if run == nil {
		run = &hostexec.Local{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Rustup{
		cfg:      cfg,
		run:      run,
		logger:   logger,
		verified: make(map[string]bool),
	}
}

// Install implements Installer.
func (r *Rustup) Install(ctx context.Context, tc toolchain.Toolchain) error {
	if tc.IsZero() {
		return &Error{Toolchain: tc, Err: errors.New("empty toolchain")}
	}
	name := tc.String()

	r.mu.Lock()
	done := r.verified[name]
	r.mu.Unlock()
	if done {
		return nil
	}

	present, err := r.present(ctx, name)
	if err != nil {
		return &Error{Toolchain: tc, Err: err}
	}
	if present {
		r.logger.Debug("toolchain already installed", "toolchain", name)
		r.markVerified(name)
		return nil
	}

	r.logger.Info("installing toolchain", "toolchain", name, "profile", r.cfg.Profile)
	args := []string{"toolchain", "install", name, "--profile", r.cfg.Profile, "--no-self-update"}
	for _, c := range r.cfg.Components {
		args = append(args, "--component", c)
	}
	if _, err := r.run.Run(ctx, r.cfg.Rustup, args...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Toolchain: tc, Missing: isMissing(err), Err: err}
	}
	r.markVerified(name)
	return nil
}

func (r *Rustup) markVerified(name string) {
	r.mu.Lock()
	r.verified[name] = true
	r.mu.Unlock()
}

// present reports whether rustup lists name among its installed toolchains.
func (r *Rustup) present(ctx context.Context, name string) (bool, error) {
	out, err := r.run.Run(ctx, r.cfg.Rustup, "toolchain", "list")
	if err != nil {
		return false, fmt.Errorf("list installed toolchains: %w", err)
	}
	return listed(out, name), nil
}

// listed matches rustup's "toolchain list" output, whose entries carry the
// host triple and optional markers, e.g.
//
//	stable-x86_64-unknown-linux-gnu (default)
//	nightly-2024-01-01-x86_64-unknown-linux-gnu
func listed(out, name string) bool {
	for line := range strings.Lines(out) {
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		entry := f[0]
		if entry == name || strings.HasPrefix(entry, name+"-") && !isDatedSuffix(entry[len(name)+1:]) {
			return true
		}
	}
	return false
}

// isDatedSuffix reports whether s starts with a YYYY-MM-DD date, so that
// "nightly" does not match "nightly-2024-01-01-<host>".
func isDatedSuffix(s string) bool {
	if len(s) < len(toolchain.DateLayout) {
		return false
	}
	_, err := toolchain.ParseDate(s[:len(toolchain.DateLayout)])
	return err == nil
}

// missingMarkers are fragments of rustup diagnostics for toolchains that do
// not exist upstream.
var missingMarkers = []string{
	"no release found",
	"not a valid toolchain",
	"invalid toolchain name",
	"could not download nonexistent",
	"toolchain not found",
	"404",
}

func isMissing(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range missingMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
