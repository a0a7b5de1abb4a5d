package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/toolbench/pkg/bench"
	"gitlab.com/tinyland/lab/toolbench/pkg/collector"
	"gitlab.com/tinyland/lab/toolbench/pkg/install"
	"gitlab.com/tinyland/lab/toolbench/pkg/runstate"
	"gitlab.com/tinyland/lab/toolbench/pkg/shield"
	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

const testManifest = `
[[benchmark]]
name = "json"
runner = "r1"
command = ["./json-bench"]

[[benchmark]]
name = "regex"
command = ["./regex-bench"]

[[benchmark]]
name = "sort"
runner = "r1"
command = ["./sort-bench"]
`

// isolate keeps the user's config and environment out of a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "TOOLBENCH_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
	manifest := filepath.Join(dir, "benchmarks.toml")
	if err := os.WriteFile(manifest, []byte(testManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return manifest
}

func runCmd(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestClassify(t *testing.T) {
	tc := toolchain.Named("nightly-2024-01-02")
	tests := []struct {
		name  string
		err   error
		stage string
		code  int
	}{
		{"config", &toolchain.ConfigError{Msg: "bad"}, "config", exitConfig},
		{"shield", &shield.UnavailableError{Mask: "9", Reason: "no such CPU"}, "shield", exitShield},
		{"install", fmt.Errorf("entry: %w", &install.Error{Toolchain: tc, Missing: true}), "install", exitInstall},
		{"benchmark", &bench.ExecutionError{Toolchain: tc, Benchmark: "json", ExitCode: 101}, "benchmark", exitBenchmark},
		{"joined benchmarks", errors.Join(
			&bench.ExecutionError{Toolchain: tc, Benchmark: "a"},
			&bench.ExecutionError{Toolchain: tc, Benchmark: "b"},
		), "benchmark", exitBenchmark},
		{"corrupt", &collector.CorruptError{Path: "x.json", Err: errors.New("eof")}, "store", exitStore},
		{"locked", &runstate.LockedError{Path: "toolbench.lock", PID: 1}, "store", exitStore},
		{"unwritable failure record", &collector.WriteError{
			Key:   collector.Key{Toolchain: tc, Benchmark: "json"},
			Cause: &bench.ExecutionError{Toolchain: tc, Benchmark: "json", ExitCode: 101},
			Err:   errors.New("read-only file system"),
		}, "store", exitStore},
		{"cancelled", context.Canceled, "error", exitOther},
		{"other", errors.New("boom"), "error", exitOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, code := classify(tt.err)
			if stage != tt.stage || code != tt.code {
				t.Errorf("classify = %s/%d, want %s/%d", stage, code, tt.stage, tt.code)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	for err, want := range map[error]string{
		nil:              "success",
		context.Canceled: "cancelled",
		&install.Error{Toolchain: toolchain.Named("stable")}: "install failed",
		errors.New("boom"): "failed",
	} {
		if got := outcome(err); got != want {
			t.Errorf("outcome(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestUsage(t *testing.T) {
	if code, _, stderr := runCmd(); code != exitConfig || !strings.Contains(stderr, "usage:") {
		t.Errorf("no args: code %d, stderr %q", code, stderr)
	}
	if code, _, stderr := runCmd("frobnicate"); code != exitConfig || !strings.Contains(stderr, `unknown command "frobnicate"`) {
		t.Errorf("unknown command: code %d, stderr %q", code, stderr)
	}
	if code, stdout, _ := runCmd("version"); code != exitOK || !strings.HasPrefix(stdout, "toolbench "+version) {
		t.Errorf("version: code %d, stdout %q", code, stdout)
	}
}

func TestMeasureSelectionErrors(t *testing.T) {
	manifest := isolate(t)
	dataDir := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"neither", []string{}},
		{"both", []string{"--single-toolchain", "stable", "--nightlies-since", "2024-01-01"}},
		{"bad date", []string{"--nightlies-since", "01/02/2024"}},
		{"future date", []string{"--nightlies-since", time.Now().AddDate(0, 0, 3).Format(time.DateOnly)}},
		{"bad flag", []string{"--single-toolchain", "stable", "--frobnicate"}},
		{"bad scope", []string{"--single-toolchain", "stable", "--shield-scope", "socket"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"measure", "--data-dir", dataDir, "--manifest", manifest}, tt.args...)
			code, _, stderr := runCmd(args...)
			if code != exitConfig {
				t.Errorf("code = %d, want %d; stderr %q", code, exitConfig, stderr)
			}
			if !strings.Contains(stderr, "toolbench: config:") {
				t.Errorf("stderr = %q", stderr)
			}
		})
	}
	if entries, _ := os.ReadDir(dataDir); len(entries) != 0 {
		t.Errorf("config errors touched the data directory: %v", entries)
	}
}

func TestMeasureRequiresDataDir(t *testing.T) {
	manifest := isolate(t)
	code, _, stderr := runCmd("measure", "--manifest", manifest, "--single-toolchain", "stable")
	if code != exitConfig || !strings.Contains(stderr, "--data-dir is required") {
		t.Errorf("code %d, stderr %q", code, stderr)
	}
}

func TestMeasureLockedStore(t *testing.T) {
	manifest := isolate(t)
	dataDir := t.TempDir()
	held, err := runstate.AcquireLock(filepath.Join(dataDir, collector.LockFile))
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()
	code, _, stderr := runCmd("measure", "--data-dir", dataDir, "--manifest", manifest, "--single-toolchain", "stable")
	if code != exitStore || !strings.Contains(stderr, "toolbench: store:") {
		t.Errorf("code %d, stderr %q", code, stderr)
	}
}

func TestPlanSingleToolchain(t *testing.T) {
	manifest := isolate(t)
	code, stdout, stderr := runCmd("plan", "--manifest", manifest, "--single-toolchain", "stable")
	if code != exitOK {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	want := "1 toolchain(s), 3 slot(s), 3 pending\n" +
		"stable\n" +
		"  + json\n" +
		"  + regex\n" +
		"  + sort\n"
	if stdout != want {
		t.Errorf("got:\n%s\nwant:\n%s", stdout, want)
	}
}

func TestPlanRunnerFilterAndYAML(t *testing.T) {
	manifest := isolate(t)
	code, stdout, stderr := runCmd("plan", "--manifest", manifest, "--single-toolchain", "stable", "--runner", "r1", "--format", "yaml")
	if code != exitOK {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	for _, want := range []string{"slots: 2", "toolchain: stable", "name: json", "name: sort"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("yaml missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "regex") {
		t.Errorf("runner filter ignored:\n%s", stdout)
	}
}

func TestPlanMarksRecordedSlots(t *testing.T) {
	manifest := isolate(t)
	dataDir := t.TempDir()

	store, err := collector.Rehydrate(dataDir, collector.Options{RunID: "earlier"})
	if err != nil {
		t.Fatal(err)
	}
	b := bench.Benchmark{Name: "regex", Command: []string{"./regex-bench"}}
	_, err = store.Run(context.Background(), toolchain.Named("stable"), b, func(context.Context) (bench.Result, error) {
		return bench.Result{Wall: time.Millisecond}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := runCmd("plan", "--manifest", manifest, "--data-dir", dataDir, "--single-toolchain", "stable")
	if code != exitOK {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "3 slot(s), 2 pending") || !strings.Contains(stdout, "  = regex") {
		t.Errorf("stdout:\n%s", stdout)
	}

	code, stdout, stderr = runCmd("status", "--data-dir", dataDir, "--toolchain", "stable")
	if code != exitOK {
		t.Fatalf("status: code %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "regex") || !strings.Contains(stdout, "ok") {
		t.Errorf("status stdout:\n%s", stdout)
	}
}

func TestPlanNightlyRange(t *testing.T) {
	manifest := isolate(t)
	since := time.Now().UTC().AddDate(0, 0, -2).Format(time.DateOnly)
	code, stdout, stderr := runCmd("plan", "--manifest", manifest, "--nightlies-since", since)
	if code != exitOK {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	if !strings.HasPrefix(stdout, "3 toolchain(s), 9 slot(s), 9 pending") {
		t.Errorf("stdout:\n%s", stdout)
	}
	if !strings.Contains(stdout, "nightly-"+since+"\n") {
		t.Errorf("first nightly missing:\n%s", stdout)
	}
}

func TestStatusEmptyStore(t *testing.T) {
	isolate(t)
	dataDir := filepath.Join(t.TempDir(), "never-created")
	code, stdout, stderr := runCmd("status", "--data-dir", dataDir)
	if code != exitOK {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	if strings.TrimSpace(stdout) != "no records" {
		t.Errorf("stdout = %q", stdout)
	}
	if _, err := os.Stat(dataDir); !os.IsNotExist(err) {
		t.Error("status created the data directory")
	}
}

func TestSelectionCheckedFirst(t *testing.T) {
	isolate(t)
	// No manifest and no config in the working directory.
	t.Chdir(t.TempDir())
	dataDir := t.TempDir()

	for _, cmd := range []string{"measure", "plan"} {
		for _, sel := range [][]string{
			{"--single-toolchain", "stable", "--nightlies-since", "2024-01-01"},
			{},
		} {
			args := append([]string{cmd, "--data-dir", dataDir}, sel...)
			code, _, stderr := runCmd(args...)
			if code != exitConfig || !strings.Contains(stderr, "toolbench: config: unsupported toolchain configuration") {
				t.Errorf("%v: code %d, stderr %q", args, code, stderr)
			}
		}
	}
}

func TestStoredFailureIsFinalByDefault(t *testing.T) {
	manifest := isolate(t)
	dataDir := t.TempDir()
	stable := toolchain.Named("stable")

	store, err := collector.Rehydrate(dataDir, collector.Options{RunID: "earlier"})
	if err != nil {
		t.Fatal(err)
	}
	b := bench.Benchmark{Name: "json", Command: []string{"./json-bench"}}
	_, err = store.Run(context.Background(), stable, b, func(context.Context) (bench.Result, error) {
		return bench.Result{}, &bench.ExecutionError{Toolchain: stable, Benchmark: "json", ExitCode: 101, Err: errors.New("exit status 101")}
	})
	var execErr *bench.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run = %v, want execution error", err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := runCmd("plan", "--manifest", manifest, "--data-dir", dataDir, "--single-toolchain", "stable")
	if code != exitOK {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "3 slot(s), 2 pending") || !strings.Contains(stdout, "  = json") {
		t.Errorf("default config re-runs a stored failure:\n%s", stdout)
	}

	code, stdout, stderr = runCmd("plan", "--manifest", manifest, "--data-dir", dataDir, "--single-toolchain", "stable", "--retry-failed")
	if code != exitOK {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "3 slot(s), 3 pending") {
		t.Errorf("--retry-failed did not mark the failure pending:\n%s", stdout)
	}
}
