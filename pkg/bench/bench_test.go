package bench

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"unicode/utf8"

	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func benchNames(bs []Benchmark) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Name
	}
	return out
}

// --- Registry ---

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for _, b := range []Benchmark{
		{Name: "zeta", Runner: "a", Command: []string{"z"}},
		{Name: "alpha", Runner: "b", Command: []string{"a"}},
		{Name: "mid", Runner: "a", Command: []string{"m"}},
	} {
		if err := r.Register(b); err != nil {
			t.Fatalf("Register(%s): %v", b.Name, err)
		}
	}
	if got := benchNames(r.All()); !reflect.DeepEqual(got, []string{"zeta", "alpha", "mid"}) {
		t.Errorf("All = %v", got)
	}
	if got := benchNames(r.Filter("a")); !reflect.DeepEqual(got, []string{"zeta", "mid"}) {
		t.Errorf("Filter(a) = %v", got)
	}
	if got := r.Filter("nobody"); len(got) != 0 {
		t.Errorf("Filter(nobody) = %v", got)
	}
	if got := r.Runners(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Runners = %v", got)
	}
}

func TestRegistryRejectsDuplicatesAndInvalid(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Benchmark{Name: "x", Command: []string{"x"}}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(Benchmark{Name: "x", Command: []string{"y"}}); err == nil {
		t.Error("expected duplicate error")
	}
	if err := r.Register(Benchmark{Name: "nocmd"}); err == nil {
		t.Error("expected missing command error")
	}
	if err := r.Register(Benchmark{Command: []string{"x"}}); err == nil {
		t.Error("expected missing name error")
	}
	for _, name := range []string{".", "..", ".tmp-alloc"} {
		if err := r.Register(Benchmark{Name: name, Command: []string{"x"}}); err == nil {
			t.Errorf("Register(%q): expected reserved name error", name)
		}
	}
	if err := r.Register(Benchmark{Name: ".hidden", Command: []string{"x"}}); err != nil {
		t.Errorf("Register(.hidden): %v", err)
	}
}

// --- Manifest ---

func TestLoadManifestTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "benchmarks.toml", `
[[benchmark]]
name = "json"
runner = "r1"
command = ["cargo", "bench", "--bench", "json"]
dir = "crates/json"

[benchmark.env]
RUSTFLAGS = "-Ctarget-cpu=native"

[[benchmark]]
name = "regex"
command = ["./regex-bench"]
`)
	reg, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if got := benchNames(reg.All()); !reflect.DeepEqual(got, []string{"json", "regex"}) {
		t.Fatalf("benchmarks = %v", got)
	}
	b, _ := reg.Get("json")
	if b.Dir != filepath.Join(dir, "crates/json") {
		t.Errorf("dir = %q", b.Dir)
	}
	if b.Env["RUSTFLAGS"] != "-Ctarget-cpu=native" {
		t.Errorf("env = %v", b.Env)
	}
}

func TestLoadManifestYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "benchmarks.yaml", `
benchmarks:
  - name: sort
    runner: r2
    command: [./sort-bench, --quick]
`)
	reg, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	b, ok := reg.Get("sort")
	if !ok || b.Runner != "r2" || !reflect.DeepEqual(b.Command, []string{"./sort-bench", "--quick"}) {
		t.Errorf("sort = %+v", b)
	}
}

func TestLoadManifestRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "b.toml", `
[[benchmark]]
name = "x"
comand = ["typo"]
`)
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

// --- Output parsing ---

func TestParseOutputJSON(t *testing.T) {
	got, err := ParseOutput(`{"metrics": {"ns_per_iter": 1234.5, "instructions": 9e6}, "note": "x"}`)
	if err != nil {
		t.Fatalf("ParseOutput: %v", err)
	}
	want := map[string]float64{"ns_per_iter": 1234.5, "instructions": 9e6}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	got, err = ParseOutput(`{"wall": 3, "label": "fast"}`)
	if err != nil || !reflect.DeepEqual(got, map[string]float64{"wall": 3}) {
		t.Errorf("flat object: %v, %v", got, err)
	}

	if _, err := ParseOutput(`{"broken"`); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestParseOutputGoBench(t *testing.T) {
	out := `goos: linux
BenchmarkParse-8   	  100000	     10423 ns/op	    2048 B/op	      12 allocs/op
BenchmarkBroken-8  not-a-number
PASS
`
	got, _ := ParseOutput(out)
	want := map[string]float64{
		"BenchmarkParse/ns/op":     10423,
		"BenchmarkParse/B/op":      2048,
		"BenchmarkParse/allocs/op": 12,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseOutputLibtest(t *testing.T) {
	out := `running 2 tests
test bench_small ... bench:         312 ns/iter (+/- 4)
test bench_large ... bench:   1,204,118 ns/iter (+/- 31,022)

test result: ok. 0 passed; 0 failed; 0 ignored; 2 measured
`
	got, _ := ParseOutput(out)
	want := map[string]float64{
		"bench_small/ns/iter": 312,
		"bench_large/ns/iter": 1204118,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseOutputDropsNonFinite(t *testing.T) {
	out := `BenchmarkOdd-8   100   inf ns/op   NaN B/op   7 allocs/op
test bench_inf ... bench:   +Inf ns/iter (+/- 0)
test bench_nan ... bench:   nan ns/iter (+/- 0)
`
	got, err := ParseOutput(out)
	if err != nil {
		t.Fatalf("ParseOutput: %v", err)
	}
	want := map[string]float64{"BenchmarkOdd/allocs/op": 7}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := json.Marshal(got); err != nil {
		t.Errorf("metrics do not marshal: %v", err)
	}
}

// --- Execution ---

func TestLocalExecuteCapturesMetrics(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	l := &Local{}
	inv := Invocation{
		Toolchain: toolchain.Named("stable"),
		Benchmark: Benchmark{
			Name:    "echo",
			Command: []string{"/bin/sh", "-c", `printf '{"tc": 1, "name": "%s"}' "$RUSTUP_TOOLCHAIN"`},
		},
	}
	res, err := l.Execute(context.Background(), inv)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Metrics["tc"] != 1 {
		t.Errorf("metrics = %v", res.Metrics)
	}
	if !strings.Contains(res.Output, `"name": "stable"`) {
		t.Errorf("toolchain not exported to child: %q", res.Output)
	}
	if res.Wall <= 0 || res.Started.IsZero() {
		t.Errorf("timing not recorded: %+v", res)
	}
}

func TestLocalExecuteWrapsCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	inv := Invocation{
		Toolchain: toolchain.Named("beta"),
		Benchmark: Benchmark{Name: "w", Command: []string{"echo", "inner"}},
		Wrap: func(argv []string) []string {
			return append([]string{"/bin/sh", "-c", `echo wrapped "$@"`, "sh"}, argv...)
		},
	}
	res, err := (&Local{}).Execute(context.Background(), inv)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(res.Output) != "wrapped echo inner" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestLocalExecuteFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	inv := Invocation{
		Toolchain: toolchain.Named("stable"),
		Benchmark: Benchmark{Name: "crash", Command: []string{"/bin/sh", "-c", "echo boom >&2; exit 3"}},
	}
	_, err := (&Local{OutputLimit: 3}).Execute(context.Background(), inv)
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if ee.ExitCode != 3 {
		t.Errorf("exit code = %d", ee.ExitCode)
	}
	if ee.Output != "om\n" {
		t.Errorf("output tail = %q", ee.Output)
	}
	if ee.Benchmark != "crash" {
		t.Errorf("benchmark = %q", ee.Benchmark)
	}
}

func TestOutputTailKeepsRunesWhole(t *testing.T) {
	l := &Local{OutputLimit: 5}
	got := l.tail("résumé ✓✓")
	if !utf8.ValidString(got) || strings.ContainsRune(got, utf8.RuneError) {
		t.Fatalf("tail split a rune: %q", got)
	}
	if got != "✓" {
		t.Errorf("tail = %q, want %q", got, "✓")
	}
	if got := l.tail("abc"); got != "abc" {
		t.Errorf("short output changed: %q", got)
	}
}

func TestLocalExecuteCancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sleep")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inv := Invocation{
		Toolchain: toolchain.Named("stable"),
		Benchmark: Benchmark{Name: "sleep", Command: []string{"sleep", "5"}},
	}
	_, err := (&Local{}).Execute(ctx, inv)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
