package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"time"
	"unicode/utf8"

	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

// Invocation is one execution of a benchmark under a toolchain.
type Invocation struct {
	Toolchain toolchain.Toolchain
	Benchmark Benchmark

	// Wrap, if set, rewrites the command line, e.g. to start it inside a
	// CPU shield.
	Wrap func(argv []string) []string
}

// Result is the outcome of a successful execution.
type Result struct {
	Started  time.Time          `json:"started"`
	Wall     time.Duration      `json:"wall_ns"`
	User     time.Duration      `json:"user_ns"`
	System   time.Duration      `json:"system_ns"`
	MaxRSSKB int64              `json:"max_rss_kb,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Output   string             `json:"output,omitempty"`
}

// ExecutionError reports a benchmark that failed or crashed.
type ExecutionError struct {
	Toolchain toolchain.Toolchain
	Benchmark string
	ExitCode  int
	Output    string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("benchmark %s on %s failed: %v", e.Benchmark, e.Toolchain, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Executor runs benchmarks.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, inv Invocation) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, inv Invocation) (Result, error) {
	return f(ctx, inv)
}

// DefaultOutputLimit bounds the output kept with a result.
const DefaultOutputLimit = 16 << 10

// Local runs benchmark commands as child processes. The toolchain is
// selected through the environment variable named by ToolchainEnv, which
// rustup proxies honour.
type Local struct {
	// ToolchainEnv defaults to RUSTUP_TOOLCHAIN.
	ToolchainEnv string

	// OutputLimit bounds the stored output tail. Default: DefaultOutputLimit.
	OutputLimit int

	// Stream, if set, receives the child's stderr as it runs.
	Stream io.Writer

	Logger *slog.Logger
}

// Execute implements Executor.
func (l *Local) Execute(ctx context.Context, inv Invocation) (Result, error) {
	argv := slices.Clone(inv.Benchmark.Command)
	if inv.Wrap != nil {
		argv = inv.Wrap(argv)
	}
	fail := func(code int, out string, err error) (Result, error) {
		return Result{}, &ExecutionError{
			Toolchain: inv.Toolchain,
			Benchmark: inv.Benchmark.Name,
			ExitCode:  code,
			Output:    out,
			Err:       err,
		}
	}
	if len(argv) == 0 {
		return fail(-1, "", errors.New("empty command"))
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = inv.Benchmark.Dir
	cmd.Env = l.environ(inv)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if l.Stream != nil {
		cmd.Stderr = io.MultiWriter(&stderr, l.Stream)
	}

	l.logger().Debug("running benchmark", "benchmark", inv.Benchmark.Name, "toolchain", inv.Toolchain.String(), "argv", argv)
	started := time.Now()
	err := cmd.Run()
	wall := time.Since(started)
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if err != nil {
		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		return fail(code, l.tail(stdout.String()+stderr.String()), err)
	}

	metrics, perr := ParseOutput(stdout.String())
	if perr != nil {
		return fail(0, l.tail(stdout.String()), perr)
	}

	res := Result{
		Started: started.UTC(),
		Wall:    wall,
		Metrics: metrics,
		Output:  l.tail(stdout.String()),
	}
	if ps := cmd.ProcessState; ps != nil {
		res.User = ps.UserTime()
		res.System = ps.SystemTime()
		res.MaxRSSKB = maxRSSKB(ps)
	}
	return res, nil
}

func (l *Local) environ(inv Invocation) []string {
	key := l.ToolchainEnv
	if key == "" {
		key = "RUSTUP_TOOLCHAIN"
	}
	env := os.Environ()
	for _, k := range slices.Sorted(maps.Keys(inv.Benchmark.Env)) {
		env = append(env, k+"="+inv.Benchmark.Env[k])
	}
	return append(env,
		key+"="+inv.Toolchain.String(),
		"TOOLBENCH_TOOLCHAIN="+inv.Toolchain.String(),
		"TOOLBENCH_BENCHMARK="+inv.Benchmark.Name,
	)
}

func (l *Local) tail(s string) string {
	limit := l.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	if len(s) <= limit {
		return s
	}
	// Cut on a rune boundary; the tail may come out a few bytes short.
	i := len(s) - limit
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

func (l *Local) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.Logger
}
