// toolbench runs a benchmark suite across a range of compiler toolchains on a
// single host, optionally on shielded CPUs, and records one result per
// (toolchain, benchmark) pair so interrupted runs resume where they stopped.
//
// Usage:
//
//	toolbench measure --data-dir <path> (--single-toolchain <name> | --nightlies-since <YYYY-MM-DD>) [flags]
//	toolbench plan    (--single-toolchain <name> | --nightlies-since <YYYY-MM-DD>) [flags]
//	toolbench status  --data-dir <path> [--toolchain <name>]
//	toolbench version
//
// Exit codes:
//
//	0  success
//	1  anything else
//	2  configuration error
//	3  CPU shield unavailable
//	4  toolchain install failed
//	5  benchmark failed
//	6  result store corrupt or locked
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gitlab.com/tinyland/lab/toolbench/pkg/bench"
	"gitlab.com/tinyland/lab/toolbench/pkg/collector"
	"gitlab.com/tinyland/lab/toolbench/pkg/install"
	"gitlab.com/tinyland/lab/toolbench/pkg/runstate"
	"gitlab.com/tinyland/lab/toolbench/pkg/shield"
	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

const (
	exitOK        = 0
	exitOther     = 1
	exitConfig    = 2
	exitShield    = 3
	exitInstall   = 4
	exitBenchmark = 5
	exitStore     = 6
)

const usage = `usage: toolbench <command> [flags]

commands:
  measure   run the benchmark plan and record results
  plan      print the benchmark plan without running it
  status    summarise the results recorded in a data directory
  version   print version and exit

Run 'toolbench <command> -h' for the flags of a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and maps its error to an exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitConfig
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "measure":
		err = runMeasure(rest, stdout, stderr)
	case "plan":
		err = runPlan(rest, stdout, stderr)
	case "status":
		err = runStatus(rest, stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "toolbench %s (%s) built %s\n", version, commit, date)
		return exitOK
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "toolbench: unknown command %q\n\n%s", cmd, usage)
		return exitConfig
	}
	if err == nil || errors.Is(err, errHelp) {
		return exitOK
	}

	stage, code := classify(err)
	fmt.Fprintf(stderr, "toolbench: %s: %v\n", stage, err)
	return code
}

// classify names the stage an error came from and picks its exit code. When
// several errors are joined the first recognised one decides.
func classify(err error) (stage string, code int) {
	var (
		cfgErr     *toolchain.ConfigError
		shieldErr  *shield.UnavailableError
		installErr *install.Error
		execErr    *bench.ExecutionError
		corruptErr *collector.CorruptError
		writeErr   *collector.WriteError
		lockedErr  *runstate.LockedError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "config", exitConfig
	case errors.As(err, &shieldErr):
		return "shield", exitShield
	case errors.As(err, &installErr):
		return "install", exitInstall
	case errors.As(err, &corruptErr), errors.As(err, &writeErr), errors.As(err, &lockedErr):
		return "store", exitStore
	case errors.As(err, &execErr):
		return "benchmark", exitBenchmark
	}
	return "error", exitOther
}

// configError wraps a configuration problem found outside the planner so it
// is reported with the config exit code.
func configError(format string, args ...any) error {
	return &toolchain.ConfigError{Msg: fmt.Sprintf(format, args...)}
}
