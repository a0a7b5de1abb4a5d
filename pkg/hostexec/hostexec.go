// Package hostexec runs helper programs (rustup, cset) on the local host.
// Components take a Runner so tests can substitute a scripted one.
package hostexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner runs a command to completion and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// Error is returned by Local when a command exits unsuccessfully. Output
// holds stdout followed by stderr so callers can classify the failure.
type Error struct {
	Cmd    string
	Output string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Local runs commands with os/exec.
type Local struct {
	// Env, if non-nil, is appended to the inherited environment.
	Env []string
}

// Run implements Runner.
func (l *Local) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if l != nil && len(l.Env) > 0 {
		cmd.Env = append(cmd.Environ(), l.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{
			Cmd:    strings.Join(append([]string{name}, args...), " "),
			Output: stdout.String() + stderr.String(),
			Err:    err,
		}
	}
	return stdout.String(), nil
}

// LookPath reports whether name resolves to an executable.
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
