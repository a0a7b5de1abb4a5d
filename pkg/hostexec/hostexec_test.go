package hostexec

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	if _, err := LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

func TestLocalRunReturnsStdout(t *testing.T) {
	skipWithoutShell(t)
	out, err := (&Local{Env: []string{"HOSTEXEC_TEST=hello"}}).Run(context.Background(), "sh", "-c", `echo "$HOSTEXEC_TEST"; echo noise >&2`)
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestLocalRunFailureCarriesOutput(t *testing.T) {
	skipWithoutShell(t)
	_, err := (&Local{}).Run(context.Background(), "sh", "-c", "echo partial; echo 'error: no such toolchain' >&2; exit 3")
	var execErr *Error
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if execErr.Cmd != "sh -c echo partial; echo 'error: no such toolchain' >&2; exit 3" {
		t.Errorf("Cmd = %q", execErr.Cmd)
	}
	if !strings.Contains(execErr.Output, "partial") || !strings.Contains(execErr.Output, "no such toolchain") {
		t.Errorf("Output = %q", execErr.Output)
	}
	if !strings.Contains(err.Error(), "exit status 3") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestLocalRunCancelled(t *testing.T) {
	skipWithoutShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&Local{}).Run(ctx, "sh", "-c", "sleep 5"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFakeRecordsCalls(t *testing.T) {
	f := &Fake{Handler: func(c Call) (string, error) {
		if c.Name == "cset" {
			return "", errors.New("not root")
		}
		return "ok", nil
	}}
	ctx := context.Background()
	if out, err := f.Run(ctx, "rustup", "toolchain", "list"); out != "ok" || err != nil {
		t.Errorf("rustup = %q, %v", out, err)
	}
	if _, err := f.Run(ctx, "cset", "shield", "--reset"); err == nil {
		t.Error("cset should fail")
	}
	want := []string{"rustup toolchain list", "cset shield --reset"}
	if got := f.Calls(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Calls = %q", got)
	}
}
