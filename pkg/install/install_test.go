package install

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/toolbench/pkg/hostexec"
	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

const hostList = `stable-x86_64-unknown-linux-gnu (default)
nightly-2024-01-01-x86_64-unknown-linux-gnu
`

func TestListed(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"stable", true},
		{"nightly-2024-01-01", true},
		{"nightly-2024-01-02", false},
		{"nightly", false},
		{"beta", false},
	}
	for _, tt := range tests {
		if got := listed(hostList, tt.name); got != tt.want {
			t.Errorf("listed(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestInstallPresentIsNoop(t *testing.T) {
	fake := &hostexec.Fake{Handler: func(c hostexec.Call) (string, error) {
		if strings.Join(c.Args, " ") == "toolchain list" {
			return hostList, nil
		}
		t.Fatalf("unexpected command %s", c)
		return "", nil
	}}
	r := NewRustup(Config{}, fake, nil)

	if err := r.Install(context.Background(), toolchain.Named("stable")); err != nil {
		t.Fatalf("Install: %v", err)
	}
	// Second call is answered from the in-process memo.
	if err := r.Install(context.Background(), toolchain.Named("stable")); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if calls := fake.Calls(); len(calls) != 1 {
		t.Errorf("calls = %v, want a single list", calls)
	}
}

func TestInstallDownloadsMissingToolchain(t *testing.T) {
	fake := &hostexec.Fake{}
	r := NewRustup(Config{Profile: "default", Components: []string{"rust-src"}}, fake, nil)

	nightly := toolchain.Nightly(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if err := r.Install(context.Background(), nightly); err != nil {
		t.Fatalf("Install: %v", err)
	}
	calls := fake.Calls()
	want := "rustup toolchain install nightly-2024-01-02 --profile default --no-self-update --component rust-src"
	if len(calls) != 2 || calls[1] != want {
		t.Fatalf("calls = %q, want list then %q", calls, want)
	}
}

func TestInstallReportsUnpublishedNightly(t *testing.T) {
	fake := &hostexec.Fake{Handler: func(c hostexec.Call) (string, error) {
		if c.Args[0] == "toolchain" && c.Args[1] == "install" {
			return "", &hostexec.Error{
				Cmd:    c.String(),
				Output: "error: no release found for 'nightly-2030-01-01'",
				Err:    errors.New("exit status 1"),
			}
		}
		return "", nil
	}}
	r := NewRustup(Config{}, fake, nil)

	tc := toolchain.Named("nightly-2030-01-01")
	err := r.Install(context.Background(), tc)
	var ie *Error
	if !errors.As(err, &ie) {
		t.Fatalf("expected *install.Error, got %v", err)
	}
	if !ie.Missing {
		t.Error("expected Missing to be set")
	}
	if ie.Toolchain != tc {
		t.Errorf("toolchain = %s", ie.Toolchain)
	}
}

func TestInstallListFailure(t *testing.T) {
	fake := &hostexec.Fake{Handler: func(c hostexec.Call) (string, error) {
		return "", errors.New("rustup: command not found")
	}}
	err := NewRustup(Config{}, fake, nil).Install(context.Background(), toolchain.Named("beta"))
	var ie *Error
	if !errors.As(err, &ie) || ie.Missing {
		t.Fatalf("expected non-missing install error, got %v", err)
	}
}
