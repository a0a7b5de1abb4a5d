package runstate

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"
)

func TestAcquireAndReleaseLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "toolbench.lock")

	l, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	pid, err := ReadLock(path)
	if err != nil {
		t.Fatalf("ReadLock: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("lock file still present: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestAcquireLockExcludesSecondHolder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs flock")
	}
	path := filepath.Join(t.TempDir(), "toolbench.lock")
	held, err := AcquireLock(path)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	_, err = AcquireLock(path)
	var le *LockedError
	if !errors.As(err, &le) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if le.PID != os.Getpid() {
		t.Errorf("pid = %d", le.PID)
	}
	if data, _ := os.ReadFile(path); string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("losing attempt changed the lock file: %q", data)
	}
}

func TestAcquireLockReplacesStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolbench.lock")
	// No process holds the flock, so even a live PID is stale.
	for _, content := range []string{"1", "999999999", "garbage", ""} {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		l, err := AcquireLock(path)
		if err != nil {
			t.Fatalf("AcquireLock over %q: %v", content, err)
		}
		data, _ := os.ReadFile(path)
		if string(data) != strconv.Itoa(os.Getpid()) {
			t.Errorf("lock content = %q", data)
		}
		_ = l.Release()
	}
}

func TestLockedErrorWithoutPID(t *testing.T) {
	err := &LockedError{Path: "toolbench.lock"}
	if got := err.Error(); got != "data directory is in use (lock toolbench.lock)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	in := &Status{
		RunID:     "r1",
		PID:       42,
		State:     "running",
		Toolchain: "nightly-2024-01-02",
		Benchmark: "json",
		Done:      3,
		Total:     9,
		Started:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Updated:   time.Date(2024, 1, 2, 3, 5, 5, 0, time.UTC),
	}
	if err := WriteStatus(path, in); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
	out, err := ReadStatus(path)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if *out != *in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestRunManifests(t *testing.T) {
	dir := t.TempDir()
	if runs, err := ListRuns(dir); err != nil || len(runs) != 0 {
		t.Fatalf("ListRuns on empty dir = %v, %v", runs, err)
	}

	later := &RunManifest{RunID: "b", Started: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Toolchains: "stable", Slots: 3}
	earlier := &RunManifest{RunID: "a", Started: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Toolchains: "2024-01-01..2024-01-03", Slots: 9}
	for _, m := range []*RunManifest{later, earlier} {
		if err := WriteRunManifest(dir, m); err != nil {
			t.Fatalf("WriteRunManifest: %v", err)
		}
	}
	later.Outcome = "success"
	if err := WriteRunManifest(dir, later); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, RunsDir, "junk.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	runs, err := ListRuns(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunID != "a" || runs[1].RunID != "b" || runs[1].Outcome != "success" {
		t.Errorf("runs = %+v", runs)
	}

	if err := WriteRunManifest(dir, &RunManifest{RunID: "../escape"}); err == nil {
		t.Error("expected error for run id with a path separator")
	}
}
