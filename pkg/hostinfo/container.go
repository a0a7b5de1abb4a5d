package hostinfo

import (
	"context"
	"os"
	"runtime"
	"strings"
)

// collectContainer names the container runtime the process runs under, if
// any.
func collectContainer(_ context.Context, s *Snapshot) error {
	s.Container = detectContainer(os.Getenv, fileExists, os.ReadFile)
	return nil
}

func detectContainer(getenv func(string) string, exists func(string) bool, readFile func(string) ([]byte, error)) string {
	// Podman sets CONTAINER in the default environment.
	if v := getenv("CONTAINER"); v != "" {
		return strings.ToLower(v)
	}
	if exists("/.dockerenv") {
		return "docker"
	}
	if exists("/run/.containerenv") {
		return "podman"
	}
	if runtime.GOOS != "linux" {
		return ""
	}
	data, err := readFile("/proc/1/cgroup")
	if err != nil {
		return ""
	}
	return parseCgroup(string(data))
}

// parseCgroup looks for container runtime signatures in a cgroup file.
func parseCgroup(content string) string {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "libpod"):
		return "podman"
	case strings.Contains(lower, "docker"), strings.Contains(lower, "containerd"):
		return "docker"
	case strings.Contains(lower, "lxc"):
		return "lxc"
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
