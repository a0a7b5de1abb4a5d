//go:build linux

package bench

import (
	"os"
	"syscall"
)

// maxRSSKB returns the child's peak resident set size; Linux reports it in
// kilobytes.
func maxRSSKB(ps *os.ProcessState) int64 {
	if ru, ok := ps.SysUsage().(*syscall.Rusage); ok {
		return int64(ru.Maxrss)
	}
	return 0
}
