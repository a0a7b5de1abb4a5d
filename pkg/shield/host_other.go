//go:build !linux

package shield

import (
	"errors"
	"runtime"
)

func schedulableCPUs() ([]int, error) {
	return nil, errors.New("CPU shielding is not supported on " + runtime.GOOS)
}

func privileged() bool { return false }
