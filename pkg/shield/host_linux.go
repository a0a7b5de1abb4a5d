//go:build linux

package shield

import "golang.org/x/sys/unix"

// schedulableCPUs returns the CPUs in this process's affinity mask.
func schedulableCPUs() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, err
	}
	var cpus []int
	for id := 0; len(cpus) < set.Count(); id++ {
		if set.IsSet(id) {
			cpus = append(cpus, id)
		}
	}
	return cpus, nil
}

func privileged() bool {
	return unix.Geteuid() == 0
}
