package shield

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// maxCPUs bounds CPU IDs in a pattern. It matches the largest NR_CPUS a Linux
// kernel can be built with.
const maxCPUs = 8192

// ParseCPUList parses a pattern of CPU IDs and inclusive ID ranges delimited
// by commas, e.g. "0,1,2" or "0-2,4". The result is sorted and free of
// duplicates.
func ParseCPUList(pattern string) ([]int, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("empty CPU pattern")
	}
	var cpus []int
	for _, item := range strings.Split(pattern, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("CPU pattern %q: empty item", pattern)
		}
		lo, hi, isRange := strings.Cut(item, "-")
		first, err := parseCPU(lo)
		if err != nil {
			return nil, fmt.Errorf("CPU pattern %q: %w", pattern, err)
		}
		last := first
		if isRange {
			if last, err = parseCPU(hi); err != nil {
				return nil, fmt.Errorf("CPU pattern %q: %w", pattern, err)
			}
			if last < first {
				return nil, fmt.Errorf("CPU pattern %q: range %s is reversed", pattern, item)
			}
		}
		for id := first; id <= last; id++ {
			cpus = append(cpus, id)
		}
	}
	slices.Sort(cpus)
	return slices.Compact(cpus), nil
}

func parseCPU(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid CPU id %q", s)
	}
	if n >= maxCPUs {
		return 0, fmt.Errorf("CPU id %d out of range (max %d)", n, maxCPUs-1)
	}
	return n, nil
}

// FormatCPUList renders sorted CPU IDs in the compact range form accepted by
// ParseCPUList.
func FormatCPUList(cpus []int) string {
	var b strings.Builder
	for i := 0; i < len(cpus); {
		j := i
		for j+1 < len(cpus) && cpus[j+1] == cpus[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(cpus[i]))
		if j > i {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(cpus[j]))
		}
		i = j + 1
	}
	return b.String()
}
