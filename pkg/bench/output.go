package bench

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseOutput extracts metrics from a benchmark's standard output. Three
// forms are understood:
//
//   - a JSON object of numbers, optionally nested under "metrics"
//   - Go benchmark lines: BenchmarkXxx-N  iterations  value unit [value unit ...]
//   - libtest bench lines: test name ... bench:   1,234 ns/iter (+/- 56)
//
// Metric keys are "name/unit" for line formats and the object keys for JSON.
// Lines in neither format are ignored, so output with no recognisable
// metrics yields an empty map and no error. Non-finite values are dropped.
func ParseOutput(out string) (map[string]float64, error) {
	trimmed := strings.TrimSpace(out)
	if strings.HasPrefix(trimmed, "{") {
		return parseJSONMetrics(trimmed)
	}

	metrics := make(map[string]float64)
	for line := range strings.Lines(out) {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Benchmark"):
			parseGoBenchLine(line, metrics)
		case strings.HasPrefix(line, "test ") && strings.Contains(line, " bench:"):
			parseLibtestLine(line, metrics)
		}
	}
	return metrics, nil
}

func parseJSONMetrics(s string) (map[string]float64, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("parse JSON metrics: %w", err)
	}
	if nested, ok := raw["metrics"]; ok {
		raw = nil
		if err := json.Unmarshal(nested, &raw); err != nil {
			return nil, fmt.Errorf("parse JSON metrics: %w", err)
		}
	}
	metrics := make(map[string]float64, len(raw))
	for k, v := range raw {
		var f float64
		if err := json.Unmarshal(v, &f); err != nil || !finite(f) {
			continue // non-numeric fields are metadata
		}
		metrics[k] = f
	}
	return metrics, nil
}

// parseGoBenchLine handles the standard `go test -bench` format.
func parseGoBenchLine(line string, metrics map[string]float64) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return
	}
	if _, err := strconv.Atoi(fields[1]); err != nil {
		return
	}
	name := fields[0]
	if i := strings.LastIndex(name, "-"); i > 0 {
		if _, err := strconv.Atoi(name[i+1:]); err == nil {
			name = name[:i] // chop GOMAXPROCS suffix
		}
	}
	for i := 2; i+1 < len(fields); i += 2 {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || !finite(v) {
			continue
		}
		metrics[name+"/"+fields[i+1]] = v
	}
}

// parseLibtestLine handles `cargo bench` output from the built-in harness.
func parseLibtestLine(line string, metrics map[string]float64) {
	rest := strings.TrimPrefix(line, "test ")
	name, rest, ok := strings.Cut(rest, " ... bench:")
	if !ok {
		return
	}
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", ""), 64)
	if err != nil || !finite(v) {
		return
	}
	metrics[strings.TrimSpace(name)+"/"+fields[1]] = v
}

// finite reports whether v survives a JSON round trip.
func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
