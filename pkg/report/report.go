// Package report renders store contents and run summaries for the terminal.
package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/toolbench/pkg/collector"
	"gitlab.com/tinyland/lab/toolbench/pkg/engine"
	"gitlab.com/tinyland/lab/toolbench/pkg/runstate"
)

type toolchainRow struct {
	name     string
	ok, fail int
	last     time.Time
}

// WriteStatus writes a per-toolchain overview of records, the recent runs,
// and the live status if one is present.
func WriteStatus(w io.Writer, width int, records []collector.Record, runs []*runstate.RunManifest, live *runstate.Status) error {
	byTC := map[string]*toolchainRow{}
	for _, r := range records {
		name := r.Toolchain.String()
		row, ok := byTC[name]
		if !ok {
			row = &toolchainRow{name: name}
			byTC[name] = row
		}
		if r.Status == collector.StatusSuccess {
			row.ok++
		} else {
			row.fail++
		}
		if r.Recorded.After(row.last) {
			row.last = r.Recorded
		}
	}

	t := &Table{Headers: []string{"TOOLCHAIN", "OK", "FAILED", "LAST RECORDED"}, Right: map[int]bool{1: true, 2: true}}
	for _, name := range slices.Sorted(maps.Keys(byTC)) {
		row := byTC[name]
		fail := fmt.Sprint(row.fail)
		if row.fail > 0 {
			fail = failStyle.Render(fail)
		}
		t.Row(row.name, okStyle.Render(fmt.Sprint(row.ok)), fail, row.last.Local().Format(time.DateTime))
	}

	var b strings.Builder
	if t.Len() == 0 {
		b.WriteString(dimStyle.Render("no records") + "\n")
	} else {
		b.WriteString(t.Render(width))
	}

	if len(runs) > 0 {
		b.WriteString("\n")
		rt := &Table{Headers: []string{"RUN", "STARTED", "TOOLCHAINS", "SLOTS", "OUTCOME"}, Right: map[int]bool{3: true}}
		for _, r := range runs[max(0, len(runs)-5):] {
			rt.Row(shortID(r.RunID), r.Started.Local().Format(time.DateTime), r.Toolchains, fmt.Sprint(r.Slots), outcome(r.Outcome))
		}
		b.WriteString(rt.Render(width))
	}

	if live != nil {
		fmt.Fprintf(&b, "\nlast state: %s (%d/%d) %s %s\n", live.State, live.Done, live.Total, live.Toolchain, live.Benchmark)
		if live.Error != "" {
			b.WriteString(failStyle.Render("error: "+live.Error) + "\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteRecords writes one line per record, for a detailed look at one
// toolchain.
func WriteRecords(w io.Writer, width int, records []collector.Record) error {
	t := &Table{
		Headers: []string{"BENCHMARK", "STATUS", "WALL", "USER", "MAX RSS", "METRICS"},
		Right:   map[int]bool{2: true, 3: true, 4: true},
	}
	for _, r := range records {
		if r.Status != collector.StatusSuccess || r.Result == nil {
			t.Row(r.Benchmark, failStyle.Render("failed"), "", "", "", firstLine(r.Error))
			continue
		}
		res := r.Result
		t.Row(r.Benchmark, okStyle.Render("ok"),
			res.Wall.Round(time.Millisecond).String(),
			res.User.Round(time.Millisecond).String(),
			formatKB(res.MaxRSSKB),
			formatMetrics(res.Metrics))
	}
	if t.Len() == 0 {
		_, err := io.WriteString(w, dimStyle.Render("no records")+"\n")
		return err
	}
	_, err := io.WriteString(w, t.Render(width))
	return err
}

// WriteSummary writes the end-of-run summary.
func WriteSummary(w io.Writer, sum engine.Summary, runErr error) error {
	state := okStyle.Render("complete")
	if runErr != nil {
		state = failStyle.Render("failed")
	}
	_, err := fmt.Fprintf(w, "%s: %d slot(s), %d recorded, %d skipped, %d failed, %d toolchain(s) installed in %s\n",
		state, sum.Slots, sum.Recorded, sum.Skipped, sum.Failed, sum.Installed, sum.Elapsed.Round(time.Second))
	return err
}

// WriteFailures lists the failed installs and benchmarks among events, one
// per line. It writes nothing when there were none.
func WriteFailures(w io.Writer, events []engine.Event) error {
	var b strings.Builder
	for _, ev := range events {
		switch ev.Kind {
		case engine.EventInstallFailed:
			fmt.Fprintf(&b, "  %s %s: %s\n", failStyle.Render("install"), ev.Toolchain, firstLine(errString(ev.Err)))
		case engine.EventFailed:
			fmt.Fprintf(&b, "  %s %s/%s: %s\n", failStyle.Render("benchmark"), ev.Toolchain, ev.Benchmark, firstLine(errString(ev.Err)))
		}
	}
	if b.Len() == 0 {
		return nil
	}
	_, err := io.WriteString(w, "failures:\n"+b.String())
	return err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func outcome(s string) string {
	switch s {
	case "":
		return warnStyle.Render("incomplete")
	case "success":
		return okStyle.Render(s)
	default:
		return failStyle.Render(s)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func formatKB(kb int64) string {
	switch {
	case kb <= 0:
		return ""
	case kb < 1024:
		return fmt.Sprintf("%d KiB", kb)
	case kb < 1024*1024:
		return fmt.Sprintf("%.1f MiB", float64(kb)/1024)
	default:
		return fmt.Sprintf("%.2f GiB", float64(kb)/(1024*1024))
	}
}

// formatMetrics shows up to three metrics, by name.
func formatMetrics(m map[string]float64) string {
	keys := slices.Sorted(maps.Keys(m))
	var parts []string
	for i, k := range keys {
		if i == 3 {
			parts = append(parts, fmt.Sprintf("+%d", len(keys)-3))
			break
		}
		parts = append(parts, fmt.Sprintf("%s=%g", k, m[k]))
	}
	return strings.Join(parts, " ")
}
