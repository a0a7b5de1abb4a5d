package plan

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"gitlab.com/tinyland/lab/toolbench/pkg/toolchain"
)

// DoneFunc reports whether a slot is already recorded. It may be nil.
type DoneFunc func(tc toolchain.Toolchain, benchmark string) bool

type yamlPlan struct {
	Slots      int         `yaml:"slots"`
	Pending    int         `yaml:"pending"`
	Toolchains []yamlEntry `yaml:"toolchains"`
}

type yamlEntry struct {
	Toolchain  string          `yaml:"toolchain"`
	Benchmarks []yamlBenchmark `yaml:"benchmarks"`
}

type yamlBenchmark struct {
	Name   string   `yaml:"name"`
	Runner string   `yaml:"runner,omitempty"`
	Done   bool     `yaml:"done"`
	Argv   []string `yaml:"command,flow"`
}

func (p RunPlan) document(done DoneFunc) yamlPlan {
	doc := yamlPlan{Slots: p.Len()}
	for _, e := range p {
		ye := yamlEntry{Toolchain: e.Toolchain.String()}
		for _, b := range e.Benchmarks {
			d := done != nil && done(e.Toolchain, b.Name)
			if !d {
				doc.Pending++
			}
			ye.Benchmarks = append(ye.Benchmarks, yamlBenchmark{Name: b.Name, Runner: b.Runner, Done: d, Argv: b.Command})
		}
		doc.Toolchains = append(doc.Toolchains, ye)
	}
	return doc
}

// WriteYAML writes the plan as a YAML document.
func (p RunPlan) WriteYAML(w io.Writer, done DoneFunc) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p.document(done)); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return enc.Close()
}

// WriteText writes a compact human-readable listing of the plan. Slots that
// are already recorded are marked with "=".
func (p RunPlan) WriteText(w io.Writer, done DoneFunc) error {
	doc := p.document(done)
	if _, err := fmt.Fprintf(w, "%d toolchain(s), %d slot(s), %d pending\n", len(doc.Toolchains), doc.Slots, doc.Pending); err != nil {
		return err
	}
	for _, e := range doc.Toolchains {
		if _, err := fmt.Fprintf(w, "%s\n", e.Toolchain); err != nil {
			return err
		}
		for _, b := range e.Benchmarks {
			mark := "+"
			if b.Done {
				mark = "="
			}
			if _, err := fmt.Fprintf(w, "  %s %s\n", mark, b.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
