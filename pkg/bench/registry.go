// Package bench defines the benchmarks toolbench measures: their
// registration through a manifest, the parsing of their output, and their
// execution under a given toolchain.
package bench

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Benchmark is a runnable unit identified by name. Runner optionally tags
// the benchmark with the machine or pool that should run it.
type Benchmark struct {
	Name    string            `toml:"name" yaml:"name" json:"name"`
	Runner  string            `toml:"runner" yaml:"runner,omitempty" json:"runner,omitempty"`
	Command []string          `toml:"command" yaml:"command" json:"command"`
	Dir     string            `toml:"dir" yaml:"dir,omitempty" json:"dir,omitempty"`
	Env     map[string]string `toml:"env" yaml:"env,omitempty" json:"env,omitempty"`
}

// Validate reports whether b can be registered.
func (b Benchmark) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("benchmark has no name")
	}
	if b.Name == "." || b.Name == ".." || strings.HasPrefix(b.Name, ".tmp-") {
		return fmt.Errorf("benchmark name %q is reserved", b.Name)
	}
	if len(b.Command) == 0 || b.Command[0] == "" {
		return fmt.Errorf("benchmark %q has no command", b.Name)
	}
	return nil
}

// Registry holds the known benchmarks in registration order. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Benchmark
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Benchmark)}
}

// Register adds b. Names are unique.
func (r *Registry) Register(b Benchmark) error {
	if err := b.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[b.Name]; exists {
		return fmt.Errorf("benchmark %q already registered", b.Name)
	}
	b.Command = slices.Clone(b.Command)
	b.Env = maps.Clone(b.Env)
	r.byName[b.Name] = b
	r.order = append(r.order, b.Name)
	return nil
}

// Get returns the benchmark with the given name.
func (r *Registry) Get(name string) (Benchmark, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byName[name]
	return b, ok
}

// Len returns the number of registered benchmarks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// All returns every benchmark in registration order.
func (r *Registry) All() []Benchmark {
	return r.Filter("")
}

// Filter returns the benchmarks assigned to runner, in registration order.
// An empty runner selects every benchmark.
func (r *Registry) Filter(runner string) []Benchmark {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Benchmark, 0, len(r.order))
	for _, name := range r.order {
		b := r.byName[name]
		if runner != "" && b.Runner != runner {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Runners returns the distinct runner tags in use, sorted.
func (r *Registry) Runners() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for _, b := range r.byName {
		if b.Runner != "" {
			seen[b.Runner] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}
