package bench

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk list of benchmarks. In TOML each benchmark is a
// [[benchmark]] table; in YAML it is an entry of the top-level "benchmarks"
// sequence.
type Manifest struct {
	Benchmarks []Benchmark `toml:"benchmark" yaml:"benchmarks"`
}

// LoadManifest reads the manifest at path into a new Registry. The format is
// chosen by extension: .yaml and .yml are YAML, anything else is TOML.
// Relative benchmark directories are resolved against the manifest's
// directory.
func LoadManifest(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read benchmark manifest: %w", err)
	}
	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("parse benchmark manifest %s: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(data), &m)
		if err != nil {
			return nil, fmt.Errorf("parse benchmark manifest %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse benchmark manifest %s: unknown key %q", path, undecoded[0].String())
		}
	}

	base := filepath.Dir(path)
	reg := NewRegistry()
	for i, b := range m.Benchmarks {
		if b.Dir != "" && !filepath.IsAbs(b.Dir) {
			b.Dir = filepath.Join(base, b.Dir)
		}
		if err := reg.Register(b); err != nil {
			return nil, fmt.Errorf("benchmark manifest %s: entry %d: %w", path, i+1, err)
		}
	}
	return reg, nil
}
