package toolchain

import (
	"fmt"
	"time"
)

// Kind identifies the active variant of a Spec.
type Kind int

const (
	KindInvalid Kind = iota
	KindSingle
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindRange:
		return "range"
	default:
		return "invalid"
	}
}

// ConfigError reports an unusable toolchain selection. It is returned before
// any planning, installation or store access takes place.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// ErrUnsupportedSelection is the message used when both or neither of the
// single-toolchain and nightly-range selectors are supplied.
const ErrUnsupportedSelection = "unsupported toolchain configuration"

// Spec selects the toolchains a run measures. Exactly one of the single and
// range variants is active in a Spec built by this package; the zero Spec is
// invalid and is rejected by Resolve.
type Spec struct {
	kind  Kind
	name  string
	start time.Time
	end   time.Time
}

// Single selects exactly one named toolchain.
func Single(name string) (Spec, error) {
	if Named(name).IsZero() {
		return Spec{}, &ConfigError{Msg: "empty toolchain name"}
	}
	return Spec{kind: KindSingle, name: name}, nil
}

// Range selects the nightly of every calendar day in [start, end].
func Range(start, end time.Time) (Spec, error) {
	start, end = Day(start), Day(end)
	if start.After(end) {
		return Spec{}, &ConfigError{Msg: fmt.Sprintf(
			"nightly range start %s is after end %s",
			start.Format(DateLayout), end.Format(DateLayout))}
	}
	return Spec{kind: KindRange, start: start, end: end}, nil
}

// FromSelection builds a Spec from the two mutually exclusive command-line
// selectors. since, when set, opens a range ending at today.
func FromSelection(single string, since *time.Time, today time.Time) (Spec, error) {
	switch {
	case single != "" && since == nil:
		return Single(single)
	case single == "" && since != nil:
		return Range(*since, today)
	default:
		return Spec{}, &ConfigError{Msg: ErrUnsupportedSelection}
	}
}

// Kind returns the active variant.
func (s Spec) Kind() Kind { return s.kind }

// Bounds returns the inclusive date range of a range Spec.
func (s Spec) Bounds() (start, end time.Time, ok bool) {
	return s.start, s.end, s.kind == KindRange
}

// Resolve expands s into its toolchains in measurement order. A range yields
// one nightly per day, ascending, whether or not that nightly was published;
// missing nightlies surface later as install errors.
func (s Spec) Resolve() ([]Toolchain, error) {
	switch s.kind {
	case KindSingle:
		return []Toolchain{Named(s.name)}, nil
	case KindRange:
		var out []Toolchain
		for d := s.start; !d.After(s.end); d = d.AddDate(0, 0, 1) {
			out = append(out, Nightly(d))
		}
		return out, nil
	default:
		return nil, &ConfigError{Msg: ErrUnsupportedSelection}
	}
}

func (s Spec) String() string {
	switch s.kind {
	case KindSingle:
		return s.name
	case KindRange:
		return s.start.Format(DateLayout) + ".." + s.end.Format(DateLayout)
	default:
		return "<invalid>"
	}
}
