// Package toolchain describes the compiler toolchains a benchmark run is
// measured against and the selection that resolves into them.
//
// A Spec is a tagged union of a single named toolchain or an inclusive range
// of dated nightlies. Specs can only be built through the constructors in
// this package, so an ambiguous selection never reaches the planner.
package toolchain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for nightly names and the
// --nightlies-since flag.
const DateLayout = "2006-01-02"

const nightlyPrefix = "nightly-"

// Toolchain is a resolved, installable toolchain identity. The zero value is
// not a valid toolchain.
type Toolchain struct {
	name string
	date time.Time // zero unless this is a dated nightly
}

// Named returns the toolchain with the given channel or version name, e.g.
// "stable", "beta" or "1.75.0". Names of the form nightly-YYYY-MM-DD are
// recognised as dated nightlies.
func Named(name string) Toolchain {
	name = strings.TrimSpace(name)
	if d, ok := parseNightly(name); ok {
		return Nightly(d)
	}
	return Toolchain{name: name}
}

// Nightly returns the nightly toolchain published on the calendar day of d.
func Nightly(d time.Time) Toolchain {
	d = Day(d)
	return Toolchain{name: nightlyPrefix + d.Format(DateLayout), date: d}
}

// String returns the installable name.
func (t Toolchain) String() string { return t.name }

// IsZero reports whether t is the zero Toolchain.
func (t Toolchain) IsZero() bool { return t.name == "" }

// Date returns the publication date of a dated nightly.
func (t Toolchain) Date() (time.Time, bool) {
	return t.date, !t.date.IsZero()
}

// MarshalText implements encoding.TextMarshaler.
func (t Toolchain) MarshalText() ([]byte, error) {
	return []byte(t.name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Toolchain) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		return fmt.Errorf("empty toolchain name")
	}
	*t = Named(s)
	return nil
}

func parseNightly(name string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(name, nightlyPrefix)
	if !ok {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, rest)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return d, nil
}
