// Package version orders Python package versions under PEP 440.
//
// Ordering is total over arbitrary strings: a version that fails to parse
// sorts below every parseable version and never produces an error.
package version

import (
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Version is a parsed version string. The zero value is an invalid version.
type Version struct {
	raw    string
	parsed pep440.Version
	valid  bool
}

// Parse parses s. Invalid input yields a Version with Valid() == false.
func Parse(s string) Version {
	v, err := pep440.Parse(strings.TrimSpace(s))
	if err != nil {
		return Version{raw: s}
	}
	return Version{raw: s, parsed: v, valid: true}
}

// Valid reports whether the version parsed under PEP 440.
func (v Version) Valid() bool {
	return v.valid
}

// String returns the original version string.
func (v Version) String() string {
	return v.raw
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to
// or after w. Two invalid versions compare equal.
func (v Version) Compare(w Version) int {
	switch {
	case !v.valid && !w.valid:
		return 0
	case !v.valid:
		return -1
	case !w.valid:
		return 1
	}
	switch c := v.parsed.Compare(w.parsed); {
	case c < 0:
		return -1
	case c > 0:
		return 1
	default:
		return 0
	}
}

// Compare parses a and b and compares them. See Version.Compare.
func Compare(a, b string) int {
	return Parse(a).Compare(Parse(b))
}

// Valid reports whether s is a valid PEP 440 version.
func Valid(s string) bool {
	return Parse(s).Valid()
}
