// Package filename splits Python distribution archive filenames into their
// name, version and tag components.
//
// The parsers never fail hard: malformed input yields a partial result and
// ok == false so the caller can apply its own defaults.
package filename

import (
	"strings"
)

// Archive suffixes recognised by the index.
const (
	WheelSuffix = ".whl"
	SdistSuffix = ".tar.gz"
)

// ArchiveKind identifies the distribution format of an archive.
type ArchiveKind string

const (
	KindWheel   ArchiveKind = "wheel"
	KindSdist   ArchiveKind = "sdist"
	KindUnknown ArchiveKind = ""
)

// Kind returns the archive kind implied by the filename suffix.
func Kind(name string) ArchiveKind {
	switch {
	case strings.HasSuffix(name, WheelSuffix):
		return KindWheel
	case strings.HasSuffix(name, SdistSuffix):
		return KindSdist
	default:
		return KindUnknown
	}
}

// IsArchive reports whether name carries one of the supported suffixes.
func IsArchive(name string) bool {
	return Kind(name) != KindUnknown
}

// Stem returns the filename with its archive suffix removed.
func Stem(name string) string {
	switch Kind(name) {
	case KindWheel:
		return strings.TrimSuffix(name, WheelSuffix)
	case KindSdist:
		return strings.TrimSuffix(name, SdistSuffix)
	default:
		return name
	}
}

// Wheel holds the components of a binary distribution filename:
// {name}-{version}[-{build}]-{python}-{abi}-{platform}.whl
type Wheel struct {
	Name        string
	Version     string
	BuildTag    string
	PythonTag   string
	ABITag      string
	PlatformTag string
}

// String reassembles the wheel filename.
func (w Wheel) String() string {
	parts := []string{w.Name, w.Version}
	if w.BuildTag != "" {
		parts = append(parts, w.BuildTag)
	}
	parts = append(parts, w.PythonTag, w.ABITag, w.PlatformTag)
	return strings.Join(parts, "-") + WheelSuffix
}

// ParseWheel parses a wheel filename. The first hyphen-delimited field is
// always the name. A filename with five or six fields is a full parse; anything
// else returns whatever fields could be recovered with ok == false.
func ParseWheel(name string) (Wheel, bool) {
	stem := strings.TrimSuffix(name, WheelSuffix)
	if stem == "" {
		return Wheel{}, false
	}

	parts := strings.Split(stem, "-")
	w := Wheel{Name: strings.ToLower(parts[0])}

	switch len(parts) {
	case 5:
		w.Version = parts[1]
		w.PythonTag, w.ABITag, w.PlatformTag = parts[2], parts[3], parts[4]
	case 6:
		w.Version = parts[1]
		w.BuildTag = parts[2]
		w.PythonTag, w.ABITag, w.PlatformTag = parts[3], parts[4], parts[5]
	default:
		if len(parts) >= 2 {
			w.Version = parts[1]
		}
		return w, false
	}

	if w.Name == "" || w.Version == "" {
		return w, false
	}
	return w, true
}

// Sdist holds the components of a source distribution filename:
// {name}-{version}.tar.gz
type Sdist struct {
	Name    string
	Version string
}

// String reassembles the source distribution filename.
func (s Sdist) String() string {
	return s.Name + "-" + s.Version + SdistSuffix
}

// ParseSdist parses a source distribution filename. The version is the text
// after the last hyphen and the name is everything before it, so names may
// themselves contain hyphens. When the split does not yield two non-empty
// parts the stem is returned as the name with an empty version and
// ok == false.
func ParseSdist(name string) (Sdist, bool) {
	stem := strings.TrimSuffix(name, SdistSuffix)

	i := strings.LastIndex(stem, "-")
	if i <= 0 || i == len(stem)-1 {
		return Sdist{Name: strings.ToLower(stem)}, false
	}
	return Sdist{
		Name:    strings.ToLower(stem[:i]),
		Version: stem[i+1:],
	}, true
}
