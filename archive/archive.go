// Package archive extracts the raw metadata block from Python distribution
// archives.
//
// Each container format has its own Extractor. Extraction has three outcomes:
// the metadata text, ErrNotFound for a well-formed archive without a metadata
// entry, or an error wrapping ErrUnreadable for anything that could not be
// read. None of them is fatal to the caller.
package archive

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/wolfeidau/package-index/filename"
)

// MaxMetadataSize caps the number of bytes read from a metadata entry.
const MaxMetadataSize = 16 << 20

var (
	// ErrNotFound is returned when the archive has no metadata entry.
	ErrNotFound = errors.New("metadata entry not found")

	// ErrUnreadable is wrapped by every error caused by an archive that is
	// corrupt, truncated, of the wrong format or otherwise unreadable.
	ErrUnreadable = errors.New("archive unreadable")

	// ErrUnsupported is returned for filenames without a supported suffix.
	ErrUnsupported = errors.New("unsupported archive format")
)

// Extractor returns the metadata text stored inside one archive format.
type Extractor interface {
	Extract(path string) (string, error)
}

// Inspector extracts metadata from any supported archive.
// Implementations must be safe for concurrent use.
type Inspector interface {
	Inspect(path string) (string, error)
}

// InspectorFunc adapts a function to the Inspector interface.
type InspectorFunc func(path string) (string, error)

// Inspect calls f(path).
func (f InspectorFunc) Inspect(path string) (string, error) {
	return f(path)
}

// ForFilename returns the extractor for the archive format implied by the
// filename suffix, or nil if the format is not supported.
func ForFilename(name string) Extractor {
	switch filename.Kind(name) {
	case filename.KindWheel:
		return Wheel{}
	case filename.KindSdist:
		return Sdist{}
	default:
		return nil
	}
}

// Default is the Inspector that selects an extractor by filename suffix.
var Default Inspector = InspectorFunc(inspect)

func inspect(path string) (string, error) {
	ex := ForFilename(filepath.Base(path))
	if ex == nil {
		return "", fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupported)
	}
	return ex.Extract(path)
}

// unreadable wraps err so that errors.Is(err, ErrUnreadable) holds while the
// cause stays available.
func unreadable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnreadable, op, err)
}

// readEntry reads at most MaxMetadataSize bytes and decodes them as UTF-8,
// replacing invalid sequences.
func readEntry(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxMetadataSize+1))
	if err != nil {
		return "", unreadable("reading metadata entry", err)
	}
	if len(data) > MaxMetadataSize {
		return "", unreadable("reading metadata entry", fmt.Errorf("entry exceeds %d bytes", MaxMetadataSize))
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}
