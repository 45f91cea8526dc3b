package archive

import (
	"strings"

	"github.com/klauspost/compress/zip"
)

// wheelMetadataSuffix marks the metadata file inside a wheel's .dist-info
// directory.
const wheelMetadataSuffix = ".dist-info/METADATA"

// Wheel extracts METADATA from a zip-based binary distribution.
type Wheel struct{}

// Extract returns the contents of the first entry ending in
// ".dist-info/METADATA", in zip directory order.
func (Wheel) Extract(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", unreadable("opening wheel", err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, wheelMetadataSuffix) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", unreadable("opening "+f.Name, err)
		}
		defer func() { _ = rc.Close() }()
		return readEntry(rc)
	}

	return "", ErrNotFound
}
