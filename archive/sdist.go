package archive

import (
	"archive/tar"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// sdistMetadataName is the package-info file of a source distribution.
const sdistMetadataName = "PKG-INFO"

// Sdist extracts PKG-INFO from a gzip-compressed tar source distribution.
type Sdist struct{}

// Extract returns the contents of the first regular file named PKG-INFO at
// the top level of the archive or one directory deep, in tar order.
func (Sdist) Extract(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", unreadable("opening sdist", err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", unreadable("opening gzip stream", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return "", ErrNotFound
		}
		if err != nil {
			return "", unreadable("reading tar entry", err)
		}
		if !hdr.FileInfo().Mode().IsRegular() || !isPkgInfo(hdr.Name) {
			continue
		}
		return readEntry(tr)
	}
}

// isPkgInfo reports whether a tar member name is PKG-INFO, bare or inside a
// single top-level directory.
func isPkgInfo(name string) bool {
	name = strings.TrimPrefix(name, "./")
	if name == sdistMetadataName {
		return true
	}
	dir, base, found := strings.Cut(name, "/")
	return found && dir != "" && base == sdistMetadataName
}
