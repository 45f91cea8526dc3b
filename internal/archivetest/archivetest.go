// Package archivetest builds wheel and sdist fixtures for tests.
package archivetest

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// Entry is one member of a fixture archive.
type Entry struct {
	Name string
	Body string
}

// Metadata renders a minimal metadata block from ordered key/value pairs.
func Metadata(kv ...string) string {
	var buf bytes.Buffer
	for i := 0; i+1 < len(kv); i += 2 {
		buf.WriteString(kv[i])
		buf.WriteString(": ")
		buf.WriteString(kv[i+1])
		buf.WriteString("\n")
	}
	return buf.String()
}

// ZipBytes returns a zip archive containing entries in order.
func ZipBytes(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("zip create %s: %v", e.Name, err)
		}
		if _, err := w.Write([]byte(e.Body)); err != nil {
			t.Fatalf("zip write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// TarGzBytes returns a gzip-compressed tar archive containing entries in
// order. Entries whose name ends in "/" are written as directories.
func TarGzBytes(t testing.TB, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.Name,
			Mode:    0o644,
			Size:    int64(len(e.Body)),
			ModTime: time.Unix(1700000000, 0),
		}
		if len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/' {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
			hdr.Size = 0
		} else {
			hdr.Typeflag = tar.TypeReg
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				t.Fatalf("tar write %s: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// WriteFile writes data to dir/name, creating parent directories, and
// returns the full path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteWheel writes a wheel whose dist-info METADATA holds meta.
func WriteWheel(t testing.TB, dir, name, meta string) string {
	t.Helper()
	distInfo := filepath.Base(name)
	if i := len(distInfo) - len(".whl"); i > 0 {
		distInfo = distInfo[:i]
	}
	return WriteFile(t, dir, name, ZipBytes(t,
		Entry{Name: "pkg/__init__.py", Body: ""},
		Entry{Name: distInfo + ".dist-info/METADATA", Body: meta},
	))
}

// WriteSdist writes a source distribution whose top-level PKG-INFO holds
// meta. An empty meta omits PKG-INFO entirely.
func WriteSdist(t testing.TB, dir, name, meta string) string {
	t.Helper()
	stem := filepath.Base(name)
	if i := len(stem) - len(".tar.gz"); i > 0 {
		stem = stem[:i]
	}
	entries := []Entry{{Name: stem + "/"}, {Name: stem + "/setup.py", Body: "from setuptools import setup\n"}}
	if meta != "" {
		entries = append(entries, Entry{Name: stem + "/PKG-INFO", Body: meta})
	}
	return WriteFile(t, dir, name, TarGzBytes(t, entries...))
}

// Touch moves the modification time of path forward by d.
func Touch(t testing.TB, path string, d time.Duration) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	mt := info.ModTime().Add(d)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}
