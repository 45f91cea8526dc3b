// Package catalog assembles the package catalog from archives under a storage
// root and answers queries against it.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	packageindex "github.com/wolfeidau/package-index"
	"github.com/wolfeidau/package-index/filename"
	"github.com/wolfeidau/package-index/version"
)

var (
	// ErrNotFound is returned when a package or file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRootUnreadable is returned when the storage root cannot be enumerated.
	ErrRootUnreadable = errors.New("storage root unreadable")
)

// NotFoundError reports a missing package.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("package %q: %s", e.Name, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RootError reports a failure to enumerate the storage root.
type RootError struct {
	Root string
	Err  error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("enumerating %s: %v", e.Root, e.Err)
}

func (e *RootError) Unwrap() error {
	return e.Err
}

// Is matches ErrRootUnreadable.
func (e *RootError) Is(target error) bool {
	return target == ErrRootUnreadable
}

// PackageFile describes one archive on disk. Values handed out by a Builder
// are shared with its cache and must be treated as read-only.
type PackageFile struct {
	Filename     string               `json:"filename"`
	Path         string               `json:"path"`
	Size         int64                `json:"size"`
	ModifiedAt   time.Time            `json:"modified_at"`
	MD5Digest    string               `json:"md5_digest"`
	SHA256Digest string               `json:"sha256_digest"`
	ContentHash  string               `json:"content_hash,omitempty"`
	Kind         filename.ArchiveKind `json:"kind"`

	Name    string `json:"name"`
	Version string `json:"version"`

	Summary                string `json:"summary"`
	Author                 string `json:"author"`
	AuthorEmail            string `json:"author_email"`
	HomePage               string `json:"home_page"`
	Description            string `json:"description"`
	DescriptionContentType string `json:"description_content_type,omitempty"`
	License                string `json:"license,omitempty"`
	RequiresPython         string `json:"requires_python,omitempty"`
	MetadataVersion        string `json:"metadata_version,omitempty"`

	PythonTag   string `json:"python_tag,omitempty"`
	ABITag      string `json:"abi_tag,omitempty"`
	PlatformTag string `json:"platform_tag,omitempty"`
	BuildTag    string `json:"build_tag,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	parsed version.Version
}

// Digests returns the file's digests.
func (f *PackageFile) Digests() packageindex.Digests {
	return packageindex.Digests{MD5: f.MD5Digest, SHA256: f.SHA256Digest, BLAKE3: f.ContentHash}
}

// Catalog maps a lower-cased package name to its files, newest version first.
type Catalog map[string][]*PackageFile

// Names returns the package names in ascending order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Stats summarises the catalog.
func (c Catalog) Stats() Stats {
	st := Stats{PackageCount: len(c)}
	for _, files := range c {
		st.FileCount += len(files)
		for _, f := range files {
			st.TotalBytes += f.Size
		}
	}
	return st
}

// Find returns the file with the given base name. When several files share
// it, the first in name order and then package order wins.
func (c Catalog) Find(name string) (*PackageFile, bool) {
	for _, key := range c.Names() {
		for _, f := range c[key] {
			if f.Filename == name {
				return f, true
			}
		}
	}
	return nil, false
}

// SearchResult is one package matched by a search.
type SearchResult struct {
	Name          string   `json:"name"`
	LatestVersion string   `json:"latest_version"`
	Summary       string   `json:"summary"`
	Description   string   `json:"description"`
	Author        string   `json:"author"`
	HomePage      string   `json:"home_page"`
	Versions      []string `json:"versions"`
}

// Stats holds catalog totals.
type Stats struct {
	PackageCount int   `json:"total_packages"`
	FileCount    int   `json:"total_files"`
	TotalBytes   int64 `json:"total_size"`
}

var normalizeRe = regexp.MustCompile(`[-_.]+`)

// NormalizeName applies PEP 503 name normalization.
func NormalizeName(name string) string {
	return strings.ToLower(normalizeRe.ReplaceAllString(strings.TrimSpace(name), "-"))
}

// sortFiles orders files newest version first. Unparseable versions sort
// last; ties fall back to the filename, then the path.
func sortFiles(files []*PackageFile) {
	slices.SortFunc(files, func(a, b *PackageFile) int {
		if c := b.parsed.Compare(a.parsed); c != 0 {
			return c
		}
		if c := strings.Compare(a.Filename, b.Filename); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
}
