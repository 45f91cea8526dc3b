// Package simple serves a local package catalog over the Simple Repository
// API (PEP 503 and PEP 691) together with a small JSON API and an upload
// endpoint.
package simple

import (
	packageurl "github.com/package-url/packageurl-go"

	"github.com/wolfeidau/package-index/catalog"
)

// APIMeta contains API version information (PEP 691).
type APIMeta struct {
	APIVersion string `json:"api-version"`
}

// ProjectList represents the root index response (PEP 691).
type ProjectList struct {
	Meta     APIMeta          `json:"meta"`
	Projects []ProjectSummary `json:"projects"`
}

// ProjectSummary represents a project in the root index.
type ProjectSummary struct {
	Name string `json:"name"`
}

// ProjectPage represents the project detail response (PEP 691).
type ProjectPage struct {
	Meta  APIMeta       `json:"meta"`
	Name  string        `json:"name"`
	Files []ProjectFile `json:"files"`
}

// ProjectFile represents a downloadable file for a project.
type ProjectFile struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	Hashes         map[string]string `json:"hashes"`
	RequiresPython string            `json:"requires-python,omitempty"`
	Size           int64             `json:"size"`
}

// PackageFile is a catalog entry as rendered by the JSON API.
type PackageFile struct {
	*catalog.PackageFile
	PURL string `json:"purl"`
}

// PackageInfo is the response for a single package.
type PackageInfo struct {
	Name  string        `json:"name"`
	Files []PackageFile `json:"files"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Packages []catalog.SearchResult `json:"packages"`
}

// StatsResponse reports catalog totals.
type StatsResponse struct {
	catalog.Stats
	TotalSizeMB float64 `json:"total_size_mb"`
}

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	Message     string      `json:"message"`
	Filename    string      `json:"filename"`
	Size        int64       `json:"size"`
	PackageInfo PackageFile `json:"package_info"`
}

// ErrorResponse carries a client-facing error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CurrentAPIVersion is the current Simple API version.
const CurrentAPIVersion = "1.0"

// Content types for the Simple API (PEP 691).
const (
	ContentTypeJSON = "application/vnd.pypi.simple.v1+json"
	ContentTypeHTML = "text/html"
)

// PURL returns the package URL for a catalog entry, e.g.
// pkg:pypi/requests@2.31.0?file_name=requests-2.31.0.tar.gz.
func PURL(f *catalog.PackageFile) string {
	qualifiers := packageurl.QualifiersFromMap(map[string]string{"file_name": f.Filename})
	return packageurl.NewPackageURL(packageurl.TypePyPi, "", catalog.NormalizeName(f.Name), f.Version, qualifiers, "").ToString()
}

func newPackageFile(f *catalog.PackageFile) PackageFile {
	return PackageFile{PackageFile: f, PURL: PURL(f)}
}
