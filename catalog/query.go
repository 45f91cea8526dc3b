package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Service answers catalog queries. Every query runs a fresh build so results
// always reflect the storage root; the metadata cache keeps that cheap.
type Service struct {
	builder *Builder
}

// NewService creates a query service over builder.
func NewService(builder *Builder) *Service {
	return &Service{builder: builder}
}

// Builder returns the underlying builder.
func (s *Service) Builder() *Builder {
	return s.builder
}

// ListAll returns the full catalog.
func (s *Service) ListAll(ctx context.Context) (Catalog, error) {
	return s.builder.Build(ctx)
}

// ListVersions returns the files of one package, newest first. The lookup is
// case-insensitive and falls back to PEP 503 normalization, so "My.Package"
// finds a group named "my_package".
func (s *Service) ListVersions(ctx context.Context, name string) ([]*PackageFile, error) {
	cat, err := s.builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	_, files, ok := lookup(cat, name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return files, nil
}

// Resolve returns the catalog key a requested name maps to.
func (s *Service) Resolve(ctx context.Context, name string) (string, error) {
	key, _, err := s.Project(ctx, name)
	return key, err
}

// Project resolves name like ListVersions and also returns the catalog key
// it matched, from a single build.
func (s *Service) Project(ctx context.Context, name string) (string, []*PackageFile, error) {
	cat, err := s.builder.Build(ctx)
	if err != nil {
		return "", nil, err
	}
	key, files, ok := lookup(cat, name)
	if !ok {
		return "", nil, &NotFoundError{Name: name}
	}
	return key, files, nil
}

func lookup(cat Catalog, name string) (string, []*PackageFile, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if files, ok := cat[key]; ok {
		return key, files, true
	}
	want := NormalizeName(name)
	for _, k := range cat.Names() {
		if NormalizeName(k) == want {
			return k, cat[k], true
		}
	}
	return "", nil, false
}

// Search matches query case-insensitively against package names first and
// then against summaries and descriptions. A name match reports the newest
// version; a text match reports the first version that matched. Results are
// ordered by name. An empty query yields no results.
func (s *Service) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []SearchResult{}, nil
	}

	cat, err := s.builder.Build(ctx)
	if err != nil {
		return nil, err
	}

	results := []SearchResult{}
	for _, name := range cat.Names() {
		files := cat[name]
		if len(files) == 0 {
			continue
		}
		if strings.Contains(name, query) {
			results = append(results, newSearchResult(name, files, files[0]))
			continue
		}
		for _, f := range files {
			if strings.Contains(strings.ToLower(f.Summary), query) ||
				strings.Contains(strings.ToLower(f.Description), query) {
				results = append(results, newSearchResult(name, files, f))
				break
			}
		}
	}
	return results, nil
}

func newSearchResult(name string, files []*PackageFile, match *PackageFile) SearchResult {
	versions := make([]string, len(files))
	for i, f := range files {
		versions[i] = f.Version
	}
	return SearchResult{
		Name:          name,
		LatestVersion: match.Version,
		Summary:       match.Summary,
		Description:   match.Description,
		Author:        match.Author,
		HomePage:      match.HomePage,
		Versions:      versions,
	}
}

// Stats returns catalog totals.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	cat, err := s.builder.Build(ctx)
	if err != nil {
		return Stats{}, err
	}
	return cat.Stats(), nil
}

// Names returns every package name in ascending order.
func (s *Service) Names(ctx context.Context) ([]string, error) {
	cat, err := s.builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	return cat.Names(), nil
}

// FindFile locates an archive by its path relative to the root, or by base
// name when the path has no directory component.
func (s *Service) FindFile(ctx context.Context, path string) (*PackageFile, error) {
	cat, err := s.builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	for _, files := range cat {
		for _, f := range files {
			if f.Path == path {
				return f, nil
			}
		}
	}
	if !strings.Contains(path, "/") {
		if f, ok := cat.Find(path); ok {
			return f, nil
		}
	}
	return nil, fmt.Errorf("file %q: %w", path, ErrNotFound)
}
