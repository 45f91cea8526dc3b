package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sync/singleflight"

	packageindex "github.com/wolfeidau/package-index"
	"github.com/wolfeidau/package-index/archive"
	"github.com/wolfeidau/package-index/filename"
	"github.com/wolfeidau/package-index/metacache"
	"github.com/wolfeidau/package-index/metadata"
	"github.com/wolfeidau/package-index/storage"
	"github.com/wolfeidau/package-index/telemetry"
	"github.com/wolfeidau/package-index/version"
)

// DefaultVersion is assigned when neither metadata nor filename yield a version.
const DefaultVersion = "0.0.0"

// Builder walks a storage root and assembles a Catalog. It is safe for
// concurrent use; concurrent builds share the metadata cache.
type Builder struct {
	root      string
	cache     *metacache.Cache[*PackageFile]
	inspector archive.Inspector
	logger    *slog.Logger
	workers   int

	inflight singleflight.Group
}

// Option configures a Builder.
type Option func(*Builder)

// WithCache sets the metadata cache. Builders sharing a cache share parse
// results.
func WithCache(c *metacache.Cache[*PackageFile]) Option {
	return func(b *Builder) {
		b.cache = c
	}
}

// WithInspector sets the archive inspector.
func WithInspector(i archive.Inspector) Option {
	return func(b *Builder) {
		b.inspector = i
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithWorkers bounds the number of goroutines walking and inspecting files.
// Zero uses the walker default.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		b.workers = n
	}
}

// NewBuilder creates a builder for root, creating the directory if needed.
func NewBuilder(root string, opts ...Option) (*Builder, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	b := &Builder{
		root:      absRoot,
		inspector: archive.Default,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.cache == nil {
		b.cache = metacache.New[*PackageFile](0)
	}
	b.logger = b.logger.With("component", "catalog")
	return b, nil
}

// Root returns the absolute storage root.
func (b *Builder) Root() string {
	return b.root
}

// Cache returns the metadata cache.
func (b *Builder) Cache() *metacache.Cache[*PackageFile] {
	return b.cache
}

// Build enumerates every archive under the root and returns a fresh catalog.
// Per-file failures are logged and absorbed; only a failure to enumerate the
// root itself is returned, as a *RootError.
func (b *Builder) Build(ctx context.Context) (Catalog, error) {
	start := time.Now()

	if err := b.checkRoot(); err != nil {
		telemetry.RecordCatalogBuild(ctx, time.Since(start), 0, 0, 0, "error")
		return nil, err
	}

	var (
		mu     sync.Mutex
		files  []*PackageFile
		hits   int
		misses int
	)

	conf := fastwalk.Config{Follow: false, NumWorkers: b.workers}
	walkErr := fastwalk.Walk(&conf, b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == b.root {
				return err
			}
			b.logger.Warn("skipping unreadable directory", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() || !isCandidate(d.Name()) {
			return nil
		}

		pf, hit := b.load(ctx, path)

		mu.Lock()
		files = append(files, pf)
		if hit {
			hits++
		} else {
			misses++
		}
		mu.Unlock()
		return nil
	})
	if walkErr != nil {
		telemetry.RecordCatalogBuild(ctx, time.Since(start), 0, hits, misses, "error")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &RootError{Root: b.root, Err: walkErr}
	}

	cat := make(Catalog)
	for _, f := range files {
		key := strings.ToLower(f.Name)
		cat[key] = append(cat[key], f)
	}
	for _, group := range cat {
		sortFiles(group)
	}

	result := telemetry.CacheHit
	if misses > 0 {
		result = telemetry.CacheMiss
	}
	telemetry.SetCacheResultContext(ctx, result)
	telemetry.RecordCatalogBuild(ctx, time.Since(start), len(cat), hits, misses, "ok")

	b.logger.Debug("catalog built",
		"packages", len(cat),
		"files", len(files),
		"cache_hits", hits,
		"cache_misses", misses,
		"duration", time.Since(start),
	)
	return cat, nil
}

// Inspect returns the catalog entry for a single archive at path, which may be
// absolute or relative to the root. The result is cached like any other.
func (b *Builder) Inspect(ctx context.Context, path string) (*PackageFile, error) {
	abs := b.abs(path)
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", filepath.Base(abs), ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.Mode().IsRegular() || !filename.IsArchive(info.Name()) {
		return nil, fmt.Errorf("%s is not a package archive", info.Name())
	}
	pf, _ := b.load(ctx, abs)
	return pf, nil
}

// Forget drops every cached entry for path, or for every file below path
// when it names a directory. Call it when an archive is deleted. It returns
// the number of entries removed.
func (b *Builder) Forget(ctx context.Context, path string) int {
	return b.evict(ctx, path, "delete")
}

func (b *Builder) evict(ctx context.Context, path, reason string) int {
	abs := b.abs(path)
	n := b.cache.EvictPath(abs)
	prefix := abs + string(filepath.Separator)
	n += b.cache.Sweep(func(k metacache.Key) bool {
		return strings.HasPrefix(k.Path, prefix)
	})
	telemetry.RecordCacheEviction(ctx, reason, n)
	return n
}

func (b *Builder) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(b.root, filepath.FromSlash(path))
}

func (b *Builder) checkRoot() error {
	info, err := os.Stat(b.root)
	if err != nil {
		return &RootError{Root: b.root, Err: err}
	}
	if !info.IsDir() {
		return &RootError{Root: b.root, Err: fmt.Errorf("%s is not a directory", b.root)}
	}
	return nil
}

func isCandidate(name string) bool {
	return filename.IsArchive(name) && !strings.HasPrefix(name, storage.TempPrefix)
}

// load returns the entry for path, from cache when the file is unchanged.
func (b *Builder) load(ctx context.Context, path string) (*PackageFile, bool) {
	info, err := os.Stat(path)
	if err != nil {
		// The file vanished or is unreadable; report what the name tells us.
		b.logger.Warn("stat failed", "path", path, "error", err)
		telemetry.RecordInspectFailure(ctx, "stat")
		return b.assemble(ctx, path, nil), false
	}

	key := metacache.KeyFor(path, info.ModTime())
	if pf, ok := b.cache.Get(key); ok {
		return pf, true
	}

	flight := path + "\x00" + strconv.FormatInt(key.ModTime, 10)
	v, _, _ := b.inflight.Do(flight, func() (any, error) {
		pf := b.assemble(ctx, path, info)
		b.cache.Put(key, pf)
		return pf, nil
	})
	return v.(*PackageFile), false
}

// assemble inspects, parses and hashes one archive. It never fails; anything
// that cannot be recovered is left empty.
func (b *Builder) assemble(ctx context.Context, path string, info fs.FileInfo) *PackageFile {
	base := filepath.Base(path)
	pf := &PackageFile{
		Filename: base,
		Path:     b.relPath(path),
		Kind:     filename.Kind(base),
	}
	if info != nil {
		pf.Size = info.Size()
		pf.ModifiedAt = info.ModTime().UTC()
	}

	var fields metadata.Fields
	text, err := b.inspector.Inspect(path)
	switch {
	case err == nil:
		pf.Metadata = metadata.Parse(text)
		fields = metadata.FromMap(pf.Metadata)
	case errors.Is(err, archive.ErrNotFound):
		b.logger.Debug("no metadata entry", "path", path)
		telemetry.RecordInspectFailure(ctx, "no_metadata")
	default:
		b.logger.Warn("archive unreadable", "path", path, "error", err)
		telemetry.RecordInspectFailure(ctx, "unreadable")
	}

	applyIdentity(pf, base, fields)

	pf.Summary = fields.Summary
	pf.Author = fields.Author
	pf.AuthorEmail = fields.AuthorEmail
	pf.HomePage = fields.HomePage
	pf.Description = fields.Description
	pf.DescriptionContentType = fields.DescriptionContentType
	pf.License = fields.License
	pf.RequiresPython = fields.RequiresPython
	pf.MetadataVersion = fields.MetadataVersion

	if info != nil {
		d := packageindex.ComputeDigests(path)
		if d.IsZero() && pf.Size > 0 {
			b.logger.Warn("digest failed", "path", path)
			telemetry.RecordInspectFailure(ctx, "digest")
		}
		pf.MD5Digest = d.MD5
		pf.SHA256Digest = d.SHA256
		pf.ContentHash = d.BLAKE3
	}
	return pf
}

// applyIdentity resolves name, version and wheel tags. Metadata wins for
// name and version, then the filename grammar, then the bare stem. Wheel
// tags only exist in the filename.
func applyIdentity(pf *PackageFile, base string, fields metadata.Fields) {
	var fnName, fnVersion string
	switch pf.Kind {
	case filename.KindWheel:
		w, _ := filename.ParseWheel(base)
		fnName, fnVersion = w.Name, w.Version
		pf.PythonTag = w.PythonTag
		pf.ABITag = w.ABITag
		pf.PlatformTag = w.PlatformTag
		pf.BuildTag = w.BuildTag
	case filename.KindSdist:
		s, _ := filename.ParseSdist(base)
		fnName, fnVersion = s.Name, s.Version
	}

	pf.Name = firstNonEmpty(strings.ToLower(strings.TrimSpace(fields.Name)), fnName, strings.ToLower(filename.Stem(base)))
	pf.Version = firstNonEmpty(strings.TrimSpace(fields.Version), fnVersion, DefaultVersion)
	pf.parsed = version.Parse(pf.Version)
}

func (b *Builder) relPath(path string) string {
	rel, err := filepath.Rel(b.root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
