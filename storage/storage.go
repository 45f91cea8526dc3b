// Package storage provides the archive store behind the package index.
package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"

	packageindex "github.com/wolfeidau/package-index"
)

// TempPrefix marks in-progress writes. Catalog builds skip these files.
const TempPrefix = ".tmp-"

var (
	// ErrNotFound is returned when an archive does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when writing over an existing archive without
	// overwrite.
	ErrExists = errors.New("already exists")

	// ErrInvalidName is returned for names that escape the root or are
	// otherwise unusable.
	ErrInvalidName = errors.New("invalid name")
)

// File is an open archive.
type File interface {
	io.ReadSeekCloser
	Stat() (fs.FileInfo, error)
}

// WriteResult describes a committed write.
type WriteResult struct {
	Name string
	Path string
	Size int64
	Hash packageindex.Hash
}

// Store defines archive storage. Names are slash separated and relative to
// the store root. Implementations must be safe for concurrent use.
type Store interface {
	// Write stores r under name. The write is atomic: readers see either
	// the previous content or the complete new content. Returns ErrExists
	// when name exists and overwrite is false.
	Write(ctx context.Context, name string, r io.Reader, overwrite bool) (WriteResult, error)

	// Open opens name for reading. Returns ErrNotFound if it does not exist.
	// The caller must close the returned File.
	Open(ctx context.Context, name string) (File, error)

	// Delete removes name. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, name string) error

	// Exists checks if name exists.
	Exists(ctx context.Context, name string) (bool, error)
}
