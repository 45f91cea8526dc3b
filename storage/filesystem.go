package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	packageindex "github.com/wolfeidau/package-index"
)

// Filesystem implements Store on the local filesystem.
// Writes are atomic using a temp file and rename (or link) pattern.
type Filesystem struct {
	root string
}

// NewFilesystem creates a new filesystem store rooted at the given path.
// The directory will be created if it does not exist.
func NewFilesystem(root string) (*Filesystem, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}
	return &Filesystem{root: absRoot}, nil
}

// Root returns the root directory path.
func (s *Filesystem) Root() string {
	return s.root
}

// Path returns the filesystem path for name.
func (s *Filesystem) Path(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Write stores r under name using an atomic write.
func (s *Filesystem) Write(ctx context.Context, name string, r io.Reader, overwrite bool) (WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return WriteResult{}, err
	}
	dst, err := s.Path(name)
	if err != nil {
		return WriteResult{}, err
	}
	if !overwrite {
		if _, err := os.Lstat(dst); err == nil {
			return WriteResult{}, fmt.Errorf("%s: %w", name, ErrExists)
		}
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WriteResult{}, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return WriteResult{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// The temp file is always removed: after a rename it no longer exists,
	// after a link it is a second name for the committed file.
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	hr := packageindex.NewHashingReader(r)
	if _, err := io.Copy(tmp, hr); err != nil {
		return WriteResult{}, fmt.Errorf("writing data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return WriteResult{}, fmt.Errorf("syncing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return WriteResult{}, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return WriteResult{}, fmt.Errorf("setting permissions: %w", err)
	}

	if overwrite {
		if err := os.Rename(tmpPath, dst); err != nil {
			return WriteResult{}, fmt.Errorf("renaming temp file: %w", err)
		}
	} else {
		// Link fails if dst appeared since the check above, so two
		// concurrent uploads of one name cannot clobber each other.
		if err := os.Link(tmpPath, dst); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return WriteResult{}, fmt.Errorf("%s: %w", name, ErrExists)
			}
			return WriteResult{}, fmt.Errorf("linking temp file: %w", err)
		}
	}

	clean, _ := CleanName(name)
	return WriteResult{
		Name: clean,
		Path: dst,
		Size: hr.BytesRead(),
		Hash: hr.Sum(),
	}, nil
}

// Open opens name for reading.
func (s *Filesystem) Open(ctx context.Context, name string) (File, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("opening file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return f, nil
}

// Delete removes name.
func (s *Filesystem) Delete(ctx context.Context, name string) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

// Exists checks if name exists.
func (s *Filesystem) Exists(ctx context.Context, name string) (bool, error) {
	p, err := s.Path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking file: %w", err)
}

// CleanName validates a slash-separated name relative to the root and
// returns its cleaned form. Absolute names, names escaping the root and
// temp-file names are rejected.
func CleanName(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "\\\x00") {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	clean := path.Clean(name)
	if path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	if strings.HasPrefix(path.Base(clean), TempPrefix) {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return clean, nil
}

var _ Store = (*Filesystem)(nil)
