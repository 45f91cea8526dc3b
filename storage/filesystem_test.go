package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	packageindex "github.com/wolfeidau/package-index"
)

func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	s, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNewFilesystem(t *testing.T) {
	root := filepath.Join(t.TempDir(), "packages")

	s, err := NewFilesystem(root)
	require.NoError(t, err)
	require.Equal(t, root, s.Root())

	info, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestFilesystemWriteOpen(t *testing.T) {
	s := newTestFilesystem(t)
	ctx := context.Background()
	data := []byte("not really a wheel")

	res, err := s.Write(ctx, "widget-1.0-py3-none-any.whl", bytes.NewReader(data), false)
	require.NoError(t, err)
	require.Equal(t, "widget-1.0-py3-none-any.whl", res.Name)
	require.Equal(t, filepath.Join(s.Root(), "widget-1.0-py3-none-any.whl"), res.Path)
	require.EqualValues(t, len(data), res.Size)
	require.Equal(t, packageindex.HashBytes(data), res.Hash)

	f, err := s.Open(ctx, "widget-1.0-py3-none-any.whl")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, data, got)

	info, err := f.Stat()
	require.NoError(t, err)
	require.EqualValues(t, len(data), info.Size())
}

func TestFilesystemWriteNested(t *testing.T) {
	s := newTestFilesystem(t)

	res, err := s.Write(context.Background(), "widget/widget-1.0.tar.gz", strings.NewReader("x"), false)
	require.NoError(t, err)
	require.Equal(t, "widget/widget-1.0.tar.gz", res.Name)
	require.FileExists(t, filepath.Join(s.Root(), "widget", "widget-1.0.tar.gz"))
}

func TestFilesystemWriteExists(t *testing.T) {
	s := newTestFilesystem(t)
	ctx := context.Background()

	_, err := s.Write(ctx, "widget-1.0.tar.gz", strings.NewReader("first"), false)
	require.NoError(t, err)

	_, err = s.Write(ctx, "widget-1.0.tar.gz", strings.NewReader("second"), false)
	require.ErrorIs(t, err, ErrExists)

	f, err := s.Open(ctx, "widget-1.0.tar.gz")
	require.NoError(t, err)
	got, _ := io.ReadAll(f)
	_ = f.Close()
	require.Equal(t, "first", string(got))

	_, err = s.Write(ctx, "widget-1.0.tar.gz", strings.NewReader("second"), true)
	require.NoError(t, err)

	f, err = s.Open(ctx, "widget-1.0.tar.gz")
	require.NoError(t, err)
	got, _ = io.ReadAll(f)
	_ = f.Close()
	require.Equal(t, "second", string(got))
}

func TestFilesystemConcurrentWritesOneWins(t *testing.T) {
	s := newTestFilesystem(t)
	ctx := context.Background()

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Write(ctx, "race-1.0.tar.gz", strings.NewReader(strings.Repeat("x", 4096)), false)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrExists)
	}
	require.Equal(t, 1, ok)
}

func TestFilesystemNoTempFilesLeft(t *testing.T) {
	s := newTestFilesystem(t)
	ctx := context.Background()

	_, err := s.Write(ctx, "a-1.0.tar.gz", strings.NewReader("a"), false)
	require.NoError(t, err)
	_, err = s.Write(ctx, "a-1.0.tar.gz", strings.NewReader("b"), true)
	require.NoError(t, err)
	_, err = s.Write(ctx, "b-1.0.tar.gz", &failingReader{}, false)
	require.Error(t, err)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasPrefix(e.Name(), TempPrefix), "temp file left behind: %s", e.Name())
	}
	require.Len(t, entries, 1)
}

func TestFilesystemOpenNotFound(t *testing.T) {
	s := newTestFilesystem(t)

	_, err := s.Open(context.Background(), "missing-1.0.tar.gz")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "dir.whl"), 0o755))
	_, err = s.Open(context.Background(), "dir.whl")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystemDeleteExists(t *testing.T) {
	s := newTestFilesystem(t)
	ctx := context.Background()

	exists, err := s.Exists(ctx, "widget-1.0.tar.gz")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = s.Write(ctx, "widget-1.0.tar.gz", strings.NewReader("x"), false)
	require.NoError(t, err)

	exists, err = s.Exists(ctx, "widget-1.0.tar.gz")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, s.Delete(ctx, "widget-1.0.tar.gz"))
	require.ErrorIs(t, s.Delete(ctx, "widget-1.0.tar.gz"), ErrNotFound)
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	s := newTestFilesystem(t)
	ctx := context.Background()

	for _, name := range []string{"", "../escape.whl", "a/../../escape.whl", "/etc/passwd", "..", ".", "a\\b.whl", ".tmp-123.whl"} {
		_, err := s.Write(ctx, name, strings.NewReader("x"), false)
		require.ErrorIs(t, err, ErrInvalidName, name)
		require.ErrorIs(t, s.Delete(ctx, name), ErrInvalidName, name)
		_, err = s.Open(ctx, name)
		require.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"widget-1.0.tar.gz", "widget-1.0.tar.gz"},
		{"./widget-1.0.tar.gz", "widget-1.0.tar.gz"},
		{"a//b/../widget.whl", "a/widget.whl"},
	}
	for _, tt := range tests {
		got, err := CleanName(tt.in)
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}

func TestFilesystemWriteCanceled(t *testing.T) {
	s := newTestFilesystem(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Write(ctx, "widget-1.0.tar.gz", strings.NewReader("x"), false)
	require.ErrorIs(t, err, context.Canceled)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
