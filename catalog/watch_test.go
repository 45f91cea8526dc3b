package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/package-index/internal/archivetest"
)

func TestWatcher_EvictsRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	keep := archivetest.WriteSdist(t, dir, "keep-1.0.tar.gz", "")
	gone := archivetest.WriteSdist(t, dir, "gone-1.0.tar.gz", "")

	b := newTestBuilder(t, dir)
	_, err := b.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, b.Cache().Len())

	w, err := NewWatcher(b, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	require.NoError(t, os.Remove(gone))

	require.Eventually(t, func() bool { return b.Cache().Len() == 1 }, 5*time.Second, 20*time.Millisecond)
	keys := b.Cache().Keys()
	require.Equal(t, keep, keys[0].Path)
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	b := newTestBuilder(t, dir)

	w, err := NewWatcher(b, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	sub := filepath.Join(dir, "widget")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Give the watcher a chance to register the new directory.
	time.Sleep(200 * time.Millisecond)

	path := archivetest.WriteSdist(t, sub, "widget-1.0.tar.gz", "")
	_, err = b.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, b.Cache().Len())

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return b.Cache().Len() == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w, err := NewWatcher(newTestBuilder(t, t.TempDir()), nil)
	require.NoError(t, err)
	w.Stop()
	w.Stop()
	require.NoError(t, w.Start(context.Background())) // no-op after stop
}
