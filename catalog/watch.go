package catalog

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"
)

// Watcher evicts metadata cache entries as soon as archives under the root
// are removed or renamed away. Without it entries for deleted files linger
// until a sweep or an explicit Forget.
type Watcher struct {
	builder *Builder
	logger  *slog.Logger
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher over every directory below the builder root.
func NewWatcher(builder *Builder, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		builder: builder,
		logger:  logger.With("component", "watcher"),
		fsw:     fsw,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if err := w.addTree(builder.Root()); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and its subdirectories.
func (w *Watcher) addTree(dir string) error {
	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("watching directory failed", "path", path, "error", err)
		}
		return nil
	})
}

// Start begins processing filesystem events. Calling Start more than once,
// or after Stop, is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped || w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and releases its resources. It is idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	wasRunning := w.running
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	_ = w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if n := w.builder.evict(ctx, ev.Name, "watch"); n > 0 {
			w.logger.Debug("evicted cache entries", "path", ev.Name, "entries", n)
		}
	case ev.Op&fsnotify.Create != 0:
		info, err := os.Lstat(ev.Name)
		if err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watching new directory failed", "path", ev.Name, "error", err)
			}
		}
	}
}
