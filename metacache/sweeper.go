package metacache

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/wolfeidau/package-index/telemetry"
)

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Interval is how often to sweep. Default is 10 minutes.
	Interval time.Duration

	// Logger for sweep events.
	Logger *slog.Logger
}

// Sweeper periodically evicts orphaned cache entries: entries whose file no
// longer exists or whose modification time no longer matches the key.
type Sweeper[V any] struct {
	cache    *Cache[V]
	interval time.Duration
	logger   *slog.Logger
	stat     func(string) (fs.FileInfo, error)

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSweeper creates a sweeper for cache.
func NewSweeper[V any](cache *Cache[V], cfg SweeperConfig) *Sweeper[V] {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sweeper[V]{
		cache:    cache,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		stat:     os.Stat,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins background sweeps. Calling Start more than once, or after
// Stop, is a no-op.
func (s *Sweeper[V]) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped || s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop stops background sweeps and waits for an in-flight sweep to finish.
func (s *Sweeper[V]) Stop() {
	s.mu.Lock()
	if !s.running || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
}

func (s *Sweeper[V]) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns the number of evicted entries.
func (s *Sweeper[V]) RunOnce(ctx context.Context) int {
	start := time.Now()
	n := s.cache.Sweep(s.stale)
	if n > 0 {
		telemetry.RecordCacheEviction(ctx, "sweep", n)
	}
	s.logger.Debug("metadata cache sweep completed",
		"evicted", n,
		"entries", s.cache.Len(),
		"duration", time.Since(start),
	)
	return n
}

// stale reports whether the file behind k is gone or has changed. Errors
// other than not-exist keep the entry.
func (s *Sweeper[V]) stale(k Key) bool {
	info, err := s.stat(k.Path)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	return info.ModTime().UnixNano() != k.ModTime
}
