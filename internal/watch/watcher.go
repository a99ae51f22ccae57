package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/raaihank/binsentinel/internal/analyzer"
	"github.com/raaihank/binsentinel/internal/config"
)

// Scanner is the part of the analysis pipeline the watcher needs.
type Scanner interface {
	AnalyzeFile(ctx context.Context, path string) (*analyzer.Record, error)
}

// Handler receives each completed scan record.
type Handler func(*analyzer.Record)

// Watcher monitors a drop directory and scans files as they appear. Scans
// run on a bounded worker pool behind a token-bucket rate limit so a bulk
// drop cannot starve the host.
type Watcher struct {
	cfg     config.WatchConfig
	scanner Scanner
	handler Handler
	watcher *fsnotify.Watcher
	limiter *rate.Limiter
	logger  *zap.Logger

	paths chan string
	seen  map[string]struct{}
	mu    sync.Mutex
}

// New creates a watcher over the configured drop directory.
func New(cfg config.WatchConfig, scanner Scanner, handler Handler, logger *zap.Logger) (*Watcher, error) {
	info, err := os.Stat(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("watch directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", cfg.Directory)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := fsWatcher.Add(cfg.Directory); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", cfg.Directory, err)
	}

	w := &Watcher{
		cfg:     cfg,
		scanner: scanner,
		handler: handler,
		watcher: fsWatcher,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  logger,
		paths:   make(chan string, cfg.Workers*4),
		seen:    make(map[string]struct{}),
	}

	logger.Info("Drop directory watcher initialized",
		zap.String("directory", cfg.Directory),
		zap.Int("workers", cfg.Workers),
		zap.Float64("rate_per_second", cfg.RatePerSecond))
	return w, nil
}

// Run blocks until ctx is cancelled, dispatching filesystem events to the
// worker pool. Existing files in the directory are scanned first.
func (w *Watcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.worker(ctx)
		}()
	}

	w.enqueueExisting(ctx)

	for {
		select {
		case <-ctx.Done():
			close(w.paths)
			wg.Wait()
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				close(w.paths)
				wg.Wait()
				return nil
			}
			// Write fires after Create once the dropper finishes writing;
			// the seen set keeps each file to a single scan.
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.enqueue(ctx, event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				close(w.paths)
				wg.Wait()
				return nil
			}
			w.logger.Error("Filesystem watcher error", zap.Error(err))
		}
	}
}

// enqueueExisting queues files already present when the watcher starts.
func (w *Watcher) enqueueExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Directory)
	if err != nil {
		w.logger.Warn("Failed to list existing files", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			w.enqueue(ctx, filepath.Join(w.cfg.Directory, entry.Name()))
		}
	}
}

func (w *Watcher) enqueue(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	w.mu.Lock()
	if _, dup := w.seen[path]; dup {
		w.mu.Unlock()
		return
	}
	w.seen[path] = struct{}{}
	w.mu.Unlock()

	select {
	case w.paths <- path:
	case <-ctx.Done():
	}
}

func (w *Watcher) worker(ctx context.Context) {
	for path := range w.paths {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}

		record, err := w.scanner.AnalyzeFile(ctx, path)
		if err != nil {
			w.logger.Warn("Scan failed",
				zap.String("file", path),
				zap.Error(err))
			continue
		}
		w.handler(record)
	}
}
