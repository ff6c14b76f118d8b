// Package watcher runs a handler for every new MKV file dropped into a
// directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mgpai22/subauto/internal/logging"
)

const DefaultDebounce = 5 * time.Second

// Handler processes one file. Errors are logged and do not stop the watch.
type Handler func(ctx context.Context, path string) error

type Options struct {
	// Debounce is how long a file must stay quiet before it is handled
	Debounce time.Duration
	// ScanExisting queues files already in the directory at start
	ScanExisting bool
}

type Watcher struct {
	dir     string
	handler Handler
	opts    Options
	logger  *logging.Logger
	fs      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time
	seen    map[string]bool
}

func New(dir string, handler Handler, opts Options, logger *logging.Logger) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch directory: %s is not a directory", dir)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	return &Watcher{
		dir:     dir,
		handler: handler,
		opts:    opts,
		logger:  logging.OrNop(logger).Named("watch"),
		fs:      fsw,
		pending: make(map[string]time.Time),
		seen:    make(map[string]bool),
	}, nil
}

// Eligible reports whether path is an MKV the watcher should handle. Files
// produced by subauto itself are skipped.
func Eligible(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".mkv") && !strings.HasSuffix(lower, "_translated.mkv")
}

// Run watches until ctx is cancelled. Files are handled one at a time, each
// at most once per run.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	queue := make(chan string, 128)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx, queue)
	}()
	defer func() {
		close(queue)
		wg.Wait()
	}()

	w.logger.Infow("watching for new MKV files", "dir", w.dir, "debounce", w.opts.Debounce)
	if w.opts.ScanExisting {
		w.scan()
	}

	tick := time.NewTicker(max(w.opts.Debounce/4, 10*time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if Eligible(event.Name) {
				w.touch(event.Name)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Warnw("watcher error", "error", err)

		case now := <-tick.C:
			for _, path := range w.due(now) {
				select {
				case queue <- path:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warnw("scan failed", "error", err)
		return
	}
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if !e.IsDir() && Eligible(path) {
			w.touch(path)
		}
	}
}

func (w *Watcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen[path] {
		return
	}
	w.pending[path] = time.Now()
}

// due returns pending files that have been quiet for the debounce window.
func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) < w.opts.Debounce {
			continue
		}
		delete(w.pending, path)
		w.seen[path] = true
		ready = append(ready, path)
	}
	return ready
}

func (w *Watcher) work(ctx context.Context, queue <-chan string) {
	for path := range queue {
		if ctx.Err() != nil {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			w.logger.Debugw("file vanished before processing", "file", path)
			continue
		}
		w.logger.Infow("processing new file", "file", filepath.Base(path))
		if err := w.handler(ctx, path); err != nil {
			w.logger.Errorw("processing failed", "file", filepath.Base(path), "error", err)
			continue
		}
		w.logger.Infow("processed", "file", filepath.Base(path))
	}
}
