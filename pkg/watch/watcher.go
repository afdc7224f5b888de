// Package watch triggers reloads when profile files in a directory change.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/routelens/routelens/pkg/source"
)

// DefaultDebounce is the quiet period before a burst of changes fires.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors one directory. Changes to files whose uncompressed name
// matches one of the patterns are collected, and once the directory has
// been quiet for the debounce period OnChange runs once with the changed
// names. Bursts while OnChange runs are batched into the next call.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	patterns []*regexp.Regexp
	debounce time.Duration
	logger   *zap.Logger

	OnChange func(ctx context.Context, names []string) error
	OnError  func(err error)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	running bool
}

// NewWatcher creates a watcher over dir for the given name patterns.
func NewWatcher(dir string, debounce time.Duration, logger *zap.Logger, patterns ...*regexp.Regexp) (*Watcher, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsWatcher.Add(absDir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watcher{
		watcher:  fsWatcher,
		dir:      absDir,
		patterns: patterns,
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]struct{}),
	}, nil
}

// Matches reports whether name is a file the watcher cares about.
func (w *Watcher) Matches(name string) bool {
	name = source.StripCompression(name)
	for _, p := range w.patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return len(w.patterns) == 0
}

// Run starts the watch loop. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !w.Matches(name) {
				continue
			}
			w.logger.Debug("profile file changed", zap.String("file", name), zap.Stringer("op", event.Op))
			w.schedule(ctx, source.StripCompression(name))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.reportError(err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.fire(ctx) })
}

func (w *Watcher) fire(ctx context.Context) {
	w.mu.Lock()
	if w.running || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	w.running = true
	names := make([]string, 0, len(w.pending))
	for n := range w.pending {
		names = append(names, n)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(names)
	if w.OnChange != nil && ctx.Err() == nil {
		if err := w.OnChange(ctx, names); err != nil {
			w.reportError(err)
		}
	}

	w.mu.Lock()
	w.running = false
	again := len(w.pending) > 0
	w.mu.Unlock()
	if again {
		w.fire(ctx)
	}
}

func (w *Watcher) reportError(err error) {
	w.logger.Warn("watch error", zap.Error(err))
	if w.OnError != nil {
		w.OnError(err)
	}
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
