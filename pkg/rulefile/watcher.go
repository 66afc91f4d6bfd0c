package rulefile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc is called with the rule files that changed since the last call.
type ChangeFunc func(ctx context.Context, paths []string)

// Watcher reports rule file changes in a directory, debounced so an editor's
// write-rename sequence produces a single callback.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange ChangeFunc
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewWatcher watches dir, or the directory containing dir when it is a file.
func NewWatcher(dir string, debounce time.Duration, onChange ChangeFunc, logger *slog.Logger) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	err = fsw.Add(dir)
	if err != nil {
		_ = fsw.Close()

		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		logger:   logger.With("module", "rulefile_watcher"),
		watcher:  fsw,
		pending:  make(map[string]struct{}),
	}, nil
}

// Run delivers changes until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		_ = w.watcher.Close()
	}()

	w.logger.InfoContext(ctx, "watching rule files", "dir", w.dir, "debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if !IsRuleFile(event.Name) || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}

			w.mu.Lock()
			w.pending[event.Name] = struct{}{}
			w.mu.Unlock()

			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.ErrorContext(ctx, "watcher error", "error", err)

		case <-timer.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()

	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}

	clear(w.pending)
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	slices.Sort(paths)

	// A rename away leaves nothing to load.
	paths = slices.DeleteFunc(paths, func(path string) bool {
		_, err := os.Stat(path)

		return err != nil
	})

	if len(paths) > 0 {
		w.onChange(ctx, paths)
	}
}
