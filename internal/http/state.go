package http

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// StateSource provides the most recent final run state.
type StateSource interface {
	Current() (pipeline.RunState, bool)
}

// StateWatcher caches the final run state file and reloads it whenever the
// file changes on disk.
type StateWatcher struct {
	path    string
	logger  *logging.Logger
	watcher *fsnotify.Watcher

	mu     sync.RWMutex
	state  pipeline.RunState
	loaded bool

	stop     chan struct{}
	stopOnce sync.Once
}

// NewStateWatcher creates a watcher for the state file at path. The
// parent directory is created if needed so it can be watched.
func NewStateWatcher(path string, logger *logging.Logger) (*StateWatcher, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &StateWatcher{
		path:    filepath.Clean(path),
		logger:  logger,
		watcher: watcher,
		stop:    make(chan struct{}),
	}, nil
}

// Start loads the current file, if any, and begins watching for changes.
func (w *StateWatcher) Start(ctx context.Context) error {
	w.reload(ctx)
	// Editors and FileStore replace the file, so watch the directory.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	go w.processEvents(ctx)
	return nil
}

// Stop stops watching. It is safe to call more than once.
func (w *StateWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
}

// Current implements StateSource.
func (w *StateWatcher) Current() (pipeline.RunState, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state, w.loaded
}

func (w *StateWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.reload(ctx)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "state watcher error", zap.Error(err))
		}
	}
}

// reload reads the state file. A missing file clears the cache; a file
// that does not parse (for example mid-write) keeps the previous state.
func (w *StateWatcher) reload(ctx context.Context) {
	state, err := pipeline.LoadState(w.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			w.mu.Lock()
			w.state, w.loaded = pipeline.RunState{}, false
			w.mu.Unlock()
			return
		}
		w.logger.Debug(ctx, "final state not readable yet", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.state, w.loaded = state, true
	w.mu.Unlock()
	w.logger.Info(ctx, "final state loaded",
		zap.String("run_id", state.RunID),
		zap.String("outcome", string(state.Outcome)),
	)
}
