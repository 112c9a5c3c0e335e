package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/moolen/causeway/internal/logging"
)

// ReloadCallback is called when the profiles file is successfully
// reloaded. A callback error is logged but the watcher keeps watching.
type ReloadCallback func(profiles *ProfilesFile) error

// WatcherConfig holds configuration for the profiles watcher.
type WatcherConfig struct {
	// FilePath is the path to the profiles YAML file to watch
	FilePath string

	// DebounceMillis coalesces bursts of file change events (editor
	// save sequences) into a single reload. Default: 500ms.
	DebounceMillis int
}

// Watcher watches the collector profiles file and triggers reload
// callbacks with debouncing. An invalid file during reload is logged
// and the previous valid profiles stay in effect.
type Watcher struct {
	config   WatcherConfig
	callback ReloadCallback
	cancel   context.CancelFunc
	stopped  chan struct{}
	logger   *logging.Logger
	mu       sync.Mutex

	debounceTimer *time.Timer
}

// NewWatcher creates a new watcher for the given profiles file.
func NewWatcher(config WatcherConfig, callback ReloadCallback) (*Watcher, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("FilePath cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if config.DebounceMillis == 0 {
		config.DebounceMillis = 500
	}

	return &Watcher{
		config:   config,
		callback: callback,
		stopped:  make(chan struct{}),
		logger:   logging.GetLogger("config.watcher"),
	}, nil
}

// Start begins watching. It watches the parent directory because
// editors replace files via rename, which drops the watch on the file
// itself.
func (w *Watcher) Start(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(w.config.FilePath)
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		defer close(w.stopped)
		defer fsWatcher.Close()

		target := filepath.Clean(w.config.FilePath)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fsWatcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				w.scheduleReload()
			case err, ok := <-fsWatcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("profiles watcher error: %v", err)
			}
		}
	}()

	w.logger.Info("watching collector profiles at %s", w.config.FilePath)
	return nil
}

// scheduleReload resets the debounce timer; the reload fires once the
// burst of events settles.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(time.Duration(w.config.DebounceMillis)*time.Millisecond, w.reload)
}

func (w *Watcher) reload() {
	profiles, err := LoadProfilesFile(w.config.FilePath)
	if err != nil {
		w.logger.Warn("profiles reload skipped, file invalid: %v", err)
		return
	}
	if err := w.callback(profiles); err != nil {
		w.logger.Warn("profiles reload callback failed: %v", err)
		return
	}
	w.logger.Info("collector profiles reloaded (%d profiles)", len(profiles.Profiles))
}

// Stop stops the watcher and waits for the watch loop to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.stopped

	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()
}
