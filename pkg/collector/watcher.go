package collector

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a cluster state file whenever it changes on disk
type Watcher struct {
	watcher   *fsnotify.Watcher
	statePath string
	logger    *zap.Logger
	debounce  time.Duration

	mu        sync.RWMutex
	callbacks []func(*ClusterState)
	current   *ClusterState

	// reloads counts scheduled and running reloads
	reloads sync.WaitGroup
}

// NewWatcher loads the state file once and prepares to watch it
func NewWatcher(statePath string, logger *zap.Logger) (*Watcher, error) {
	state, err := LoadState(statePath)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Editors replace files on save, so watch the directory
	if err := fsWatcher.Add(filepath.Dir(statePath)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watcher{
		watcher:   fsWatcher,
		statePath: statePath,
		logger:    logger,
		debounce:  250 * time.Millisecond,
		current:   state,
	}, nil
}

// OnChange registers a callback for state changes
func (w *Watcher) OnChange(callback func(*ClusterState)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Current returns the last successfully loaded state
func (w *Watcher) Current() *ClusterState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// SetDebounce sets how long to wait for writes to settle before reloading
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Run watches for changes until ctx is done, then releases the watcher. It
// returns only after any reload already in progress, callbacks included, has
// finished.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounceTimer *time.Timer
	cancelPending := func() {
		if debounceTimer != nil && debounceTimer.Stop() {
			w.reloads.Done()
		}
	}
	defer func() {
		cancelPending()
		w.reloads.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(w.statePath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			cancelPending()
			w.mu.RLock()
			debounce := w.debounce
			w.mu.RUnlock()

			w.reloads.Add(1)
			debounceTimer = time.AfterFunc(debounce, func() {
				defer w.reloads.Done()
				w.reload()
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("cluster state watcher error", zap.Error(err))
		}
	}
}

// reload loads the state and notifies callbacks. A bad file keeps the previous state.
func (w *Watcher) reload() {
	state, err := LoadState(w.statePath)
	if err != nil {
		w.logger.Warn("failed to reload cluster state", zap.String("path", w.statePath), zap.Error(err))
		return
	}

	w.mu.Lock()
	w.current = state
	callbacks := make([]func(*ClusterState), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("cluster state reloaded",
		zap.String("path", w.statePath),
		zap.Int("data_streams", len(state.DataStreams)),
	)

	for _, cb := range callbacks {
		cb(state)
	}
}
