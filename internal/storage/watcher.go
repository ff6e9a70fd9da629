// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ErrWatchUnsupported is returned by NewWatcher for backends that do not keep
// one file per conversation.
var ErrWatchUnsupported = &StoreError{Message: "backend does not support watching"}

// DefaultWatchDebounce is how long a conversation file must stay quiet
// before it is reloaded.
const DefaultWatchDebounce = 250 * time.Millisecond

// =============================================================================
// FILE WATCHER
// =============================================================================

// Watcher reloads conversations that another process writes to the file
// backend's directory. Changes are debounced per conversation.
type Watcher struct {
	repo     *Repository
	backend  *FileBackend
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   logrus.FieldLogger

	// OnReload, if set, is called after every reload attempt that changed
	// something or failed. It runs on the watcher goroutine.
	OnReload func(conversationID string, outcome ReloadOutcome, err error)

	mu      sync.Mutex
	pending map[string]time.Time // conversation id -> last change

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for repo. The repository must use a
// FileBackend.
func NewWatcher(repo *Repository, debounce time.Duration, logger logrus.FieldLogger) (*Watcher, error) {
	fb, ok := repo.backend.(*FileBackend)
	if !ok {
		return nil, ErrWatchUnsupported
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		repo:     repo,
		backend:  fb,
		watcher:  fw,
		debounce: debounce,
		logger:   logger.WithField("dir", fb.BaseDir),
		pending:  make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts watching the backend directory.
func (w *Watcher) Watch() error {
	if err := w.watcher.Add(w.backend.BaseDir); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.processPending()
	return nil
}

// Close stops the watcher and waits for its goroutines.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// processEvents records which conversations changed.
func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Temp files and settings map to no conversation.
			id, ok := w.backend.ConversationID(event.Name)
			if !ok {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending[id] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Watch error")
		}
	}
}

// processPending reloads conversations whose files have settled.
func (w *Watcher) processPending() {
	defer w.wg.Done()

	tick := w.debounce / 2
	if tick > 100*time.Millisecond {
		tick = 100 * time.Millisecond
	}
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			for _, id := range w.due(time.Now()) {
				w.reload(id)
			}
		}
	}
}

// due removes and returns the conversations quiet for at least the debounce.
func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ids []string
	for id, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ids = append(ids, id)
			delete(w.pending, id)
		}
	}
	return ids
}

func (w *Watcher) reload(id string) {
	outcome, err := w.repo.Reload(w.ctx, id)
	log := w.logger.WithFields(logrus.Fields{"conversation_id": id, "outcome": outcome.String()})

	switch {
	case err != nil:
		log.WithError(err).Warn("Failed to reload conversation")
	case outcome == ReloadBusy:
		// Retry once the in-flight answer has been saved.
		w.mu.Lock()
		if _, ok := w.pending[id]; !ok {
			w.pending[id] = time.Now()
		}
		w.mu.Unlock()
		return
	case outcome == ReloadUnchanged:
		return
	default:
		log.Debug("Reloaded conversation")
	}

	if w.OnReload != nil {
		w.OnReload(id, outcome, err)
	}
}
