package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	log "github.com/hsingjui/openai-to-claude/internal/logging"
)

// Watcher reloads the configuration snapshot when the file changes.
// Rapid editor save sequences (write+rename, truncate+write) are
// debounced so a reload storm never produces torn snapshots.
type Watcher struct {
	path     string
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string) *Watcher {
	return &Watcher{path: path, debounce: 200 * time.Millisecond}
}

// Run blocks watching the config file until ctx is cancelled. Reload
// failures keep the previous snapshot active.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	// Watch the directory, not the file: editors replace files by
	// rename, which drops a direct file watch.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	log.Infof("config watcher started: %s", w.path)

	// A reload must not fire after Run returns during shutdown.
	defer w.stopPending()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.trigger()
		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			log.WithError(err).Warnf("config watcher error")
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}

func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.WithError(err).Errorf("config reload failed, keeping previous snapshot")
		return
	}
	Set(cfg)
	log.Infof("config reloaded: default=%s small=%s tool=%s think=%s long-context=%s",
		cfg.Models.Default, cfg.Models.Small, cfg.Models.Tool, cfg.Models.Think, cfg.Models.LongContext)
}
