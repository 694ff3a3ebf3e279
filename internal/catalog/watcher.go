package catalog

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hochfrequenz/scenario-sim/internal/observability"
)

// ReloadFunc is called after the override file was reloaded, with the
// reload error if any
type ReloadFunc func(err error)

// Watcher reloads a Catalog when its override file changes
type Watcher struct {
	catalog  *Catalog
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload ReloadFunc
	log      *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches path's directory, so editors that write via rename are
// still seen. onReload may be nil.
func NewWatcher(c *Catalog, path string, onReload ReloadFunc, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		catalog:  c,
		path:     abs,
		watcher:  fw,
		debounce: 250 * time.Millisecond, // editors emit bursts
		onReload: onReload,
		log:      observability.For(logger, observability.ChannelSystem),
	}, nil
}

// Run processes file events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Template watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	err := w.catalog.Reload(w.path)
	if err != nil {
		w.log.Error("Template reload failed", "path", w.path, "error", err)
	} else {
		w.log.Info("Templates reloaded", "path", w.path, "count", len(w.catalog.All()))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.watcher.Close()
}
