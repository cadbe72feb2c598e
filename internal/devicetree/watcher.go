package devicetree

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events editors produce on save.
const DefaultDebounce = 150 * time.Millisecond

// Watcher reloads a device tree file whenever it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	log      *slog.Logger
	onLoad   func(*Source)
}

// NewWatcher watches path and calls onLoad with every version that parses.
func NewWatcher(path string, onLoad func(*Source), log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		path:     path,
		debounce: DefaultDebounce,
		log:      log.With("component", "devicetree", "path", path),
		onLoad:   onLoad,
	}
}

// SetDebounce overrides the quiet period before a reload.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Run watches until ctx is done. The parent directory is watched so editors
// that replace the file by rename are followed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", w.path, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "err", err)
		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	src, err := Load(w.path)
	if err != nil {
		w.log.Warn("device tree rejected", "err", err)
		return
	}
	w.log.Info("device tree reloaded", "format", src.Format, "bytes", len(src.Data))
	w.onLoad(src)
}
