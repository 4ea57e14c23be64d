package service

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadWatcher watches source trees and fires a callback after changes
// settle. In dev mode the supervisor points it at the API's source paths and
// the callback restarts the API process.
type ReloadWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func()
	logger   *zap.Logger
}

func NewReloadWatcher(paths []string, debounce time.Duration, onChange func(), logger *zap.Logger) (*ReloadWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &ReloadWatcher{
		watcher:  fsw,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}

	for _, p := range paths {
		if err := w.addTree(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	return w, nil
}

// addTree registers a path and, for directories, every subdirectory.
func (w *ReloadWatcher) addTree(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		// A watch path that does not exist yet is not fatal; the stack may
		// be laid out differently in this checkout.
		w.logger.Warn("watch path missing, skipping", zap.String("path", root))
		return nil
	}
	if !info.IsDir() {
		return w.watcher.Add(root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || name == "__pycache__") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Run consumes filesystem events until the context is cancelled. Bursts of
// events within the debounce window collapse into a single callback.
func (w *ReloadWatcher) Run(ctx context.Context) error {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
				!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if base := filepath.Base(event.Name); strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".pyc") {
				continue
			}

			w.logger.Debug("source change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))

			// New directories need watching too.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addTree(event.Name)
				}
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-fire:
			timer = nil
			fire = nil
			w.onChange()
		}
	}
}

func (w *ReloadWatcher) Close() error {
	return w.watcher.Close()
}
