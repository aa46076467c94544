// Package watcher follows a capture file that is still being written and
// reports when it settles after a change.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the file must stay quiet before onChange runs.
const DefaultDebounce = 200 * time.Millisecond

// Watch watches the file at path until ctx is cancelled. After the file is
// written or (re)created and no further change arrives within debounce,
// onChange is called from the watch goroutine.
//
// The parent directory is watched rather than the file itself so captures
// that are rotated or replaced by rename keep being followed.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watcher: resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", filepath.Dir(target), err)
	}
	logger.Info("watcher: started", slog.String("path", target))

	var settle *time.Timer
	var settleCh <-chan time.Time
	schedule := func() {
		if settle == nil {
			settle = time.NewTimer(debounce)
			settleCh = settle.C
		} else {
			settle.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settle != nil {
				settle.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			onChange()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				logger.Debug("watcher: change", slog.String("op", ev.Op.String()))
				schedule()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				logger.Info("watcher: input moved away, waiting for it to return", slog.String("path", target))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
