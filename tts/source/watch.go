package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the bursts of events editors produce on save.
const DefaultDebounce = 150 * time.Millisecond

// Watch reloads f whenever it changes on disk and passes each new
// document to fn. It blocks until ctx is done.
//
// The parent directory is watched rather than the file so that editors
// that save by renaming a temporary file are noticed.
func Watch(ctx context.Context, f File, debounce time.Duration, fn func(Document)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	path, err := filepath.Abs(f.Path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to watch file: %w", err)
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("unable to watch file: %w", err)
	}

	logger := log.Default().WithPrefix("watch")
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			doc, err := File{Path: path}.Load(ctx)
			if err != nil {
				if !errors.Is(err, ErrEmpty) {
					logger.Warn("reload failed", "path", path, "err", err)
				}
				continue
			}
			logger.Debug("reloaded", "path", path, "chars", len(doc.Text))
			fn(doc)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "err", err)
		}
	}
}
