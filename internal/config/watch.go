// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event signals that the watched config file changed and should be reloaded.
type Event struct{}

// Watch watches the config file at path and emits an event after each change.
// Events for the same file are debounced so an editor's write-then-rename
// produces a single reload. The returned channel is closed when ctx is done
// or on a fatal watcher error.
func Watch(ctx context.Context, path string) (<-chan Event, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	// Watch the directory: the file itself may not exist yet, and atomic
	// renames replace the inode the watcher would be attached to.
	dir := filepath.Dir(abs)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir config dir: %w", err)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch dir: %w", err)
	}

	ch := make(chan Event)

	go func() {
		defer close(ch)
		defer w.Close()

		const debounce = 200 * time.Millisecond
		var timer *time.Timer
		var timerC <-chan time.Time
		var pending bool

		stopTimer := func() {
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer = nil
				timerC = nil
			}
		}

		startTimer := func() {
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
		}

		for {
			select {
			case <-ctx.Done():
				stopTimer()
				return
			case evt, ok := <-w.Events:
				if !ok {
					stopTimer()
					return
				}
				if filepath.Clean(evt.Name) != abs {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					pending = true
					startTimer()
				}
			case <-timerC:
				if pending {
					select {
					case ch <- Event{}:
					case <-ctx.Done():
						stopTimer()
						return
					}
					pending = false
				}
				stopTimer()
			case _, ok := <-w.Errors:
				if !ok {
					stopTimer()
					return
				}
				// ignore error
			}
		}
	}()

	return ch, nil
}
