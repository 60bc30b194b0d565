package skill

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the library whenever a file in the skills directory
// changes, until ctx is cancelled. It blocks; run it in a goroutine.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch skills dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := l.Reload(); err != nil {
				l.log.Warn("skill reload failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.log.Warn("skill watcher error", "error", err)
		}
	}
}
