package tail

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch returns a channel that receives a value shortly after path is
// written to. Notifications coalesce: a pending one absorbs later writes.
// The channel is closed once ctx is done or the watcher fails.
func Watch(ctx context.Context, path string, logger *zap.Logger) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}

	wake := make(chan struct{}, 1)
	go func() {
		defer close(wake)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("file watcher error", zap.String("path", path), zap.Error(err))
			}
		}
	}()

	return wake, nil
}
