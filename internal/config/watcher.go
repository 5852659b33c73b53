package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors configPath and invokes onChange with the newly parsed Config
// whenever the file is rewritten on disk. It is intended for hot-reloading
// the safe subset of settings (log level, worker poll interval); callers
// decide which fields to apply at runtime.
//
// A change that fails to parse or validate is reported via onError (if
// non-nil) and does not invoke onChange, so the application never enters a
// broken state. Watch blocks until ctx is cancelled; run it in its own
// goroutine.
func Watch(ctx context.Context, configPath string, onChange func(*Config), onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors and config-map
	// mounts replace the file via rename, which drops a file-level watch.
	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(configPath)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(target)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}
