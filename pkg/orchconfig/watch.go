package orchconfig

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// Watch re-resolves the configuration from path whenever an external
// process modifies it, invoking onReload with the freshly loaded
// Config. It blocks until ctx is cancelled. Adapted from
// pkg/respcache.Cache.Watch's single-file debounce loop, which itself
// generalizes pkg/subagent's directory-watch debounce to one file.
func Watch(ctx context.Context, path string, onReload func(Config, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		<-ctx.Done()
		return ctx.Err()
	}

	var (
		mu      sync.Mutex
		pending bool
		timer   *time.Timer
	)

	reload := func() {
		mu.Lock()
		pending = false
		mu.Unlock()
		onReload(Load(WithOverrideFile(path)))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			mu.Lock()
			if !pending {
				pending = true
				timer = time.AfterFunc(watchDebounce, reload)
			} else {
				timer.Reset(watchDebounce)
			}
			mu.Unlock()
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}
