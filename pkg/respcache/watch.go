package respcache

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// Watch reloads the cache from path whenever an external process
// modifies it. It blocks until ctx is cancelled. Adapted from
// pkg/subagent's directory-watch debounce loop, narrowed to a single
// file since the cache lives at one configured path (spec §4.5).
func (c *Cache) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		// File may not exist yet; nothing to watch until Persist creates it.
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
		_ = c.Load(path)
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
