package pack

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch starts a background goroutine that reloads the holder's pack
// whenever path changes on disk. Reload failures are logged and leave the
// previously loaded pack in place. The returned stop function closes the
// watcher; it is safe to call more than once.
func (h *Holder) Watch(path, currentVersion string, logger *slog.Logger) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		debounceDelay := 200 * time.Millisecond

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, func() {
					if err := h.ReloadFrom(path, currentVersion); err != nil {
						logger.Warn("detector pack reload failed", "path", path, "error", err)
						return
					}
					logger.Info("detector pack reloaded", "path", path)
				})
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("detector pack watcher error", "error", werr)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}
