package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatching begins watching the config file's directory for changes,
// debounced by HotReload.DebounceMs (default 1s). Per §9's DESIGN NOTES,
// the watcher runs on its own goroutine and publishes snapshots via the
// atomic pointer swap in Reload; it does not call back into async
// handlers directly.
func (s *Store) StartWatching() error {
	snap := s.Current()
	if !snap.HotReload.Enabled || !snap.HotReload.WatchConfig {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}

	s.watcher = w
	s.watcherDone = make(chan struct{})
	debounce := time.Duration(snap.HotReload.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = time.Second
	}
	s.debounce = debounce

	go s.watchLoop()
	return nil
}

// StopWatching stops the background watcher goroutine, if running.
func (s *Store) StopWatching() {
	if s.watcher == nil {
		return
	}
	s.watcher.Close()
	<-s.watcherDone
}

func (s *Store) watchLoop() {
	defer close(s.watcherDone)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(s.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if err := s.Reload(); err != nil {
				if s.log != nil {
					s.log.WithError(err).Warn("config reload failed, retaining previous snapshot")
				}
				continue
			}
			if s.log != nil {
				s.log.Info("config reloaded")
			}

		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
