package watcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CheckFSNotify tests whether fsnotify delivers events for dir. It creates
// a temporary file inside dir and reports whether its Create event arrives
// within timeout. Network mounts commonly fail this check.
func CheckFSNotify(dir string, timeout time.Duration) bool {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(dir); err != nil {
		return false
	}

	f, err := os.CreateTemp(dir, ".stationsync_fscheck_*")
	if err != nil {
		return false
	}
	markerName := filepath.Base(f.Name())
	f.Close()                 //nolint:errcheck
	defer os.Remove(f.Name()) //nolint:errcheck

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return false
			}
			if ev.Has(fsnotify.Create) && filepath.Base(ev.Name) == markerName {
				return true
			}
		case <-w.Errors:
			return false
		case <-timer.C:
			return false
		}
	}
}
