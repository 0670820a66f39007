// Package watcher re-runs reconciliation when the library file changes.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sydlexius/stationsync/internal/reconcile"
)

// RunFunc performs one reconciliation pass.
type RunFunc func(ctx context.Context) error

// Service watches the directory holding the library file, since editors
// and spreadsheet tools usually replace the file rather than write it in
// place. Bursts of events are coalesced into a single run.
type Service struct {
	path          string
	runFn         RunFunc
	logger        *slog.Logger
	debounce      time.Duration
	pollInterval  time.Duration
	checkDelivery bool

	mu       sync.Mutex
	mode     string
	snapshot fingerprint
	runs     int
}

// Watch modes reported by Mode.
const (
	ModeNotify = "fsnotify"
	ModePoll   = "poll"
)

// NewService creates a watcher for the library file at path.
func NewService(path string, runFn RunFunc, logger *slog.Logger) *Service {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return &Service{
		path:          abs,
		runFn:         runFn,
		logger:        logger.With("component", "fs-watcher", "path", abs),
		debounce:      2 * time.Second,
		pollInterval:  30 * time.Second,
		checkDelivery: true,
	}
}

// SetDebounce overrides the default debounce interval.
func (s *Service) SetDebounce(d time.Duration) {
	if d > 0 {
		s.debounce = d
	}
}

// SetPollInterval overrides how often the file is checked in poll mode.
func (s *Service) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// SetDeliveryCheck enables or disables the fsnotify delivery check at startup.
// Without the check, fsnotify is trusted whenever it can be started.
func (s *Service) SetDeliveryCheck(enabled bool) {
	s.checkDelivery = enabled
}

// Mode returns the active watch mode, or "" before Start.
func (s *Service) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Runs returns how many runs the watcher has triggered.
func (s *Service) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Start blocks until ctx is canceled. It watches with fsnotify when the
// directory delivers events and falls back to polling the file otherwise.
func (s *Service) Start(ctx context.Context) {
	dir := filepath.Dir(s.path)
	w := s.openWatcher(dir)
	if w != nil {
		defer w.Close() //nolint:errcheck
	}

	s.mu.Lock()
	s.snapshot = stat(s.path)
	if w != nil {
		s.mode = ModeNotify
	} else {
		s.mode = ModePoll
	}
	mode := s.mode
	s.mu.Unlock()
	s.logger.Info("library watcher starting", "mode", mode, "debounce", s.debounce)

	// When fsnotify is unavailable, use nil channels (never receive).
	var eventCh <-chan fsnotify.Event
	var errCh <-chan error
	var pollCh <-chan time.Time
	if w != nil {
		eventCh = w.Events
		errCh = w.Errors
	} else {
		pollTicker := time.NewTicker(s.pollInterval)
		defer pollTicker.Stop()
		pollCh = pollTicker.C
	}

	// Starts stopped; reset on each relevant change.
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	runPending := false
	arm := func() {
		if !debounceTimer.Stop() {
			select {
			case <-debounceTimer.C:
			default:
			}
		}
		debounceTimer.Reset(s.debounce)
		runPending = true
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("library watcher stopping")
			return

		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			if s.relevant(ev) {
				s.logger.Debug("library file changed", "op", ev.Op.String())
				arm()
			}

		case err, ok := <-errCh:
			if !ok {
				return
			}
			s.logger.Error("fsnotify error", "error", err)

		case <-pollCh:
			if s.changedSincePoll() {
				s.logger.Debug("poll: library file changed")
				arm()
			}

		case <-debounceTimer.C:
			if !runPending {
				continue
			}
			runPending = false
			if !s.trigger(ctx) {
				arm()
			}
		}
	}
}

func (s *Service) openWatcher(dir string) *fsnotify.Watcher {
	if s.checkDelivery && !CheckFSNotify(dir, 2*time.Second) {
		s.logger.Warn("fsnotify events not delivered for directory, polling instead", "dir", dir)
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("fsnotify unavailable, polling instead", "error", err)
		return nil
	}
	if err := w.Add(dir); err != nil {
		s.logger.Warn("cannot watch library directory, polling instead", "dir", dir, "error", err)
		w.Close() //nolint:errcheck
		return nil
	}
	return w
}

// relevant reports whether ev touches the library file. Removal alone is
// ignored: a replacement write follows as Create.
func (s *Service) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != s.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

// trigger runs one pass. It returns false when the run should be retried
// after another debounce period.
func (s *Service) trigger(ctx context.Context) bool {
	if _, err := os.Stat(s.path); err != nil {
		s.logger.Warn("library file not readable, skipping run", "error", err)
		return true
	}

	s.logger.Info("debounce elapsed, triggering reconciliation")
	err := s.runFn(ctx)
	switch {
	case errors.Is(err, reconcile.ErrRunInProgress):
		s.logger.Info("reconciliation already running, retrying after debounce")
		return false
	case err != nil:
		s.logger.Error("reconciliation triggered by fs watcher failed", "error", err)
	}

	s.mu.Lock()
	s.runs++
	s.snapshot = stat(s.path)
	s.mu.Unlock()
	return true
}

type fingerprint struct {
	exists  bool
	size    int64
	modTime time.Time
}

func (f fingerprint) equal(o fingerprint) bool {
	return f.exists == o.exists && f.size == o.size && f.modTime.Equal(o.modTime)
}

func stat(path string) fingerprint {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}
	}
	return fingerprint{exists: true, size: info.Size(), modTime: info.ModTime()}
}

// changedSincePoll compares the file against the last snapshot and stores
// the new one. A file that disappeared is not a change worth a run.
func (s *Service) changedSincePoll() bool {
	cur := stat(s.path)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.snapshot
	s.snapshot = cur
	return cur.exists && !cur.equal(prev)
}
