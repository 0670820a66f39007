package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/sydlexius/stationsync/internal/filesystem"
)

// jsonDocument is a whole-document JSON file guarded by an in-process mutex
// and an OS advisory lock on <path>.lock, so separate processes (the
// reconcile CLI and the review server) serialize their writes too.
type jsonDocument[T any] struct {
	path   string
	mu     sync.Mutex
	flock  *flock.Flock
	logger *slog.Logger
}

func newJSONDocument[T any](path string, logger *slog.Logger) *jsonDocument[T] {
	return &jsonDocument[T]{
		path:   path,
		flock:  flock.New(path + ".lock"),
		logger: logger,
	}
}

// read decodes the document into v. A missing or blank file leaves v
// untouched and is not an error.
func (d *jsonDocument[T]) read(v *T) error {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", d.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", d.path, err)
	}
	return nil
}

func (d *jsonDocument[T]) write(v T) error {
	data, err := marshalDocument(v, true)
	if err != nil {
		return err
	}
	if err := filesystem.WriteFileAtomic(d.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", d.path, err)
	}
	d.logger.Debug("document saved", slog.String("path", d.path), slog.Int("bytes", len(data)))
	return nil
}

// locked runs fn while holding both the mutex and the file lock.
func (d *jsonDocument[T]) locked(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	if err := d.flock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", d.path, err)
	}
	defer func() {
		if err := d.flock.Unlock(); err != nil {
			d.logger.Warn("releasing store lock", slog.String("path", d.path), slog.String("error", err.Error()))
		}
	}()

	return fn()
}

// FileCache is a CacheStore backed by a JSON object on disk.
type FileCache struct {
	doc *jsonDocument[Cache]
}

// NewFileCache creates a file-backed cache store. The file is created on the
// first save.
func NewFileCache(path string, logger *slog.Logger) *FileCache {
	return &FileCache{
		doc: newJSONDocument[Cache](path, logger.With(slog.String("component", "cache-store"))),
	}
}

// Path returns the backing file path.
func (s *FileCache) Path() string { return s.doc.path }

// Load reads the cache document. Writes are atomic renames, so a read
// without the lock still sees a complete document.
func (s *FileCache) Load() (Cache, error) {
	c := Cache{}
	if err := s.doc.read(&c); err != nil {
		return nil, err
	}
	if c == nil {
		c = Cache{}
	}
	return c, nil
}

// Save replaces the cache document.
func (s *FileCache) Save(c Cache) error {
	if c == nil {
		c = Cache{}
	}
	return s.doc.locked(func() error { return s.doc.write(c) })
}

// Update performs a locked read-modify-write of the cache document.
func (s *FileCache) Update(fn func(Cache) (bool, error)) error {
	return s.doc.locked(func() error {
		c, err := s.Load()
		if err != nil {
			return err
		}
		changed, err := fn(c)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return s.doc.write(c)
	})
}

// FileQueue is a QueueStore backed by a JSON array on disk.
type FileQueue struct {
	doc   *jsonDocument[[]QueueEntry]
	newID func() string
	now   func() time.Time
}

// NewFileQueue creates a file-backed review queue store.
func NewFileQueue(path string, logger *slog.Logger) *FileQueue {
	return &FileQueue{
		doc:   newJSONDocument[[]QueueEntry](path, logger.With(slog.String("component", "queue-store"))),
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
}

// Path returns the backing file path.
func (s *FileQueue) Path() string { return s.doc.path }

// Load reads the queue document.
func (s *FileQueue) Load() ([]QueueEntry, error) {
	q := []QueueEntry{}
	if err := s.doc.read(&q); err != nil {
		return nil, err
	}
	if q == nil {
		q = []QueueEntry{}
	}
	return q, nil
}

// Save replaces the queue document.
func (s *FileQueue) Save(q []QueueEntry) error {
	if q == nil {
		q = []QueueEntry{}
	}
	return s.doc.locked(func() error { return s.doc.write(q) })
}

// Append adds an entry with its own load-mutate-save cycle under the queue
// lock.
func (s *FileQueue) Append(e QueueEntry) error {
	e = prepareQueueEntry(e, s.newID, s.now)
	return s.Update(func(q []QueueEntry) ([]QueueEntry, bool, error) {
		return append(q, e), true, nil
	})
}

// Update performs a locked read-modify-write of the queue document.
func (s *FileQueue) Update(fn func([]QueueEntry) ([]QueueEntry, bool, error)) error {
	return s.doc.locked(func() error {
		q, err := s.Load()
		if err != nil {
			return err
		}
		next, changed, err := fn(q)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if next == nil {
			next = []QueueEntry{}
		}
		return s.doc.write(next)
	})
}
