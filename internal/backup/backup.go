// Package backup keeps timestamped snapshots of the cache and queue
// documents and, when history is enabled, of the history database.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sydlexius/stationsync/internal/filesystem"
)

const stampLayout = "20060102-150405"

// HistoryName is the document name used for history database snapshots.
const HistoryName = "history"

// backupPattern matches snapshot filenames: <name>-YYYYMMDD-HHMMSS.json|db
var backupPattern = regexp.MustCompile(`^([a-z][a-z0-9_]*)-(\d{8}-\d{6})\.(json|db)$`)

// Document is a JSON store file to snapshot.
type Document struct {
	Name string
	Path string
}

// BackupInfo describes a snapshot file.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Document  string    `json:"document"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Service creates, lists and prunes snapshots in a single directory.
type Service struct {
	dir        string
	docs       []Document
	db         *sql.DB
	retention  int
	maxAgeDays int
	mu         sync.RWMutex
	now        func() time.Time
	logger     *slog.Logger
}

// NewService creates a backup service. db may be nil when history is
// disabled. retention is the number of snapshots kept per document.
func NewService(dir string, docs []Document, db *sql.DB, retention int, logger *slog.Logger) *Service {
	return &Service{
		dir:       dir,
		docs:      docs,
		db:        db,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "backup")),
	}
}

// Backup snapshots every configured document that exists, then the history
// database. Documents that have not been written yet are skipped.
func (s *Service) Backup(ctx context.Context) ([]BackupInfo, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := s.now()
	stamp := now.Format(stampLayout)
	var created []BackupInfo

	for _, doc := range s.docs {
		data, err := os.ReadFile(doc.Path)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("document not present, skipping", slog.String("document", doc.Name))
			continue
		}
		if err != nil {
			return created, fmt.Errorf("reading %s: %w", doc.Name, err)
		}

		filename := doc.Name + "-" + stamp + ".json"
		if err := filesystem.WriteFileAtomic(filepath.Join(s.dir, filename), data, 0o600); err != nil {
			return created, fmt.Errorf("writing %s snapshot: %w", doc.Name, err)
		}
		created = append(created, BackupInfo{
			Filename:  filename,
			Document:  doc.Name,
			Size:      int64(len(data)),
			CreatedAt: now,
		})
	}

	if s.db != nil {
		info, err := s.backupDatabase(ctx, stamp, now)
		if err != nil {
			return created, err
		}
		created = append(created, *info)
	}

	var total int64
	for _, b := range created {
		total += b.Size
	}
	s.logger.Info("backup complete",
		slog.Int("files", len(created)),
		slog.String("size", humanize.Bytes(uint64(total)))) //nolint:gosec // G115: sizes are non-negative
	return created, nil
}

func (s *Service) backupDatabase(ctx context.Context, stamp string, now time.Time) (*BackupInfo, error) {
	filename := HistoryName + "-" + stamp + ".db"
	dest := filepath.Join(s.dir, filename)

	// VACUUM INTO refuses to overwrite.
	if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("clearing previous snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("VACUUM INTO: %w", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat backup file: %w", err)
	}
	return &BackupInfo{
		Filename:  filename,
		Document:  HistoryName,
		Size:      info.Size(),
		CreatedAt: now,
	}, nil
}

// ListBackups returns all snapshot files sorted by date descending.
func (s *Service) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := backupPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ts, err := time.Parse(stampLayout, m[2])
		if err != nil {
			ts = info.ModTime()
		}
		backups = append(backups, BackupInfo{
			Filename:  entry.Name(),
			Document:  m[1],
			Size:      info.Size(),
			CreatedAt: ts,
		})
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return backups[i].Filename < backups[j].Filename
	})
	return backups, nil
}

// Restore copies a JSON snapshot back over its document. Database
// snapshots are restored by hand while the service is stopped.
func (s *Service) Restore(filename string) (*Document, error) {
	if !IsValidBackupFilename(filename) {
		return nil, fmt.Errorf("invalid backup filename")
	}
	m := backupPattern.FindStringSubmatch(filename)
	if m[3] != "json" {
		return nil, fmt.Errorf("%s is a database snapshot; copy it into place while stopped", filename)
	}

	var doc *Document
	for i := range s.docs {
		if s.docs[i].Name == m[1] {
			doc = &s.docs[i]
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("no document named %q is configured", m[1])
	}

	data, err := os.ReadFile(filepath.Join(s.dir, filename)) //nolint:gosec // G304: filename validated above
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if err := filesystem.WriteFileAtomic(doc.Path, data, 0o644); err != nil { //nolint:gosec // G306: store documents are world-readable
		return nil, fmt.Errorf("restoring %s: %w", doc.Name, err)
	}
	s.logger.Info("snapshot restored",
		slog.String("filename", filename),
		slog.String("path", doc.Path))
	return doc, nil
}

// Delete removes a single snapshot file by filename.
func (s *Service) Delete(filename string) error {
	if !IsValidBackupFilename(filename) {
		return fmt.Errorf("invalid backup filename")
	}
	path := filepath.Join(s.dir, filename)
	if err := os.Remove(path); err != nil { //nolint:gosec // G703: filename validated by IsValidBackupFilename above
		return fmt.Errorf("removing backup: %w", err)
	}
	s.logger.Info("backup deleted", slog.String("filename", filename))
	return nil
}

// SetRetention updates the per-document retention count.
func (s *Service) SetRetention(count int) {
	s.mu.Lock()
	s.retention = count
	s.mu.Unlock()
}

// SetMaxAgeDays updates the max age in days for pruning. Zero disables
// age-based pruning.
func (s *Service) SetMaxAgeDays(days int) {
	s.mu.Lock()
	s.maxAgeDays = days
	s.mu.Unlock()
}

// Retention returns the current retention count.
func (s *Service) Retention() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retention
}

// MaxAgeDays returns the current max age in days.
func (s *Service) MaxAgeDays() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxAgeDays
}

// Prune keeps the newest retention snapshots of each document and removes
// any older than the max age. It returns the removed filenames.
func (s *Service) Prune() ([]string, error) {
	s.mu.RLock()
	retention := s.retention
	maxAge := s.maxAgeDays
	s.mu.RUnlock()

	backups, err := s.ListBackups()
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if maxAge > 0 {
		cutoff = s.now().AddDate(0, 0, -maxAge)
	}

	seen := map[string]int{}
	var removed []string
	for _, b := range backups {
		seen[b.Document]++
		overCount := retention > 0 && seen[b.Document] > retention
		tooOld := !cutoff.IsZero() && b.CreatedAt.Before(cutoff)
		if !overCount && !tooOld {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, b.Filename)); err != nil {
			s.logger.Warn("failed to remove old backup",
				slog.String("filename", b.Filename),
				slog.Any("error", err))
			continue
		}
		removed = append(removed, b.Filename)
		s.logger.Info("pruned old backup", slog.String("filename", b.Filename))
	}
	return removed, nil
}

// Dir returns the backup directory path.
func (s *Service) Dir() string {
	return s.dir
}

// StartScheduler runs backups on a fixed interval until the context is canceled.
func (s *Service) StartScheduler(ctx context.Context, interval time.Duration) {
	s.logger.Info("backup scheduler started",
		slog.String("interval", interval.String()),
		slog.Int("retention", s.Retention()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("backup scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Backup(ctx); err != nil {
				s.logger.Error("scheduled backup failed", slog.Any("error", err))
				continue
			}
			if _, err := s.Prune(); err != nil {
				s.logger.Error("backup prune failed", slog.Any("error", err))
			}
		}
	}
}

// IsValidBackupFilename checks if a filename matches the snapshot pattern
// and does not contain path traversal characters.
func IsValidBackupFilename(filename string) bool {
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return false
	}
	return backupPattern.MatchString(filename)
}
