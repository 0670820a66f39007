package backup

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sydlexius/stationsync/internal/database"
	"github.com/sydlexius/stationsync/internal/history"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	svc   *Service
	dir   string
	cache string
	queue string
	clock time.Time
}

// setup writes both documents and returns a service whose clock advances
// one minute per call to tick.
func setup(t *testing.T, db *sql.DB, retention int) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		dir:   filepath.Join(root, "backups"),
		cache: filepath.Join(root, "media_lookup_cache.json"),
		queue: filepath.Join(root, "manual_review_queue.json"),
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := os.WriteFile(f.cache, []byte(`{"abba:sos":{"status":"auto"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.queue, []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}
	f.svc = NewService(f.dir, []Document{
		{Name: "cache", Path: f.cache},
		{Name: "queue", Path: f.queue},
	}, db, retention, testLogger())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) tick() { f.clock = f.clock.Add(time.Minute) }

func TestBackup_Documents(t *testing.T) {
	f := setup(t, nil, 5)

	created, err := f.svc.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d snapshots, want 2", len(created))
	}
	if created[0].Filename != "cache-20260301-120000.json" {
		t.Errorf("filename = %q", created[0].Filename)
	}

	got, err := os.ReadFile(filepath.Join(f.dir, created[0].Filename))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"abba:sos":{"status":"auto"}}` {
		t.Errorf("snapshot content = %s", got)
	}
}

func TestBackup_SkipsMissingDocument(t *testing.T) {
	f := setup(t, nil, 5)
	if err := os.Remove(f.queue); err != nil {
		t.Fatal(err)
	}

	created, err := f.svc.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if len(created) != 1 || created[0].Document != "cache" {
		t.Errorf("created = %+v, want only the cache snapshot", created)
	}
}

func TestBackup_HistoryDatabase(t *testing.T) {
	db, err := database.OpenAndMigrate(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	if err := history.NewService(db).RecordRun(ctx, &history.Run{Source: "lib.csv", Total: 3}); err != nil {
		t.Fatal(err)
	}

	f := setup(t, db, 5)
	// Same timestamp twice; the database snapshot must be replaced.
	for range 2 {
		if _, err := f.svc.Backup(ctx); err != nil {
			t.Fatalf("Backup: %v", err)
		}
	}

	snap, err := sql.Open("sqlite", filepath.Join(f.dir, "history-20260301-120000.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer snap.Close()

	var total int
	if err := snap.QueryRowContext(ctx, "SELECT total FROM runs").Scan(&total); err != nil {
		t.Fatalf("querying snapshot: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}

func TestListBackups(t *testing.T) {
	f := setup(t, nil, 5)
	for range 3 {
		if _, err := f.svc.Backup(context.Background()); err != nil {
			t.Fatal(err)
		}
		f.tick()
	}
	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(f.dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	backups, err := f.svc.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 6 {
		t.Fatalf("expected 6 backups, got %d", len(backups))
	}
	if backups[0].Filename != "cache-20260301-120200.json" || backups[1].Filename != "queue-20260301-120200.json" {
		t.Errorf("newest first = %s, %s", backups[0].Filename, backups[1].Filename)
	}
}

func TestListBackupsEmptyDir(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "nonexistent"), nil, nil, 5, testLogger())
	backups, err := svc.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected 0 backups, got %d", len(backups))
	}
}

func TestPrune_RetentionPerDocument(t *testing.T) {
	f := setup(t, nil, 2)
	for range 4 {
		if _, err := f.svc.Backup(context.Background()); err != nil {
			t.Fatal(err)
		}
		f.tick()
	}

	removed, err := f.svc.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 4 {
		t.Errorf("removed %d, want 4", len(removed))
	}

	backups, _ := f.svc.ListBackups()
	counts := map[string]int{}
	for _, b := range backups {
		counts[b.Document]++
	}
	if counts["cache"] != 2 || counts["queue"] != 2 {
		t.Errorf("remaining per document = %v, want 2 each", counts)
	}
}

func TestPrune_MaxAge(t *testing.T) {
	f := setup(t, nil, 100)
	if _, err := f.svc.Backup(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.clock = f.clock.AddDate(0, 0, 60)
	if _, err := f.svc.Backup(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.svc.SetMaxAgeDays(30)
	removed, err := f.svc.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("removed = %v, want the two old snapshots", removed)
	}

	backups, _ := f.svc.ListBackups()
	for _, b := range backups {
		if !b.CreatedAt.Equal(f.clock) {
			t.Errorf("old snapshot survived: %s", b.Filename)
		}
	}
}

func TestRestore(t *testing.T) {
	f := setup(t, nil, 5)
	created, err := f.svc.Backup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.cache, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := f.svc.Restore(created[0].Filename)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if doc.Name != "cache" {
		t.Errorf("restored %q, want cache", doc.Name)
	}
	got, _ := os.ReadFile(f.cache)
	if string(got) != `{"abba:sos":{"status":"auto"}}` {
		t.Errorf("cache after restore = %s", got)
	}
}

func TestRestore_Rejects(t *testing.T) {
	f := setup(t, nil, 5)
	for _, name := range []string{"../cache-20260301-120000.json", "history-20260301-120000.db", "stats-20260301-120000.json"} {
		if _, err := f.svc.Restore(name); err == nil {
			t.Errorf("Restore(%q) should fail", name)
		}
	}
}

func TestDelete(t *testing.T) {
	f := setup(t, nil, 5)
	created, err := f.svc.Backup(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Delete(created[0].Filename); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	backups, _ := f.svc.ListBackups()
	if len(backups) != 1 {
		t.Errorf("expected 1 backup after delete, got %d", len(backups))
	}

	if err := f.svc.Delete("../evil.db"); err == nil {
		t.Error("expected error for invalid filename")
	}
	if err := f.svc.Delete("cache-20200101-000000.json"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestIsValidBackupFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"cache", "cache-20260220-143022.json", true},
		{"history", "history-20260220-143022.db", true},
		{"path traversal", "../queue-20260220-143022.json", false},
		{"backslash", "..\\queue-20260220-143022.json", false},
		{"no name", "-20260220-143022.json", false},
		{"wrong extension", "cache-20260220-143022.sql", false},
		{"short stamp", "cache-2026022-143022.json", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidBackupFilename(tt.input); got != tt.want {
				t.Errorf("IsValidBackupFilename(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
