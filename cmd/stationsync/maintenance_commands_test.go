package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sydlexius/stationsync/internal/backup"
	"github.com/sydlexius/stationsync/internal/database"
	"github.com/sydlexius/stationsync/internal/history"
	"github.com/sydlexius/stationsync/internal/store"
)

func (e *testEnv) listBackups(t *testing.T) []backup.BackupInfo {
	t.Helper()
	out, err := e.run(t, "", "backup", "list", "--json")
	if err != nil {
		t.Fatalf("backup list: %v", err)
	}
	var got []backup.BackupInfo
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	return got
}

func TestBackupCommand_Disabled(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.run(t, "", "backup"); !errors.Is(err, errBackupsDisabled) {
		t.Errorf("err = %v, want errBackupsDisabled", err)
	}
}

func TestBackupCommand(t *testing.T) {
	env := newTestEnv(t).withBackups(t)

	out, err := env.run(t, "", "backup")
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if !strings.Contains(out, "Nothing to back up yet.") {
		t.Errorf("output = %q", out)
	}
	if got := env.listBackups(t); len(got) != 0 {
		t.Errorf("backups = %+v, want none", got)
	}

	cache := store.NewFileCache(env.cachePath, testLogger())
	if err := cache.Save(store.Cache{"abba:sos": store.DeniedEntry()}); err != nil {
		t.Fatal(err)
	}
	out, err = env.run(t, "", "backup")
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if !strings.Contains(out, "cache-") {
		t.Errorf("output = %q", out)
	}

	got := env.listBackups(t)
	if len(got) != 1 || got[0].Document != "cache" {
		t.Fatalf("backups = %+v, want one cache snapshot", got)
	}
}

func TestBackupRestoreCommand(t *testing.T) {
	env := newTestEnv(t).withBackups(t)
	cache := store.NewFileCache(env.cachePath, testLogger())
	if err := cache.Save(store.Cache{"abba:sos": store.DeniedEntry()}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.run(t, "", "backup"); err != nil {
		t.Fatal(err)
	}
	snapshot := env.listBackups(t)[0].Filename

	if err := os.WriteFile(env.cachePath, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := env.run(t, "", "backup", "restore", snapshot)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !strings.Contains(out, "Restored ") {
		t.Errorf("output = %q", out)
	}
	loaded, err := cache.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := loaded["abba:sos"]; !ok {
		t.Errorf("cache after restore = %+v", loaded)
	}
}

func TestQueuePruneTakesSnapshot(t *testing.T) {
	env := newTestEnv(t).withBackups(t)
	env.queue(t, store.QueueEntry{Key: "queen:bohemian rhapsody"})

	if _, err := env.run(t, "", "queue", "prune"); err != nil {
		t.Fatalf("prune: %v", err)
	}
	got := env.listBackups(t)
	if len(got) != 1 || got[0].Document != "queue" {
		t.Errorf("backups = %+v, want one queue snapshot", got)
	}
}

func TestHistoryCommands_Disabled(t *testing.T) {
	env := newTestEnv(t)
	for _, args := range [][]string{
		{"history", "runs"},
		{"history", "decisions"},
		{"history", "prune", "--older-than", "1h"},
		{"history", "optimize"},
	} {
		if _, err := env.run(t, "", args...); !errors.Is(err, errHistoryDisabled) {
			t.Errorf("%v: err = %v, want errHistoryDisabled", args, err)
		}
	}
}

func seedHistory(t *testing.T, path string) {
	t.Helper()
	db, err := database.OpenAndMigrate(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	hist := history.NewService(db)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, started := range []time.Time{now.AddDate(0, 0, -10), now.Add(-time.Minute)} {
		if err := hist.RecordRun(ctx, &history.Run{Source: "library.csv", StartedAt: started, Total: 4, Auto: 3, Queued: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := hist.RecordDecision(ctx, &history.Decision{Key: "abba:sos", Status: "denied", Reviewer: "admin"}); err != nil {
		t.Fatal(err)
	}
}

func TestHistoryRunsAndDecisions(t *testing.T) {
	env := newTestEnv(t).withHistory(t)
	seedHistory(t, env.dbPath)

	out, err := env.run(t, "", "history", "runs", "--json")
	if err != nil {
		t.Fatalf("history runs: %v", err)
	}
	var runs []history.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(runs) != 2 || runs[0].Auto != 3 {
		t.Errorf("runs = %+v", runs)
	}

	out, err = env.run(t, "", "history", "decisions", "abba:sos")
	if err != nil {
		t.Fatalf("history decisions: %v", err)
	}
	for _, want := range []string{"abba:sos", "denied", "admin"} {
		if !strings.Contains(out, want) {
			t.Errorf("decisions table missing %q:\n%s", want, out)
		}
	}

	out, _ = env.run(t, "", "history", "decisions", "queen:bohemian rhapsody")
	if !strings.Contains(out, "No decisions recorded.") {
		t.Errorf("output = %q", out)
	}
}

func TestHistoryPruneCommand(t *testing.T) {
	env := newTestEnv(t).withHistory(t)
	seedHistory(t, env.dbPath)

	if _, err := env.run(t, "", "history", "prune"); err == nil {
		t.Error("expected an error without a retention window")
	}

	out, err := env.run(t, "", "history", "prune", "--older-than", "168h")
	if err != nil {
		t.Fatalf("history prune: %v", err)
	}
	if !strings.Contains(out, "Removed 1 runs and 0 decisions") {
		t.Errorf("output = %q", out)
	}
}

func TestHistoryOptimizeCommand(t *testing.T) {
	env := newTestEnv(t).withHistory(t)
	seedHistory(t, env.dbPath)

	out, err := env.run(t, "", "history", "optimize", "--vacuum")
	if err != nil {
		t.Fatalf("history optimize: %v", err)
	}
	for _, want := range []string{"Database size", "Free pages", "Vacuumed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
