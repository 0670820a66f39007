package filesystem

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("unexpected temp file remains: %s", e.Name())
		}
	}
}

func TestWriteFileAtomic_NewFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "cache.json")
	data := []byte(`{"a":1}`)

	if err := WriteFileAtomic(target, data, 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("content = %q, want %q", got, data)
	}
	assertNoTempFiles(t, dir)
}

func TestWriteFileAtomic_OverwriteExisting(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "cache.json")

	if err := os.WriteFile(target, []byte("original"), 0o644); err != nil {
		t.Fatalf("writing original: %v", err)
	}

	newData := []byte("updated content")
	if err := WriteFileAtomic(target, newData, 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, newData) {
		t.Errorf("content = %q, want %q", got, newData)
	}
	assertNoTempFiles(t, dir)
}

func TestWriteFileAtomic_CreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sub", "dir", "queue.json")

	if err := WriteFileAtomic(target, []byte("[]"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "[]" {
		t.Errorf("content = %q, want %q", got, "[]")
	}
}

func TestWriteFileAtomic_Permissions(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "perm.json")

	if err := WriteFileAtomic(target, []byte("{}"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestWriteFileAtomic_TargetIsDirectory(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "occupied")
	if err := os.MkdirAll(filepath.Join(target, "child"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := WriteFileAtomic(target, []byte("x"), 0o644); err == nil {
		t.Fatal("expected error when target is a non-empty directory")
	}
	assertNoTempFiles(t, dir)
}

func TestWriteReaderAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "artwork.jpg")
	data := []byte("from reader")

	if err := WriteReaderAtomic(target, bytes.NewReader(data), 0o644); err != nil {
		t.Fatalf("WriteReaderAtomic: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("content = %q, want %q", got, data)
	}
}

func TestWriteFileAtomic_MultipleOverwrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "multi.json")

	for i := 0; i < 10; i++ {
		data := []byte("iteration " + string(rune('0'+i)))
		if err := WriteFileAtomic(target, data, 0o644); err != nil {
			t.Fatalf("WriteFileAtomic iteration %d: %v", i, err)
		}
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "iteration 9" {
		t.Errorf("content = %q, want %q", got, "iteration 9")
	}
	assertNoTempFiles(t, dir)
}
