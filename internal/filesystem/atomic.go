package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces target with data so that readers only ever see the
// old document or the complete new one. The data goes to a temp file in the
// same directory, is fsynced, and is then renamed over target. A crash before
// the rename leaves target untouched.
func WriteFileAtomic(target string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: application data directory
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("renaming temp to target: %w", err)
	}
	committed = true

	syncDir(dir)
	return nil
}

// WriteReaderAtomic drains r and writes it to target with WriteFileAtomic.
func WriteReaderAtomic(target string, r io.Reader, perm os.FileMode) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading source data: %w", err)
	}
	return WriteFileAtomic(target, data, perm)
}

// syncDir flushes the directory entry for a rename. Best effort: some
// platforms do not allow opening directories for sync.
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // G304: dir derived from target path
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
