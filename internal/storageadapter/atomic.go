package storageadapter

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// defaultRetryDelay is the interval between Store/Delete's attempts to
// acquire the per-pod lock file; they keep trying until ctx is done.
const defaultRetryDelay = 5 * time.Second

// atomicWrite writes content to path by creating a temp file in the
// same directory and renaming it over path, so concurrent readers never
// observe a partially written file (SPEC_FULL.md §4.7).
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// atomicWriteIfAbsent only writes path if it does not already exist,
// since by-hash objects are content-addressed and therefore immutable
// once written.
func atomicWriteIfAbsent(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return atomicWrite(path, content)
}
