package storageadapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/webpods-go/webpods/internal/apperrors"
)

// FilesystemAdapter implements Adapter over a local directory tree,
// rooted at baseDir. Every write takes the pod's lock file before
// writing a temp file and renaming it into place, so concurrent writers
// to the same by-name path never observe a partial file.
type FilesystemAdapter struct {
	baseDir string
}

func NewFilesystemAdapter(baseDir string) *FilesystemAdapter {
	return &FilesystemAdapter{baseDir: baseDir}
}

func (a *FilesystemAdapter) byHashPath(podName, contentHash string) string {
	return filepath.Join(a.baseDir, sanitizeComponent(podName), ".storage", sanitizeComponent(contentHash))
}

func (a *FilesystemAdapter) byNamePath(podName, streamPath, recordName, ext string) string {
	segments := []string{a.baseDir, sanitizeComponent(podName)}
	for _, seg := range splitClean(streamPath) {
		segments = append(segments, sanitizeComponent(seg))
	}
	fileName := sanitizeComponent(recordName) + "." + sanitizeExt(ext)
	segments = append(segments, fileName)
	return filepath.Join(segments...)
}

func splitClean(path string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				out = append(out, path[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func (a *FilesystemAdapter) lockPath(podName string) string {
	return filepath.Join(a.baseDir, sanitizeComponent(podName), ".lock")
}

// Store writes the by-hash object (if not already present — content is
// addressed by hash, so a second writer with identical content is a
// no-op) and the by-name object, each via write-temp-then-rename
// (SPEC_FULL.md §4.7).
func (a *FilesystemAdapter) Store(ctx context.Context, podName, streamPath, recordName, contentHash string, content []byte, ext string) (string, error) {
	lockFile := a.lockPath(podName)
	if err := os.MkdirAll(filepath.Dir(lockFile), 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.KindStorageErr, "create pod storage directory", err)
	}

	fl := flock.New(lockFile)
	if err := fl.LockContext(ctx, defaultRetryDelay); err != nil {
		return "", apperrors.Wrap(apperrors.KindStorageErr, "acquire storage lock", err)
	}
	defer fl.Unlock()

	byHash := a.byHashPath(podName, contentHash)
	if err := atomicWriteIfAbsent(byHash, content); err != nil {
		return "", apperrors.Wrap(apperrors.KindStorageErr, "write by-hash object", err)
	}

	byName := a.byNamePath(podName, streamPath, recordName, ext)
	if err := atomicWrite(byName, content); err != nil {
		return "", apperrors.Wrap(apperrors.KindStorageErr, "write by-name object", err)
	}

	return contentHash, nil
}

func (a *FilesystemAdapter) URL(_ context.Context, storageID string) (string, error) {
	return fmt.Sprintf("/.storage/%s", storageID), nil
}

func (a *FilesystemAdapter) Delete(ctx context.Context, podName, streamPath, recordName, contentHash, ext string, purge bool) error {
	lockFile := a.lockPath(podName)
	fl := flock.New(lockFile)
	if err := fl.LockContext(ctx, defaultRetryDelay); err != nil {
		return apperrors.Wrap(apperrors.KindStorageErr, "acquire storage lock", err)
	}
	defer fl.Unlock()

	byName := a.byNamePath(podName, streamPath, recordName, ext)
	if err := os.Remove(byName); err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(apperrors.KindStorageErr, "delete by-name object", err)
	}

	if purge {
		byHash := a.byHashPath(podName, contentHash)
		if err := os.Remove(byHash); err != nil && !os.IsNotExist(err) {
			return apperrors.Wrap(apperrors.KindStorageErr, "delete by-hash object", err)
		}
	}
	return nil
}

func (a *FilesystemAdapter) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(filepath.Join(a.baseDir, path))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindStorageErr, "stat object", err)
	}
	return true, nil
}
