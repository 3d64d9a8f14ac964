package storageadapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFilesystemAdapterStoreWritesBothPaths(t *testing.T) {
	dir := t.TempDir()
	a := NewFilesystemAdapter(dir)
	ctx := context.Background()

	content := []byte("hello world")
	hash := "abc123"
	if _, err := a.Store(ctx, "pod1", "blog/posts", "first", hash, content, "txt"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	byHash := filepath.Join(dir, "pod1", ".storage", hash)
	if got, err := os.ReadFile(byHash); err != nil || string(got) != string(content) {
		t.Fatalf("by-hash object missing or wrong: %v %q", err, got)
	}

	byName := filepath.Join(dir, "pod1", "blog", "posts", "first.txt")
	if got, err := os.ReadFile(byName); err != nil || string(got) != string(content) {
		t.Fatalf("by-name object missing or wrong: %v %q", err, got)
	}
}

func TestFilesystemAdapterDeletePurgeRemovesByHash(t *testing.T) {
	dir := t.TempDir()
	a := NewFilesystemAdapter(dir)
	ctx := context.Background()

	hash := "deadbeef"
	if _, err := a.Store(ctx, "pod1", "blog", "post", hash, []byte("x"), "txt"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := a.Delete(ctx, "pod1", "blog", "post", hash, "txt", true); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	byHash := filepath.Join(dir, "pod1", ".storage", hash)
	if _, err := os.Stat(byHash); !os.IsNotExist(err) {
		t.Fatal("expected by-hash object removed on purge")
	}
}

func TestSanitizeComponentStripsTraversal(t *testing.T) {
	tests := map[string]string{
		"../../etc/passwd": "etcpasswd",
		"normal-name":       "normal-name",
		"a/b\\c":            "abc",
	}
	for in, want := range tests {
		if got := sanitizeComponent(in); got != want {
			t.Errorf("sanitizeComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeExtRestrictsToAlnum(t *testing.T) {
	if got := sanitizeExt("jp.g/"); got != "jpg" {
		t.Errorf("sanitizeExt = %q, want jpg", got)
	}
	if got := sanitizeExt("!!!"); got != "bin" {
		t.Errorf("sanitizeExt fallback = %q, want bin", got)
	}
}
