package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLocalStorage_PutGet(t *testing.T) {
	baseDir := t.TempDir()
	storage, err := NewLocalStorage(baseDir)
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	key := "snapshots/bond/object.msnp"
	content := []byte("hello world")
	if err := storage.Put(ctx, key, content); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := storage.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	got, err := storage.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	// Put replaces
	if err := storage.Put(ctx, key, []byte("v2")); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	got, _ = storage.Get(ctx, key)
	if string(got) != "v2" {
		t.Errorf("after replace: got %q, want v2", got)
	}

	if err := storage.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = storage.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists after delete failed: %v", err)
	}
	if exists {
		t.Error("expected object to not exist after delete")
	}
}

func TestLocalStorage_GetNotFound(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	_, err = storage.Get(context.Background(), "nonexistent/object.msnp")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_DeleteNonexistent(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	// Delete should be idempotent
	if err := storage.Delete(context.Background(), "nonexistent/object.msnp"); err != nil {
		t.Errorf("Delete of nonexistent object should not error: %v", err)
	}
}

func TestLocalStorage_List(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{
		"snapshots/bond/b.msnp",
		"snapshots/bond/a.msnp",
		"snapshots/atom/c.msnp",
		"other/d.txt",
	} {
		if err := storage.Put(ctx, key, []byte(key)); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	keys, err := storage.List(ctx, "snapshots/bond/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"snapshots/bond/a.msnp", "snapshots/bond/b.msnp"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("List: got %v, want %v", keys, want)
	}

	all, err := storage.List(ctx, "")
	if err != nil {
		t.Fatalf("List all failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("List all: got %d keys, want 4", len(all))
	}

	none, err := storage.List(ctx, "missing/")
	if err != nil {
		t.Fatalf("List missing prefix failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("List missing prefix: got %v", none)
	}
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	base := t.TempDir()
	storage, err := NewLocalStorage(filepath.Join(base, "store"))
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"", "../outside.msnp", "/etc/passwd"} {
		if err := storage.Put(ctx, key, []byte("x")); !errors.Is(err, ErrUploadFailed) {
			t.Errorf("Put(%q): expected ErrUploadFailed, got %v", key, err)
		}
	}
	if _, err := os.Stat(filepath.Join(base, "outside.msnp")); !os.IsNotExist(err) {
		t.Error("object escaped the base directory")
	}
}

func TestLocalStorage_ContextCancellation(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := storage.Put(ctx, "k", []byte("x")); err == nil {
		t.Error("expected error with cancelled context")
	}
	if _, err := storage.Get(ctx, "k"); err == nil {
		t.Error("expected error with cancelled context")
	}
}

func TestLocalStorage_Clear(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	if err := storage.Put(ctx, "a/b", []byte("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := storage.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if ok, _ := storage.Exists(ctx, "a/b"); ok {
		t.Error("expected storage to be empty after Clear")
	}
}
