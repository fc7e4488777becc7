package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LocalStorage implements ObjectStorage using the local filesystem.
// Keys are slash-separated paths below the base directory.
type LocalStorage struct {
	basePath string
	mu       sync.RWMutex
}

// NewLocalStorage creates a new local filesystem storage.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Put writes data to a temporary file and renames it into place, so readers
// never see a partial object.
func (l *LocalStorage) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	destPath, err := l.fullPath(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".put-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return nil
}

// Get reads an object from local storage.
func (l *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	srcPath, err := l.fullPath(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := os.ReadFile(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return data, nil
}

// Delete removes an object from local storage.
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := l.fullPath(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			// S3 Delete is idempotent, so we don't return an error
			return nil
		}
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

// Exists checks if an object exists in local storage.
func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fullPath, err := l.fullPath(key)
	if err != nil {
		return false, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// List returns all object keys under the given prefix.
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var keys []string
	err := filepath.Walk(l.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes all objects from local storage.
// This is useful for test cleanup.
func (l *LocalStorage) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.RemoveAll(l.basePath); err != nil {
		return err
	}
	return os.MkdirAll(l.basePath, 0755)
}

// fullPath maps a key to a path below the base directory. Keys that would
// escape it are rejected.
func (l *LocalStorage) fullPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.basePath, clean), nil
}
