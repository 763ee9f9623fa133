package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/giantswarm/suidriver/pkg/logging"
)

const fileExt = ".json"

// FileStore keeps one file per object below root/<kind>/.
type FileStore struct {
	mu   sync.RWMutex
	root string
}

// NewFileStore creates a store rooted at root, creating it if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file storage needs a path")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

// Save writes data atomically.
func (s *FileStore) Save(_ context.Context, kind, name string, data []byte) error {
	if err := checkKey(kind, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, sanitizeName(kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, sanitizeName(name)+fileExt)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	logging.Debug("Storage", "Saved %s/%s to %s", kind, name, path)
	return nil
}

// Load reads an object.
func (s *FileStore) Load(_ context.Context, kind, name string) ([]byte, error) {
	if err := checkKey(kind, name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.path(kind, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(kind, name)
		}
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

// Delete removes an object.
func (s *FileStore) Delete(_ context.Context, kind, name string) error {
	if err := checkKey(kind, name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(kind, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return notFound(kind, name)
		}
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	logging.Debug("Storage", "Deleted %s/%s from %s", kind, name, path)
	return nil
}

// List returns the sorted names stored under kind.
func (s *FileStore) List(_ context.Context, kind string) ([]string, error) {
	if kind == "" {
		return nil, ErrInvalidKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.root, sanitizeName(kind)))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), fileExt))
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(kind, name string) string {
	return filepath.Join(s.root, sanitizeName(kind), sanitizeName(name)+fileExt)
}
