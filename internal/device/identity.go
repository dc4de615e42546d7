package device

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const deviceUIDKey = "device_uid"

// NewUID mints a fresh stable identifier.
func NewUID() string {
	return uuid.NewString()
}

// UIDStore is the get-or-create key/value persistence behind stable UIDs.
// GetOrCreate must be idempotent: once a key holds a value, later calls
// return that value and never invoke generate again.
type UIDStore interface {
	GetOrCreate(key string, generate func() string) (string, error)
}

// FileStore persists values as small JSON files under one directory, one
// file per key.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

type storedValue struct {
	Value string `json:"value"`
}

func (s *FileStore) GetOrCreate(key string, generate func() string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, key+".json")
	if data, err := os.ReadFile(path); err == nil {
		var stored storedValue
		if err := json.Unmarshal(data, &stored); err == nil && stored.Value != "" {
			return stored.Value, nil
		}
	}

	value := generate()
	data, err := json.MarshalIndent(storedValue{Value: value}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("device: marshal %s: %w", key, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("device: create store dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("device: persist %s: %w", key, err)
	}
	return value, nil
}

// MemoryStore is an in-process UIDStore for tests.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) GetOrCreate(key string, generate func() string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	v := generate()
	s.values[key] = v
	return v, nil
}
