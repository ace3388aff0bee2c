package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/utafrali/ordersaga/internal/domain"
)

// InventoryStore persists the ledger as a JSON object keyed by product ID.
// Writes go to a temp file in the same directory and are renamed into place.
type InventoryStore struct {
	mu   sync.Mutex
	path string
}

// NewInventoryStore creates a store backed by path. The file is created on
// the first Save.
func NewInventoryStore(path string) *InventoryStore {
	return &InventoryStore{path: path}
}

// Path returns the backing file.
func (s *InventoryStore) Path() string { return s.path }

// Load reads the file. A missing or empty file yields (nil, nil).
func (s *InventoryStore) Load(_ context.Context) (map[string]domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read inventory file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var items map[string]domain.InventoryItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode inventory file %s: %w", s.path, err)
	}
	return items, nil
}

// Save writes items atomically.
func (s *InventoryStore) Save(ctx context.Context, items map[string]domain.InventoryItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create inventory dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename inventory file: %w", err)
	}
	return nil
}
