package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordersaga/internal/domain"
)

func TestInventoryStore_LoadMissingFile(t *testing.T) {
	s := NewInventoryStore(filepath.Join(t.TempDir(), "inventory.json"))
	items, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestInventoryStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "inventory.json")
	s := NewInventoryStore(path)
	ctx := context.Background()

	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	items := domain.DefaultCatalog(now)
	shoes := items["Shoes"]
	shoes.Reserved = 4
	items["Shoes"] = shoes

	require.NoError(t, s.Save(ctx, items))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, loaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestInventoryStore_FileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	s := NewInventoryStore(path)

	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, s.Save(context.Background(), map[string]domain.InventoryItem{
		"Hats": {Stock: 40, Reserved: 2, Price: 400, LastUpdated: now},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Hats":{"stock":40,"reserved":2,"price":400,"lastUpdated":"2026-02-03T04:05:06Z"}}`, string(data))
}

func TestInventoryStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewInventoryStore(path).Load(context.Background())
	assert.ErrorContains(t, err, "decode inventory file")
}

func TestInventoryStore_SaveHonoursCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewInventoryStore(path).Save(ctx, domain.DefaultCatalog(time.Now()))
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
