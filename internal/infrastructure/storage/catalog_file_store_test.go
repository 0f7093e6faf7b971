package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nest-haus/backend/internal/domain/imagesync"
)

func TestCatalogFileStore_LoadMissing(t *testing.T) {
	s := NewCatalogFileStore(filepath.Join(t.TempDir(), "images.json"), nil)
	cat, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cat)
}

func TestCatalogFileStore_ReplaceAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "images.json")
	s := NewCatalogFileStore(path, nil)

	first := imagesync.Catalog{
		"hero.startseite":        "images/1-NEST-Haus-Startseite",
		"hero.mobile.startseite": "images/1-NEST-Haus-Startseite-mobile",
	}
	require.NoError(t, s.Replace(ctx, first))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second := first.Clone()
	second["gallery.house"] = "images/150-House"
	require.NoError(t, s.Replace(ctx, second))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	_, err = os.Stat(s.BackupPath())
	assert.True(t, os.IsNotExist(err), "backup is removed after a successful write")
}

func TestCatalogFileStore_RestoresOnFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "images.json")
	s := NewCatalogFileStore(path, nil)

	original := imagesync.Catalog{"hero.a": "images/1-A"}
	require.NoError(t, s.Replace(ctx, original))

	// A read-only directory makes the temp file creation fail after the backup exists.
	require.NoError(t, os.WriteFile(s.BackupPath(), nil, 0o644))
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	err := s.Replace(ctx, imagesync.Catalog{"hero.b": "images/2-B"})
	require.Error(t, err)

	require.NoError(t, os.Chmod(dir, 0o755))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestCatalogFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewCatalogFileStore(path, nil).Load(context.Background())
	assert.Error(t, err)
}

func TestCatalogFileStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewCatalogFileStore(filepath.Join(t.TempDir(), "images.json"), nil)
	assert.ErrorIs(t, s.Replace(ctx, imagesync.Catalog{"a.b": "c"}), context.Canceled)
}
