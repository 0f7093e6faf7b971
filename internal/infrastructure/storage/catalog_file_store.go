package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/nest-haus/backend/internal/domain/imagesync"
)

var _ imagesync.CatalogStore = (*CatalogFileStore)(nil)

// CatalogFileStore keeps the image catalog as a JSON file. Replace writes a
// temp file and renames it over the catalog, keeping a .bak of the old one.
type CatalogFileStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewCatalogFileStore creates a store for the catalog at path.
func NewCatalogFileStore(path string, logger *zap.Logger) *CatalogFileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogFileStore{path: path, logger: logger}
}

// Path is the catalog file location
func (s *CatalogFileStore) Path() string {
	return s.path
}

// BackupPath is where the previous catalog is kept during Replace.
func (s *CatalogFileStore) BackupPath() string {
	return s.path + ".bak"
}

// Load reads the catalog. A missing file is an empty catalog.
func (s *CatalogFileStore) Load(_ context.Context) (imagesync.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *CatalogFileStore) load() (imagesync.Catalog, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return imagesync.Catalog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image catalog: %w", err)
	}
	return imagesync.ParseCatalog(data)
}

// Replace backs up the current file, writes next and restores the backup if
// anything fails. The backup is removed after a successful write.
func (s *CatalogFileStore) Replace(ctx context.Context, next imagesync.Catalog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := next.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode image catalog: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}

	hadPrevious, err := s.backup()
	if err != nil {
		return err
	}

	if err := s.writeAtomic(data); err != nil {
		if hadPrevious {
			if rerr := s.restore(); rerr != nil {
				s.logger.Error("Failed to restore image catalog backup", zap.String("path", s.path), zap.Error(rerr))
				return errors.Join(err, rerr)
			}
			s.logger.Warn("Restored image catalog from backup", zap.String("path", s.path), zap.Error(err))
		}
		return err
	}

	if hadPrevious {
		_ = os.Remove(s.BackupPath())
	}
	s.logger.Info("Image catalog written", zap.String("path", s.path), zap.Int("keys", len(next)))
	return nil
}

func (s *CatalogFileStore) backup() (bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read image catalog for backup: %w", err)
	}
	if err := os.WriteFile(s.BackupPath(), data, 0o644); err != nil {
		return false, fmt.Errorf("failed to back up image catalog: %w", err)
	}
	return true, nil
}

func (s *CatalogFileStore) restore() error {
	data, err := os.ReadFile(s.BackupPath())
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *CatalogFileStore) writeAtomic(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp catalog: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp catalog: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp catalog: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set catalog permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace image catalog: %w", err)
	}
	return nil
}
