package storage

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nest-haus/backend/internal/domain/imagesync"
)

var _ imagesync.BlobStore = (*MemoryBlobStore)(nil)

// MemoryBlobStore keeps objects in memory. Used in tests and when no bucket
// is configured in development.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	BaseURL string
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	data        []byte
	contentType string
	uploadedAt  time.Time
}

// NewMemoryBlobStore creates an empty store
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		BaseURL: "https://blob.local",
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

// URL returns the URL an object would be served from
func (m *MemoryBlobStore) URL(key string) string {
	return m.BaseURL + "/" + key
}

// List returns objects under prefix sorted by key.
func (m *MemoryBlobStore) List(_ context.Context, prefix string) ([]imagesync.MirrorObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]imagesync.MirrorObject, 0, len(m.objects))
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, imagesync.MirrorObject{
			Key:        key,
			URL:        m.URL(key),
			Size:       int64(len(obj.data)),
			UploadedAt: obj.uploadedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Put stores body under key
func (m *MemoryBlobStore) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType, uploadedAt: m.now()}
	m.mu.Unlock()
	return m.URL(key), nil
}

// Delete removes key
func (m *MemoryBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Exists reports whether key is stored
func (m *MemoryBlobStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	return ok, nil
}

// Get returns the stored bytes and content type of key.
func (m *MemoryBlobStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.data, obj.contentType, ok
}

// Seed stores data under key with a fixed upload time.
func (m *MemoryBlobStore) Seed(key string, data []byte, uploadedAt time.Time) {
	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, uploadedAt: uploadedAt}
	m.mu.Unlock()
}
