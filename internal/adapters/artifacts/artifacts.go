package artifacts

import (
	"context"
	"fmt"
	"sync"
)

// Uploader stores a blob and returns a URL it can be fetched from.
type Uploader interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// MemoryStore keeps blobs in process. It backs local runs without MinIO.
type MemoryStore struct {
	mu    sync.RWMutex
	base  string
	blobs map[string][]byte
}

// NewMemoryStore returns an empty store whose URLs start with base.
func NewMemoryStore(base string) *MemoryStore {
	return &MemoryStore{base: base, blobs: make(map[string][]byte)}
}

// Put keeps a copy of data.
func (m *MemoryStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("objectKey is required")
	}
	m.mu.Lock()
	m.blobs[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return objectURL(m.base, "memory", key), nil
}

// Get returns a stored blob.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	return b, ok
}

// ScreenshotKey is the object key for one captured page.
func ScreenshotKey(submissionID, page string) string {
	return "screenshots/" + submissionID + "/" + page + ".png"
}
