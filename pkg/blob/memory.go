package blob

import (
	"context"
	"fmt"
	"sync"

	"github.com/orchestrate-hq/orchestrate/internal/types"
)

// MemoryStore holds blobs in a map. Used by tests and by the CLI's
// local mode, where durability across restarts does not matter.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// FailWith, when set, makes every write fail with the given error.
	FailWith error
}

func NewMemory() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func blobKey(bucket, key string) string { return bucket + "/" + key }

func (s *MemoryStore) Put(_ context.Context, bucket, key string, data []byte) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[blobKey(bucket, key)] = cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[blobKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%w: blob %s/%s not found", types.ErrInvalidInput, bucket, key)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, blobKey(bucket, key))
	return nil
}

// Len reports how many blobs are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
