package blobstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore 是进程内实现，适合测试与无需持久化的临时运行。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore 返回空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (s *MemoryStore) Backend() string { return "memory" }

func (s *MemoryStore) Open(ctx context.Context) (Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	blob, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return blob, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, blob []byte) error {
	stored := append([]byte(nil), blob...)
	s.mu.Lock()
	s.entries[key] = stored
	s.mu.Unlock()
	return nil
}

// Len 返回条目数。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
