package convo

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is an in-process Store, used by the CLI capture flow and tests.
type MemoryStore struct {
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Now: time.Now, entries: map[string]memoryEntry{}}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *MemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{data: data, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string, out any) (bool, error) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok && s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, out); err != nil {
		return false, err
	}
	return true, nil
}
