package replay

import (
	"context"
	"sync"

	"github.com/run-matchmaker/internal/domain"
)

// MemoryStore keeps logs in a map.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), body...)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.objects[key]
	if !ok {
		return nil, replayNotFound(key)
	}
	return append([]byte(nil), body...), nil
}

func replayNotFound(key string) *domain.Error {
	return domain.NewError(domain.ErrNotFound, "replay_not_found", "battle log does not exist", "key", key)
}
