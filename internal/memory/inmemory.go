package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use and
// tests. It keeps full per-session turn lists, unbounded.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns map[uuid.UUID][]Turn
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{turns: make(map[uuid.UUID][]Turn)}
}

func (s *InMemoryStore) LoadRecent(_ context.Context, sessionID uuid.UUID, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Turn, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *InMemoryStore) Append(_ context.Context, sessionID uuid.UUID, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
