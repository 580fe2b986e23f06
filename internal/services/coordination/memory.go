package coordination

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/aptus/internal/interfaces"
)

// MemoryStore is the in-process fallback used when no Redis URL is
// configured. Coordination then only covers workers inside this process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	deadline  time.Time
	expiresAt time.Time
}

// NewMemoryStore creates an in-process coordination store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}}
}

func (s *MemoryStore) SetRateLimit(ctx context.Context, channel string, deadline time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rateLimitKey(channel)
	if existing, ok := s.entries[key]; ok && time.Now().Before(existing.expiresAt) && existing.deadline.After(deadline) {
		return nil
	}
	s.entries[key] = memoryEntry{
		deadline:  deadline,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) RateLimitDeadline(ctx context.Context, channel string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[rateLimitKey(channel)]
	if !ok || time.Now().After(entry.expiresAt) {
		return time.Time{}, nil
	}
	return entry.deadline, nil
}

var _ interfaces.CoordinationStore = (*MemoryStore)(nil)
