package lease

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a single-process lease store for tests and single-node runs.
// Each store is one runner's handle; Sibling returns another runner's handle
// over the same lease table, the way DB-backed stores share a database.
type MemoryStore struct {
	shared *memLeases
	owner  string
	now    func() time.Time
}

type memLeases struct {
	mu      sync.Mutex
	entries map[string]memLease
}

type memLease struct {
	owner     string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shared: &memLeases{entries: make(map[string]memLease)},
		owner:  uuid.NewString(),
		now:    time.Now,
	}
}

// Sibling returns a handle for another runner sharing this store's leases.
func (s *MemoryStore) Sibling() *MemoryStore {
	return &MemoryStore{shared: s.shared, owner: uuid.NewString(), now: s.now}
}

func (s *MemoryStore) Acquire(key string, ttl time.Duration) bool {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	now := s.now()
	if l, held := s.shared.entries[key]; held && now.Before(l.expiresAt) {
		return false
	}
	s.shared.entries[key] = memLease{owner: s.owner, expiresAt: now.Add(ttl)}
	return true
}

// Release drops the key only while this runner still owns it. A lease lost to
// expiry and taken over by another runner is left alone.
func (s *MemoryStore) Release(key string) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	if l, held := s.shared.entries[key]; held && l.owner == s.owner {
		delete(s.shared.entries, key)
	}
}
