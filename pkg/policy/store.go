package policy

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store persists policy snapshots.
//
// SavePolicy replaces any previous snapshot with the same ID.
type Store interface {
	SavePolicy(ctx context.Context, p *Policy) error
	LoadPolicies(ctx context.Context) ([]*Policy, error)
}

// MemoryStore is a Store which keeps snapshots in memory.
type MemoryStore struct {
	mtx      sync.Mutex
	policies map[uuid.UUID]*Policy
	saves    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{policies: make(map[uuid.UUID]*Policy)}
}

func (s *MemoryStore) SavePolicy(_ context.Context, p *Policy) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.policies[p.ID] = p.clone()
	s.saves++
	return nil
}

// LoadPolicies returns the stored snapshots, oldest first.
func (s *MemoryStore) LoadPolicies(context.Context) ([]*Policy, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := make([]*Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Saves returns the number of calls to SavePolicy.
func (s *MemoryStore) Saves() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.saves
}
