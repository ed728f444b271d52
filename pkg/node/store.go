package node

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
)

// ErrUnknownArrangement is returned for a policy the node holds no KFrag for.
var ErrUnknownArrangement = errors.New("node: unknown arrangement")

// Arrangement is what a node keeps for each policy it accepted.
type Arrangement struct {
	PolicyID uuid.UUID
	// KFrag is nil once the arrangement was revoked.
	KFrag      *pre.KFrag
	Keys       pre.KFragKeys
	Start      time.Time
	Expiration time.Time
	Revoked    bool
}

func (a *Arrangement) validity(now time.Time) pre.Validity {
	return pre.Validity{
		Now:        now,
		NotBefore:  a.Start,
		Expiration: a.Expiration,
		Revoked:    a.Revoked,
	}
}

// KFragStore persists the arrangements of a node.
//
// Arrangement returns ErrUnknownArrangement for a policy that was never stored.
type KFragStore interface {
	PutArrangement(ctx context.Context, a *Arrangement) error
	Arrangement(ctx context.Context, policyID uuid.UUID) (*Arrangement, error)
	// Len returns the number of arrangements which still hold a KFrag.
	Len(ctx context.Context) (int, error)
}

// MemoryStore is a KFragStore which keeps arrangements in memory.
type MemoryStore struct {
	mtx          sync.Mutex
	arrangements map[uuid.UUID]*Arrangement
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{arrangements: make(map[uuid.UUID]*Arrangement)}
}

func (s *MemoryStore) PutArrangement(_ context.Context, a *Arrangement) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	stored := *a
	s.arrangements[a.PolicyID] = &stored
	return nil
}

func (s *MemoryStore) Arrangement(_ context.Context, policyID uuid.UUID) (*Arrangement, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	a, ok := s.arrangements[policyID]
	if !ok {
		return nil, ErrUnknownArrangement
	}
	out := *a
	return &out, nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	n := 0
	for _, a := range s.arrangements {
		if a.KFrag != nil {
			n++
		}
	}
	return n, nil
}
