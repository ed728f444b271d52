package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/taurusgroup/threshold-pre/pkg/party"
	"github.com/taurusgroup/threshold-pre/pkg/pool"
	"golang.org/x/sync/errgroup"
)

// record is the mutable state of a policy held by a Manager.
type record struct {
	mtx    sync.Mutex
	policy *Policy
	// state mirrors policy.Stored, and is the word Arranging → Granted is decided on.
	state    atomic.Int32
	accepted atomic.Int32
}

func newRecord(p *Policy) *record {
	r := &record{policy: p}
	r.state.Store(int32(p.Stored))
	return r
}

// snapshot returns a copy of the policy, safe to hand out.
func (r *record) snapshot() *Policy {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.policy.clone()
}

// Manager drives policies through their lifecycle, on behalf of a delegator.
type Manager struct {
	cfg   Config
	log   *logrus.Logger
	store Store
	pool  *pool.Pool

	nodes     []Node
	nodesByID map[party.ID]Node
	stake     StakeChecker
	now       func() time.Time

	mtx      sync.RWMutex
	policies map[uuid.UUID]*record
}

// Option configures a Manager.
type Option func(*Manager)

// WithStakeChecker makes the Manager offer KFrags only to nodes satisfying checker.
func WithStakeChecker(checker StakeChecker) Option {
	return func(m *Manager) {
		m.stake = checker
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager which offers KFrags to nodes, in order.
//
// Policies found in store are loaded. Policies which were interrupted before
// being granted are marked Failed.
func NewManager(ctx context.Context, cfg Config, store Store, nodes []Node, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	m := &Manager{
		cfg:       cfg,
		log:       cfg.Logger,
		store:     store,
		nodes:     nodes,
		nodesByID: make(map[party.ID]Node, len(nodes)),
		now:       time.Now,
		policies:  make(map[uuid.UUID]*record),
	}
	ids := make([]party.ID, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.ID())
		m.nodesByID[node.ID()] = node
	}
	if sorted := party.NewIDSlice(ids); !sorted.Valid() {
		return nil, fmt.Errorf("policy.NewManager: duplicate node in %s", sorted)
	}
	for _, opt := range opts {
		opt(m)
	}

	stored, err := store.LoadPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy.NewManager: %w", err)
	}
	for _, p := range stored {
		if p.Stored == Draft || p.Stored == Arranging {
			m.log.WithFields(logrus.Fields{"policy": p.ID, "state": p.Stored}).Warn("policy interrupted before grant, marking failed")
			p.Stored = Failed
			p.UpdatedAt = m.now()
			if err = store.SavePolicy(ctx, p); err != nil {
				return nil, fmt.Errorf("policy.NewManager: %w", err)
			}
		}
		m.policies[p.ID] = newRecord(p)
	}
	m.pool = pool.NewPool(cfg.Workers)
	m.log.WithFields(logrus.Fields{"policies": len(stored), "workers": m.pool.Workers()}).Debug("policy manager started")
	return m, nil
}

// Close releases the worker pool.
func (m *Manager) Close() {
	m.pool.TearDown()
}

func (m *Manager) lookup(id uuid.UUID) (*record, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	r, ok := m.policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, id)
	}
	return r, nil
}

// Policy returns the latest snapshot of a policy.
func (m *Manager) Policy(id uuid.UUID) (*Policy, error) {
	r, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return r.snapshot(), nil
}

// Policies returns a snapshot of every policy, oldest first.
func (m *Manager) Policies() []*Policy {
	m.mtx.RLock()
	out := make([]*Policy, 0, len(m.policies))
	for _, r := range m.policies {
		out = append(out, r.snapshot())
	}
	m.mtx.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// save persists the record, the caller holds r.mtx.
func (m *Manager) save(ctx context.Context, r *record) error {
	r.policy.UpdatedAt = m.now()
	if err := m.store.SavePolicy(ctx, r.policy); err != nil {
		m.log.WithError(err).WithField("policy", r.policy.ID).Error("failed to persist policy")
		return fmt.Errorf("policy: persist %s: %w", r.policy.ID, err)
	}
	return nil
}

// transition moves the record from one of the allowed states to next, and persists it.
func (m *Manager) transition(ctx context.Context, r *record, next State, allowed ...State) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	current := r.policy.Stored
	if !containsState(allowed, current) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, next)
	}
	r.policy.Stored = next
	r.state.Store(int32(next))
	if err := m.save(ctx, r); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{"policy": r.policy.ID, "from": current, "state": next}).Info("policy state changed")
	return nil
}

func containsState(states []State, s State) bool {
	for _, t := range states {
		if t == s {
			return true
		}
	}
	return false
}

// Revoke terminates a granted policy. Nodes implementing Revoker are told to
// discard their KFrag, failures to do so are logged and otherwise ignored.
//
// Revoking a revoked policy is a no-op.
func (m *Manager) Revoke(ctx context.Context, id uuid.UUID) error {
	r, err := m.lookup(id)
	if err != nil {
		return err
	}

	r.mtx.Lock()
	p := r.policy
	switch state := p.State(m.now()); state {
	case Revoked:
		r.mtx.Unlock()
		return nil
	case Granted, Active:
	default:
		r.mtx.Unlock()
		return fmt.Errorf("%w: cannot revoke %s policy", ErrInvalidTransition, state)
	}
	previous := p.clone()
	p.Stored = Revoked
	r.state.Store(int32(Revoked))
	holders := p.voidAccepted()
	if err = m.save(ctx, r); err != nil {
		r.policy = previous
		r.state.Store(int32(previous.Stored))
		r.mtx.Unlock()
		return err
	}
	r.mtx.Unlock()

	m.log.WithFields(logrus.Fields{"policy": id, "state": Revoked}).Info("policy revoked")
	m.notify(ctx, id, holders, func(ctx context.Context, node Node) error {
		if revoker, ok := node.(Revoker); ok {
			return revoker.RevokeArrangement(ctx, id)
		}
		return nil
	})
	return nil
}

// Extend moves the expiration of a granted policy later.
func (m *Manager) Extend(ctx context.Context, id uuid.UUID, expiration time.Time) error {
	r, err := m.lookup(id)
	if err != nil {
		return err
	}

	r.mtx.Lock()
	p := r.policy
	if state := p.State(m.now()); state != Granted && state != Active {
		r.mtx.Unlock()
		return fmt.Errorf("%w: cannot extend %s policy", ErrInvalidTransition, state)
	}
	if !expiration.After(p.Expiration) {
		r.mtx.Unlock()
		return fmt.Errorf("%w: expiration %s is not after %s", ErrInvalidTransition, expiration, p.Expiration)
	}
	previous := p.Expiration
	p.Expiration = expiration
	if err = m.save(ctx, r); err != nil {
		p.Expiration = previous
		r.mtx.Unlock()
		return err
	}
	holders := p.Holders()
	r.mtx.Unlock()

	m.log.WithFields(logrus.Fields{"policy": id, "expiration": expiration}).Info("policy extended")
	m.notify(ctx, id, holders, func(ctx context.Context, node Node) error {
		if extender, ok := node.(Extender); ok {
			return extender.ExtendArrangement(ctx, id, expiration)
		}
		return nil
	})
	return nil
}

// notify calls f for every node in holders in parallel, logging failures.
func (m *Manager) notify(ctx context.Context, id uuid.UUID, holders party.IDSlice, f func(context.Context, Node) error) {
	var g errgroup.Group
	for _, nodeID := range holders {
		node, ok := m.nodesByID[nodeID]
		if !ok {
			m.log.WithFields(logrus.Fields{"policy": id, "node": nodeID}).Warn("arrangement held by unknown node")
			continue
		}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout.Duration)
			defer cancel()
			if err := f(callCtx, node); err != nil {
				m.log.WithError(err).WithFields(logrus.Fields{"policy": id, "node": node.ID()}).Warn("failed to notify node")
			}
			return nil
		})
	}
	_ = g.Wait()
}
