package policy_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/threshold-pre/internal/test"
	"github.com/taurusgroup/threshold-pre/pkg/node"
	"github.com/taurusgroup/threshold-pre/pkg/party"
	"github.com/taurusgroup/threshold-pre/pkg/policy"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
)

var epoch = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mtx sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	clock   *clock
	net     *test.Network
	store   *policy.MemoryStore
	hook    *logtest.Hook
	logger  *logrus.Logger
	ursulas map[party.ID]*node.Ursula

	alice, bob *pre.SecretKey
	signer     *pre.Signer
}

func newEnv() *env {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return &env{
		clock:   &clock{now: epoch},
		net:     test.NewNetwork(),
		store:   policy.NewMemoryStore(),
		hook:    hook,
		logger:  logger,
		ursulas: make(map[party.ID]*node.Ursula),
		alice:   pre.NewSecretKey(),
		bob:     pre.NewSecretKey(),
		signer:  pre.NewSigner(pre.NewSecretKey()),
	}
}

// ursulas creates one reference node per id, sharing the environment's clock.
func (e *env) newUrsulas(ids ...party.ID) []policy.Node {
	nodes := make([]policy.Node, 0, len(ids))
	for _, id := range ids {
		u := node.New(node.Config{ID: id, Logger: e.logger, Clock: e.clock.Now}, node.NewMemoryStore())
		e.ursulas[id] = u
		nodes = append(nodes, u)
	}
	return e.net.Connect(nodes...)
}

func (e *env) config() policy.Config {
	cfg := policy.DefaultConfig()
	cfg.Logger = e.logger
	cfg.OfferTimeout = policy.Duration{Duration: time.Second}
	cfg.RequestTimeout = policy.Duration{Duration: time.Second}
	return cfg
}

func (e *env) manager(t *testing.T, cfg policy.Config, nodes []policy.Node, opts ...policy.Option) *policy.Manager {
	t.Helper()
	opts = append([]policy.Option{policy.WithClock(e.clock.Now)}, opts...)
	m, err := policy.NewManager(context.Background(), cfg, e.store, nodes, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func (e *env) params(threshold, shares int) policy.Params {
	return policy.Params{
		Label:     "medical records",
		Receiving: e.bob.PublicKey(),
		Threshold: threshold,
		Shares:    shares,
		Duration:  time.Hour,
	}
}

func (e *env) countLogs(message string) int {
	n := 0
	for _, entry := range e.hook.AllEntries() {
		if entry.Message == message {
			n++
		}
	}
	return n
}

func TestManager_RoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	m := e.manager(t, e.config(), e.newUrsulas(test.PartyIDs(3)...))

	p, err := m.CreatePolicy(ctx, e.params(2, 3), e.alice, e.signer)
	require.NoError(t, err)
	assert.Equal(t, policy.Granted, p.Stored)
	assert.Equal(t, policy.Active, p.State(e.clock.Now()))
	assert.Len(t, p.Accepted(), 3)

	plaintext := []byte("the cake is a lie")
	capsule, ciphertext, err := pre.Encrypt(e.alice.PublicKey(), plaintext)
	require.NoError(t, err)

	responses, err := m.Reencrypt(ctx, p.ID, capsule)
	require.NoError(t, err)
	assert.Len(t, responses.CFrags, 3)
	assert.Empty(t, responses.Errors)

	decrypted, err := responses.Decrypt(e.bob, capsule, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)

	// any two of the three are enough
	decrypted, rejected, err := pre.DecryptReencrypted(e.bob, p.Delegating, capsule, responses.CFrags[1:], p.Threshold, ciphertext)
	require.NoError(t, err)
	assert.Empty(t, rejected)
	assert.Equal(t, plaintext, decrypted)

	stored, err := m.Policy(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.ID)
	assert.Len(t, m.Policies(), 1)
}

func TestManager_InvalidThreshold(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	ids := test.PartyIDs(3)
	m := e.manager(t, e.config(), e.newUrsulas(ids...))

	for _, tc := range []struct{ threshold, shares int }{{4, 3}, {0, 3}, {1, pre.MaxFragments + 1}} {
		p, err := m.CreatePolicy(ctx, e.params(tc.threshold, tc.shares), e.alice, e.signer)
		assert.ErrorIs(t, err, pre.ErrInvalidThreshold)
		assert.Nil(t, p)
	}
	for _, id := range ids {
		assert.Zero(t, e.net.Offers(id))
	}
	assert.Zero(t, e.store.Saves())
	assert.Empty(t, m.Policies())
}

func TestManager_GrantedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	cfg := e.config()
	cfg.AcceptanceSlack = 3
	m := e.manager(t, cfg, e.newUrsulas(test.PartyIDs(8)...))

	const policies = 10
	for i := 0; i < policies; i++ {
		p, err := m.CreatePolicy(ctx, e.params(3, 8), e.alice, e.signer)
		require.NoError(t, err)
		assert.Equal(t, policy.Granted, p.Stored)
		assert.Len(t, p.Accepted(), 8, "remaining kfrags are placed after the grant")
	}
	assert.Equal(t, policies, e.countLogs("policy granted"))
}

func TestManager_Substitution(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	ids := test.PartyIDs(6)
	e.net.SetOffline(ids[1], true)
	nodes := []policy.Node{&test.Declining{Name: ids[0]}}
	nodes = append(nodes, e.newUrsulas(ids[1:]...)...)

	cfg := e.config()
	cfg.MaxRetries = 2
	m := e.manager(t, cfg, nodes)

	p, err := m.CreatePolicy(ctx, e.params(2, 3), e.alice, e.signer)
	require.NoError(t, err)
	assert.Equal(t, policy.Granted, p.Stored)

	accepted := p.Accepted()
	require.Len(t, accepted, 3)
	for _, a := range accepted {
		assert.NotEqual(t, ids[0], a.Node)
		assert.NotEqual(t, ids[1], a.Node)
	}
	statuses := make(map[party.ID]policy.ArrangementStatus)
	for _, a := range p.Arrangements {
		statuses[a.Node] = a.Status
	}
	if status, ok := statuses[ids[0]]; ok {
		assert.Equal(t, policy.Declined, status)
	}
	if status, ok := statuses[ids[1]]; ok {
		assert.Equal(t, policy.Unreachable, status)
	}
}

func TestManager_SlowNodeReplaced(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	ids := test.PartyIDs(3)
	nodes := e.newUrsulas(ids...)
	nodes[0] = &test.Slow{Node: nodes[0], Delay: 5 * time.Second}

	cfg := e.config()
	cfg.OfferTimeout = policy.Duration{Duration: 50 * time.Millisecond}
	cfg.MaxRetries = 1
	m := e.manager(t, cfg, nodes)

	p, err := m.CreatePolicy(ctx, e.params(1, 2), e.alice, e.signer)
	require.NoError(t, err)
	for _, a := range p.Accepted() {
		assert.NotEqual(t, ids[0], a.Node)
	}
}

func TestManager_GrantFailed(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	ids := test.PartyIDs(4)
	ursulas := e.newUrsulas(ids[0], ids[3])
	nodes := []policy.Node{ursulas[0], &test.Declining{Name: ids[1]}, &test.Declining{Name: ids[2]}, ursulas[1]}

	cfg := e.config()
	cfg.MaxRetries = 0
	m := e.manager(t, cfg, nodes)

	p, err := m.CreatePolicy(ctx, e.params(2, 3), e.alice, e.signer)
	require.ErrorIs(t, err, pre.ErrGrantFailed)
	require.NotNil(t, p)
	assert.Equal(t, policy.Failed, p.Stored)
	assert.Empty(t, p.Accepted())
	assert.Zero(t, e.net.Offers(ids[3]), "retry budget exhausted")
	assert.Equal(t, 1, e.net.Notifications(ids[0]), "accepted arrangement is voided")
	assert.Zero(t, e.countLogs("policy granted"))

	capsule, _, err := pre.Encrypt(e.alice.PublicKey(), nil)
	require.NoError(t, err)
	_, err = m.Reencrypt(ctx, p.ID, capsule)
	assert.ErrorIs(t, err, policy.ErrNotGranted)
}

func TestManager_Staking(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	ids := test.PartyIDs(5)
	oracle := test.NewStakeOracle(ids[1], ids[2], ids[4])
	m := e.manager(t, e.config(), e.newUrsulas(ids...), policy.WithStakeChecker(oracle))

	p, err := m.CreatePolicy(ctx, e.params(2, 3), e.alice, e.signer)
	require.NoError(t, err)
	assert.Zero(t, e.net.Offers(ids[0]))
	assert.Zero(t, e.net.Offers(ids[3]))
	for _, a := range p.Accepted() {
		assert.Contains(t, []party.ID{ids[1], ids[2], ids[4]}, a.Node)
	}

	oracle.SetStaked(ids[4], false)
	_, err = m.CreatePolicy(ctx, e.params(2, 3), e.alice, e.signer)
	assert.ErrorIs(t, err, pre.ErrGrantFailed)
}

func TestManager_Validity(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	m := e.manager(t, e.config(), e.newUrsulas(test.PartyIDs(3)...))

	params := e.params(2, 3)
	params.Start = epoch.Add(time.Hour)
	p, err := m.CreatePolicy(ctx, params, e.alice, e.signer)
	require.NoError(t, err)
	assert.Equal(t, policy.Granted, p.State(e.clock.Now()))

	capsule, _, err := pre.Encrypt(e.alice.PublicKey(), nil)
	require.NoError(t, err)

	_, err = m.Reencrypt(ctx, p.ID, capsule)
	assert.ErrorIs(t, err, pre.ErrNotYetActive)

	e.clock.Advance(time.Hour)
	responses, err := m.Reencrypt(ctx, p.ID, capsule)
	require.NoError(t, err)
	assert.Len(t, responses.CFrags, 3)

	e.clock.Advance(time.Hour)
	assert.Equal(t, policy.Expired, p.State(e.clock.Now()))
	_, err = m.Reencrypt(ctx, p.ID, capsule)
	assert.ErrorIs(t, err, pre.ErrExpiredPolicy)

	// nodes enforce the window on their own
	for _, a := range p.Accepted() {
		_, err = e.ursulas[a.Node].SubmitReencryption(ctx, &policy.Request{PolicyID: p.ID, KFragID: a.KFragID, Capsule: capsule})
		assert.ErrorIs(t, err, pre.ErrExpiredPolicy)
	}

	assert.ErrorIs(t, m.Revoke(ctx, p.ID), policy.ErrInvalidTransition)
	assert.ErrorIs(t, m.Extend(ctx, p.ID, epoch.Add(time.Hour*24)), policy.ErrInvalidTransition)
}

func TestManager_Extend(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	m := e.manager(t, e.config(), e.newUrsulas(test.PartyIDs(3)...))

	p, err := m.CreatePolicy(ctx, e.params(2, 3), e.alice, e.signer)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Extend(ctx, p.ID, p.Expiration), policy.ErrInvalidTransition)
	require.NoError(t, m.Extend(ctx, p.ID, p.Expiration.Add(time.Hour)))

	e.clock.Advance(90 * time.Minute)
	capsule, ciphertext, err := pre.Encrypt(e.alice.PublicKey(), []byte("later"))
	require.NoError(t, err)
	responses, err := m.Reencrypt(ctx, p.ID, capsule)
	require.NoError(t, err)
	require.Len(t, responses.CFrags, 3, "nodes learnt the new expiration")
	decrypted, err := responses.Decrypt(e.bob, capsule, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("later"), decrypted)
}

func TestManager_Revoke(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	ids := test.PartyIDs(3)
	m := e.manager(t, e.config(), e.newUrsulas(ids...))

	p, err := m.CreatePolicy(ctx, e.params(2, 3), e.alice, e.signer)
	require.NoError(t, err)

	plaintext := []byte("before revocation")
	capsule, ciphertext, err := pre.Encrypt(e.alice.PublicKey(), plaintext)
	require.NoError(t, err)
	before, err := m.Reencrypt(ctx, p.ID, capsule)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, p.ID))
	require.NoError(t, m.Revoke(ctx, p.ID))

	revoked, err := m.Policy(p.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.Revoked, revoked.State(e.clock.Now()))
	assert.Empty(t, revoked.Accepted())

	_, err = m.Reencrypt(ctx, p.ID, capsule)
	assert.ErrorIs(t, err, pre.ErrRevokedPolicy)
	for _, a := range p.Accepted() {
		assert.Equal(t, 1, e.net.Notifications(a.Node))
		_, err = e.ursulas[a.Node].SubmitReencryption(ctx, &policy.Request{PolicyID: p.ID, KFragID: a.KFragID, Capsule: capsule})
		assert.ErrorIs(t, err, pre.ErrRevokedPolicy)
	}

	// fragments obtained before the revocation still work
	for _, cfrag := range before.CFrags {
		_, err = pre.VerifyCFrag(capsule, cfrag.CFrag(), p.Keys())
		require.NoError(t, err)
	}
	decrypted, err := before.Decrypt(e.bob, capsule, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)

	assert.ErrorIs(t, m.Extend(ctx, p.ID, p.Expiration.Add(time.Hour)), policy.ErrInvalidTransition)
}

func TestManager_DishonestAndOfflineNodes(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	ids := test.PartyIDs(4)
	nodes := e.newUrsulas(ids...)
	nodes[0] = &test.Dishonest{Node: nodes[0]}
	m := e.manager(t, e.config(), nodes)

	p, err := m.CreatePolicy(ctx, e.params(2, 4), e.alice, e.signer)
	require.NoError(t, err)
	e.net.SetOffline(ids[1], true)

	plaintext := []byte("two honest nodes are enough")
	capsule, ciphertext, err := pre.Encrypt(e.alice.PublicKey(), plaintext)
	require.NoError(t, err)
	responses, err := m.Reencrypt(ctx, p.ID, capsule)
	require.NoError(t, err)
	require.Len(t, responses.CFrags, 2)
	require.Len(t, responses.Errors, 2)

	culprits := make(map[party.ID]error)
	for _, fragErr := range responses.Errors {
		culprits[fragErr.Node] = fragErr.Err
	}
	assert.ErrorIs(t, culprits[ids[0]], pre.ErrInvalidProof)
	assert.ErrorIs(t, culprits[ids[1]], pre.ErrNodeUnreachable)

	decrypted, err := responses.Decrypt(e.bob, capsule, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestManager_UnknownPolicy(t *testing.T) {
	e := newEnv()
	m := e.manager(t, e.config(), nil)
	_, err := m.Policy([16]byte{1})
	assert.ErrorIs(t, err, policy.ErrUnknownPolicy)
	assert.ErrorIs(t, m.Revoke(context.Background(), [16]byte{1}), policy.ErrUnknownPolicy)
}

func TestManager_Reload(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	nodes := e.newUrsulas(test.PartyIDs(3)...)
	m := e.manager(t, e.config(), nodes)

	granted, err := m.CreatePolicy(ctx, e.params(2, 3), e.alice, e.signer)
	require.NoError(t, err)
	interrupted := &policy.Policy{
		ID:         [16]byte{7},
		Delegating: e.alice.PublicKey(),
		Verifying:  e.signer.VerifyingKey(),
		Receiving:  e.bob.PublicKey(),
		Threshold:  1,
		Shares:     1,
		Start:      epoch,
		Expiration: epoch.Add(time.Hour),
		Stored:     policy.Arranging,
		CreatedAt:  epoch.Add(time.Second),
	}
	require.NoError(t, e.store.SavePolicy(ctx, interrupted))

	reloaded := e.manager(t, e.config(), nodes)
	policies := reloaded.Policies()
	require.Len(t, policies, 2)
	assert.Equal(t, granted.ID, policies[0].ID)
	assert.Equal(t, policy.Granted, policies[0].Stored)
	assert.Equal(t, policy.Failed, policies[1].Stored)

	capsule, ciphertext, err := pre.Encrypt(e.alice.PublicKey(), []byte("durable"))
	require.NoError(t, err)
	responses, err := reloaded.Reencrypt(ctx, granted.ID, capsule)
	require.NoError(t, err)
	decrypted, err := responses.Decrypt(e.bob, capsule, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("durable"), decrypted)
}

func TestManager_DuplicateNode(t *testing.T) {
	e := newEnv()
	ids := test.PartyIDs(2)
	nodes := e.newUrsulas(ids[0], ids[1], ids[0])

	_, err := policy.NewManager(context.Background(), e.config(), e.store, nodes)
	assert.Error(t, err)
}

func TestResponses_DecryptAfterRegrant(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	m := e.manager(t, e.config(), e.newUrsulas(test.PartyIDs(3)...))

	plaintext := []byte("granted twice")
	capsule, ciphertext, err := pre.Encrypt(e.alice.PublicKey(), plaintext)
	require.NoError(t, err)

	old, err := m.CreatePolicy(ctx, e.params(2, 3), e.alice, e.signer)
	require.NoError(t, err)
	stale, err := m.Reencrypt(ctx, old.ID, capsule)
	require.NoError(t, err)
	require.NoError(t, m.Revoke(ctx, old.ID))

	p, err := m.CreatePolicy(ctx, e.params(2, 3), e.alice, e.signer)
	require.NoError(t, err)
	responses, err := m.Reencrypt(ctx, p.ID, capsule)
	require.NoError(t, err)
	require.Len(t, responses.CFrags, 3)

	// a fragment of the revoked policy, first in line, does not block the others
	responses.CFrags = append([]*pre.VerifiedCFrag{stale.CFrags[0]}, responses.CFrags...)
	decrypted, err := responses.Decrypt(e.bob, capsule, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)

	require.Len(t, responses.Errors, 1)
	assert.ErrorIs(t, responses.Errors[0], pre.ErrPrecursorMismatch)
	assert.Equal(t, 0, responses.Errors[0].Index)
	assert.Equal(t, stale.CFrags[0].Node, responses.Errors[0].Node)
}

func TestManager_UnansweredOfferRetracted(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	ids := test.PartyIDs(4)
	nodes := e.newUrsulas(ids...)
	nodes[0] = &test.LostReply{Node: nodes[0]}

	cfg := e.config()
	cfg.MaxRetries = 1
	m := e.manager(t, cfg, nodes)

	p, err := m.CreatePolicy(ctx, e.params(2, 3), e.alice, e.signer)
	require.NoError(t, err)
	for _, a := range p.Accepted() {
		assert.NotEqual(t, ids[0], a.Node)
	}
	assert.Equal(t, 1, e.net.Notifications(ids[0]))

	// the node stored the KFrag, and was told to drop it
	for _, a := range p.Arrangements {
		if a.Node != ids[0] {
			continue
		}
		assert.Equal(t, policy.Unreachable, a.Status)
		capsule, _, err := pre.Encrypt(e.alice.PublicKey(), nil)
		require.NoError(t, err)
		_, err = e.ursulas[ids[0]].SubmitReencryption(ctx, &policy.Request{PolicyID: p.ID, KFragID: a.KFragID, Capsule: capsule})
		assert.ErrorIs(t, err, pre.ErrRevokedPolicy)
	}
}

// failingStore refuses to save policies matching fail.
type failingStore struct {
	*policy.MemoryStore
	fail func(*policy.Policy) bool
}

func (s *failingStore) SavePolicy(ctx context.Context, p *policy.Policy) error {
	if s.fail(p) {
		return errors.New("disk full")
	}
	return s.MemoryStore.SavePolicy(ctx, p)
}

func TestManager_GrantFailedSaveErrorsLogged(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	ids := test.PartyIDs(3)
	ursulas := e.newUrsulas(ids[0])
	nodes := []policy.Node{ursulas[0], &test.Declining{Name: ids[1]}, &test.Declining{Name: ids[2]}}

	store := &failingStore{MemoryStore: e.store, fail: func(p *policy.Policy) bool {
		for _, a := range p.Arrangements {
			if a.Status == policy.Voided {
				return true
			}
		}
		return false
	}}
	cfg := e.config()
	cfg.MaxRetries = 0
	m, err := policy.NewManager(ctx, cfg, store, nodes, policy.WithClock(e.clock.Now))
	require.NoError(t, err)
	defer m.Close()

	p, err := m.CreatePolicy(ctx, e.params(2, 3), e.alice, e.signer)
	require.ErrorIs(t, err, pre.ErrGrantFailed)
	assert.Equal(t, policy.Failed, p.Stored)
	assert.Equal(t, 1, e.countLogs("failed to save voided arrangements"))
	assert.Equal(t, 1, e.net.Notifications(ids[0]), "holders are still told to drop their KFrag")
}

func TestManager_StartupLog(t *testing.T) {
	e := newEnv()
	cfg := e.config()
	cfg.Workers = 3
	e.manager(t, cfg, nil)

	require.Equal(t, 1, e.countLogs("policy manager started"))
	for _, entry := range e.hook.AllEntries() {
		if entry.Message == "policy manager started" {
			assert.Equal(t, 3, entry.Data["workers"])
			assert.Equal(t, 0, entry.Data["policies"])
		}
	}
}
