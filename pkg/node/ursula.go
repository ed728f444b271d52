package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/taurusgroup/threshold-pre/pkg/party"
	"github.com/taurusgroup/threshold-pre/pkg/policy"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
)

// Config holds the parameters of an Ursula.
type Config struct {
	ID party.ID
	// Capacity is the largest number of KFrags held at once, unlimited if zero.
	Capacity int
	// MaxDuration is the longest policy accepted, unlimited if zero.
	MaxDuration time.Duration
	Logger      *logrus.Logger
	// Clock replaces time.Now.
	Clock func() time.Time
}

// Ursula is a re-encryption node holding KFrags for many policies.
//
// It checks every KFrag it is offered, and enforces the validity window and
// revocation of each policy before re-encrypting.
type Ursula struct {
	id          party.ID
	capacity    int
	maxDuration time.Duration
	log         *logrus.Entry
	now         func() time.Time
	store       KFragStore

	// mtx serializes read-modify-write cycles on the store, re-encryptions
	// hold it for reading so that a KFrag is never zeroized while in use.
	mtx sync.RWMutex
}

var (
	_ policy.Node     = (*Ursula)(nil)
	_ policy.Revoker  = (*Ursula)(nil)
	_ policy.Extender = (*Ursula)(nil)
)

func New(cfg Config, store KFragStore) *Ursula {
	id := cfg.ID
	if id == "" {
		id = party.RandomID()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Ursula{
		id:          id,
		capacity:    cfg.Capacity,
		maxDuration: cfg.MaxDuration,
		log:         logger.WithField("node", id),
		now:         now,
		store:       store,
	}
}

func (u *Ursula) ID() party.ID {
	return u.id
}

// OfferArrangement accepts a KFrag that verifies, for a policy that is not over,
// as long as the node has capacity left. Only a copy of the KFrag is kept.
func (u *Ursula) OfferArrangement(ctx context.Context, offer *policy.Offer) (bool, error) {
	log := u.log.WithField("policy", offer.PolicyID)
	if _, err := pre.VerifyKFrag(offer.KFrag, offer.Keys); err != nil {
		log.WithError(err).Warn("declining invalid kfrag")
		return false, nil
	}
	now := u.now()
	if !now.Before(offer.Expiration) {
		log.Debug("declining expired policy")
		return false, nil
	}
	if u.maxDuration > 0 && offer.Expiration.Sub(offer.Start) > u.maxDuration {
		log.Debug("declining policy longer than allowed")
		return false, nil
	}

	u.mtx.Lock()
	defer u.mtx.Unlock()

	if _, err := u.store.Arrangement(ctx, offer.PolicyID); err == nil {
		log.Debug("declining second kfrag for the same policy")
		return false, nil
	}
	if u.capacity > 0 {
		held, err := u.store.Len(ctx)
		if err != nil {
			return false, fmt.Errorf("node %s: %w", u.id, err)
		}
		if held >= u.capacity {
			log.Debug("declining, no capacity left")
			return false, nil
		}
	}

	kfrag, err := cloneKFrag(offer.KFrag)
	if err != nil {
		return false, fmt.Errorf("node %s: %w", u.id, err)
	}
	err = u.store.PutArrangement(ctx, &Arrangement{
		PolicyID:   offer.PolicyID,
		KFrag:      kfrag,
		Keys:       offer.Keys,
		Start:      offer.Start,
		Expiration: offer.Expiration,
	})
	if err != nil {
		return false, fmt.Errorf("node %s: %w", u.id, err)
	}
	log.WithField("kfrag", kfrag.ID).Info("arrangement accepted")
	return true, nil
}

func cloneKFrag(kfrag *pre.KFrag) (*pre.KFrag, error) {
	data, err := kfrag.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := new(pre.KFrag)
	if err = out.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitReencryption re-encrypts the capsule, if the policy is currently active.
func (u *Ursula) SubmitReencryption(ctx context.Context, req *policy.Request) (*pre.CFrag, error) {
	u.mtx.RLock()
	defer u.mtx.RUnlock()
	a, err := u.store.Arrangement(ctx, req.PolicyID)
	if err != nil {
		return nil, fmt.Errorf("node %s: policy %s: %w", u.id, req.PolicyID, err)
	}
	if a.Revoked || a.KFrag == nil {
		return nil, pre.ErrRevokedPolicy
	}
	if a.KFrag.ID != req.KFragID {
		return nil, fmt.Errorf("node %s: policy %s: %w: holding kfrag %s", u.id, req.PolicyID, ErrUnknownArrangement, a.KFrag.ID)
	}
	cfrag, err := pre.Reencrypt(req.Capsule, a.KFrag, a.Keys, pre.WithValidity(a.validity(u.now())))
	if err != nil {
		u.log.WithError(err).WithField("policy", req.PolicyID).Debug("re-encryption refused")
		return nil, err
	}
	return cfrag, nil
}

// RevokeArrangement discards the KFrag of a policy, and refuses any later request for it.
func (u *Ursula) RevokeArrangement(ctx context.Context, policyID uuid.UUID) error {
	u.mtx.Lock()
	defer u.mtx.Unlock()
	a, err := u.store.Arrangement(ctx, policyID)
	if err != nil {
		return fmt.Errorf("node %s: %w", u.id, err)
	}
	if a.Revoked {
		return nil
	}
	a.KFrag.Zeroize()
	a.KFrag = nil
	a.Revoked = true
	if err = u.store.PutArrangement(ctx, a); err != nil {
		return fmt.Errorf("node %s: %w", u.id, err)
	}
	u.log.WithField("policy", policyID).Info("arrangement revoked")
	return nil
}

// ExtendArrangement moves the expiration of a policy later.
func (u *Ursula) ExtendArrangement(ctx context.Context, policyID uuid.UUID, expiration time.Time) error {
	u.mtx.Lock()
	defer u.mtx.Unlock()
	a, err := u.store.Arrangement(ctx, policyID)
	if err != nil {
		return fmt.Errorf("node %s: %w", u.id, err)
	}
	if a.Revoked {
		return pre.ErrRevokedPolicy
	}
	if !expiration.After(a.Expiration) {
		return fmt.Errorf("node %s: expiration %s is not after %s", u.id, expiration, a.Expiration)
	}
	a.Expiration = expiration
	if err = u.store.PutArrangement(ctx, a); err != nil {
		return fmt.Errorf("node %s: %w", u.id, err)
	}
	u.log.WithFields(logrus.Fields{"policy": policyID, "expiration": expiration}).Info("arrangement extended")
	return nil
}
