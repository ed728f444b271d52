package pre

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"
)

// Validity describes the policy conditions a node enforces before re-encrypting.
type Validity struct {
	// Now is the time of the request, time.Now() if zero.
	Now time.Time
	// NotBefore is the policy start, ignored if zero.
	NotBefore time.Time
	// Expiration is the end of the policy, exclusive, ignored if zero.
	Expiration time.Time
	// Revoked is set once the delegator revoked the policy.
	Revoked bool
}

// Check returns ErrRevokedPolicy, ErrNotYetActive or ErrExpiredPolicy, in that order.
func (v Validity) Check() error {
	now := v.Now
	if now.IsZero() {
		now = time.Now()
	}
	switch {
	case v.Revoked:
		return ErrRevokedPolicy
	case !v.NotBefore.IsZero() && now.Before(v.NotBefore):
		return ErrNotYetActive
	case !v.Expiration.IsZero() && !now.Before(v.Expiration):
		return ErrExpiredPolicy
	}
	return nil
}

type reencryptConfig struct {
	validity *Validity
	rand     io.Reader
}

// ReencryptOption configures Reencrypt.
type ReencryptOption func(*reencryptConfig)

// WithValidity makes Reencrypt refuse to use the KFrag when v does not hold.
func WithValidity(v Validity) ReencryptOption {
	return func(c *reencryptConfig) {
		c.validity = &v
	}
}

// WithRand sets the source of the proof's randomness, crypto/rand by default.
func WithRand(r io.Reader) ReencryptOption {
	return func(c *reencryptConfig) {
		c.rand = r
	}
}

// Reencrypt transforms capsule with kfrag, and proves that it did so correctly.
//
// The KFrag is checked against keys first. Re-encrypting the same capsule twice
// yields the same E₁ and V₁, with a different proof.
func Reencrypt(capsule *Capsule, kfrag *KFrag, keys KFragKeys, opts ...ReencryptOption) (*CFrag, error) {
	cfg := reencryptConfig{rand: rand.Reader}
	for _, opt := range opts {
		opt(&cfg)
	}

	if !capsule.Verify() {
		return nil, ErrInvalidCapsule
	}
	if !kfrag.Verify(keys) {
		return nil, ErrInvalidKFrag
	}
	if cfg.validity != nil {
		if err := cfg.validity.Check(); err != nil {
			return nil, err
		}
	}

	e1 := kfrag.Key.Act(capsule.e)
	v1 := kfrag.Key.Act(capsule.v)

	proof, err := newProof(cfg.rand, DefaultParams(), capsule, kfrag, e1, v1)
	if err != nil {
		return nil, fmt.Errorf("pre.Reencrypt: %w", err)
	}

	return &CFrag{
		E1:        e1,
		V1:        v1,
		KFragID:   kfrag.ID,
		Precursor: kfrag.Precursor,
		Proof:     proof,
	}, nil
}
