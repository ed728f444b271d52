package test

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
	"github.com/taurusgroup/threshold-pre/pkg/party"
	"github.com/taurusgroup/threshold-pre/pkg/policy"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
)

// Declining is a node which declines every offer.
type Declining struct {
	Name party.ID
}

func (d *Declining) ID() party.ID { return d.Name }

func (d *Declining) OfferArrangement(context.Context, *policy.Offer) (bool, error) {
	return false, nil
}

func (d *Declining) SubmitReencryption(context.Context, *policy.Request) (*pre.CFrag, error) {
	return nil, fmt.Errorf("node %s holds no kfrag", d.Name)
}

// Slow delays every call to the wrapped node, giving up when the context is done.
type Slow struct {
	policy.Node
	Delay time.Duration
}

func (s *Slow) wait(ctx context.Context) error {
	select {
	case <-time.After(s.Delay):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", pre.ErrNodeUnreachable, ctx.Err())
	}
}

func (s *Slow) OfferArrangement(ctx context.Context, offer *policy.Offer) (bool, error) {
	if err := s.wait(ctx); err != nil {
		return false, err
	}
	return s.Node.OfferArrangement(ctx, offer)
}

func (s *Slow) SubmitReencryption(ctx context.Context, req *policy.Request) (*pre.CFrag, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.Node.SubmitReencryption(ctx, req)
}

// Dishonest returns fragments whose E₁ was shifted by the base point,
// leaving the encoding valid and the proof wrong.
type Dishonest struct {
	policy.Node
}

func (d *Dishonest) SubmitReencryption(ctx context.Context, req *policy.Request) (*pre.CFrag, error) {
	cfrag, err := d.Node.SubmitReencryption(ctx, req)
	if err != nil {
		return nil, err
	}
	forged := *cfrag
	forged.E1 = cfrag.E1.Add(curve.Secp256k1{}.NewBasePoint())
	return &forged, nil
}

// LostReply accepts offers through the wrapped node, but the answer never
// arrives: the caller sees pre.ErrNodeUnreachable while the KFrag is stored.
type LostReply struct {
	policy.Node
}

func (l *LostReply) OfferArrangement(ctx context.Context, offer *policy.Offer) (bool, error) {
	if _, err := l.Node.OfferArrangement(ctx, offer); err != nil {
		return false, err
	}
	return false, fmt.Errorf("%w: reply from %s lost", pre.ErrNodeUnreachable, l.ID())
}

func (l *LostReply) RevokeArrangement(ctx context.Context, policyID uuid.UUID) error {
	if revoker, ok := l.Node.(policy.Revoker); ok {
		return revoker.RevokeArrangement(ctx, policyID)
	}
	return nil
}
