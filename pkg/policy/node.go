package policy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/taurusgroup/threshold-pre/pkg/party"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
)

// Offer proposes that a node holds one KFrag of a policy.
type Offer struct {
	PolicyID   uuid.UUID
	KFrag      *pre.KFrag
	Keys       pre.KFragKeys
	Start      time.Time
	Expiration time.Time
}

// Request asks a node to re-encrypt a capsule under a policy.
type Request struct {
	PolicyID uuid.UUID
	KFragID  pre.KFragID
	Capsule  *pre.Capsule
}

// Node is a re-encryption node, as seen by a Manager.
type Node interface {
	ID() party.ID
	// OfferArrangement returns true if the node accepts to hold the KFrag.
	// A node must not retain the KFrag pointer, only a copy.
	OfferArrangement(ctx context.Context, offer *Offer) (bool, error)
	// SubmitReencryption re-encrypts the capsule with the KFrag the node holds for the policy.
	SubmitReencryption(ctx context.Context, req *Request) (*pre.CFrag, error)
}

// Revoker is implemented by nodes which can be told to discard their KFrag.
type Revoker interface {
	RevokeArrangement(ctx context.Context, policyID uuid.UUID) error
}

// Extender is implemented by nodes which can be told about a later expiration.
type Extender interface {
	ExtendArrangement(ctx context.Context, policyID uuid.UUID, expiration time.Time) error
}

// StakeChecker tells whether a node currently satisfies the staking requirements.
type StakeChecker interface {
	IsStaked(ctx context.Context, id party.ID) (bool, error)
}

// StakeCheckerFunc adapts a function to the StakeChecker interface.
type StakeCheckerFunc func(ctx context.Context, id party.ID) (bool, error)

func (f StakeCheckerFunc) IsStaked(ctx context.Context, id party.ID) (bool, error) {
	return f(ctx, id)
}
