package pre

import (
	"errors"
	"fmt"

	"github.com/taurusgroup/threshold-pre/pkg/party"
)

var (
	// ErrInvalidThreshold is returned when 1 ≤ m ≤ n ≤ MaxFragments does not hold.
	ErrInvalidThreshold = errors.New("pre: invalid threshold")
	// ErrInvalidKFrag is returned when a KFrag's signature or encoding is invalid.
	ErrInvalidKFrag = errors.New("pre: invalid kfrag")
	// ErrInvalidProof is returned when a CFrag fails verification, or cannot be parsed.
	ErrInvalidProof = errors.New("pre: invalid cfrag proof")
	// ErrDuplicateFragment is returned for a CFrag whose KFrag was already counted.
	ErrDuplicateFragment = errors.New("pre: duplicate fragment")
	// ErrInsufficientCFrags is returned when fewer than the threshold of distinct CFrags are available.
	ErrInsufficientCFrags = errors.New("pre: insufficient cfrags")
	// ErrExpiredPolicy is returned for re-encryption requests past the policy expiration.
	ErrExpiredPolicy = errors.New("pre: policy expired")
	// ErrRevokedPolicy is returned for re-encryption requests against a revoked policy.
	ErrRevokedPolicy = errors.New("pre: policy revoked")
	// ErrNotYetActive is returned for re-encryption requests before the policy start.
	ErrNotYetActive = errors.New("pre: policy not yet active")
	// ErrGrantFailed is returned when not enough nodes accepted an arrangement within the retry budget.
	ErrGrantFailed = errors.New("pre: grant failed")
	// ErrNodeUnreachable is returned by the transport when a node could not be contacted.
	ErrNodeUnreachable = errors.New("pre: node unreachable")

	// ErrInvalidCapsule is returned when a capsule's correctness tag does not verify.
	ErrInvalidCapsule = errors.New("pre: invalid capsule")
	// ErrCapsuleMismatch is returned for a CFrag that was verified against another capsule.
	ErrCapsuleMismatch = errors.New("pre: cfrag belongs to another capsule")
	// ErrPrecursorMismatch is returned for a CFrag coming from a different set of KFrags.
	ErrPrecursorMismatch = errors.New("pre: cfrag belongs to another policy")
	// ErrDecapsulation is returned when the combined fragments do not open the capsule.
	ErrDecapsulation = errors.New("pre: failed to open capsule")
	// ErrDestroyedKey is returned when a SecretKey is used after Destroy.
	ErrDestroyedKey = errors.New("pre: secret key was destroyed")
)

// FragmentError describes why a single fragment was rejected.
//
// Rejections of single fragments are never fatal to an aggregation, the caller
// excludes the fragment, and may look for a replacement from another node.
type FragmentError struct {
	// Index is the position of the fragment in the input slice.
	Index int
	// KFragID identifies the KFrag the fragment was derived from, if known.
	KFragID KFragID
	// Node is the node which produced the fragment, empty if unknown.
	Node party.ID
	// Err is the underlying error
	Err error
}

func (e *FragmentError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("fragment %d (kfrag %s): %s", e.Index, e.KFragID, e.Err)
	}
	return fmt.Sprintf("fragment %d (kfrag %s) from node %s: %s", e.Index, e.KFragID, e.Node, e.Err)
}

func (e *FragmentError) Unwrap() error {
	return e.Err
}
