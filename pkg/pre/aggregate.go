package pre

import (
	"fmt"
	"sort"

	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
	"github.com/taurusgroup/threshold-pre/pkg/math/polynomial"
)

// Combine recovers the symmetric key of capsule from threshold verified fragments.
//
// Fragments are grouped by the set of KFrags they come from, identified by the
// precursor. The first group holding threshold distinct fragments which opens
// the capsule is used; the fragments of every other group are rejected with
// ErrPrecursorMismatch. Fragments verified against another capsule or key, and
// repeats of a KFrag within a group, are rejected too. Rejections are returned
// along with the key, sorted by input position. Only the first threshold
// distinct fragments of a group are interpolated, so the result does not
// depend on their order.
func Combine(capsule *Capsule, cfrags []*VerifiedCFrag, threshold int, receiving *SecretKey, delegating *PublicKey) ([]byte, []*FragmentError, error) {
	if threshold < 1 || threshold > MaxFragments {
		return nil, nil, fmt.Errorf("%w: threshold %d", ErrInvalidThreshold, threshold)
	}
	if !capsule.Verify() {
		return nil, nil, ErrInvalidCapsule
	}
	if delegating == nil {
		return nil, nil, fmt.Errorf("pre.Combine: missing delegating key")
	}

	var (
		groups   []*fragmentGroup
		rejected []*FragmentError
	)
	reject := func(i int, v *VerifiedCFrag, err error) {
		fragErr := &FragmentError{Index: i, Err: err}
		if v != nil && v.cfrag != nil {
			fragErr.KFragID = v.cfrag.KFragID
			fragErr.Node = v.Node
		}
		rejected = append(rejected, fragErr)
	}
	for i, v := range cfrags {
		switch {
		case v == nil || v.cfrag == nil:
			reject(i, v, ErrInvalidProof)
			continue
		case !capsule.Equal(v.capsule):
			reject(i, v, ErrCapsuleMismatch)
			continue
		case !v.keys.Delegating.Equal(delegating):
			reject(i, v, ErrPrecursorMismatch)
			continue
		}
		g := findGroup(groups, v.cfrag.Precursor)
		if g == nil {
			g = &fragmentGroup{precursor: v.cfrag.Precursor, seen: make(map[KFragID]struct{})}
			groups = append(groups, g)
		}
		if _, ok := g.seen[v.cfrag.KFragID]; ok {
			reject(i, v, ErrDuplicateFragment)
			continue
		}
		g.seen[v.cfrag.KFragID] = struct{}{}
		g.members = append(g.members, i)
	}

	var (
		key    []byte
		chosen *fragmentGroup
		err    error
	)
	for _, g := range groups {
		if len(g.members) < threshold {
			continue
		}
		accepted := make([]*CFrag, threshold)
		for j, i := range g.members[:threshold] {
			accepted[j] = cfrags[i].cfrag
		}
		if key, err = combineGroup(capsule, accepted, receiving, delegating, g.precursor); err == nil {
			chosen = g
			break
		}
	}
	// without a usable group, the largest one is reported as the reference
	reference := chosen
	if reference == nil {
		reference = largestGroup(groups)
	}
	for _, g := range groups {
		if g == reference {
			continue
		}
		for _, i := range g.members {
			reject(i, cfrags[i], ErrPrecursorMismatch)
		}
	}
	sort.Slice(rejected, func(a, b int) bool { return rejected[a].Index < rejected[b].Index })

	switch {
	case chosen != nil:
		return key, rejected, nil
	case err != nil:
		return nil, rejected, fmt.Errorf("pre.Combine: %w", err)
	}
	distinct := 0
	if reference != nil {
		distinct = len(reference.members)
	}
	return nil, rejected, fmt.Errorf("%w: %d distinct of %d required", ErrInsufficientCFrags, distinct, threshold)
}

// fragmentGroup collects the distinct fragments derived from one set of KFrags.
type fragmentGroup struct {
	precursor curve.Point
	// members are positions in the input, in order, one per KFrag.
	members []int
	seen    map[KFragID]struct{}
}

func findGroup(groups []*fragmentGroup, precursor curve.Point) *fragmentGroup {
	for _, g := range groups {
		if g.precursor.Equal(precursor) {
			return g
		}
	}
	return nil
}

// largestGroup returns the group with the most fragments, the earliest on ties.
func largestGroup(groups []*fragmentGroup) *fragmentGroup {
	var largest *fragmentGroup
	for _, g := range groups {
		if largest == nil || len(g.members) > len(largest.members) {
			largest = g
		}
	}
	return largest
}

// combineGroup derives the symmetric key from threshold fragments sharing precursor.
func combineGroup(capsule *Capsule, cfrags []*CFrag, receiving *SecretKey, delegating *PublicKey, precursor curve.Point) ([]byte, error) {
	var shared curve.Point
	err := receiving.use(func(b curve.Scalar) error {
		var err error
		shared, err = openReencrypted(capsule, cfrags, b, receiving.PublicKey(), delegating, precursor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return deriveKey(shared)
}

// openReencrypted interpolates the fragments at 0, and checks the result against the capsule.
func openReencrypted(capsule *Capsule, cfrags []*CFrag, b curve.Scalar, receiving, delegating *PublicKey, precursor curve.Point) (curve.Point, error) {
	group := b.Curve()

	dh := b.Act(precursor)
	d, err := dhCoefficient(group, precursor, receiving.point, dh)
	if err != nil {
		return nil, err
	}

	indices := make([]curve.Scalar, len(cfrags))
	for i, cfrag := range cfrags {
		if indices[i], err = shareIndex(group, precursor, receiving.point, dh, cfrag.KFragID); err != nil {
			return nil, err
		}
	}
	lagrange, err := polynomial.Lagrange(group, indices)
	if err != nil {
		return nil, err
	}

	// E' = Σ λᵢ⋅E₁ᵢ, V' = Σ λᵢ⋅V₁ᵢ
	e, v := group.NewPoint(), group.NewPoint()
	for i, cfrag := range cfrags {
		e = e.Add(lagrange[i].Act(cfrag.E1))
		v = v.Add(lagrange[i].Act(cfrag.V1))
	}

	// A⋅(s⋅d⁻¹) = h⋅E' + V'
	h, err := capsuleChallenge(group, capsule.e, capsule.v)
	if err != nil {
		return nil, err
	}
	sd := group.NewScalar().Set(d).Invert().Mul(capsule.s)
	if !sd.Act(delegating.point).Equal(h.Act(e).Add(v)) {
		return nil, ErrDecapsulation
	}

	// (E' + V')⋅d = (r + u)⋅A
	return d.Act(e.Add(v)), nil
}

// DecryptReencrypted combines cfrags, and opens ciphertext with the recovered key.
//
// The fragments Combine rejected are returned in both cases.
func DecryptReencrypted(receiving *SecretKey, delegating *PublicKey, capsule *Capsule, cfrags []*VerifiedCFrag, threshold int, ciphertext []byte) ([]byte, []*FragmentError, error) {
	key, rejected, err := Combine(capsule, cfrags, threshold, receiving, delegating)
	if err != nil {
		return nil, rejected, err
	}
	plaintext, err := open(key, ciphertext, capsule)
	return plaintext, rejected, err
}
