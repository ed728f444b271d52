package pre

import (
	"fmt"

	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
	"github.com/taurusgroup/threshold-pre/pkg/party"
	"github.com/taurusgroup/threshold-pre/pkg/pool"
)

// CFragBytes is the length of a marshalled CFrag.
const CFragBytes = 33 + 33 + KFragIDBytes + 33 + ProofBytes

// CFrag is a capsule fragment, the result of re-encrypting a capsule with a single KFrag.
type CFrag struct {
	// E1 = rk⋅E
	E1 curve.Point
	// V1 = rk⋅V
	V1 curve.Point
	// KFragID identifies the KFrag, from which the receiver derives the share index.
	KFragID KFragID
	// Precursor is the X_A of the KFrag.
	Precursor curve.Point
	Proof     *Proof
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *CFrag) MarshalBinary() ([]byte, error) {
	if c.Proof == nil {
		return nil, fmt.Errorf("pre.CFrag: missing proof")
	}
	w := newWriter(CFragBytes)
	w.point(c.E1)
	w.point(c.V1)
	w.raw(c.KFragID[:])
	w.point(c.Precursor)
	c.Proof.write(w)
	return w.bytes()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
//
// Malformed encodings fail with ErrInvalidProof. The proof itself is not checked.
func (c *CFrag) UnmarshalBinary(data []byte) error {
	r := newReader(DefaultParams().Group, data)
	var decoded CFrag
	decoded.E1 = r.point()
	decoded.V1 = r.point()
	r.raw(decoded.KFragID[:])
	decoded.Precursor = r.point()
	decoded.Proof = new(Proof)
	decoded.Proof.read(r)
	if err := r.done(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	*c = decoded
	return nil
}

// VerifiedCFrag is a CFrag whose proof was checked against a capsule.
//
// Only verified fragments can be combined.
type VerifiedCFrag struct {
	cfrag   *CFrag
	capsule *Capsule
	keys    KFragKeys
	// Node is the node which produced the fragment, if known.
	Node party.ID
}

// CFrag returns the underlying fragment.
func (v *VerifiedCFrag) CFrag() *CFrag {
	return v.cfrag
}

// Capsule returns the capsule the fragment was verified against.
func (v *VerifiedCFrag) Capsule() *Capsule {
	return v.capsule
}

// VerifyCFrag checks the proof of cfrag against capsule and keys.
func VerifyCFrag(capsule *Capsule, cfrag *CFrag, keys KFragKeys) (*VerifiedCFrag, error) {
	if !capsule.Verify() {
		return nil, ErrInvalidCapsule
	}
	if cfrag == nil || !cfrag.Proof.Verify(capsule, cfrag, keys) {
		return nil, ErrInvalidProof
	}
	return &VerifiedCFrag{cfrag: cfrag, capsule: capsule, keys: keys}, nil
}

// ParseAndVerifyCFrag decodes a CFrag from data and verifies it.
func ParseAndVerifyCFrag(capsule *Capsule, data []byte, keys KFragKeys) (*VerifiedCFrag, error) {
	cfrag := new(CFrag)
	if err := cfrag.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return VerifyCFrag(capsule, cfrag, keys)
}

// VerifyCFrags verifies a batch of fragments in parallel on pl, which may be nil.
//
// The verified fragments are returned in input order, along with an error for
// each rejected fragment.
func VerifyCFrags(pl *pool.Pool, capsule *Capsule, cfrags []*CFrag, keys KFragKeys) ([]*VerifiedCFrag, []*FragmentError) {
	results := pl.Parallelize(len(cfrags), func(i int) interface{} {
		verified, err := VerifyCFrag(capsule, cfrags[i], keys)
		if err != nil {
			return err
		}
		return verified
	})

	verified := make([]*VerifiedCFrag, 0, len(cfrags))
	var rejected []*FragmentError
	for i, result := range results {
		switch r := result.(type) {
		case *VerifiedCFrag:
			verified = append(verified, r)
		case error:
			fragErr := &FragmentError{Index: i, Err: r}
			if cfrags[i] != nil {
				fragErr.KFragID = cfrags[i].KFragID
			}
			rejected = append(rejected, fragErr)
		}
	}
	return verified, rejected
}
