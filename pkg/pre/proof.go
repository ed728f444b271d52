package pre

import (
	"io"

	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
	"github.com/taurusgroup/threshold-pre/pkg/math/sample"
)

// ProofBytes is the length of a marshalled Proof.
const ProofBytes = 4*33 + 32 + SignatureBytes

// Proof shows that a CFrag was computed with the share value committed to in a KFrag.
//
// It is a Chaum-Pedersen proof that
//
//	log_E(E₁) = log_V(V₁) = log_U(U₁) = rk,
//
// made non-interactive with the Fiat-Shamir heuristic, along with the
// delegator's signature binding U₁ to the KFrag.
type Proof struct {
	// E2 = t⋅E
	E2 curve.Point
	// V2 = t⋅V
	V2 curve.Point
	// Commitment = rk⋅U, as found in the KFrag.
	Commitment curve.Point
	// U2 = t⋅U
	U2 curve.Point
	// Z3 = t + h⋅rk
	Z3 curve.Scalar
	// KFragSignature is the signature of the KFrag the CFrag was derived from.
	KFragSignature *Signature
}

func proofChallenge(params *Params, capsule *Capsule, e1, e2, v1, v2, u1, u2 curve.Point) (curve.Scalar, error) {
	return hashToScalar(params.Group, domainCFragProof,
		capsule.e, e1, e2,
		capsule.v, v1, v2,
		params.U, u1, u2,
	)
}

// newProof proves that e1 = rk⋅E and v1 = rk⋅V.
func newProof(rand io.Reader, params *Params, capsule *Capsule, kfrag *KFrag, e1, v1 curve.Point) (*Proof, error) {
	t := sample.ScalarUnit(rand, params.Group)
	defer t.Zeroize()

	e2 := t.Act(capsule.e)
	v2 := t.Act(capsule.v)
	u2 := t.Act(params.U)

	h, err := proofChallenge(params, capsule, e1, e2, v1, v2, kfrag.Commitment, u2)
	if err != nil {
		return nil, err
	}
	// z₃ = t + h⋅rk
	z3 := h.Mul(kfrag.Key).Add(t)

	return &Proof{
		E2:             e2,
		V2:             v2,
		Commitment:     kfrag.Commitment,
		U2:             u2,
		Z3:             z3,
		KFragSignature: kfrag.Signature,
	}, nil
}

// Verify checks the proof for cfrag, against capsule and keys.
//
// It returns false for a missing or malformed component.
func (p *Proof) Verify(capsule *Capsule, cfrag *CFrag, keys KFragKeys) bool {
	if p == nil || cfrag == nil || !keys.valid() || !capsule.Verify() {
		return false
	}
	for _, point := range []curve.Point{p.E2, p.V2, p.Commitment, p.U2, cfrag.E1, cfrag.V1, cfrag.Precursor} {
		if point == nil || point.IsIdentity() {
			return false
		}
	}
	if p.Z3 == nil || p.KFragSignature == nil {
		return false
	}

	params := DefaultParams()
	h, err := proofChallenge(params, capsule, cfrag.E1, p.E2, cfrag.V1, p.V2, p.Commitment, p.U2)
	if err != nil {
		return false
	}

	// z₃⋅E = E₂ + h⋅E₁
	if !p.Z3.Act(capsule.e).Equal(h.Act(cfrag.E1).Add(p.E2)) {
		return false
	}
	// z₃⋅V = V₂ + h⋅V₁
	if !p.Z3.Act(capsule.v).Equal(h.Act(cfrag.V1).Add(p.V2)) {
		return false
	}
	// z₃⋅U = U₂ + h⋅U₁
	if !p.Z3.Act(params.U).Equal(h.Act(p.Commitment).Add(p.U2)) {
		return false
	}

	message, err := kfragMessage(cfrag.KFragID, keys, p.Commitment, cfrag.Precursor)
	if err != nil {
		return false
	}
	return p.KFragSignature.Verify(keys.Verifying, message)
}

func (p *Proof) write(w *writer) {
	w.point(p.E2)
	w.point(p.V2)
	w.point(p.Commitment)
	w.point(p.U2)
	w.scalar(p.Z3)
	w.signature(p.KFragSignature)
}

func (p *Proof) read(r *reader) {
	p.E2 = r.point()
	p.V2 = r.point()
	p.Commitment = r.point()
	p.U2 = r.point()
	p.Z3 = r.scalar()
	p.KFragSignature = r.signature()
}
