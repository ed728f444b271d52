package pre

import (
	"crypto/rand"
	"fmt"

	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
	"github.com/taurusgroup/threshold-pre/pkg/math/sample"
)

// Signer holds the key a delegator uses to sign her KFrags.
//
// It is a separate key from the delegating key, so that nodes can check the
// provenance of a KFrag without learning anything about the delegating key.
type Signer struct {
	key *SecretKey
}

// NewSigner wraps key as a signing key.
func NewSigner(key *SecretKey) *Signer {
	return &Signer{key: key}
}

// VerifyingKey returns the public key signatures are checked against.
func (s *Signer) VerifyingKey() *PublicKey {
	return s.key.PublicKey()
}

// Sign produces a Schnorr signature of message.
func (s *Signer) Sign(message []byte) (*Signature, error) {
	var sig *Signature
	err := s.key.use(func(x curve.Scalar) error {
		group := x.Curve()
		Y := s.key.PublicKey().point
		k, R := sample.ScalarPointPair(rand.Reader, group)
		defer k.Zeroize()
		e, err := signatureChallenge(group, R, Y, message)
		if err != nil {
			return err
		}
		// z = k + e⋅x
		z := e.Mul(x).Add(k)
		sig = &Signature{R: R, Z: z}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pre.Signer: %w", err)
	}
	return sig, nil
}

// Signature represents the result of a Schnorr signature.
//
// This signature claims to satisfy:
//
//	z * G = R + H(R, Y, m) * Y
//
// for a public key Y.
type Signature struct {
	// R is the commitment point.
	R curve.Point
	// Z is the response scalar.
	Z curve.Scalar
}

// SignatureBytes is the length of a marshalled Signature.
const SignatureBytes = 33 + 32

func signatureChallenge(group curve.Curve, R, Y curve.Point, message []byte) (curve.Scalar, error) {
	return hashToScalar(group, domainSignature, R, Y, message)
}

// Verify checks if the signature equation actually holds for message and public key.
func (sig *Signature) Verify(public *PublicKey, message []byte) bool {
	if sig == nil || sig.R == nil || sig.Z == nil || public == nil {
		return false
	}
	if sig.R.IsIdentity() {
		return false
	}
	group := public.point.Curve()
	e, err := signatureChallenge(group, sig.R, public.point, message)
	if err != nil {
		return false
	}

	expected := e.Act(public.point).Add(sig.R)
	actual := sig.Z.ActOnBase()
	return expected.Equal(actual)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (sig *Signature) MarshalBinary() ([]byte, error) {
	w := newWriter(SignatureBytes)
	w.point(sig.R)
	w.scalar(sig.Z)
	return w.bytes()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (sig *Signature) UnmarshalBinary(data []byte) error {
	if len(data) != SignatureBytes {
		return fmt.Errorf("pre.Signature: invalid length %d", len(data))
	}
	r := newReader(DefaultParams().Group, data)
	sig.R = r.point()
	sig.Z = r.scalar()
	return r.done()
}
