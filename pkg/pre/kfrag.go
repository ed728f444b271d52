package pre

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
	"github.com/taurusgroup/threshold-pre/pkg/math/polynomial"
	"github.com/taurusgroup/threshold-pre/pkg/math/sample"
)

// KFragIDBytes is the length of a KFragID.
const KFragIDBytes = 32

// KFragBytes is the length of a marshalled KFrag.
const KFragBytes = KFragIDBytes + 32 + 33 + 33 + SignatureBytes

// KFragID is the random identifier of a KFrag. The share index of the KFrag is
// derived from it, so that only the receiver can compute it.
type KFragID [KFragIDBytes]byte

func (id KFragID) String() string {
	return hex.EncodeToString(id[:8])
}

// Hex returns the full hex encoding of the identifier.
func (id KFragID) Hex() string {
	return hex.EncodeToString(id[:])
}

// KFrag is one share of a re-encryption key, held by a single node.
//
// The Key is secret, and is only known to the node it was given to.
type KFrag struct {
	ID KFragID
	// Key is the share value rk = f(x) of the re-encryption polynomial.
	Key curve.Scalar
	// Commitment is U₁ = rk⋅U.
	Commitment curve.Point
	// Precursor is X_A = x_A⋅G, the ephemeral point shared by all KFrags of the same policy.
	Precursor curve.Point
	// Signature is the delegator's signature over the public parts of the KFrag.
	Signature *Signature
}

// KFragKeys are the public keys a KFrag or CFrag is checked against.
type KFragKeys struct {
	// Verifying is the public key of the delegator's Signer.
	Verifying *PublicKey
	// Delegating is the public key data was originally encrypted under.
	Delegating *PublicKey
	// Receiving is the public key of the receiver.
	Receiving *PublicKey
}

func (k KFragKeys) valid() bool {
	return k.Verifying != nil && k.Delegating != nil && k.Receiving != nil
}

// kfragMessage is the message the delegator signs for each KFrag.
func kfragMessage(id KFragID, keys KFragKeys, commitment, precursor curve.Point) ([]byte, error) {
	w := newWriter(len(domainKFragSig) + KFragIDBytes + 4*33)
	w.raw([]byte(domainKFragSig))
	w.raw(id[:])
	w.point(keys.Delegating.point)
	w.point(keys.Receiving.point)
	w.point(commitment)
	w.point(precursor)
	return w.bytes()
}

// dhCoefficient returns d = H(X_A, B, x_A⋅B), which only the delegator and the receiver can compute.
func dhCoefficient(group curve.Curve, precursor, receiving, dh curve.Point) (curve.Scalar, error) {
	return hashToScalar(group, domainDH, precursor, receiving, dh)
}

// shareIndex returns x = H(X_A, B, x_A⋅B, ID), the abscissa of a KFrag.
func shareIndex(group curve.Curve, precursor, receiving, dh curve.Point, id KFragID) (curve.Scalar, error) {
	return hashToScalar(group, domainShareIndex, precursor, receiving, dh, id[:])
}

// GenerateKFrags splits the re-encryption key from delegating to receiving into
// shares fragments, any threshold of which are enough to re-encrypt a capsule.
//
// The fragments are signed with signer, so that nodes and the receiver can check
// that they come from the delegator.
func GenerateKFrags(delegating *SecretKey, receiving *PublicKey, signer *Signer, threshold, shares int) ([]*KFrag, error) {
	return generateKFrags(rand.Reader, DefaultParams(), delegating, receiving, signer, threshold, shares)
}

func generateKFrags(rand io.Reader, params *Params, delegating *SecretKey, receiving *PublicKey, signer *Signer, threshold, shares int) ([]*KFrag, error) {
	if threshold < 1 || shares < threshold || shares > MaxFragments {
		return nil, fmt.Errorf("%w: threshold %d of %d fragments (max %d)", ErrInvalidThreshold, threshold, shares, MaxFragments)
	}
	if receiving == nil || signer == nil {
		return nil, fmt.Errorf("pre.GenerateKFrags: missing key")
	}
	group := params.Group

	keys := KFragKeys{
		Verifying:  signer.VerifyingKey(),
		Delegating: delegating.PublicKey(),
		Receiving:  receiving,
	}

	xA, precursor := sample.ScalarPointPair(rand, group)
	defer xA.Zeroize()
	dh := xA.Act(receiving.point)

	d, err := dhCoefficient(group, precursor, receiving.point, dh)
	if err != nil {
		return nil, err
	}

	// f(0) = a⋅d⁻¹
	var f *polynomial.Polynomial
	err = delegating.use(func(a curve.Scalar) error {
		constant := group.NewScalar().Set(d).Invert().Mul(a)
		f = polynomial.NewPolynomial(group, threshold-1, constant)
		constant.Zeroize()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pre.GenerateKFrags: %w", err)
	}
	defer f.Zeroize()

	kfrags := make([]*KFrag, 0, shares)
	indices := make([]curve.Scalar, 0, shares)
	for len(kfrags) < shares {
		var id KFragID
		copy(id[:], sample.Bytes(rand, KFragIDBytes))

		x, err := shareIndex(group, precursor, receiving.point, dh, id)
		if err != nil {
			return nil, err
		}
		if !usableIndex(x, indices) {
			continue
		}
		indices = append(indices, x)

		rk := f.Evaluate(x)
		commitment := rk.Act(params.U)

		message, err := kfragMessage(id, keys, commitment, precursor)
		if err != nil {
			return nil, err
		}
		sig, err := signer.Sign(message)
		if err != nil {
			return nil, fmt.Errorf("pre.GenerateKFrags: %w", err)
		}

		kfrags = append(kfrags, &KFrag{
			ID:         id,
			Key:        rk,
			Commitment: commitment,
			Precursor:  precursor,
			Signature:  sig,
		})
	}
	return kfrags, nil
}

// usableIndex returns true if x is non zero, and not already in indices.
func usableIndex(x curve.Scalar, indices []curve.Scalar) bool {
	if x.IsZero() {
		return false
	}
	for _, y := range indices {
		if x.Equal(y) {
			return false
		}
	}
	return true
}

// Verify checks that the delegator signed this KFrag for keys, and that the
// commitment matches the share value.
func (k *KFrag) Verify(keys KFragKeys) bool {
	if k == nil || k.Key == nil || k.Commitment == nil || k.Precursor == nil || !keys.valid() {
		return false
	}
	if k.Key.IsZero() || k.Precursor.IsIdentity() {
		return false
	}
	if !k.Key.Act(DefaultParams().U).Equal(k.Commitment) {
		return false
	}
	message, err := kfragMessage(k.ID, keys, k.Commitment, k.Precursor)
	if err != nil {
		return false
	}
	return k.Signature.Verify(keys.Verifying, message)
}

// VerifiedKFrag is a KFrag whose signature was checked against a set of keys.
type VerifiedKFrag struct {
	*KFrag
	Keys KFragKeys
}

// VerifyKFrag checks kfrag against keys, failing with ErrInvalidKFrag.
func VerifyKFrag(kfrag *KFrag, keys KFragKeys) (*VerifiedKFrag, error) {
	if !kfrag.Verify(keys) {
		return nil, ErrInvalidKFrag
	}
	return &VerifiedKFrag{KFrag: kfrag, Keys: keys}, nil
}

// Zeroize clears the share value. The KFrag can not be used afterwards.
func (k *KFrag) Zeroize() {
	if k != nil && k.Key != nil {
		k.Key.Zeroize()
	}
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (k *KFrag) MarshalBinary() ([]byte, error) {
	w := newWriter(KFragBytes)
	w.raw(k.ID[:])
	w.scalar(k.Key)
	w.point(k.Commitment)
	w.point(k.Precursor)
	w.signature(k.Signature)
	return w.bytes()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
//
// The signature is not checked, use Verify afterwards.
func (k *KFrag) UnmarshalBinary(data []byte) error {
	r := newReader(DefaultParams().Group, data)
	var decoded KFrag
	r.raw(decoded.ID[:])
	decoded.Key = r.scalar()
	decoded.Commitment = r.point()
	decoded.Precursor = r.point()
	decoded.Signature = r.signature()
	if err := r.done(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKFrag, err)
	}
	*k = decoded
	return nil
}
