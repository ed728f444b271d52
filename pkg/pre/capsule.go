package pre

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
	"github.com/taurusgroup/threshold-pre/pkg/math/sample"
)

// CapsuleBytes is the length of a marshalled Capsule.
const CapsuleBytes = 33 + 33 + 32

// Capsule encapsulates the symmetric key of one ciphertext under the delegating key.
//
// A capsule holds E = r⋅G, V = u⋅G and s = u + r⋅H(E, V). The symmetric key is
// derived from (r + u)⋅A, where A is the delegating public key. The capsule
// carries no secret, and its fields can not be changed once created.
type Capsule struct {
	e, v curve.Point
	s    curve.Scalar
}

func capsuleChallenge(group curve.Curve, E, V curve.Point) (curve.Scalar, error) {
	return hashToScalar(group, domainCapsule, E, V)
}

// encapsulate creates a new capsule for delegating, and returns the shared point
// the symmetric key is derived from.
func encapsulate(rand io.Reader, delegating *PublicKey) (*Capsule, curve.Point, error) {
	group := delegating.point.Curve()
	r, E := sample.ScalarPointPair(rand, group)
	u, V := sample.ScalarPointPair(rand, group)
	defer r.Zeroize()
	defer u.Zeroize()

	h, err := capsuleChallenge(group, E, V)
	if err != nil {
		return nil, nil, err
	}
	// s = u + r⋅h
	s := h.Mul(r).Add(u)

	// shared = (r + u)⋅A
	ru := group.NewScalar().Set(r).Add(u)
	defer ru.Zeroize()
	shared := ru.Act(delegating.point)

	return &Capsule{e: E, v: V, s: s}, shared, nil
}

// Verify checks the correctness tag s⋅G = V + H(E, V)⋅E.
func (c *Capsule) Verify() bool {
	if c == nil || c.e == nil || c.v == nil || c.s == nil {
		return false
	}
	if c.e.IsIdentity() || c.v.IsIdentity() {
		return false
	}
	h, err := capsuleChallenge(c.e.Curve(), c.e, c.v)
	if err != nil {
		return false
	}
	lhs := c.s.ActOnBase()
	rhs := h.Act(c.e).Add(c.v)
	return lhs.Equal(rhs)
}

// open recovers the shared point with the delegating secret key, (E + V)⋅a.
func (c *Capsule) open(delegating *SecretKey) (curve.Point, error) {
	var shared curve.Point
	err := delegating.use(func(a curve.Scalar) error {
		shared = a.Act(c.e.Add(c.v))
		return nil
	})
	return shared, err
}

// Equal returns true if both capsules encapsulate the same key material.
func (c *Capsule) Equal(other *Capsule) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.e.Equal(other.e) && c.v.Equal(other.v) && c.s.Equal(other.s)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *Capsule) MarshalBinary() ([]byte, error) {
	w := newWriter(CapsuleBytes)
	w.point(c.e)
	w.point(c.v)
	w.scalar(c.s)
	return w.bytes()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
//
// Capsules failing Verify are rejected with ErrInvalidCapsule.
func (c *Capsule) UnmarshalBinary(data []byte) error {
	r := newReader(DefaultParams().Group, data)
	e := r.point()
	v := r.point()
	s := r.scalar()
	if err := r.done(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCapsule, err)
	}
	decoded := &Capsule{e: e, v: v, s: s}
	if !decoded.Verify() {
		return ErrInvalidCapsule
	}
	*c = *decoded
	return nil
}

// ParseCapsule decodes and verifies a capsule.
func ParseCapsule(data []byte) (*Capsule, error) {
	c := new(Capsule)
	if err := c.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return c, nil
}

// WriteTo implements io.WriterTo.
func (c *Capsule) WriteTo(w io.Writer) (int64, error) {
	data, err := c.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain.
func (*Capsule) Domain() string {
	return "Capsule"
}

// Encrypt generates a new capsule for delegating, and seals plaintext with the
// encapsulated key.
func Encrypt(delegating *PublicKey, plaintext []byte) (*Capsule, []byte, error) {
	capsule, shared, err := encapsulate(rand.Reader, delegating)
	if err != nil {
		return nil, nil, fmt.Errorf("pre.Encrypt: %w", err)
	}
	key, err := deriveKey(shared)
	if err != nil {
		return nil, nil, fmt.Errorf("pre.Encrypt: %w", err)
	}
	ciphertext, err := seal(key, plaintext, capsule)
	if err != nil {
		return nil, nil, fmt.Errorf("pre.Encrypt: %w", err)
	}
	return capsule, ciphertext, nil
}

// DecryptOriginal opens a ciphertext with the delegating secret key, without any re-encryption.
func DecryptOriginal(delegating *SecretKey, capsule *Capsule, ciphertext []byte) ([]byte, error) {
	if !capsule.Verify() {
		return nil, ErrInvalidCapsule
	}
	shared, err := capsule.open(delegating)
	if err != nil {
		return nil, fmt.Errorf("pre.DecryptOriginal: %w", err)
	}
	key, err := deriveKey(shared)
	if err != nil {
		return nil, fmt.Errorf("pre.DecryptOriginal: %w", err)
	}
	return open(key, ciphertext, capsule)
}
