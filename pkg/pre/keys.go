package pre

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
	"github.com/taurusgroup/threshold-pre/pkg/math/sample"
)

// SecretKey is the owner bound context for a private scalar.
//
// A SecretKey can not be marshalled, and its String method never prints the
// scalar. Destroy zeroizes the scalar, after which every operation using the
// key fails with ErrDestroyedKey. Keys which are garbage collected without
// being destroyed are zeroized by a finalizer.
type SecretKey struct {
	mtx       sync.RWMutex
	scalar    curve.Scalar
	public    *PublicKey
	destroyed bool
}

// NewSecretKey samples a fresh key over the default parameters.
func NewSecretKey() *SecretKey {
	return NewSecretKeyFrom(rand.Reader, DefaultParams().Group)
}

// NewSecretKeyFrom samples a fresh key over group, reading randomness from r.
func NewSecretKeyFrom(r io.Reader, group curve.Curve) *SecretKey {
	scalar := sample.ScalarUnit(r, group)
	sk := &SecretKey{
		scalar: scalar,
		public: &PublicKey{point: scalar.ActOnBase()},
	}
	runtime.SetFinalizer(sk, (*SecretKey).Destroy)
	return sk
}

// PublicKey returns the public point associated to this key.
//
// The public key stays available after Destroy.
func (sk *SecretKey) PublicKey() *PublicKey {
	return sk.public
}

// Destroy zeroizes the private scalar. It is safe to call Destroy more than once.
func (sk *SecretKey) Destroy() {
	sk.mtx.Lock()
	defer sk.mtx.Unlock()
	if sk.destroyed {
		return
	}
	sk.scalar.Zeroize()
	sk.destroyed = true
}

// Destroyed returns true once Destroy has been called.
func (sk *SecretKey) Destroyed() bool {
	sk.mtx.RLock()
	defer sk.mtx.RUnlock()
	return sk.destroyed
}

// use calls f with the private scalar, holding the key open for the duration of f.
// f must neither retain nor modify the scalar.
func (sk *SecretKey) use(f func(curve.Scalar) error) error {
	if sk == nil {
		return ErrDestroyedKey
	}
	sk.mtx.RLock()
	defer sk.mtx.RUnlock()
	if sk.destroyed {
		return ErrDestroyedKey
	}
	return f(sk.scalar)
}

func (sk *SecretKey) String() string {
	return fmt.Sprintf("SecretKey{public: %s}", sk.public)
}

// PublicKey is a point on the curve, identifying a delegator, a receiver, or a signer.
type PublicKey struct {
	point curve.Point
}

// NewPublicKey wraps point, which must not be the identity.
func NewPublicKey(point curve.Point) (*PublicKey, error) {
	if point == nil || point.IsIdentity() {
		return nil, fmt.Errorf("pre.NewPublicKey: invalid point")
	}
	return &PublicKey{point: point}, nil
}

// ParsePublicKey decodes a compressed point over the default parameters.
func ParsePublicKey(data []byte) (*PublicKey, error) {
	pk := new(PublicKey)
	if err := pk.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return pk, nil
}

// Point returns the underlying curve point.
func (pk *PublicKey) Point() curve.Point {
	return pk.point
}

// Equal returns true if both keys are the same point.
func (pk *PublicKey) Equal(other *PublicKey) bool {
	if pk == nil || other == nil {
		return pk == other
	}
	return pk.point.Equal(other.point)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (pk *PublicKey) MarshalBinary() ([]byte, error) {
	return pk.point.MarshalBinary()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (pk *PublicKey) UnmarshalBinary(data []byte) error {
	point := DefaultParams().Group.NewPoint()
	if err := point.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("pre.PublicKey: %w", err)
	}
	pk.point = point
	return nil
}

// WriteTo implements io.WriterTo.
func (pk *PublicKey) WriteTo(w io.Writer) (int64, error) {
	return pk.point.WriteTo(w)
}

// Domain implements hash.WriterToWithDomain.
func (*PublicKey) Domain() string {
	return "PublicKey"
}

func (pk *PublicKey) String() string {
	if pk == nil || pk.point == nil {
		return "nil"
	}
	data, err := pk.point.MarshalBinary()
	if err != nil {
		return "invalid"
	}
	return hex.EncodeToString(data)
}
