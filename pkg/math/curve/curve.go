package curve

import (
	"encoding"
	"io"

	"github.com/cronokirby/saferith"
)

// Curve represents the prime order group the re-encryption scheme works over.
//
// Everything above this package (key fragmentation, proofs, interpolation) is
// written against these interfaces, so that the group can be swapped without
// touching the protocol logic.
type Curve interface {
	// NewPoint returns the identity element.
	NewPoint() Point
	// NewBasePoint returns the standard generator G.
	NewBasePoint() Point
	// NewScalar returns the zero scalar.
	NewScalar() Scalar
	// HashToPoint deterministically maps a domain separation tag to a point
	// whose discrete logarithm with respect to G is unknown.
	HashToPoint(dst []byte) Point
	// Name returns a unique identifier for this group.
	Name() string
	// ScalarBits returns the bit length of the group order.
	ScalarBits() int
	// SafeScalarBytes returns the number of random bytes to reduce modulo the
	// order in order to obtain a scalar with negligible bias.
	SafeScalarBytes() int
	// ScalarBytes is the length of a marshalled Scalar.
	ScalarBytes() int
	// PointBytes is the length of a marshalled Point.
	PointBytes() int
	// Order returns the order of the group, as a modulus.
	Order() *saferith.Modulus
}

// Scalar is an element of ℤₚ, where p is the order of the group.
//
// All operations mutate the receiver, and return it for chaining.
type Scalar interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
	// Curve returns the group this scalar belongs to.
	Curve() Curve
	// Add sets s = s + that.
	Add(that Scalar) Scalar
	// Sub sets s = s - that.
	Sub(that Scalar) Scalar
	// Mul sets s = s * that.
	Mul(that Scalar) Scalar
	// Invert sets s = 1 / s. The inverse of zero is zero.
	Invert() Scalar
	// Negate sets s = -s.
	Negate() Scalar
	// Equal compares two scalars in constant time.
	Equal(that Scalar) bool
	// IsZero returns true if s = 0.
	IsZero() bool
	// Set sets s = that.
	Set(that Scalar) Scalar
	// SetNat sets s = x mod p.
	SetNat(x *saferith.Nat) Scalar
	// Act computes s⋅P.
	Act(that Point) Point
	// ActOnBase computes s⋅G.
	ActOnBase() Point
	// Zeroize clears the scalar in place.
	Zeroize()
	// WriteTo implements io.WriterTo, writing the marshalled scalar.
	WriteTo(w io.Writer) (int64, error)
	// Domain implements hash.WriterToWithDomain.
	Domain() string
}

// Point is an element of the group.
//
// Unlike Scalar, operations on points return new values.
type Point interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
	// Curve returns the group this point belongs to.
	Curve() Curve
	// Add returns p + that.
	Add(that Point) Point
	// Sub returns p - that.
	Sub(that Point) Point
	// Negate returns -p.
	Negate() Point
	// Set sets p = that, and returns p.
	Set(that Point) Point
	// Equal returns true if both points are the same group element.
	Equal(that Point) bool
	// IsIdentity returns true if p is the identity element.
	IsIdentity() bool
	// WriteTo implements io.WriterTo, writing the marshalled point.
	WriteTo(w io.Writer) (int64, error)
	// Domain implements hash.WriterToWithDomain.
	Domain() string
}

// ScalarFromUint64 returns x as a Scalar of group.
func ScalarFromUint64(group Curve, x uint64) Scalar {
	return group.NewScalar().SetNat(new(saferith.Nat).SetUint64(x))
}
