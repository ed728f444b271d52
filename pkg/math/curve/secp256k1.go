package curve

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cronokirby/saferith"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/zeebo/blake3"
)

var secp256k1BaseX, secp256k1BaseY secp256k1.FieldVal

var secp256k1Order = saferith.ModulusFromBytes(secp256k1.Params().N.Bytes())

func init() {
	secp256k1BaseX.SetByteSlice(secp256k1.Params().Gx.Bytes())
	secp256k1BaseY.SetByteSlice(secp256k1.Params().Gy.Bytes())
}

const (
	secp256k1ScalarBytes = 32
	secp256k1PointBytes  = 33
)

// Secp256k1 is the curve used by Bitcoin and Ethereum, and the group the
// re-encryption network is instantiated over.
type Secp256k1 struct{}

func (Secp256k1) NewPoint() Point {
	return new(Secp256k1Point)
}

func (Secp256k1) NewBasePoint() Point {
	out := new(Secp256k1Point)
	out.value.X.Set(&secp256k1BaseX)
	out.value.Y.Set(&secp256k1BaseY)
	out.value.Z.SetInt(1)
	return out
}

func (Secp256k1) NewScalar() Scalar {
	return new(Secp256k1Scalar)
}

// HashToPoint uses try-and-increment over blake3 to find a point with
// unknown discrete logarithm.
func (Secp256k1) HashToPoint(dst []byte) Point {
	var (
		x, y    secp256k1.FieldVal
		counter [4]byte
		buf     [secp256k1PointBytes]byte
	)
	for i := uint32(0); ; i++ {
		binary.BigEndian.PutUint32(counter[:], i)
		h := blake3.New()
		_, _ = h.Write([]byte("secp256k1/hash-to-point"))
		_, _ = h.Write(dst)
		_, _ = h.Write(counter[:])
		if _, err := io.ReadFull(h.Digest(), buf[:]); err != nil {
			panic(fmt.Sprintf("curve.HashToPoint: %v", err))
		}
		if overflow := x.SetByteSlice(buf[1:]); overflow {
			continue
		}
		if !secp256k1.DecompressY(&x, buf[0]&1 == 1, &y) {
			continue
		}
		y.Normalize()
		out := new(Secp256k1Point)
		out.value.X.Set(&x)
		out.value.Y.Set(&y)
		out.value.Z.SetInt(1)
		return out
	}
}

func (Secp256k1) Name() string {
	return "secp256k1"
}

func (Secp256k1) ScalarBits() int {
	return 256
}

func (Secp256k1) SafeScalarBytes() int {
	return 48
}

func (Secp256k1) ScalarBytes() int {
	return secp256k1ScalarBytes
}

func (Secp256k1) PointBytes() int {
	return secp256k1PointBytes
}

func (Secp256k1) Order() *saferith.Modulus {
	return secp256k1Order
}

type Secp256k1Scalar struct {
	value secp256k1.ModNScalar
}

func secp256k1CastScalar(generic Scalar) *Secp256k1Scalar {
	out, ok := generic.(*Secp256k1Scalar)
	if !ok {
		panic(fmt.Sprintf("failed to convert to secp256k1Scalar: %v", generic))
	}
	return out
}

func (*Secp256k1Scalar) Curve() Curve {
	return Secp256k1{}
}

func (s *Secp256k1Scalar) MarshalBinary() ([]byte, error) {
	data := s.value.Bytes()
	return data[:], nil
}

func (s *Secp256k1Scalar) UnmarshalBinary(data []byte) error {
	if len(data) != secp256k1ScalarBytes {
		return fmt.Errorf("invalid length for secp256k1 scalar: %d", len(data))
	}
	var value secp256k1.ModNScalar
	if overflow := value.SetByteSlice(data); overflow {
		return errors.New("invalid bytes for secp256k1 scalar")
	}
	s.value.Set(&value)
	return nil
}

func (s *Secp256k1Scalar) Add(that Scalar) Scalar {
	other := secp256k1CastScalar(that)

	s.value.Add(&other.value)
	return s
}

func (s *Secp256k1Scalar) Sub(that Scalar) Scalar {
	other := secp256k1CastScalar(that)

	var negated secp256k1.ModNScalar
	negated.NegateVal(&other.value)
	s.value.Add(&negated)
	return s
}

func (s *Secp256k1Scalar) Mul(that Scalar) Scalar {
	other := secp256k1CastScalar(that)

	s.value.Mul(&other.value)
	return s
}

func (s *Secp256k1Scalar) Invert() Scalar {
	s.value.InverseNonConst()
	return s
}

func (s *Secp256k1Scalar) Negate() Scalar {
	s.value.Negate()
	return s
}

func (s *Secp256k1Scalar) Equal(that Scalar) bool {
	other := secp256k1CastScalar(that)

	return s.value.Equals(&other.value)
}

func (s *Secp256k1Scalar) IsZero() bool {
	return s.value.IsZero()
}

func (s *Secp256k1Scalar) Set(that Scalar) Scalar {
	other := secp256k1CastScalar(that)

	s.value.Set(&other.value)
	return s
}

func (s *Secp256k1Scalar) SetNat(x *saferith.Nat) Scalar {
	reduced := new(saferith.Nat).Mod(x, secp256k1Order)
	s.value.SetByteSlice(reduced.Bytes())
	return s
}

func (s *Secp256k1Scalar) Act(that Point) Point {
	other := secp256k1CastPoint(that)
	out := new(Secp256k1Point)
	secp256k1.ScalarMultNonConst(&s.value, &other.value, &out.value)
	return out
}

func (s *Secp256k1Scalar) ActOnBase() Point {
	out := new(Secp256k1Point)
	secp256k1.ScalarBaseMultNonConst(&s.value, &out.value)
	return out
}

func (s *Secp256k1Scalar) Zeroize() {
	s.value.Zero()
}

func (s *Secp256k1Scalar) WriteTo(w io.Writer) (int64, error) {
	data, _ := s.MarshalBinary()
	n, err := w.Write(data)
	return int64(n), err
}

func (*Secp256k1Scalar) Domain() string {
	return "secp256k1.Scalar"
}

type Secp256k1Point struct {
	value secp256k1.JacobianPoint
}

func secp256k1CastPoint(generic Point) *Secp256k1Point {
	out, ok := generic.(*Secp256k1Point)
	if !ok {
		panic(fmt.Sprintf("failed to convert to secp256k1Point: %v", generic))
	}
	return out
}

func (*Secp256k1Point) Curve() Curve {
	return Secp256k1{}
}

// affine returns a normalized copy of p, leaving p untouched so that
// concurrent readers never observe a point mid conversion.
func (p *Secp256k1Point) affine() secp256k1.JacobianPoint {
	var out secp256k1.JacobianPoint
	out.Set(&p.value)
	out.ToAffine()
	return out
}

func (p *Secp256k1Point) MarshalBinary() ([]byte, error) {
	if p.IsIdentity() {
		return nil, errors.New("secp256k1Point.MarshalBinary: tried to marshal identity")
	}
	a := p.affine()
	out := make([]byte, secp256k1PointBytes)
	// Doing it this way is compatible with Bitcoin
	out[0] = secp256k1.PubKeyFormatCompressedEven
	if a.Y.IsOdd() {
		out[0] = secp256k1.PubKeyFormatCompressedOdd
	}
	a.X.PutBytesUnchecked(out[1:])
	return out, nil
}

func (p *Secp256k1Point) UnmarshalBinary(data []byte) error {
	if len(data) != secp256k1PointBytes {
		return fmt.Errorf("invalid length for secp256k1Point: %d", len(data))
	}
	format := data[0]
	if format != secp256k1.PubKeyFormatCompressedEven && format != secp256k1.PubKeyFormatCompressedOdd {
		return errors.New("secp256k1Point.UnmarshalBinary: incorrect format")
	}
	var x, y secp256k1.FieldVal
	if overflow := x.SetByteSlice(data[1:]); overflow {
		return errors.New("secp256k1Point.UnmarshalBinary: x coordinate out of range")
	}
	if !secp256k1.DecompressY(&x, format == secp256k1.PubKeyFormatCompressedOdd, &y) {
		return errors.New("secp256k1Point.UnmarshalBinary: x coordinate not on curve")
	}
	y.Normalize()
	p.value.X.Set(&x)
	p.value.Y.Set(&y)
	p.value.Z.SetInt(1)
	return nil
}

func (p *Secp256k1Point) Add(that Point) Point {
	other := secp256k1CastPoint(that)

	out := new(Secp256k1Point)
	secp256k1.AddNonConst(&p.value, &other.value, &out.value)
	return out
}

func (p *Secp256k1Point) Sub(that Point) Point {
	return p.Add(that.Negate())
}

func (p *Secp256k1Point) Negate() Point {
	out := new(Secp256k1Point)
	out.value = p.affine()
	out.value.Y.Negate(1)
	out.value.Y.Normalize()
	return out
}

func (p *Secp256k1Point) Set(that Point) Point {
	other := secp256k1CastPoint(that)

	p.value.Set(&other.value)
	return p
}

func (p *Secp256k1Point) Equal(that Point) bool {
	other := secp256k1CastPoint(that)

	a, b := p.affine(), other.affine()
	return a.X.Equals(&b.X) && a.Y.Equals(&b.Y)
}

func (p *Secp256k1Point) IsIdentity() bool {
	if p.value.Z.IsZero() {
		return true
	}
	a := p.affine()
	return a.X.IsZero() && a.Y.IsZero()
}

func (p *Secp256k1Point) WriteTo(w io.Writer) (int64, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

func (*Secp256k1Point) Domain() string {
	return "secp256k1.Point"
}
