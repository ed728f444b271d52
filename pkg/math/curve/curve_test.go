package curve

import (
	"testing"

	"github.com/cronokirby/saferith"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type marshalTester struct {
	S *Secp256k1Scalar
	P *Secp256k1Point
}

func TestMarshall(t *testing.T) {
	group := Secp256k1{}
	s := marshalTester{
		S: group.NewScalar().SetNat(new(saferith.Nat).SetUint64(0xED)).(*Secp256k1Scalar),
		P: group.NewBasePoint().(*Secp256k1Point),
	}
	data, err := cbor.Marshal(s)
	require.NoError(t, err)
	var s2 marshalTester
	err = cbor.Unmarshal(data, &s2)
	require.NoError(t, err)
	assert.True(t, s.S.Equal(s2.S))
	assert.True(t, s.P.Equal(s2.P))
}

func TestBasePoint(t *testing.T) {
	group := Secp256k1{}
	g := group.NewBasePoint()
	two := ScalarFromUint64(group, 2)
	assert.True(t, g.Add(g).Equal(two.ActOnBase()))
	assert.True(t, ScalarFromUint64(group, 1).ActOnBase().Equal(g))
	assert.True(t, g.Sub(g).IsIdentity())
	assert.True(t, g.Add(g.Negate()).IsIdentity())
	assert.False(t, g.IsIdentity())
	assert.True(t, group.NewPoint().IsIdentity())
}

func TestScalarArithmetic(t *testing.T) {
	group := Secp256k1{}
	a := ScalarFromUint64(group, 7)
	b := ScalarFromUint64(group, 5)

	assert.True(t, group.NewScalar().Set(a).Sub(b).Equal(ScalarFromUint64(group, 2)))
	assert.True(t, group.NewScalar().Set(b).Sub(a).Add(ScalarFromUint64(group, 2)).IsZero())
	assert.True(t, group.NewScalar().Set(a).Mul(b).Equal(ScalarFromUint64(group, 35)))

	inv := group.NewScalar().Set(a).Invert()
	assert.True(t, inv.Mul(a).Equal(ScalarFromUint64(group, 1)))

	neg := group.NewScalar().Set(a).Negate()
	assert.True(t, neg.Add(a).IsZero())

	a.Zeroize()
	assert.True(t, a.IsZero())
}

func TestScalarReduction(t *testing.T) {
	group := Secp256k1{}
	order := group.Order().Nat()
	assert.True(t, group.NewScalar().SetNat(order).IsZero())

	orderPlusOne := new(saferith.Nat).Add(order, new(saferith.Nat).SetUint64(1), 257)
	assert.True(t, group.NewScalar().SetNat(orderPlusOne).Equal(ScalarFromUint64(group, 1)))
}

func TestPointMarshal(t *testing.T) {
	group := Secp256k1{}
	for i := uint64(1); i < 20; i++ {
		p := ScalarFromUint64(group, i).ActOnBase()
		data, err := p.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, data, group.PointBytes())
		q := group.NewPoint()
		require.NoError(t, q.UnmarshalBinary(data))
		assert.True(t, p.Equal(q))
	}

	_, err := group.NewPoint().MarshalBinary()
	assert.Error(t, err, "identity must not marshal")

	bad := make([]byte, group.PointBytes())
	bad[0] = 0x04
	assert.Error(t, group.NewPoint().UnmarshalBinary(bad))
	assert.Error(t, group.NewPoint().UnmarshalBinary(bad[:10]))
}

func TestScalarMarshal(t *testing.T) {
	group := Secp256k1{}
	s := ScalarFromUint64(group, 123456789)
	data, err := s.MarshalBinary()
	require.NoError(t, err)
	s2 := group.NewScalar()
	require.NoError(t, s2.UnmarshalBinary(data))
	assert.True(t, s.Equal(s2))

	overflow := make([]byte, group.ScalarBytes())
	for i := range overflow {
		overflow[i] = 0xff
	}
	assert.Error(t, group.NewScalar().UnmarshalBinary(overflow))
	assert.Error(t, group.NewScalar().UnmarshalBinary(data[1:]))
}

func TestHashToPoint(t *testing.T) {
	group := Secp256k1{}
	u1 := group.HashToPoint([]byte("U"))
	u2 := group.HashToPoint([]byte("U"))
	v := group.HashToPoint([]byte("V"))
	assert.True(t, u1.Equal(u2))
	assert.False(t, u1.Equal(v))
	assert.False(t, u1.IsIdentity())
	assert.False(t, u1.Equal(group.NewBasePoint()))
}
