package pre

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
)

func TestSecretKey_Destroy(t *testing.T) {
	sk := NewSecretKey()
	public := sk.PublicKey()
	assert.False(t, sk.Destroyed())

	sk.Destroy()
	sk.Destroy()
	assert.True(t, sk.Destroyed())
	assert.True(t, public.Equal(sk.PublicKey()), "public key must survive Destroy")

	bob := NewSecretKey()
	_, err := GenerateKFrags(sk, bob.PublicKey(), NewSigner(NewSecretKey()), 1, 1)
	assert.ErrorIs(t, err, ErrDestroyedKey)

	_, err = NewSigner(sk).Sign([]byte("message"))
	assert.ErrorIs(t, err, ErrDestroyedKey)

	capsule, ciphertext, err := Encrypt(public, []byte("plaintext"))
	require.NoError(t, err)
	_, err = DecryptOriginal(sk, capsule, ciphertext)
	assert.ErrorIs(t, err, ErrDestroyedKey)
}

func TestSecretKey_String(t *testing.T) {
	sk := NewSecretKey()
	var secret []byte
	require.NoError(t, sk.use(func(s curve.Scalar) error {
		var err error
		secret, err = s.MarshalBinary()
		return err
	}))
	printed := fmt.Sprintf("%v %s %+v", sk, sk, sk)
	assert.NotContains(t, printed, fmt.Sprintf("%x", secret))
	assert.Contains(t, printed, sk.PublicKey().String())
}

func TestPublicKey_Marshal(t *testing.T) {
	pk := NewSecretKey().PublicKey()
	data, err := pk.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, 33)

	decoded, err := ParsePublicKey(data)
	require.NoError(t, err)
	assert.True(t, pk.Equal(decoded))

	_, err = ParsePublicKey(data[1:])
	assert.Error(t, err)
}
