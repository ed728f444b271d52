package pre

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignature_Verify(t *testing.T) {
	signer := NewSigner(NewSecretKey())
	message := []byte("hello")

	sig, err := signer.Sign(message)
	require.NoError(t, err)
	assert.True(t, sig.Verify(signer.VerifyingKey(), message))
	assert.False(t, sig.Verify(signer.VerifyingKey(), []byte("hellO")))
	assert.False(t, sig.Verify(NewSecretKey().PublicKey(), message))

	tampered := &Signature{R: sig.R, Z: sig.Z.Curve().NewScalar().Set(sig.Z).Negate()}
	assert.False(t, tampered.Verify(signer.VerifyingKey(), message))

	var nilSig *Signature
	assert.False(t, nilSig.Verify(signer.VerifyingKey(), message))
}

func TestSignature_Marshal(t *testing.T) {
	signer := NewSigner(NewSecretKey())
	message := []byte("hello")
	sig, err := signer.Sign(message)
	require.NoError(t, err)

	data, err := sig.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, SignatureBytes)

	decoded := new(Signature)
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.True(t, decoded.Verify(signer.VerifyingKey(), message))

	assert.Error(t, decoded.UnmarshalBinary(data[:SignatureBytes-1]))
}
