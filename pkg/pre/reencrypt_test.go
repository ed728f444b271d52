package pre

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/threshold-pre/pkg/pool"
)

func TestReencrypt_Verify(t *testing.T) {
	f := newFixture(t, 2, 3)
	capsule, _, err := Encrypt(f.alice.PublicKey(), []byte("message"))
	require.NoError(t, err)

	cfrag, err := Reencrypt(capsule, f.kfrags[0], f.keys)
	require.NoError(t, err)
	assert.True(t, cfrag.Proof.Verify(capsule, cfrag, f.keys))

	again, err := Reencrypt(capsule, f.kfrags[0], f.keys)
	require.NoError(t, err)
	assert.True(t, cfrag.E1.Equal(again.E1))
	assert.True(t, cfrag.V1.Equal(again.V1))
	assert.False(t, cfrag.Proof.E2.Equal(again.Proof.E2), "proofs must use fresh randomness")

	other, _, err := Encrypt(f.alice.PublicKey(), []byte("message"))
	require.NoError(t, err)
	_, err = VerifyCFrag(other, cfrag, f.keys)
	assert.ErrorIs(t, err, ErrInvalidProof)

	wrongKeys := f.keys
	wrongKeys.Receiving = NewSecretKey().PublicKey()
	_, err = VerifyCFrag(capsule, cfrag, wrongKeys)
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestReencrypt_InvalidInputs(t *testing.T) {
	f := newFixture(t, 2, 3)
	capsule, _, err := Encrypt(f.alice.PublicKey(), nil)
	require.NoError(t, err)

	wrongKeys := f.keys
	wrongKeys.Verifying = NewSecretKey().PublicKey()
	_, err = Reencrypt(capsule, f.kfrags[0], wrongKeys)
	assert.ErrorIs(t, err, ErrInvalidKFrag)

	tampered := &Capsule{e: capsule.v, v: capsule.e, s: capsule.s}
	_, err = Reencrypt(tampered, f.kfrags[0], f.keys)
	assert.ErrorIs(t, err, ErrInvalidCapsule)
}

func TestReencrypt_Validity(t *testing.T) {
	f := newFixture(t, 1, 1)
	capsule, _, err := Encrypt(f.alice.PublicKey(), nil)
	require.NoError(t, err)

	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	for _, tc := range []struct {
		name     string
		validity Validity
		err      error
	}{
		{"active", Validity{Now: start, NotBefore: start, Expiration: end}, nil},
		{"no bounds", Validity{}, nil},
		{"early", Validity{Now: start.Add(-time.Second), NotBefore: start, Expiration: end}, ErrNotYetActive},
		{"expired", Validity{Now: end, NotBefore: start, Expiration: end}, ErrExpiredPolicy},
		{"revoked", Validity{Now: start, NotBefore: start, Expiration: end, Revoked: true}, ErrRevokedPolicy},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfrag, err := Reencrypt(capsule, f.kfrags[0], f.keys, WithValidity(tc.validity))
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				assert.Nil(t, cfrag)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cfrag)
		})
	}
}

func TestCFrag_BitFlips(t *testing.T) {
	f := newFixture(t, 2, 3)
	plaintext := []byte("tampering is detected")
	capsule, ciphertext, err := Encrypt(f.alice.PublicKey(), plaintext)
	require.NoError(t, err)

	cfrags := make([][]byte, len(f.kfrags))
	for i, kfrag := range f.kfrags {
		cfrag, err := Reencrypt(capsule, kfrag, f.keys)
		require.NoError(t, err)
		cfrags[i], err = cfrag.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, cfrags[i], CFragBytes)
	}

	for i := 0; i < CFragBytes; i++ {
		flipped := append([]byte(nil), cfrags[0]...)
		flipped[i] ^= 0x01
		_, err := ParseAndVerifyCFrag(capsule, flipped, f.keys)
		require.ErrorIs(t, err, ErrInvalidProof, "flipping byte %d must be detected", i)
	}

	var verified []*VerifiedCFrag
	for _, data := range cfrags[1:] {
		v, err := ParseAndVerifyCFrag(capsule, data, f.keys)
		require.NoError(t, err)
		verified = append(verified, v)
	}
	decrypted, _, err := DecryptReencrypted(f.bob, f.alice.PublicKey(), capsule, verified, f.threshold, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)

	_, err = ParseAndVerifyCFrag(capsule, cfrags[0][:CFragBytes-1], f.keys)
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestVerifyCFrags(t *testing.T) {
	pl := pool.NewPool(0)
	defer pl.TearDown()

	f := newFixture(t, 3, 5)
	capsule, _, err := Encrypt(f.alice.PublicKey(), nil)
	require.NoError(t, err)

	cfrags := make([]*CFrag, len(f.kfrags))
	for i, kfrag := range f.kfrags {
		cfrags[i], err = Reencrypt(capsule, kfrag, f.keys)
		require.NoError(t, err)
	}
	tampered := *cfrags[2]
	tampered.E1 = cfrags[3].E1
	cfrags[2] = &tampered

	verified, rejected := VerifyCFrags(pl, capsule, cfrags, f.keys)
	require.Len(t, verified, 4)
	require.Len(t, rejected, 1)
	assert.Equal(t, 2, rejected[0].Index)
	assert.Equal(t, tampered.KFragID, rejected[0].KFragID)
	assert.ErrorIs(t, rejected[0], ErrInvalidProof)

	verifiedAlone, rejectedAlone := VerifyCFrags(nil, capsule, cfrags, f.keys)
	assert.Len(t, verifiedAlone, 4)
	assert.Len(t, rejectedAlone, 1)
}
