package pre

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fixture holds the keys of a delegator and a receiver, and the KFrags between them.
type fixture struct {
	alice, bob *SecretKey
	signer     *Signer
	keys       KFragKeys
	kfrags     []*KFrag
	threshold  int
}

func newFixture(t *testing.T, threshold, shares int) *fixture {
	t.Helper()
	alice, bob := NewSecretKey(), NewSecretKey()
	signer := NewSigner(NewSecretKey())
	kfrags, err := GenerateKFrags(alice, bob.PublicKey(), signer, threshold, shares)
	require.NoError(t, err)
	require.Len(t, kfrags, shares)
	return &fixture{
		alice:  alice,
		bob:    bob,
		signer: signer,
		keys: KFragKeys{
			Verifying:  signer.VerifyingKey(),
			Delegating: alice.PublicKey(),
			Receiving:  bob.PublicKey(),
		},
		kfrags:    kfrags,
		threshold: threshold,
	}
}

// reencryptAll returns one verified CFrag per KFrag.
func (f *fixture) reencryptAll(t *testing.T, capsule *Capsule) []*VerifiedCFrag {
	t.Helper()
	verified := make([]*VerifiedCFrag, 0, len(f.kfrags))
	for _, kfrag := range f.kfrags {
		cfrag, err := Reencrypt(capsule, kfrag, f.keys)
		require.NoError(t, err)
		v, err := VerifyCFrag(capsule, cfrag, f.keys)
		require.NoError(t, err)
		verified = append(verified, v)
	}
	return verified
}

// subsets calls f with every subset of {0, …, n-1} of size k.
func subsets(n, k int, f func([]int)) {
	indices := make([]int, k)
	var rec func(start, depth int)
	rec = func(start, depth int) {
		if depth == k {
			f(append([]int(nil), indices...))
			return
		}
		for i := start; i < n; i++ {
			indices[depth] = i
			rec(i+1, depth+1)
		}
	}
	rec(0, 0)
}

func pick(cfrags []*VerifiedCFrag, indices []int) []*VerifiedCFrag {
	out := make([]*VerifiedCFrag, 0, len(indices))
	for _, i := range indices {
		out = append(out, cfrags[i])
	}
	return out
}
