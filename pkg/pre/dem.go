package pre

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeyBytes is the length of the symmetric key derived from a capsule.
const KeyBytes = chacha20poly1305.KeySize

var errDecryption = errors.New("pre: ciphertext authentication failed")

// deriveKey maps the shared point of a capsule to a symmetric key with HKDF-SHA256.
func deriveKey(shared curve.Point) ([]byte, error) {
	ikm, err := shared.MarshalBinary()
	if err != nil {
		return nil, err
	}
	key := make([]byte, KeyBytes)
	if _, err = io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(domainKeyDerivaton)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// seal encrypts plaintext with XChaCha20-Poly1305, binding the ciphertext to capsule.
// The random nonce is prepended to the output.
func seal(key, plaintext []byte, capsule *Capsule) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	ad, err := capsule.MarshalBinary()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, ad), nil
}

func open(key, ciphertext []byte, capsule *Capsule) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", errDecryption)
	}
	ad, err := capsule.MarshalBinary()
	if err != nil {
		return nil, err
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, ad)
	if err != nil {
		return nil, errDecryption
	}
	return plaintext, nil
}
