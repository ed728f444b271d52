package party

import (
	"crypto/rand"
	"encoding/hex"
	"io"
)

// ID represents a unique identifier for a re-encryption node.
//
// It could for example be a staking address, or a public key fingerprint.
type ID string

// RandomID returns a fresh hex encoded identifier.
func RandomID() ID {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		panic(err)
	}
	return ID(hex.EncodeToString(buf))
}
