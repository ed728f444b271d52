package hash

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// Hash is the hash function we use for Fiat-Shamir challenges, deriving share
// indices, and signatures.
//
// Internally, this is a wrapper around blake3, whose extendable output lets us
// read as many bytes as are needed to sample unbiased scalars.
type Hash struct {
	h *blake3.Hasher
}

// New creates a Hash struct, writing each piece of initialData with its domain.
func New(initialData ...WriterToWithDomain) *Hash {
	hash := &Hash{h: blake3.New()}
	for _, d := range initialData {
		_ = hash.WriteAny(d)
	}
	return hash
}

// Digest returns a reader for the current output of the function.
//
// This finalizes the current state of the hash, and returns what's
// essentially a stream of random bytes.
func (hash *Hash) Digest() io.Reader {
	return hash.h.Digest()
}

// WriteAny takes many different data types and writes them to the hash state.
//
// Currently supported types:
//
//   - []byte
//   - string
//   - uint32
//   - hash.WriterToWithDomain
//
// Every value is framed with its domain and length, so concatenations never collide.
func (hash *Hash) WriteAny(data ...interface{}) error {
	var err error
	for _, d := range data {
		switch t := d.(type) {
		case []byte:
			err = writeWithDomain(hash.h, &BytesWithDomain{
				TheDomain: "[]byte",
				Bytes:     t,
			})
			if err != nil {
				return fmt.Errorf("hash.Hash: write []byte: %w", err)
			}
		case string:
			if err = hash.WriteAny([]byte(t)); err != nil {
				return fmt.Errorf("hash.Hash: write string: %w", err)
			}
		case uint32:
			buf := make([]byte, 4)
			binary.BigEndian.PutUint32(buf, t)
			err = writeWithDomain(hash.h, &BytesWithDomain{
				TheDomain: "uint32",
				Bytes:     buf,
			})
			if err != nil {
				return fmt.Errorf("hash.Hash: write uint32: %w", err)
			}
		case WriterToWithDomain:
			if err = writeWithDomain(hash.h, t); err != nil {
				return fmt.Errorf("hash.Hash: write io.WriterTo: %w", err)
			}
		default:
			panic("hash.Hash: unsupported type")
		}
	}
	return nil
}
