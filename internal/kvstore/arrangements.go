package kvstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/taurusgroup/threshold-pre/pkg/node"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
)

var _ node.KFragStore = (*Store)(nil)

type nodeArrangementRecord struct {
	PolicyID []byte `cbor:"1,keyasint"`
	// SealedKFrag is empty once revoked.
	SealedKFrag []byte    `cbor:"2,keyasint,omitempty"`
	Verifying   []byte    `cbor:"3,keyasint"`
	Delegating  []byte    `cbor:"4,keyasint"`
	Receiving   []byte    `cbor:"5,keyasint"`
	Start       time.Time `cbor:"6,keyasint"`
	Expiration  time.Time `cbor:"7,keyasint"`
	Revoked     bool      `cbor:"8,keyasint"`
}

// seal encrypts a marshalled KFrag, bound to its policy.
func (s *Store) seal(policyID uuid.UUID, kfrag *pre.KFrag) ([]byte, error) {
	plaintext, err := kfrag.MarshalBinary()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, key(prefixArrangement, policyID)), nil
}

func (s *Store) unseal(policyID uuid.UUID, sealed []byte) (*pre.KFrag, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, errors.New("sealed kfrag too short")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, key(prefixArrangement, policyID))
	if err != nil {
		return nil, err
	}
	kfrag := new(pre.KFrag)
	if err = kfrag.UnmarshalBinary(plaintext); err != nil {
		return nil, err
	}
	return kfrag, nil
}

// PutArrangement implements node.KFragStore.
func (s *Store) PutArrangement(_ context.Context, a *node.Arrangement) error {
	r := nodeArrangementRecord{
		PolicyID:   a.PolicyID[:],
		Start:      a.Start,
		Expiration: a.Expiration,
		Revoked:    a.Revoked,
	}
	var err error
	if a.KFrag != nil && !a.Revoked {
		if r.SealedKFrag, err = s.seal(a.PolicyID, a.KFrag); err != nil {
			return fmt.Errorf("kvstore: seal kfrag: %w", err)
		}
	}
	if r.Verifying, err = a.Keys.Verifying.MarshalBinary(); err != nil {
		return fmt.Errorf("kvstore: %w", err)
	}
	if r.Delegating, err = a.Keys.Delegating.MarshalBinary(); err != nil {
		return fmt.Errorf("kvstore: %w", err)
	}
	if r.Receiving, err = a.Keys.Receiving.MarshalBinary(); err != nil {
		return fmt.Errorf("kvstore: %w", err)
	}
	if err = s.put(key(prefixArrangement, a.PolicyID), &r); err != nil {
		return fmt.Errorf("kvstore: save arrangement %s: %w", a.PolicyID, err)
	}
	s.log.WithFields(logrus.Fields{"policy": a.PolicyID, "revoked": a.Revoked}).Trace("arrangement saved")
	return nil
}

// Arrangement implements node.KFragStore.
func (s *Store) Arrangement(_ context.Context, policyID uuid.UUID) (*node.Arrangement, error) {
	var r nodeArrangementRecord
	err := s.get(key(prefixArrangement, policyID), &r)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, node.ErrUnknownArrangement
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: load arrangement %s: %w", policyID, err)
	}
	return s.arrangement(policyID, &r)
}

func (s *Store) arrangement(policyID uuid.UUID, r *nodeArrangementRecord) (*node.Arrangement, error) {
	a := &node.Arrangement{
		PolicyID:   policyID,
		Start:      r.Start,
		Expiration: r.Expiration,
		Revoked:    r.Revoked,
	}
	var err error
	if a.Keys.Verifying, err = pre.ParsePublicKey(r.Verifying); err != nil {
		return nil, err
	}
	if a.Keys.Delegating, err = pre.ParsePublicKey(r.Delegating); err != nil {
		return nil, err
	}
	if a.Keys.Receiving, err = pre.ParsePublicKey(r.Receiving); err != nil {
		return nil, err
	}
	if len(r.SealedKFrag) > 0 {
		if a.KFrag, err = s.unseal(policyID, r.SealedKFrag); err != nil {
			return nil, fmt.Errorf("kvstore: unseal kfrag of %s: %w", policyID, err)
		}
	}
	return a, nil
}

// Len implements node.KFragStore.
func (s *Store) Len(context.Context) (int, error) {
	n := 0
	err := s.scan(prefixArrangement, func(val []byte) error {
		var r nodeArrangementRecord
		if err := cbor.Unmarshal(val, &r); err != nil {
			return err
		}
		if len(r.SealedKFrag) > 0 {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("kvstore: %w", err)
	}
	return n, nil
}
