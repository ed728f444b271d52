package kvstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/taurusgroup/threshold-pre/pkg/party"
	"github.com/taurusgroup/threshold-pre/pkg/policy"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
)

var _ policy.Store = (*Store)(nil)

type arrangementRecord struct {
	Node    string `cbor:"1,keyasint"`
	KFragID []byte `cbor:"2,keyasint"`
	Status  int32  `cbor:"3,keyasint"`
	Attempt int    `cbor:"4,keyasint"`
}

type policyRecord struct {
	ID           []byte              `cbor:"1,keyasint"`
	Label        string              `cbor:"2,keyasint"`
	Delegating   []byte              `cbor:"3,keyasint"`
	Verifying    []byte              `cbor:"4,keyasint"`
	Receiving    []byte              `cbor:"5,keyasint"`
	Threshold    int                 `cbor:"6,keyasint"`
	Shares       int                 `cbor:"7,keyasint"`
	Start        time.Time           `cbor:"8,keyasint"`
	Expiration   time.Time           `cbor:"9,keyasint"`
	State        int32               `cbor:"10,keyasint"`
	Arrangements []arrangementRecord `cbor:"11,keyasint"`
	CreatedAt    time.Time           `cbor:"12,keyasint"`
	UpdatedAt    time.Time           `cbor:"13,keyasint"`
}

func newPolicyRecord(p *policy.Policy) (*policyRecord, error) {
	r := &policyRecord{
		ID:         p.ID[:],
		Label:      p.Label,
		Threshold:  p.Threshold,
		Shares:     p.Shares,
		Start:      p.Start,
		Expiration: p.Expiration,
		State:      int32(p.Stored),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	var err error
	if r.Delegating, err = p.Delegating.MarshalBinary(); err != nil {
		return nil, err
	}
	if r.Verifying, err = p.Verifying.MarshalBinary(); err != nil {
		return nil, err
	}
	if r.Receiving, err = p.Receiving.MarshalBinary(); err != nil {
		return nil, err
	}
	for _, a := range p.Arrangements {
		id := a.KFragID
		r.Arrangements = append(r.Arrangements, arrangementRecord{
			Node:    string(a.Node),
			KFragID: id[:],
			Status:  int32(a.Status),
			Attempt: a.Attempt,
		})
	}
	return r, nil
}

func (r *policyRecord) policy() (*policy.Policy, error) {
	id, err := uuid.FromBytes(r.ID)
	if err != nil {
		return nil, err
	}
	p := &policy.Policy{
		ID:         id,
		Label:      r.Label,
		Threshold:  r.Threshold,
		Shares:     r.Shares,
		Start:      r.Start,
		Expiration: r.Expiration,
		Stored:     policy.State(r.State),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if p.Delegating, err = pre.ParsePublicKey(r.Delegating); err != nil {
		return nil, err
	}
	if p.Verifying, err = pre.ParsePublicKey(r.Verifying); err != nil {
		return nil, err
	}
	if p.Receiving, err = pre.ParsePublicKey(r.Receiving); err != nil {
		return nil, err
	}
	for _, a := range r.Arrangements {
		var kfragID pre.KFragID
		if len(a.KFragID) != len(kfragID) {
			return nil, fmt.Errorf("invalid kfrag id length %d", len(a.KFragID))
		}
		copy(kfragID[:], a.KFragID)
		p.Arrangements = append(p.Arrangements, policy.Arrangement{
			Node:    party.ID(a.Node),
			KFragID: kfragID,
			Status:  policy.ArrangementStatus(a.Status),
			Attempt: a.Attempt,
		})
	}
	return p, nil
}

// SavePolicy implements policy.Store.
func (s *Store) SavePolicy(_ context.Context, p *policy.Policy) error {
	r, err := newPolicyRecord(p)
	if err != nil {
		return fmt.Errorf("kvstore: encode policy %s: %w", p.ID, err)
	}
	if err = s.put(key(prefixPolicy, p.ID), r); err != nil {
		return fmt.Errorf("kvstore: save policy %s: %w", p.ID, err)
	}
	s.log.WithFields(logrus.Fields{"policy": p.ID, "state": p.Stored}).Trace("policy saved")
	return nil
}

// LoadPolicies implements policy.Store, returning policies oldest first.
func (s *Store) LoadPolicies(context.Context) ([]*policy.Policy, error) {
	var policies []*policy.Policy
	err := s.scan(prefixPolicy, func(val []byte) error {
		var r policyRecord
		if err := cbor.Unmarshal(val, &r); err != nil {
			return err
		}
		p, err := r.policy()
		if err != nil {
			return err
		}
		policies = append(policies, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: load policies: %w", err)
	}
	sort.Slice(policies, func(i, j int) bool {
		return policies[i].CreatedAt.Before(policies[j].CreatedAt)
	})
	return policies, nil
}
