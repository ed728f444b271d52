package policy

import (
	"time"

	"github.com/google/uuid"
	"github.com/taurusgroup/threshold-pre/pkg/party"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
)

// Policy is a snapshot of a grant of access from a delegator to a receiver.
//
// Snapshots are never modified, a Manager returns a new one after each change.
type Policy struct {
	ID    uuid.UUID
	Label string

	// Delegating is the key the data is encrypted under.
	Delegating *pre.PublicKey
	// Verifying is the key the KFrags are signed with.
	Verifying *pre.PublicKey
	// Receiving is the key of the receiver.
	Receiving *pre.PublicKey

	Threshold int
	Shares    int

	Start      time.Time
	Expiration time.Time

	// Stored is the last persisted state, one of Draft, Arranging, Granted, Revoked or Failed.
	Stored State

	Arrangements []Arrangement

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Arrangement records which node holds which KFrag of a policy.
type Arrangement struct {
	Node    party.ID
	KFragID pre.KFragID
	Status  ArrangementStatus
	// Attempt is the number of nodes the KFrag was offered to before this one.
	Attempt int
}

// State derives the current state of the policy at time now.
func (p *Policy) State(now time.Time) State {
	if p.Stored != Granted {
		return p.Stored
	}
	switch {
	case now.Before(p.Start):
		return Granted
	case now.Before(p.Expiration):
		return Active
	default:
		return Expired
	}
}

// Keys returns the keys the KFrags and CFrags of this policy verify against.
func (p *Policy) Keys() pre.KFragKeys {
	return pre.KFragKeys{
		Verifying:  p.Verifying,
		Delegating: p.Delegating,
		Receiving:  p.Receiving,
	}
}

// Accepted returns the arrangements whose node holds a KFrag.
func (p *Policy) Accepted() []Arrangement {
	out := make([]Arrangement, 0, p.Shares)
	for _, a := range p.Arrangements {
		if a.Status == Accepted {
			out = append(out, a)
		}
	}
	return out
}

// Holders returns the sorted IDs of the nodes holding a KFrag.
func (p *Policy) Holders() party.IDSlice {
	ids := make([]party.ID, 0, p.Shares)
	for _, a := range p.Accepted() {
		ids = append(ids, a.Node)
	}
	return party.NewIDSlice(ids)
}

// voidAccepted marks every accepted arrangement Voided, and returns their nodes.
func (p *Policy) voidAccepted() party.IDSlice {
	holders := p.Holders()
	for i := range p.Arrangements {
		if p.Arrangements[i].Status == Accepted {
			p.Arrangements[i].Status = Voided
		}
	}
	return holders
}

// Validity returns the conditions nodes check before re-encrypting under this policy.
func (p *Policy) Validity(now time.Time) pre.Validity {
	return pre.Validity{
		Now:        now,
		NotBefore:  p.Start,
		Expiration: p.Expiration,
		Revoked:    p.Stored == Revoked,
	}
}

func (p *Policy) clone() *Policy {
	out := *p
	out.Arrangements = append([]Arrangement(nil), p.Arrangements...)
	return &out
}
