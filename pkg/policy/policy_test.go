package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/taurusgroup/threshold-pre/pkg/party"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
)

func TestPolicy_State(t *testing.T) {
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &Policy{Start: start, Expiration: start.Add(time.Hour), Stored: Granted}

	assert.Equal(t, Granted, p.State(start.Add(-time.Nanosecond)))
	assert.Equal(t, Active, p.State(start))
	assert.Equal(t, Active, p.State(start.Add(59*time.Minute)))
	assert.Equal(t, Expired, p.State(start.Add(time.Hour)))

	for _, stored := range []State{Draft, Arranging, Revoked, Failed} {
		p.Stored = stored
		assert.Equal(t, stored, p.State(start.Add(time.Minute)))
	}
}

func TestPolicy_Clone(t *testing.T) {
	p := &Policy{Arrangements: []Arrangement{{Node: "a", Status: Accepted}}}
	c := p.clone()
	c.Arrangements[0].Status = Voided
	assert.Equal(t, Accepted, p.Arrangements[0].Status)
	assert.Len(t, p.Accepted(), 1)
}

func TestPolicy_Holders(t *testing.T) {
	p := &Policy{Shares: 3, Arrangements: []Arrangement{
		{Node: "c", Status: Accepted},
		{Node: "b", Status: Declined},
		{Node: "a", Status: Accepted},
	}}
	assert.Equal(t, party.IDSlice{"a", "c"}, p.Holders())

	assert.Equal(t, party.IDSlice{"a", "c"}, p.voidAccepted())
	assert.Empty(t, p.Holders())
	assert.Equal(t, Voided, p.Arrangements[0].Status)
	assert.Equal(t, Declined, p.Arrangements[1].Status)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.True(t, Revoked.Terminal())
	assert.False(t, Granted.Terminal())
	assert.Equal(t, "voided", Voided.String())
}

func TestGate(t *testing.T) {
	assert.NoError(t, gate(Active))
	assert.ErrorIs(t, gate(Revoked), pre.ErrRevokedPolicy)
	assert.ErrorIs(t, gate(Expired), pre.ErrExpiredPolicy)
	assert.ErrorIs(t, gate(Granted), pre.ErrNotYetActive)
	assert.ErrorIs(t, gate(Arranging), ErrNotGranted)
	assert.ErrorIs(t, gate(Failed), ErrNotGranted)
}
