package test

import (
	"fmt"

	"github.com/taurusgroup/threshold-pre/pkg/party"
)

// PartyIDs returns the sorted IDs of n nodes, "ursula-00", "ursula-01", ...
func PartyIDs(n int) party.IDSlice {
	ids := make([]party.ID, n)
	for i := range ids {
		ids[i] = party.ID(fmt.Sprintf("ursula-%02d", i))
	}
	return party.NewIDSlice(ids)
}
