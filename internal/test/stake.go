package test

import (
	"context"
	"sync"

	"github.com/taurusgroup/threshold-pre/pkg/party"
)

// StakeOracle answers staking queries from a fixed set of staked nodes.
type StakeOracle struct {
	mtx     sync.Mutex
	staked  map[party.ID]bool
	queries int
}

func NewStakeOracle(staked ...party.ID) *StakeOracle {
	o := &StakeOracle{staked: make(map[party.ID]bool, len(staked))}
	for _, id := range staked {
		o.staked[id] = true
	}
	return o
}

func (o *StakeOracle) IsStaked(_ context.Context, id party.ID) (bool, error) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.queries++
	return o.staked[id], nil
}

// SetStaked changes the staking status of id.
func (o *StakeOracle) SetStaked(id party.ID, staked bool) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.staked[id] = staked
}

// Queries returns the number of calls to IsStaked.
func (o *StakeOracle) Queries() int {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.queries
}
