package test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taurusgroup/threshold-pre/pkg/party"
	"github.com/taurusgroup/threshold-pre/pkg/policy"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
)

// Network simulates the transport between a manager and its nodes.
//
// Nodes can be taken offline and brought back, and every call is counted.
type Network struct {
	mtx      sync.Mutex
	offline  map[party.ID]bool
	offers   map[party.ID]int
	requests map[party.ID]int
	// notifications counts revocations and extensions.
	notifications map[party.ID]int
}

func NewNetwork() *Network {
	return &Network{
		offline:  make(map[party.ID]bool),
		offers:   make(map[party.ID]int),
		requests: make(map[party.ID]int),

		notifications: make(map[party.ID]int),
	}
}

// Connect returns the nodes as seen through the network.
func (n *Network) Connect(nodes ...policy.Node) []policy.Node {
	out := make([]policy.Node, len(nodes))
	for i, node := range nodes {
		out[i] = &link{Node: node, net: n}
	}
	return out
}

// SetOffline makes every call to id fail with pre.ErrNodeUnreachable.
func (n *Network) SetOffline(id party.ID, offline bool) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.offline[id] = offline
}

// Offers returns the number of offers made to id.
func (n *Network) Offers(id party.ID) int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.offers[id]
}

// Requests returns the number of re-encryption requests made to id.
func (n *Network) Requests(id party.ID) int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.requests[id]
}

// Notifications returns the number of revocations and extensions sent to id.
func (n *Network) Notifications(id party.ID) int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.notifications[id]
}

func (n *Network) reach(id party.ID, counter map[party.ID]int) error {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	counter[id]++
	if n.offline[id] {
		return fmt.Errorf("%w: %s is offline", pre.ErrNodeUnreachable, id)
	}
	return nil
}

type link struct {
	policy.Node
	net *Network
}

func (l *link) OfferArrangement(ctx context.Context, offer *policy.Offer) (bool, error) {
	if err := l.net.reach(l.ID(), l.net.offers); err != nil {
		return false, err
	}
	return l.Node.OfferArrangement(ctx, offer)
}

func (l *link) SubmitReencryption(ctx context.Context, req *policy.Request) (*pre.CFrag, error) {
	if err := l.net.reach(l.ID(), l.net.requests); err != nil {
		return nil, err
	}
	return l.Node.SubmitReencryption(ctx, req)
}

func (l *link) RevokeArrangement(ctx context.Context, policyID uuid.UUID) error {
	if err := l.net.reach(l.ID(), l.net.notifications); err != nil {
		return err
	}
	if revoker, ok := l.Node.(policy.Revoker); ok {
		return revoker.RevokeArrangement(ctx, policyID)
	}
	return nil
}

func (l *link) ExtendArrangement(ctx context.Context, policyID uuid.UUID, expiration time.Time) error {
	if err := l.net.reach(l.ID(), l.net.notifications); err != nil {
		return err
	}
	if extender, ok := l.Node.(policy.Extender); ok {
		return extender.ExtendArrangement(ctx, policyID, expiration)
	}
	return nil
}
