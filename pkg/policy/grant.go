package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
	"golang.org/x/sync/errgroup"
)

// Params describes a policy to create.
type Params struct {
	Label     string
	Receiving *pre.PublicKey
	Threshold int
	Shares    int
	// Start is the beginning of the validity window, now if zero.
	Start    time.Time
	Duration time.Duration
}

// candidates hands out nodes to offer KFrags to, each node at most once.
type candidates struct {
	mtx   sync.Mutex
	nodes []Node
}

func (c *candidates) next() (Node, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if len(c.nodes) == 0 {
		return nil, false
	}
	node := c.nodes[0]
	c.nodes = c.nodes[1:]
	return node, true
}

// eligible returns the nodes which may be offered a KFrag.
func (m *Manager) eligible(ctx context.Context) []Node {
	if m.stake == nil {
		return append([]Node(nil), m.nodes...)
	}
	out := make([]Node, 0, len(m.nodes))
	for _, node := range m.nodes {
		staked, err := m.stake.IsStaked(ctx, node.ID())
		if err != nil {
			m.log.WithError(err).WithField("node", node.ID()).Warn("failed to check stake, skipping node")
			continue
		}
		if !staked {
			m.log.WithField("node", node.ID()).Debug("node not staked, skipping")
			continue
		}
		out = append(out, node)
	}
	return out
}

// CreatePolicy splits the re-encryption key from alice to params.Receiving into
// params.Shares KFrags, and offers them to the manager's nodes.
//
// Each KFrag is offered to one node at a time, a node declining or timing out is
// replaced by the next candidate, up to Config.MaxRetries times per KFrag. The
// policy is Granted once enough nodes accepted, otherwise it is Failed and
// returned along with ErrGrantFailed.
//
// The KFrags are zeroized before returning.
func (m *Manager) CreatePolicy(ctx context.Context, params Params, alice *pre.SecretKey, signer *pre.Signer) (*Policy, error) {
	threshold, shares := params.Threshold, params.Shares
	if threshold < 1 || shares < threshold || shares > pre.MaxFragments {
		return nil, fmt.Errorf("%w: threshold %d of %d fragments", pre.ErrInvalidThreshold, threshold, shares)
	}
	if params.Receiving == nil || alice == nil || signer == nil {
		return nil, errors.New("policy.CreatePolicy: missing key")
	}
	if params.Duration <= 0 {
		return nil, errors.New("policy.CreatePolicy: duration must be positive")
	}

	now := m.now()
	start := params.Start
	if start.IsZero() {
		start = now
	}
	p := &Policy{
		ID:         uuid.New(),
		Label:      params.Label,
		Delegating: alice.PublicKey(),
		Verifying:  signer.VerifyingKey(),
		Receiving:  params.Receiving,
		Threshold:  threshold,
		Shares:     shares,
		Start:      start,
		Expiration: start.Add(params.Duration),
		Stored:     Draft,
		CreatedAt:  now,
	}
	log := m.log.WithField("policy", p.ID)

	r := newRecord(p)
	r.mtx.Lock()
	err := m.save(ctx, r)
	r.mtx.Unlock()
	if err != nil {
		return nil, err
	}
	m.mtx.Lock()
	m.policies[p.ID] = r
	m.mtx.Unlock()
	log.WithFields(logrus.Fields{"threshold": threshold, "shares": shares, "label": p.Label}).Info("policy created")

	kfrags, err := pre.GenerateKFrags(alice, params.Receiving, signer, threshold, shares)
	if err != nil {
		if terr := m.transition(ctx, r, Failed, Draft); terr != nil {
			log.WithError(terr).Error("failed to mark policy failed")
		}
		return nil, fmt.Errorf("policy.CreatePolicy: %w", err)
	}
	defer func() {
		for _, kfrag := range kfrags {
			kfrag.Zeroize()
		}
	}()

	if err = m.transition(ctx, r, Arranging, Draft); err != nil {
		return nil, err
	}

	required := m.cfg.required(threshold, shares)
	offer := func(kfrag *pre.KFrag) *Offer {
		return &Offer{
			PolicyID:   p.ID,
			KFrag:      kfrag,
			Keys:       p.Keys(),
			Start:      p.Start,
			Expiration: p.Expiration,
		}
	}

	queue := &candidates{nodes: m.eligible(ctx)}
	g, gctx := errgroup.WithContext(ctx)
	for _, kfrag := range kfrags {
		kfrag := kfrag
		g.Go(func() error {
			return m.place(gctx, r, queue, offer(kfrag), required)
		})
	}
	if err = g.Wait(); err != nil {
		log.WithError(err).Error("arrangement aborted")
	}

	r.mtx.Lock()
	if State(r.state.Load()) == Granted {
		err = m.save(ctx, r)
		r.mtx.Unlock()
		if err != nil {
			return nil, err
		}
		return r.snapshot(), nil
	}
	r.mtx.Unlock()

	accepted := int(r.accepted.Load())
	log.WithFields(logrus.Fields{"accepted": accepted, "required": required}).Warn("not enough nodes accepted the policy")
	if terr := m.transition(ctx, r, Failed, Arranging); terr != nil {
		return nil, terr
	}
	m.void(ctx, r)
	return r.snapshot(), fmt.Errorf("%w: %d of %d required nodes accepted", pre.ErrGrantFailed, accepted, required)
}

// place offers one KFrag to successive candidates until a node accepts it, or
// the retry budget is exhausted. Failing to place the KFrag is not an error.
func (m *Manager) place(ctx context.Context, r *record, queue *candidates, offer *Offer, required int) error {
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		node, ok := queue.next()
		if !ok {
			return nil
		}
		log := m.log.WithFields(logrus.Fields{"policy": offer.PolicyID, "node": node.ID(), "kfrag": offer.KFrag.ID})

		offerCtx, cancel := context.WithTimeout(ctx, m.cfg.OfferTimeout.Duration)
		accepted, err := node.OfferArrangement(offerCtx, offer)
		cancel()

		status := Accepted
		switch {
		case err != nil:
			status = Unreachable
			log.WithError(err).Warn("offer failed")
		case !accepted:
			status = Declined
			log.Debug("offer declined")
		}
		m.recordArrangement(r, Arrangement{
			Node:    node.ID(),
			KFragID: offer.KFrag.ID,
			Status:  status,
			Attempt: attempt,
		})
		if status == Unreachable {
			m.retract(ctx, node, offer.PolicyID, log)
		}
		if status != Accepted {
			continue
		}

		log.Debug("offer accepted")
		if int(r.accepted.Add(1)) >= required && r.state.CompareAndSwap(int32(Arranging), int32(Granted)) {
			r.mtx.Lock()
			r.policy.Stored = Granted
			err = m.save(ctx, r)
			r.mtx.Unlock()
			if err != nil {
				return err
			}
			log.WithField("state", Granted).Info("policy granted")
		}
		return nil
	}
	m.log.WithFields(logrus.Fields{"policy": offer.PolicyID, "kfrag": offer.KFrag.ID}).Warn("kfrag unplaced after exhausting retries")
	return nil
}

// retract asks a node whose answer to an offer was lost to drop the KFrag it may
// have stored. Failures are only logged.
func (m *Manager) retract(ctx context.Context, node Node, id uuid.UUID, log *logrus.Entry) {
	revoker, ok := node.(Revoker)
	if !ok {
		return
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RequestTimeout.Duration)
	defer cancel()
	if err := revoker.RevokeArrangement(callCtx, id); err != nil {
		log.WithError(err).Debug("unanswered offer not retracted")
		return
	}
	log.Debug("unanswered offer retracted")
}

func (m *Manager) recordArrangement(r *record, a Arrangement) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.policy.Arrangements = append(r.policy.Arrangements, a)
}

// void discards the arrangements of a failed policy, asking nodes to drop their KFrag.
func (m *Manager) void(ctx context.Context, r *record) {
	r.mtx.Lock()
	holders := r.policy.voidAccepted()
	id := r.policy.ID
	if err := m.save(ctx, r); err != nil {
		m.log.WithError(err).WithField("policy", id).Error("failed to save voided arrangements")
	}
	r.mtx.Unlock()

	m.notify(ctx, id, holders, func(ctx context.Context, node Node) error {
		if revoker, ok := node.(Revoker); ok {
			return revoker.RevokeArrangement(ctx, id)
		}
		return nil
	})
}
