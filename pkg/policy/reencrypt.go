package policy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/taurusgroup/threshold-pre/pkg/pre"
	"golang.org/x/sync/errgroup"
)

// Responses gathers the outcome of a re-encryption request.
type Responses struct {
	// Policy is the snapshot the request was checked against.
	Policy *Policy
	// CFrags are the verified fragments, in arrangement order.
	CFrags []*pre.VerifiedCFrag
	// Errors holds one entry per node which failed to produce a valid fragment,
	// followed by the fragments Decrypt rejected, indexed into CFrags.
	Errors []*pre.FragmentError
}

// Decrypt combines the fragments and opens ciphertext.
//
// Fragments rejected while combining are appended to Errors.
func (r *Responses) Decrypt(receiving *pre.SecretKey, capsule *pre.Capsule, ciphertext []byte) ([]byte, error) {
	plaintext, rejected, err := pre.DecryptReencrypted(receiving, r.Policy.Delegating, capsule, r.CFrags, r.Policy.Threshold, ciphertext)
	r.Errors = append(r.Errors, rejected...)
	return plaintext, err
}

// gate returns the error a request against a policy in state fails with.
func gate(state State) error {
	switch state {
	case Active:
		return nil
	case Revoked:
		return pre.ErrRevokedPolicy
	case Expired:
		return pre.ErrExpiredPolicy
	case Granted:
		return pre.ErrNotYetActive
	default:
		return fmt.Errorf("%w: policy is %s", ErrNotGranted, state)
	}
}

// Reencrypt asks every node holding a KFrag of the policy to re-encrypt capsule.
//
// Failures of single nodes are reported in Responses.Errors, and are not retried.
// The returned CFrags are verified against the policy's keys.
func (m *Manager) Reencrypt(ctx context.Context, id uuid.UUID, capsule *pre.Capsule) (*Responses, error) {
	r, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	p := r.snapshot()
	if err = gate(p.State(m.now())); err != nil {
		return nil, err
	}
	if !capsule.Verify() {
		return nil, pre.ErrInvalidCapsule
	}

	arrangements := p.Accepted()
	results := make([]*pre.CFrag, len(arrangements))
	failures := make([]error, len(arrangements))

	var g errgroup.Group
	for i, a := range arrangements {
		i, a := i, a
		node, ok := m.nodesByID[a.Node]
		if !ok {
			failures[i] = fmt.Errorf("%w: unknown node", pre.ErrNodeUnreachable)
			continue
		}
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout.Duration)
			defer cancel()
			results[i], failures[i] = node.SubmitReencryption(reqCtx, &Request{
				PolicyID: id,
				KFragID:  a.KFragID,
				Capsule:  capsule,
			})
			return nil
		})
	}
	_ = g.Wait()

	// proofs are checked on the pool, in a second pass
	keys := p.Keys()
	verified := m.pool.Parallelize(len(arrangements), func(i int) interface{} {
		if failures[i] != nil {
			return nil
		}
		if results[i] == nil || results[i].KFragID != arrangements[i].KFragID {
			return pre.ErrInvalidProof
		}
		v, err := pre.VerifyCFrag(capsule, results[i], keys)
		if err != nil {
			return err
		}
		return v
	})

	responses := &Responses{Policy: p}
	for i, a := range arrangements {
		log := m.log.WithFields(logrus.Fields{"policy": id, "node": a.Node, "kfrag": a.KFragID})
		fail := failures[i]
		switch v := verified[i].(type) {
		case *pre.VerifiedCFrag:
			v.Node = a.Node
			responses.CFrags = append(responses.CFrags, v)
			continue
		case error:
			fail = v
		}
		log.WithError(fail).Warn("re-encryption failed")
		responses.Errors = append(responses.Errors, &pre.FragmentError{
			Index:   i,
			KFragID: a.KFragID,
			Node:    a.Node,
			Err:     fail,
		})
	}
	m.log.WithFields(logrus.Fields{"policy": id, "cfrags": len(responses.CFrags), "errors": len(responses.Errors)}).Debug("re-encryption request done")
	return responses, nil
}
