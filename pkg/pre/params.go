package pre

import (
	"sync"

	"github.com/taurusgroup/threshold-pre/pkg/hash"
	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
	"github.com/taurusgroup/threshold-pre/pkg/math/sample"
)

// MaxFragments is the largest number of KFrags a single policy may be split into.
const MaxFragments = 255

// Domain separation tags.
const (
	domainParameterU   = "threshold-pre/parameters/u"
	domainCapsule      = "threshold-pre/capsule"
	domainShareIndex   = "threshold-pre/share-index"
	domainDH           = "threshold-pre/non-interactive-dh"
	domainKFragSig     = "threshold-pre/kfrag-signature"
	domainCFragProof   = "threshold-pre/cfrag-proof"
	domainSignature    = "threshold-pre/schnorr"
	domainKeyDerivaton = "threshold-pre/dem-key"
)

// Params holds the group along with a second generator U, whose discrete
// logarithm with respect to G is unknown to everybody.
type Params struct {
	Group curve.Curve
	// U is used to commit to KFrag share values.
	U curve.Point
}

// NewParams derives the parameters for group.
func NewParams(group curve.Curve) *Params {
	return &Params{
		Group: group,
		U:     group.HashToPoint([]byte(domainParameterU)),
	}
}

var (
	defaultParams     *Params
	defaultParamsOnce sync.Once
)

// DefaultParams returns the parameters over secp256k1.
//
// Decoding functions assume these parameters.
func DefaultParams() *Params {
	defaultParamsOnce.Do(func() {
		defaultParams = NewParams(curve.Secp256k1{})
	})
	return defaultParams
}

// hashToScalar hashes data under domain, and reads an unbiased scalar from the digest.
func hashToScalar(group curve.Curve, domain string, data ...interface{}) (curve.Scalar, error) {
	h := hash.New(hash.BytesWithDomain{TheDomain: "domain", Bytes: []byte(domain)})
	if err := h.WriteAny(data...); err != nil {
		return nil, err
	}
	return sample.Scalar(h.Digest(), group), nil
}
