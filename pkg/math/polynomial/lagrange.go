package polynomial

import (
	"errors"

	"github.com/taurusgroup/threshold-pre/pkg/math/curve"
)

var ErrDuplicateAbscissa = errors.New("polynomial: interpolation domain contains a duplicate or zero point")

// Lagrange returns the Lagrange coefficients lⱼ(0) for every point xⱼ of the interpolation domain,
// in the same order.
//
// The points must be distinct and non-zero.
//
// The following formulas are taken from
// https://en.wikipedia.org/wiki/Lagrange_polynomial
//
//	                 x₀ ⋅⋅⋅ xₖ
//	lⱼ(0) = --------------------------------------------------
//	        xⱼ⋅(x₀ - xⱼ)⋅⋅⋅(xⱼ₋₁ - xⱼ)⋅(xⱼ₊₁ - xⱼ)⋅⋅⋅(xₖ - xⱼ).
func Lagrange(group curve.Curve, interpolationDomain []curve.Scalar) ([]curve.Scalar, error) {
	// numerator = x₀ * … * xₖ
	numerator := curve.ScalarFromUint64(group, 1)
	for _, x := range interpolationDomain {
		if x.IsZero() {
			return nil, ErrDuplicateAbscissa
		}
		numerator.Mul(x)
	}

	coefficients := make([]curve.Scalar, len(interpolationDomain))
	for j := range interpolationDomain {
		lJ, err := lagrange(group, interpolationDomain, numerator, j)
		if err != nil {
			return nil, err
		}
		coefficients[j] = lJ
	}
	return coefficients, nil
}

// lagrange returns the Lagrange coefficient lⱼ(0), for j in the interpolation domain.
// The numerator is provided beforehand for efficiency reasons.
func lagrange(group curve.Curve, interpolationDomain []curve.Scalar, numerator curve.Scalar, j int) (curve.Scalar, error) {
	xJ := interpolationDomain[j]
	tmp := group.NewScalar()

	// denominator = xⱼ⋅(x₀ - xⱼ)⋅⋅⋅(xⱼ₋₁ - xⱼ)⋅(xⱼ₊₁ - xⱼ)⋅⋅⋅(xₖ - xⱼ)
	denominator := curve.ScalarFromUint64(group, 1)
	for i, xI := range interpolationDomain {
		if i == j {
			// lⱼ *= xⱼ
			denominator.Mul(xJ)
			continue
		}
		// tmp = xᵢ - xⱼ
		tmp.Set(xI).Sub(xJ)
		if tmp.IsZero() {
			return nil, ErrDuplicateAbscissa
		}
		// lⱼ *= xᵢ - xⱼ
		denominator.Mul(tmp)
	}

	// lⱼ = numerator/denominator
	lJ := denominator.Invert()
	lJ.Mul(numerator)
	return lJ, nil
}
