package dualqp

import "github.com/qpdual/dualqp/band"

// backSubstitute solves the banded Newton system for the ascent
// direction: the generalized Hessian assembled in newtonSetup is
// positive (semi-)definite by construction (it sums stage projected-
// Hessian inverses), so its factor solves generalizedHessian*deltaLambda
// = gradient for the direction that drives the dual gradient to zero,
// per spec.md §4.5.
func (p *Problem) backSubstitute(cfg Settings, res band.Result) ([]float64, error) {
	switch cfg.FactorizationAlgorithm {
	case BandForward:
		return band.ForwardSolve(p.factor, p.gradient, res.Singular, cfg.QPDUNESZero)
	case BandReverse:
		return band.ReverseSolve(p.factor, p.gradient, res.Singular, cfg.QPDUNESZero)
	default:
		return nil, newError(InvalidArgument, "unknown factorization algorithm %d", cfg.FactorizationAlgorithm)
	}
}
