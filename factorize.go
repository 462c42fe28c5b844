package dualqp

import (
	"errors"

	"github.com/qpdual/dualqp/band"
)

// factorize produces a factor of p.hessian according to cfg's algorithm
// and regularization policy, per spec.md §4.4. LevenbergMarquardt and
// NormalizedLM are not representable as an in-pass band.RegType (they
// restart the whole factorization against a modified input), so this
// driver runs an unrescued pass first and, only on failure or a
// too-small reported pivot, rebuilds the Hessian diagonal with
// cfg.RegParam added and refactors from scratch.
func (p *Problem) factorize(cfg Settings) (band.Result, error) {
	if cfg.Reg == UnconstrainedHessian {
		return band.Result{}, newError(InvalidArgument, "UnconstrainedHessian regularization is not implemented")
	}

	bcfg := band.Config{
		Reg:       cfg.bandRegType(),
		Param:     cfg.RegParam,
		Tolerance: cfg.NewtonHessDiagRegTolerance,
		Sentinel:  cfg.QPDUNESInfty * cfg.QPDUNESInfty,
	}

	res, err := p.runFactorization(cfg, bcfg, false)
	if err == nil && res.MinPivot >= cfg.NewtonHessDiagRegTolerance {
		return res, nil
	}

	switch cfg.Reg {
	case LevenbergMarquardt, NormalizedLM:
		p.regularizeHessianDiagonal(cfg.RegParam)
		// Every block-row's diagonal just changed, not only the suffix
		// BandReverse would normally restart from (p.lastActSetChangeIdx),
		// so this restart must force a full bottom-up refactor or blocks
		// above that suffix would keep a factor of the pre-regularization
		// Hessian. Mirrors the original's unconditional full bottom-up
		// refactor on this exact path (dual_qp.c,
		// qpDUNES_factorizeNewtonHessianBottomUp called with _NI_+1).
		return p.runFactorization(cfg, bcfg, true)
	default:
		// SingularDirections/GradientStep already applied their rescue
		// in-pass (band.Forward/Reverse); a pivot still under tolerance
		// after that is accepted as the policy's final answer rather than
		// retried, since neither policy defines a further escalation step.
		if err != nil {
			if errors.Is(err, band.ErrGradientStep) {
				return res, err
			}
			return res, newError(FactorizationFailed, "%v", err)
		}
		return res, nil
	}
}

// runFactorization runs one factorization pass. full forces BandReverse
// to restart at the top block-row (p.N-1) instead of the usual
// p.lastActSetChangeIdx-derived suffix; callers must pass true whenever
// the Hessian was just modified outside the suffix that suggests (e.g.
// the Levenberg-Marquardt restart's whole-diagonal regularization).
func (p *Problem) runFactorization(cfg Settings, bcfg band.Config, full bool) (band.Result, error) {
	switch cfg.FactorizationAlgorithm {
	case BandForward:
		return band.Forward(p.hessian, p.factor, bcfg)
	case BandReverse:
		start := p.N - 1
		if !full && p.lastActSetChangeIdx >= 0 && p.lastActSetChangeIdx < start {
			start = p.lastActSetChangeIdx
		}
		return band.Reverse(p.hessian, p.factor, start, bcfg)
	default:
		return band.Result{}, newError(InvalidArgument, "unknown factorization algorithm %d", cfg.FactorizationAlgorithm)
	}
}

// regularizeHessianDiagonal adds lambda to every diagonal-block entry of
// p.hessian, the from-scratch Levenberg-Marquardt restart step.
func (p *Problem) regularizeHessianDiagonal(lambda float64) {
	for k := 0; k < p.N; k++ {
		for i := 0; i < p.Nx; i++ {
			p.hessian.Set(k, 0, i, i, p.hessian.At(k, 0, i, i)+lambda)
		}
	}
}
