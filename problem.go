// Package dualqp implements a dual-Newton solver for convex quadratic
// programs with block-banded structure arising from discrete-time
// optimal control: the decision variable decomposes across N+1
// consecutive stages coupled only by linear dynamics between
// consecutive stages. The coupling equalities are dualized into a
// concave, piecewise-quadratic dual function of the stage-coupling
// multipliers, maximized by a semismooth Newton method with line
// search; primal variables are recovered by solving decoupled per-stage
// QPs (see package stage).
package dualqp

import (
	"github.com/qpdual/dualqp/band"
	"github.com/qpdual/dualqp/stage"
)

// Problem holds the N+1 stages of a block-banded QP and the global dual
// state the driver iterates on. Stage records are owned by Problem for
// its lifetime, as are the dual vectors and the banded Hessian and
// factor, which every Solve call reuses.
type Problem struct {
	N  int // number of couplings; there are N+1 stages
	Nx int

	Stages []*stage.Stage

	lambda      []float64
	deltaLambda []float64
	gradient    []float64
	alpha       float64
	objVal      float64

	hessian *band.Band
	factor  *band.Band

	lastActSetChangeIdx int
	warmStart           bool

	log IterLog
}

// NewProblem constructs a Problem from N+1 already-built stages (index
// 0..N). Every stage but the last must carry dynamics coupling to the
// next (Stage.C non-nil); the last stage must have Nu == 0. N == 0 (a
// single, uncoupled stage) is permitted: the dual Newton machinery is
// then skipped entirely since there is no coupling multiplier to
// optimize (spec.md testable-property scenario S1).
func NewProblem(nx int, stages []*stage.Stage) *Problem {
	if len(stages) == 0 {
		panic("dualqp: need at least one stage")
	}
	n := len(stages) - 1
	for k, s := range stages {
		if s.Nx != nx {
			panic("dualqp: inconsistent Nx across stages")
		}
		if k < n && s.C == nil {
			panic("dualqp: non-terminal stage is missing its dynamics coupling C")
		}
		if k == n && s.Nu != 0 {
			panic("dualqp: terminal stage must have Nu == 0")
		}
	}

	p := &Problem{
		N:                   n,
		Nx:                  nx,
		Stages:              stages,
		lastActSetChangeIdx: -1,
	}
	if n > 0 {
		total := n * nx
		p.lambda = make([]float64, total)
		p.deltaLambda = make([]float64, total)
		p.gradient = make([]float64, total)
		p.hessian = band.New(n, nx)
		p.factor = band.New(n, nx)
	}
	return p
}

// WarmStart controls whether the next Solve reuses the current lambda
// as its initial iterate (true, the MPC shifting-horizon pattern) or
// resets it to zero first (false, the default).
func (p *Problem) WarmStart(v bool) { p.warmStart = v }

// SetStageLinearTerm updates stage k's base linear and constant
// objective terms (q, p), used between solves to re-target the
// objective without reconstructing the problem.
func (p *Problem) SetStageLinearTerm(k int, q []float64, c float64) {
	s := p.Stages[k]
	copy(s.Q, q)
	s.P = c
}

// SetStageBounds updates stage k's simple bounds in place. This is the
// mechanism for initial-value embedding: the caller tightens stage 0's
// state bounds to the current measured/estimated state before calling
// Solve.
func (p *Problem) SetStageBounds(k int, zLow, zUpp []float64) {
	s := p.Stages[k]
	copy(s.ZLow, zLow)
	copy(s.ZUpp, zUpp)
}

// Result is returned by Solve.
type Result struct {
	Status         Status
	Iterations     int
	ObjectiveValue float64
	Log            IterLog
}

// GetPrimalSolution writes the N+1 concatenated stage solutions
// (z_0, ..., z_N) into out, which must have length sum(Nz_k).
func (p *Problem) GetPrimalSolution(out []float64) {
	off := 0
	for _, s := range p.Stages {
		copy(out[off:off+s.Nz], s.Z)
		off += s.Nz
	}
}

// GetDualSolution writes the coupling multipliers into outLambda (N*Nx)
// and the per-stage bound/inequality multipliers into outY
// (concatenated per stage, in Stage.Y order).
func (p *Problem) GetDualSolution(outLambda, outY []float64) {
	copy(outLambda, p.lambda)
	off := 0
	for _, s := range p.Stages {
		copy(outY[off:off+len(s.Y)], s.Y)
		off += len(s.Y)
	}
}
