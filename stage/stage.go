// Package stage implements the per-stage QP adapter consumed by the
// dual-Newton driver: the Clipping solver (diagonal Hessian, simple
// bounds) and the General solver (dense Hessian, general affine
// inequalities), behind one explicitly-dispatched Stage type rather than
// an interface hierarchy, per the sum-type design called for by the
// driver's specification.
package stage

import "gonum.org/v1/gonum/mat"

// Kind tags which local solver a Stage uses.
type Kind int

const (
	// Clipping selects the closed-form box-constrained solver; H must
	// be diagonal and Nd must be 0.
	Clipping Kind = iota
	// General selects the dense active-set solver for stages with
	// general affine inequalities.
	General
)

func (k Kind) String() string {
	switch k {
	case Clipping:
		return "Clipping"
	case General:
		return "General"
	default:
		return "Kind(?)"
	}
}

// Stage holds one block-tridiagonal QP stage's data and local solver
// state. Nx, Nu, Nd and Kind are fixed at construction; Q, P are the
// base objective terms, and the effective linear term is recomputed
// from Q and the dual variables by every SetDual; Z, Y are the current
// primal/dual stage solution.
type Stage struct {
	Nx, Nu, Nz, Nd int

	H *mat.Dense // Nz x Nz, diagonal when Kind == Clipping
	Q []float64  // Nz, linear term (base, before dual contribution)
	P float64    // constant term

	C  *mat.Dense // Nx x Nz, nil for the last stage
	C0 []float64  // Nx, dynamics affine offset c, nil for the last stage

	ZLow, ZUpp []float64 // Nz simple bounds

	D          *mat.Dense // Nd x Nz, nil if Nd == 0
	DLow, DUpp []float64  // Nd

	Kind Kind

	// LambdaK is the incoming coupling multiplier (nil for stage 0);
	// LambdaK1 is the outgoing one (nil for the last stage). Both are
	// slices into the solver's global lambda vector, updated in place
	// by the driver before SetDual is called.
	LambdaK, LambdaK1 []float64

	Z []float64 // Nz, current primal solution
	Y []float64 // dual multipliers: 2*Nz for Clipping, opaque for General

	qEff []float64 // Nz, linear term including the current dual contribution

	// ActSetHasChanged is set by the active-set diff after each
	// accepted line search and consumed (then left as-is; the caller
	// clears it) by the next Newton-setup pass to decide whether this
	// stage's contribution to the banded Hessian must be rebuilt.
	ActSetHasChanged bool

	clip *clippingData
	gen  *generalData
}

// New constructs a Stage. kind == Clipping requires H to be diagonal
// (not checked here, the caller's data is trusted as in mat.NewDense's
// contract) and Nd == 0.
func New(nx, nu, nd int, kind Kind) *Stage {
	if nx < 0 || nu < 0 || nd < 0 {
		panic("stage: negative dimension")
	}
	if kind == Clipping && nd != 0 {
		panic("stage: clipping solver does not support general inequalities")
	}
	nz := nx + nu
	s := &Stage{
		Nx: nx, Nu: nu, Nz: nz, Nd: nd,
		Kind: kind,
		Z:    make([]float64, nz),
		qEff: make([]float64, nz),
	}
	switch kind {
	case Clipping:
		s.clip = newClippingData(nz)
		s.Y = make([]float64, 2*nz)
	case General:
		s.gen = newGeneralData(nz, nd)
		s.Y = make([]float64, 2*(nz+nd))
	default:
		panic("stage: unknown kind")
	}
	return s
}

// SetDual recomputes the effective linear term from the current base Q
// and the shared coupling-multiplier slices, implementing the dual
// decomposition's per-stage Lagrangian term
//
//	qEff = Q + Cᵀ·LambdaK1 (if this stage has dynamics) − Eᵀ·LambdaK (if this stage has an incoming coupling),
//
// where E extracts the first Nx (state) components of z.
func (s *Stage) SetDual(lambdaK, lambdaK1 []float64) {
	s.LambdaK, s.LambdaK1 = lambdaK, lambdaK1
	copy(s.qEff, s.Q)
	s.addDualContribution(s.qEff, lambdaK, lambdaK1)
}

// SetDualDirection records the sensitivity of qEff to a unit step along
// the coupling-multiplier direction (dLambdaK, dLambdaK1), applying the
// same linear map SetDual applies to lambda itself, then projects that
// onto each solver's primal sensitivity dz/dα (the parametric response
// doStep steps along, holding the active set fixed). Clipping stages
// additionally use dz to seed MinStepToActiveSetChange with the actual
// Newton/gradient direction; General stages' MinStepToActiveSetChange
// still always reports +Inf (unimplemented in the source this was
// distilled from), but dz/zBase are kept correct for doStep.
func (s *Stage) SetDualDirection(dLambdaK, dLambdaK1 []float64) {
	dq := make([]float64, s.Nz)
	s.addDualContribution(dq, dLambdaK, dLambdaK1)
	switch s.Kind {
	case Clipping:
		for i := range dq {
			s.clip.dz[i] = -dq[i] / s.clip.hDiag[i]
		}
	case General:
		copy(s.gen.zBase, s.Z)
		s.gen.computeDirection(dq)
	}
}

func (s *Stage) addDualContribution(dst []float64, lambdaK, lambdaK1 []float64) {
	if s.C != nil && lambdaK1 != nil {
		r, c := s.C.Dims()
		for j := 0; j < c; j++ {
			var v float64
			for i := 0; i < r; i++ {
				v += s.C.At(i, j) * lambdaK1[i]
			}
			dst[j] += v
		}
	}
	if lambdaK != nil {
		for i := 0; i < s.Nx; i++ {
			dst[i] -= lambdaK[i]
		}
	}
}

// SolveLocal solves the stage QP for the current qEff, writing Z and Y.
func (s *Stage) SolveLocal() error {
	switch s.Kind {
	case Clipping:
		return s.solveClipping()
	case General:
		return s.solveGeneral()
	default:
		panic("stage: unknown kind")
	}
}

// DoStep moves the stage's solution from the point found by the last
// SolveLocal along the sensitivity installed by the last
// SetDualDirection/SetStepDirection to the given step size alpha, and
// returns the resulting z, y and stage objective value. Clipping stages
// update Y along the step; General stages move only Z. It does not move
// LambdaK/LambdaK1 (the driver does that separately before the next
// SetDual).
func (s *Stage) DoStep(alpha float64) (z, y []float64, q float64) {
	switch s.Kind {
	case Clipping:
		s.stepClipping(alpha)
	case General:
		s.stepGeneral(alpha)
	default:
		panic("stage: unknown kind")
	}
	return s.Z, s.Y, s.objective()
}

func (s *Stage) objective() float64 {
	var quad float64
	for i := 0; i < s.Nz; i++ {
		var hz float64
		for j := 0; j < s.Nz; j++ {
			hz += s.H.At(i, j) * s.Z[j]
		}
		quad += 0.5 * s.Z[i] * hz
	}
	var lin float64
	for i := 0; i < s.Nz; i++ {
		lin += s.qEff[i] * s.Z[i]
	}
	return quad + lin + s.P
}
