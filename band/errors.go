package band

import "errors"

// RegType selects the in-pass diagonal-regularization policy applied
// when a Cholesky pivot falls below Config.Tolerance. The
// LevenbergMarquardt policy from spec.md §4.4 is not represented here:
// it restarts the whole factorization with a modified input Hessian, so
// it is implemented one level up, in the driver, around a plain None
// pass.
type RegType int

const (
	// None lets a too-small pivot fail the factorization outright.
	None RegType = iota
	// SingularDirections adds Config.Param to the offending pivot and
	// continues the same pass; if that still leaves it below Tolerance,
	// Forward and Reverse alike replace it with a large sentinel and mark
	// the row in Result.Singular.
	SingularDirections
	// GradientStep aborts the factorization; the caller should fall
	// back to a pure gradient step for this outer iteration.
	GradientStep
)

// Config bundles the factorization's numerical safeguards.
type Config struct {
	Reg       RegType
	Param     float64 // magnitude of diagonal regularization
	Tolerance float64 // pivot threshold triggering regularization

	// Sentinel is the squared poisoned-pivot value SingularDirections
	// falls back to when Param isn't enough to clear Tolerance; zero
	// means the package default (1e50). Callers set this to
	// QPDUNES_INFTY^2 (Settings.QPDUNESInfty, squared) to match the
	// original's poisoned-pivot magnitude exactly.
	Sentinel float64
}

// ErrDivisionByZero is returned when a factorization pivot falls below
// Config.Tolerance and no regularization policy rescues it, or when a
// back-substitution pivot is too small relative to its numerator.
var ErrDivisionByZero = errors.New("band: division by zero in factorization")

// ErrGradientStep signals that Config.Reg == GradientStep fired; the
// caller should take a pure gradient step instead of treating this as a
// hard failure.
var ErrGradientStep = errors.New("band: regularization requests gradient step")

// Result reports what happened during a factorization.
type Result struct {
	Regularized bool    // true if any pivot was regularized
	MinPivot    float64 // smallest diagonal entry of the factor observed
	// Singular marks, per scalar row (block-row*nx+i), rows whose pivot
	// was poisoned by SingularDirections regularization in the sentinel
	// path of Forward or Reverse. Back-substitution zeros the
	// corresponding solution component for these rows instead of
	// dividing by the sentinel, per spec.md §9's sidecar-bitset design
	// note (an explicit alternative to overwriting the pivot with
	// QPDUNES_INFTY^2).
	Singular []bool
}
