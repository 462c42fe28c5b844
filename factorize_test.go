package dualqp

import (
	"errors"
	"math"
	"testing"

	"github.com/qpdual/dualqp/band"
)

// factorizeFixture builds a problem with a populated banded Hessian
// (via newtonSetup on a perturbed double integrator) so factorize has
// real block-tridiagonal structure to work with, then lets the test
// poison one diagonal block to exercise the regularization paths.
func factorizeFixture(t *testing.T) *Problem {
	t.Helper()
	p := buildDoubleIntegrator(3)
	for i := range p.Stages[0].Q {
		p.Stages[0].Q[i] = 1
	}
	if _, err := p.resolveStagesAt(p.lambda); err != nil {
		t.Fatalf("resolveStagesAt: %v", err)
	}
	p.captureActiveSet()
	for _, s := range p.Stages {
		s.ActSetHasChanged = true
	}
	cfg := DefaultSettings()
	if done := p.newtonSetup(cfg); done {
		t.Fatalf("fixture converged before factorize could run")
	}
	return p
}

// TestFactorizeSingularDirectionsRescuesPivot covers scenario S4: a
// too-small pivot under the SingularDirections policy is rescued by
// adding cfg.RegParam, leaving sqrt(s + RegParam) as the factor's pivot
// on the poisoned block's diagonal entry.
func TestFactorizeSingularDirectionsRescuesPivot(t *testing.T) {
	p := factorizeFixture(t)
	cfg := DefaultSettings()
	cfg.Reg = SingularDirections
	cfg.RegParam = 1e-3
	cfg.NewtonHessDiagRegTolerance = 1e-10

	diag := p.hessian.Diag(0)
	for i := range diag {
		diag[i] = 0
	}
	diag[0] = 1e-12 // below tolerance, triggers the rescue branch

	res, err := p.factorize(cfg)
	if err != nil {
		t.Fatalf("factorize: %v", err)
	}
	if !res.Regularized {
		t.Errorf("Regularized = false, want true")
	}
	want := math.Sqrt(1e-12 + cfg.RegParam)
	got := p.factor.At(0, 0, 0, 0)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("factor[0,0,0,0] = %v, want %v", got, want)
	}
}

// TestFactorizeGradientStepFallsBackNonFatally covers the GradientStep
// regularization policy: factorize must surface band.ErrGradientStep
// (via errors.Is, not wrapped away) rather than a generic failure, and
// stepSelect must catch it and substitute a pure gradient step.
func TestFactorizeGradientStepFallsBackNonFatally(t *testing.T) {
	p := factorizeFixture(t)
	cfg := DefaultSettings()
	cfg.Reg = GradientStep

	diag := p.hessian.Diag(0)
	for i := range diag {
		diag[i] = 0
	}
	diag[0] = -1 // forces a non-positive pivot with no rescue available
	// Prevent the upcoming stepSelect's internal newtonSetup from
	// rebuilding (and so erasing) this corrupted block.
	for _, s := range p.Stages {
		s.ActSetHasChanged = false
	}

	_, err := p.factorize(cfg)
	if !errors.Is(err, band.ErrGradientStep) {
		t.Fatalf("factorize err = %v, want band.ErrGradientStep", err)
	}

	optimal, regularized, serr := p.stepSelect(cfg, 0)
	if serr != nil {
		t.Fatalf("stepSelect: %v", serr)
	}
	if optimal {
		t.Fatalf("stepSelect reported optimal on a gradient-step fallback")
	}
	if regularized {
		t.Errorf("regularized = true, want false for a gradient-step fallback")
	}
	for i := range p.deltaLambda {
		if p.deltaLambda[i] != p.gradient[i] {
			t.Fatalf("deltaLambda[%d] = %v, want gradient %v", i, p.deltaLambda[i], p.gradient[i])
		}
	}
}

// TestFactorizeLevenbergMarquardtReverseFullyRefactors guards the
// BandReverse restart path: regularizeHessianDiagonal touches every
// block-row's diagonal, not only the suffix p.lastActSetChangeIdx would
// normally restart from, so the LM restart must force a full bottom-up
// refactor. Without that, a block-row above the suffix keeps its
// pre-regularization factor even though its Hessian block changed.
func TestFactorizeLevenbergMarquardtReverseFullyRefactors(t *testing.T) {
	p := factorizeFixture(t)
	cfg := DefaultSettings()
	cfg.FactorizationAlgorithm = BandReverse

	// Seed p.factor with a full, correct factorization of the
	// well-conditioned Hessian newtonSetup produced.
	seedCfg := cfg
	seedCfg.Reg = SingularDirections
	if _, err := p.factorize(seedCfg); err != nil {
		t.Fatalf("seed factorize: %v", err)
	}
	lastRow := p.N - 1
	nx := p.Nx
	preRegPivot := p.factor.At(lastRow, 0, nx-1, nx-1)

	// Simulate a later iteration where only block 0's active set
	// changed (so BandReverse would normally restart only at row 0),
	// but the Hessian has since gone singular at row 0 and needs a
	// from-scratch Levenberg-Marquardt restart.
	p.lastActSetChangeIdx = 0
	diag := p.hessian.Diag(0)
	for i := range diag {
		diag[i] = 0
	}
	diag[0] = -1

	cfg.Reg = LevenbergMarquardt
	cfg.RegParam = 10 // large enough to make the regularized Hessian positive definite again
	res, err := p.factorize(cfg)
	if err != nil {
		t.Fatalf("factorize: %v", err)
	}
	if res.MinPivot < cfg.NewtonHessDiagRegTolerance {
		t.Errorf("MinPivot = %v, want >= tolerance after LM restart", res.MinPivot)
	}

	gotPivot := p.factor.At(lastRow, 0, nx-1, nx-1)
	wantPivot := math.Sqrt(preRegPivot*preRegPivot + cfg.RegParam)
	if math.Abs(gotPivot-wantPivot) > 1e-9 {
		t.Errorf("factor[%d,0,%d,%d] = %v, want %v (lastRow must be refactored against the regularized diagonal, not left stale)", lastRow, nx-1, nx-1, gotPivot, wantPivot)
	}
}

// TestFactorizeLevenbergMarquardtRestartsFromScratch covers the
// from-scratch diagonal-regularization restart: a singular Hessian
// block recovers after regularizeHessianDiagonal adds RegParam, without
// surfacing an error.
func TestFactorizeLevenbergMarquardtRestartsFromScratch(t *testing.T) {
	p := factorizeFixture(t)
	cfg := DefaultSettings()
	cfg.Reg = LevenbergMarquardt
	cfg.RegParam = 10 // large enough to make the regularized Hessian positive definite again
	cfg.NewtonHessDiagRegTolerance = 1e-10

	for k := 0; k < p.N; k++ {
		diag := p.hessian.Diag(k)
		for i := range diag {
			diag[i] = 0
		}
	}

	res, err := p.factorize(cfg)
	if err != nil {
		t.Fatalf("factorize: %v", err)
	}
	if res.MinPivot < cfg.NewtonHessDiagRegTolerance {
		t.Errorf("MinPivot = %v, want >= tolerance after LM restart", res.MinPivot)
	}
}
