package dualqp

import (
	"math"
	"testing"

	"github.com/qpdual/dualqp/stage"
	"gonum.org/v1/gonum/mat"
)

// TestSolveDegenerateOneStage covers scenario S1: a single unconstrained
// stage (N=0) with H=I, q=0, bounds open must report OptimalFound
// immediately with zero objective and no Newton iterations.
func TestSolveDegenerateOneStage(t *testing.T) {
	s := stage.New(1, 0, 0, stage.Clipping)
	s.H = mat.NewDense(1, 1, []float64{1})
	s.SetDiagonalHessian([]float64{1})
	s.Q = []float64{0}
	s.ZLow = []float64{-1e12}
	s.ZUpp = []float64{1e12}
	p := NewProblem(1, []*stage.Stage{s})

	res, err := Solve(p, Settings{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Status != OptimalFound {
		t.Errorf("Status = %v, want OptimalFound", res.Status)
	}
	if res.Iterations != 0 {
		t.Errorf("Iterations = %d, want 0", res.Iterations)
	}
	if math.Abs(res.ObjectiveValue) > 1e-12 {
		t.Errorf("ObjectiveValue = %v, want 0", res.ObjectiveValue)
	}
}

// TestSolveDoubleIntegratorConverges covers scenario S2: an unconstrained
// multi-stage double integrator should converge to a stationary dual
// gradient within very few Newton iterations.
func TestSolveDoubleIntegratorConverges(t *testing.T) {
	p := buildDoubleIntegrator(5)
	for i := range p.Stages[0].Q {
		p.Stages[0].Q[i] = 1 // break symmetry so there is a nontrivial ascent
	}

	res, err := Solve(p, Settings{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Status != OK && res.Status != OptimalFound {
		t.Fatalf("Status = %v, want OK or OptimalFound", res.Status)
	}
	if res.Iterations > 3 {
		t.Errorf("Iterations = %d, want a small number for an unconstrained quadratic", res.Iterations)
	}
	if p.gradientNorm() >= DefaultSettings().StationarityTolerance*10 {
		t.Errorf("gradient norm %v did not shrink to near stationarity", p.gradientNorm())
	}
}

// TestSolveIterationLimitReached covers scenario S6: capping MaxIter at 1
// on a problem that needs more must return IterationLimitReached with
// exactly one logged iteration.
func TestSolveIterationLimitReached(t *testing.T) {
	p := buildDoubleIntegrator(5)
	for i := range p.Stages[0].Q {
		p.Stages[0].Q[i] = 1
	}
	cfg := DefaultSettings()
	cfg.MaxIter = 1
	cfg.NbrInitialGradientSteps = 0
	cfg.LogLevel = LogIterations

	res, err := Solve(p, cfg)
	if res.Status != IterationLimitReached {
		t.Fatalf("Status = %v, want IterationLimitReached (err=%v)", res.Status, err)
	}
	if len(res.Log) != 1 {
		t.Errorf("len(Log) = %d, want 1", len(res.Log))
	}
}
