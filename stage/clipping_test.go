package stage

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func newClippingStage(nx, nu int, hDiag, zLow, zUpp []float64) *Stage {
	s := New(nx, nu, 0, Clipping)
	s.H = mat.NewDense(s.Nz, s.Nz, nil)
	for i, h := range hDiag {
		s.H.Set(i, i, h)
	}
	s.SetDiagonalHessian(hDiag)
	s.Q = make([]float64, s.Nz)
	s.ZLow = append([]float64(nil), zLow...)
	s.ZUpp = append([]float64(nil), zUpp...)
	return s
}

func TestSolveClippingUnconstrained(t *testing.T) {
	s := newClippingStage(1, 1, []float64{2, 4}, []float64{-10, -10}, []float64{10, 10})
	s.Q[0], s.Q[1] = -4, -8 // minimizer at q/-h = 2, 2
	s.SetDual(nil, nil)
	if err := s.SolveLocal(); err != nil {
		t.Fatalf("SolveLocal: %v", err)
	}
	if math.Abs(s.Z[0]-2) > 1e-12 || math.Abs(s.Z[1]-2) > 1e-12 {
		t.Errorf("Z = %v, want [2 2]", s.Z)
	}
	for _, y := range s.Y {
		if y != 0 {
			t.Errorf("Y = %v, want all zero (unconstrained optimum)", s.Y)
		}
	}
}

func TestSolveClippingClampsAndReportsMultiplier(t *testing.T) {
	s := newClippingStage(1, 0, []float64{2}, []float64{-1}, []float64{1})
	s.Q[0] = -10 // unconstrained minimizer at 5, clamps to upper bound 1
	s.SetDual(nil, nil)
	if err := s.SolveLocal(); err != nil {
		t.Fatalf("SolveLocal: %v", err)
	}
	if s.Z[0] != 1 {
		t.Errorf("Z[0] = %v, want 1 (clamped to upper bound)", s.Z[0])
	}
	if s.Y[1] <= 0 {
		t.Errorf("Y upper multiplier = %v, want > 0", s.Y[1])
	}
	if s.Y[0] != 0 {
		t.Errorf("Y lower multiplier = %v, want 0", s.Y[0])
	}
}

func TestActiveBoundMaskAndDiagHInv(t *testing.T) {
	s := newClippingStage(1, 0, []float64{2}, []float64{-1}, []float64{1})
	s.Q[0] = -10
	s.SetDual(nil, nil)
	if err := s.SolveLocal(); err != nil {
		t.Fatalf("SolveLocal: %v", err)
	}
	mask := s.ActiveBoundMask(1e-9)
	if !mask[0] {
		t.Errorf("ActiveBoundMask = %v, want [true] (clamped coordinate)", mask)
	}
	inv := s.DiagHInv()
	if math.Abs(inv[0]-0.5) > 1e-12 {
		t.Errorf("DiagHInv = %v, want [0.5]", inv)
	}
}

func TestMinStepToActiveSetChange(t *testing.T) {
	s := newClippingStage(1, 0, []float64{1}, []float64{-1}, []float64{1})
	s.Q[0] = 0
	s.SetDual(nil, nil)
	if err := s.SolveLocal(); err != nil {
		t.Fatalf("SolveLocal: %v", err)
	}
	// zUnconstrained = 0, currently feasible; direction dz = 2 hits the
	// upper bound (1) at alpha = 0.5.
	s.SetStepDirection([]float64{2})
	got := s.MinStepToActiveSetChange()
	if math.Abs(got-0.5) > 1e-12 {
		t.Errorf("MinStepToActiveSetChange = %v, want 0.5", got)
	}
}

func TestRefreshActiveSetDiffDetectsChange(t *testing.T) {
	s := newClippingStage(1, 0, []float64{2}, []float64{-1}, []float64{1})
	s.Q[0] = 0
	s.SetDual(nil, nil)
	s.SolveLocal()
	if changed := s.RefreshActiveSetDiff(); !changed {
		t.Errorf("first RefreshActiveSetDiff should report changed (baseline)")
	}
	if changed := s.RefreshActiveSetDiff(); changed {
		t.Errorf("second RefreshActiveSetDiff with no change should report unchanged")
	}

	s.Q[0] = -10
	s.SolveLocal()
	if changed := s.RefreshActiveSetDiff(); !changed {
		t.Errorf("clamping to a bound should report a changed active set")
	}
}
