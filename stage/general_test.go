package stage

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func newGeneralStage(nx, nu, nd int, h *mat.Dense, zLow, zUpp []float64) *Stage {
	s := New(nx, nu, nd, General)
	s.H = h
	s.Q = make([]float64, s.Nz)
	s.ZLow = append([]float64(nil), zLow...)
	s.ZUpp = append([]float64(nil), zUpp...)
	if nd > 0 {
		s.D = mat.NewDense(nd, s.Nz, nil)
		s.DLow = make([]float64, nd)
		s.DUpp = make([]float64, nd)
	}
	return s
}

func TestSolveGeneralUnconstrained(t *testing.T) {
	h := mat.NewDense(2, 2, []float64{2, 0, 0, 2})
	s := newGeneralStage(1, 1, 0, h, []float64{-10, -10}, []float64{10, 10})
	s.Q[0], s.Q[1] = -4, -6 // minimizer at 2, 3
	s.SetDual(nil, nil)
	if err := s.SolveLocal(); err != nil {
		t.Fatalf("SolveLocal: %v", err)
	}
	if math.Abs(s.Z[0]-2) > 1e-8 || math.Abs(s.Z[1]-3) > 1e-8 {
		t.Errorf("Z = %v, want [2 3]", s.Z)
	}
}

func TestSolveGeneralClampsToBound(t *testing.T) {
	h := mat.NewDense(1, 1, []float64{2})
	s := newGeneralStage(1, 0, 0, h, []float64{-1}, []float64{1})
	s.Q[0] = -10 // unconstrained minimizer at 5, clamps to 1
	s.SetDual(nil, nil)
	if err := s.SolveLocal(); err != nil {
		t.Fatalf("SolveLocal: %v", err)
	}
	if math.Abs(s.Z[0]-1) > 1e-8 {
		t.Errorf("Z[0] = %v, want 1", s.Z[0])
	}
}

func TestSolveGeneralRespectsInequalityRow(t *testing.T) {
	h := mat.NewDense(2, 2, []float64{2, 0, 0, 2})
	s := newGeneralStage(2, 0, 1, h, []float64{-10, -10}, []float64{10, 10})
	s.Q[0], s.Q[1] = -4, -4 // unconstrained minimizer at (2,2), violates x+y<=3
	s.D.Set(0, 0, 1)
	s.D.Set(0, 1, 1)
	s.DLow[0] = math.Inf(-1)
	s.DUpp[0] = 3
	s.SetDual(nil, nil)
	if err := s.SolveLocal(); err != nil {
		t.Fatalf("SolveLocal: %v", err)
	}
	sum := s.Z[0] + s.Z[1]
	if sum > 3+1e-6 {
		t.Errorf("Z[0]+Z[1] = %v, want <= 3", sum)
	}
}

// TestGeneralSensitivityDirectionMatchesClosedForm checks computeDirection
// against the closed-form sensitivity of an unconstrained quadratic's
// minimizer to a linear-term perturbation: z* = -H^-1 q, so dz/dq = -H^-1.
func TestGeneralSensitivityDirectionMatchesClosedForm(t *testing.T) {
	h := mat.NewDense(2, 2, []float64{2, 0, 0, 4})
	s := newGeneralStage(2, 0, 0, h, []float64{-10, -10}, []float64{10, 10})
	s.Q[0], s.Q[1] = -2, -4
	s.C = mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	s.SetDual(nil, nil)
	if err := s.SolveLocal(); err != nil {
		t.Fatalf("SolveLocal: %v", err)
	}

	dLambdaK1 := []float64{1, 0}
	s.SetDualDirection(nil, dLambdaK1)
	z0, _, _ := s.DoStep(0)
	z0 = append([]float64(nil), z0...)
	zPlus, _, _ := s.DoStep(1)

	// dq = Cᵀ*dLambdaK1 = (1,0); unconstrained dz = -H^-1 dq = (-0.5, 0).
	want := []float64{z0[0] - 0.5, z0[1]}
	if math.Abs(zPlus[0]-want[0]) > 1e-8 || math.Abs(zPlus[1]-want[1]) > 1e-8 {
		t.Errorf("Z after DoStep(1) = %v, want %v", zPlus, want)
	}

	zBack, _, _ := s.DoStep(0)
	if math.Abs(zBack[0]-z0[0]) > 1e-12 || math.Abs(zBack[1]-z0[1]) > 1e-12 {
		t.Errorf("DoStep(0) after DoStep(1) = %v, want %v (idempotent replay)", zBack, z0)
	}
}

func TestGetZtAndCholZtHZDimensions(t *testing.T) {
	h := mat.NewDense(2, 2, []float64{2, 0, 0, 2})
	s := newGeneralStage(2, 0, 0, h, []float64{-10, -10}, []float64{10, 10})
	s.Q[0], s.Q[1] = -2, -2
	s.SetDual(nil, nil)
	if err := s.SolveLocal(); err != nil {
		t.Fatalf("SolveLocal: %v", err)
	}
	nFree, zt := s.GetZt()
	if nFree != 2 {
		t.Fatalf("nFree = %d, want 2 (no bounds active)", nFree)
	}
	r, c := zt.Dims()
	if r != nFree || c != s.Nz {
		t.Errorf("Zt dims = (%d,%d), want (%d,%d)", r, c, nFree, s.Nz)
	}
	chol := s.GetCholZtHZ()
	cr, cc := chol.Dims()
	if cr != nFree || cc != nFree {
		t.Errorf("chol dims = (%d,%d), want (%d,%d)", cr, cc, nFree, nFree)
	}
}
