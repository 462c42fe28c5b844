package dualqp

import (
	"github.com/qpdual/dualqp/stage"
	"gonum.org/v1/gonum/mat"
)

// newtonSetup assembles the banded generalized Hessian from the
// stages' current sensitivities (spec.md §4.3). It first computes the
// gradient; if its norm is already below Settings.StationarityTolerance
// it reports done=true without touching the Hessian. Otherwise it
// rebuilds only the blocks whose contributing stages report
// ActSetHasChanged, leaving the rest bitwise untouched (testable
// property 4).
func (p *Problem) newtonSetup(cfg Settings) (done bool) {
	p.computeGradient()
	if p.gradientNorm() < cfg.StationarityTolerance {
		return true
	}

	tol := cfg.EqualityTolerance
	for k := 0; k < p.N; k++ {
		sk := p.Stages[k]
		sk1 := p.Stages[k+1]

		if sk.ActSetHasChanged || sk1.ActSetHasChanged {
			block := epeTerm(sk1, p.Nx, tol)
			addCPCTerm(block, sk, p.Nx, tol)
			p.hessian.SetDiagFrom(k, block)
		}
		if k >= 1 && sk.ActSetHasChanged {
			sub := cpeSubTerm(sk, p.Nx, tol)
			p.hessian.SetSubFrom(k, sub)
		}
	}
	return false
}

// epeTerm computes E_{k+1} P_{k+1} E_{k+1}ᵀ, the nx x nx top-left block
// of the next stage's projected-Hessian inverse.
func epeTerm(next *stage.Stage, nx int, tol float64) *mat.Dense {
	out := mat.NewDense(nx, nx, nil)
	switch next.Kind {
	case stage.Clipping:
		inv := next.DiagHInv()
		mask := next.ActiveBoundMask(tol)
		for i := 0; i < nx; i++ {
			if mask[i] {
				continue
			}
			out.Set(i, i, inv[i])
		}
	case stage.General:
		m := reducedSolve(next, nx, true)
		out.Mul(m.T(), m)
	}
	return out
}

// addCPCTerm adds C_k P_k C_kᵀ into block in place.
func addCPCTerm(block *mat.Dense, cur *stage.Stage, nx int, tol float64) {
	switch cur.Kind {
	case stage.Clipping:
		inv := cur.DiagHInv()
		mask := cur.ActiveBoundMask(tol)
		c := cur.C
		for i := 0; i < nx; i++ {
			for j := 0; j < nx; j++ {
				var v float64
				for l := 0; l < cur.Nz; l++ {
					if mask[l] {
						continue
					}
					v += c.At(i, l) * inv[l] * c.At(j, l)
				}
				block.Set(i, j, block.At(i, j)+v)
			}
		}
	case stage.General:
		m := reducedSolve(cur, nx, false)
		var mtm mat.Dense
		mtm.Mul(m.T(), m)
		block.Add(block, &mtm)
	}
}

// cpeSubTerm computes the sub-diagonal block at row k, −C_k P_k E_kᵀ,
// with Clipping columns corresponding to cur's active state bounds
// zeroed.
func cpeSubTerm(cur *stage.Stage, nx int, tol float64) *mat.Dense {
	out := mat.NewDense(nx, nx, nil)
	switch cur.Kind {
	case stage.Clipping:
		inv := cur.DiagHInv()
		mask := cur.ActiveBoundMask(tol)
		c := cur.C
		for i := 0; i < nx; i++ {
			for j := 0; j < nx; j++ {
				if mask[j] {
					continue
				}
				out.Set(i, j, -c.At(i, j)*inv[j])
			}
		}
	case stage.General:
		mC := reducedSolve(cur, nx, false)
		mE := reducedSolve(cur, nx, true)
		var mtm mat.Dense
		mtm.Mul(mC.T(), mE)
		mtm.Scale(-1, &mtm)
		out.Copy(&mtm)
	}
	return out
}

// reducedSolve returns M = Rᵀ\X where X is either Zᵀ's first nx columns
// (useEPE true, the E projection) or Zᵀ Cᵀ (useEPE false, the C
// projection), solved via the stage's dense reduced-Hessian factor.
func reducedSolve(s *stage.Stage, nx int, useEPE bool) *mat.Dense {
	nFree, zt := s.GetZt()
	r := s.GetCholZtHZ()
	if nFree == 0 {
		return mat.NewDense(0, nx, nil)
	}
	var x mat.Dense
	if useEPE {
		x.CloneFrom(zt.Slice(0, nFree, 0, nx))
	} else {
		x.Mul(zt, s.C.T())
	}
	var rt mat.Dense
	rt.CloneFrom(r.T())
	var m mat.Dense
	if err := m.Solve(&rt, &x); err != nil {
		return mat.NewDense(nFree, nx, nil)
	}
	return &m
}
