package stage

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/lapack/lapack64"
	"gonum.org/v1/gonum/mat"
)

// generalData is the scratch owned by a General-kind Stage: a small
// primal active-set QP solver over the stage's dense Hessian and
// general affine inequalities. It exists so the adapter's capability
// set (hotstart, doStep, getZᵀ, getCholZᵀHZ) has a concrete stage
// solver to drive; spec.md §1 treats the dense general-inequality QP
// engine itself as an external collaborator, so this implementation
// favors a correct, re-derivable active set over a fast homotopy.
type generalData struct {
	nz, nd int

	activeLow, activeUp []bool // simple-bound active flags, length nz
	activeD             []int8 // 0 inactive, -1 at DLow, +1 at DUpp, length nd

	zt    *mat.Dense // nFree x nz null-space basis (rows are e_i for free i)
	nFree int
	r     *mat.Dense // nFree x nFree upper-triangular chol(ZᵀHZ)

	dz     []float64 // sensitivity direction set by SetStepDirection, consumed by DoStep
	zBase  []float64 // Z at alpha=0, captured when dz was last installed

	prevActiveLow, prevActiveUp []bool  // active-set snapshot from the last RefreshActiveSetDiff
	prevActiveD                 []int8
}

func newGeneralData(nz, nd int) *generalData {
	return &generalData{
		nz: nz, nd: nd,
		activeLow: make([]bool, nz),
		activeUp:  make([]bool, nz),
		activeD:   make([]int8, nd),
		dz:        make([]float64, nz),
		zBase:     make([]float64, nz),
	}
}

// solveGeneral runs a bounded primal active-set loop: solve the
// equality-constrained QP implied by the current active set, check
// feasibility and multiplier signs, and adjust the active set until
// both hold (or the iteration cap is hit, in which case the last
// iterate is kept — acceptable for the bounded problem sizes this
// adapter is exercised with).
func (s *Stage) solveGeneral() error {
	g := s.gen
	const maxIter = 64
	for iter := 0; iter < maxIter; iter++ {
		z, muBound, muD := g.solveActiveKKT(s)
		copy(s.Z, z)

		changed := false
		// Primal feasibility: activate any bound/general-row violation.
		for i := 0; i < g.nz; i++ {
			if !g.activeLow[i] && !g.activeUp[i] {
				if z[i] < s.ZLow[i] {
					g.activeLow[i] = true
					changed = true
				} else if z[i] > s.ZUpp[i] {
					g.activeUp[i] = true
					changed = true
				}
			}
		}
		for r := 0; r < g.nd; r++ {
			if g.activeD[r] == 0 {
				v := rowDot(s.D, r, z)
				if v < s.DLow[r] {
					g.activeD[r] = -1
					changed = true
				} else if v > s.DUpp[r] {
					g.activeD[r] = 1
					changed = true
				}
			}
		}
		if changed {
			continue
		}

		// Dual feasibility: drop any active constraint with a multiplier
		// of the wrong sign.
		for i := 0; i < g.nz; i++ {
			if g.activeLow[i] && muBound[2*i] < -1e-9 {
				g.activeLow[i] = false
				changed = true
			}
			if g.activeUp[i] && muBound[2*i+1] < -1e-9 {
				g.activeUp[i] = false
				changed = true
			}
		}
		for r := 0; r < g.nd; r++ {
			if g.activeD[r] == -1 && muD[r] < -1e-9 {
				g.activeD[r] = 0
				changed = true
			}
			if g.activeD[r] == 1 && muD[r] > 1e-9 {
				g.activeD[r] = 0
				changed = true
			}
		}
		if !changed {
			g.fillMultipliers(s, muBound, muD)
			g.refreshNullSpace(s)
			copy(g.zBase, s.Z)
			return nil
		}
	}
	g.refreshNullSpace(s)
	copy(g.zBase, s.Z)
	return nil
}

func rowDot(d *mat.Dense, row int, z []float64) float64 {
	_, c := d.Dims()
	var v float64
	for j := 0; j < c; j++ {
		v += d.At(row, j) * z[j]
	}
	return v
}

func (g *generalData) fillMultipliers(s *Stage, muBound, muD []float64) {
	copy(s.Y[:2*g.nz], muBound)
	copy(s.Y[2*g.nz:], muD)
}

// solveActiveKKT solves the equality-constrained QP fixing every active
// bound and active general row, returning the stationary z and the
// multipliers on every (active or inactive) bound/general row — inactive
// rows report a zero multiplier.
func (g *generalData) solveActiveKKT(s *Stage) (z, muBound, muD []float64) {
	nz := g.nz
	var activeRows [][]float64
	var rhs []float64
	for i := 0; i < nz; i++ {
		if g.activeLow[i] {
			row := make([]float64, nz)
			row[i] = 1
			activeRows = append(activeRows, row)
			rhs = append(rhs, s.ZLow[i])
		} else if g.activeUp[i] {
			row := make([]float64, nz)
			row[i] = 1
			activeRows = append(activeRows, row)
			rhs = append(rhs, s.ZUpp[i])
		}
	}
	for r := 0; r < g.nd; r++ {
		if g.activeD[r] != 0 {
			row := make([]float64, nz)
			for j := 0; j < nz; j++ {
				row[j] = s.D.At(r, j)
			}
			activeRows = append(activeRows, row)
			if g.activeD[r] < 0 {
				rhs = append(rhs, s.DLow[r])
			} else {
				rhs = append(rhs, s.DUpp[r])
			}
		}
	}

	m := len(activeRows)
	n := nz + m
	kkt := mat.NewDense(n, n, nil)
	for i := 0; i < nz; i++ {
		for j := 0; j < nz; j++ {
			kkt.Set(i, j, s.H.At(i, j))
		}
	}
	for r, row := range activeRows {
		for j := 0; j < nz; j++ {
			kkt.Set(nz+r, j, row[j])
			kkt.Set(j, nz+r, row[j])
		}
	}
	b := mat.NewDense(n, 1, nil)
	for i := 0; i < nz; i++ {
		b.Set(i, 0, -s.qEff[i])
	}
	for r := range activeRows {
		b.Set(nz+r, 0, rhs[r])
	}

	var x mat.Dense
	if err := x.Solve(kkt, b); err != nil {
		// Singular KKT system (redundant active set); fall back to the
		// current iterate rather than failing the whole solve.
		z = append([]float64(nil), s.Z...)
	} else {
		z = make([]float64, nz)
		for i := 0; i < nz; i++ {
			z[i] = x.At(i, 0)
		}
	}

	muBound = make([]float64, 2*nz)
	muD = make([]float64, g.nd)
	ri := 0
	for i := 0; i < nz; i++ {
		if g.activeLow[i] {
			mu := x.At(nz+ri, 0)
			muBound[2*i] = -mu
			ri++
		} else if g.activeUp[i] {
			mu := x.At(nz+ri, 0)
			muBound[2*i+1] = mu
			ri++
		}
	}
	for r := 0; r < g.nd; r++ {
		if g.activeD[r] != 0 {
			// Lower rows report a non-negative multiplier, upper rows a
			// non-positive one.
			mu := x.At(nz+ri, 0)
			muD[r] = -mu
			ri++
		}
	}
	return z, muBound, muD
}

// refreshNullSpace rebuilds Zᵀ (the free-variable selection basis) and
// R = chol(ZᵀHZ) for the current active set. Only simple-bound actives
// shape the null space; active general rows are left to the KKT solve
// above and do not reduce Zᵀ.
func (g *generalData) refreshNullSpace(s *Stage) {
	var free []int
	for i := 0; i < g.nz; i++ {
		if !g.activeLow[i] && !g.activeUp[i] {
			free = append(free, i)
		}
	}
	g.nFree = len(free)
	// Zᵀ is stored nFree x nz (rows are the selection basis vectors),
	// matching the getZᵀ(&nFree, Zᵀ) convention spec.md §4.1 describes.
	g.zt = mat.NewDense(g.nFree, g.nz, nil)
	for row, i := range free {
		g.zt.Set(row, i, 1)
	}
	if g.nFree == 0 {
		g.r = mat.NewDense(0, 0, nil)
		return
	}

	reduced := mat.NewSymDense(g.nFree, nil)
	for a, i := range free {
		for b, j := range free {
			if b < a {
				continue
			}
			reduced.SetSym(a, b, s.H.At(i, j))
		}
	}
	sym := blas64.Symmetric{N: g.nFree, Data: symData(reduced, g.nFree), Stride: g.nFree, Uplo: blas.Upper}
	tri, ok := lapack64.Potrf(sym)
	r := mat.NewDense(g.nFree, g.nFree, nil)
	if ok {
		for i := 0; i < g.nFree; i++ {
			for j := i; j < g.nFree; j++ {
				r.Set(i, j, tri.Data[i*tri.Stride+j])
			}
		}
	}
	g.r = r
}

func symData(s *mat.SymDense, n int) []float64 {
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = s.At(i, j)
		}
	}
	return out
}

// GetZt returns the current null-space basis Zᵀ (nFree x nz, one row
// per free variable) and reports nFree.
func (s *Stage) GetZt() (nFree int, zt *mat.Dense) {
	if s.Kind != General {
		panic("stage: GetZt requires a General stage")
	}
	return s.gen.nFree, s.gen.zt
}

// GetCholZtHZ returns R = chol(ZᵀHZ) (upper-triangular, nFree x nFree).
func (s *Stage) GetCholZtHZ() *mat.Dense {
	if s.Kind != General {
		panic("stage: GetCholZtHZ requires a General stage")
	}
	return s.gen.r
}

// Hotstart re-solves the stage QP with an updated linear term already
// installed via SetDual, reusing the current active set as the starting
// guess (a warm-started active-set re-solve rather than a true
// parametric homotopy).
func (s *Stage) Hotstart() error {
	if s.Kind != General {
		panic("stage: Hotstart requires a General stage")
	}
	return s.solveGeneral()
}

// computeDirection projects a linear-term perturbation dq onto the
// current null space to get the primal sensitivity dz/dα a General
// stage needs for stepGeneral: solve ZᵀHZ·dzFree = -Zᵀdq via the
// cached Cholesky factor R (ZᵀHZ = RᵀR), then scatter dzFree back into
// the free coordinates of dz. Active coordinates get dz = 0, matching
// the active set being held fixed along the trajectory.
func (g *generalData) computeDirection(dq []float64) {
	for i := range g.dz {
		g.dz[i] = 0
	}
	if g.nFree == 0 {
		return
	}
	rhs := mat.NewDense(g.nFree, 1, nil)
	for row := 0; row < g.nFree; row++ {
		var v float64
		for j := 0; j < g.nz; j++ {
			v -= g.zt.At(row, j) * dq[j]
		}
		rhs.Set(row, 0, v)
	}
	var rt mat.Dense
	rt.CloneFrom(g.r.T())
	var y mat.Dense
	if err := y.Solve(&rt, rhs); err != nil {
		return
	}
	var dzFree mat.Dense
	if err := dzFree.Solve(g.r, &y); err != nil {
		return
	}
	free := 0
	for i := 0; i < g.nz; i++ {
		if !g.activeLow[i] && !g.activeUp[i] {
			g.dz[i] = dzFree.At(free, 0)
			free++
		}
	}
}

// stepGeneral sets Z to zBase + alpha*dz, the parametric trajectory
// installed by the last SetStepDirection/SetDualDirection call, not a
// cumulative increment: repeated calls at different alpha are
// idempotent, matching Clipping's stepClipping.
func (s *Stage) stepGeneral(alpha float64) {
	g := s.gen
	for i := 0; i < g.nz; i++ {
		s.Z[i] = g.zBase[i] + alpha*g.dz[i]
	}
}
