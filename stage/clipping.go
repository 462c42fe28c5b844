package stage

import "math"

// clippingData is the scratch owned by a Clipping-kind Stage.
type clippingData struct {
	hDiag          []float64 // diagonal entries of H
	cholH          []float64 // sqrt(hDiag), the diagonal Cholesky factor
	zUnconstrained []float64 // -H^-1 * qEff, recomputed by solveClipping
	dz             []float64 // sensitivity direction set by the Newton step, consumed by stepClipping

	prevLow, prevUpp []bool // active-set snapshot from the last RefreshActiveSetDiff
}

func newClippingData(nz int) *clippingData {
	return &clippingData{
		hDiag:          make([]float64, nz),
		cholH:          make([]float64, nz),
		zUnconstrained: make([]float64, nz),
		dz:             make([]float64, nz),
	}
}

// SetDiagonalHessian records H's diagonal and its Cholesky factor. Must
// be called once after H is assigned (the Clipping solve and step use
// only this diagonal; H itself is still read when the stage objective
// is evaluated).
func (s *Stage) SetDiagonalHessian(diag []float64) {
	if s.Kind != Clipping {
		panic("stage: SetDiagonalHessian requires a Clipping stage")
	}
	copy(s.clip.hDiag, diag)
	for i, h := range diag {
		s.clip.cholH[i] = math.Sqrt(h)
	}
}

func (s *Stage) solveClipping() error {
	c := s.clip
	for i := 0; i < s.Nz; i++ {
		c.zUnconstrained[i] = -s.qEff[i] / c.hDiag[i]
	}
	for i := 0; i < s.Nz; i++ {
		z := clamp(c.zUnconstrained[i], s.ZLow[i], s.ZUpp[i])
		s.Z[i] = z
		diff := c.zUnconstrained[i] - z
		yLow := math.Max(0, -c.hDiag[i]*diff)
		yUpp := math.Max(0, c.hDiag[i]*diff)
		s.Y[2*i] = yLow
		s.Y[2*i+1] = yUpp
	}
	return nil
}

// DiagHInv returns 1/hDiag[i] for every coordinate, the per-coordinate
// inverse Hessian a Clipping stage contributes to the Newton Hessian
// assembly (spec.md §4.3). Coordinates currently at a bound still
// report a value here; callers mask those out via ActiveBoundMask.
func (s *Stage) DiagHInv() []float64 {
	if s.Kind != Clipping {
		panic("stage: DiagHInv requires a Clipping stage")
	}
	out := make([]float64, s.Nz)
	for i, h := range s.clip.hDiag {
		out[i] = 1 / h
	}
	return out
}

// ActiveBoundMask reports, for each coordinate, whether the most recent
// solveClipping/stepClipping iterate sits at (within tol of) one of its
// bounds. Active coordinates contribute nothing to the projected-Hessian
// inverse and are excluded from the Newton Hessian assembly.
func (s *Stage) ActiveBoundMask(tol float64) []bool {
	if s.Kind != Clipping {
		panic("stage: ActiveBoundMask requires a Clipping stage")
	}
	out := make([]bool, s.Nz)
	for i := 0; i < s.Nz; i++ {
		z := s.Z[i]
		out[i] = z <= s.ZLow[i]+tol || z >= s.ZUpp[i]-tol
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SetStepDirection installs the Newton-direction-induced sensitivity
// dz/dα consumed by DoStep and (for Clipping) MinStepToActiveSetChange.
func (s *Stage) SetStepDirection(dz []float64) {
	switch s.Kind {
	case Clipping:
		copy(s.clip.dz, dz)
	case General:
		copy(s.gen.dz, dz)
		copy(s.gen.zBase, s.Z)
	default:
		panic("stage: unknown kind")
	}
}

func (s *Stage) stepClipping(alpha float64) {
	c := s.clip
	for i := 0; i < s.Nz; i++ {
		unclipped := c.zUnconstrained[i] + alpha*c.dz[i]
		z := clamp(unclipped, s.ZLow[i], s.ZUpp[i])
		s.Z[i] = z
		diff := unclipped - z
		s.Y[2*i] = math.Max(0, -c.hDiag[i]*diff)
		s.Y[2*i+1] = math.Max(0, c.hDiag[i]*diff)
	}
}

// MinStepToActiveSetChange returns the smallest alpha > 0 at which any
// coordinate's parametric trajectory z(alpha) = zUnconstrained + alpha*dz
// hits or leaves a bound, or +Inf if the current direction never crosses
// one.
func (s *Stage) MinStepToActiveSetChange() float64 {
	if s.Kind != Clipping {
		return math.Inf(1)
	}
	c := s.clip
	min := math.Inf(1)
	for i := 0; i < s.Nz; i++ {
		uncon := c.zUnconstrained[i]
		d := c.dz[i]
		cur := clamp(uncon, s.ZLow[i], s.ZUpp[i])
		active := cur != uncon // already at a bound
		if d == 0 {
			continue
		}
		if active {
			// Currently clipped to cur; the bound becomes inactive when
			// the unconstrained trajectory crosses back through it.
			alpha := (cur - uncon) / d
			if alpha > 0 && alpha < min {
				min = alpha
			}
			continue
		}
		// Currently feasible; find alpha at which it hits either bound.
		if d > 0 {
			alpha := (s.ZUpp[i] - uncon) / d
			if alpha > 0 && alpha < min {
				min = alpha
			}
		} else {
			alpha := (s.ZLow[i] - uncon) / d
			if alpha > 0 && alpha < min {
				min = alpha
			}
		}
	}
	return min
}
