package stage

// RefreshActiveSetDiff compares the stage's current active set (which
// bounds/rows are binding) against the one captured at the previous
// call, updates the stored snapshot, and reports whether anything
// changed. The first call has no previous snapshot and always reports
// a change, so every Hessian block is built at the first Newton setup.
// The driver calls this once per stage during Accept
// (spec.md §4.7, §5) to drive ActSetHasChanged and incremental Hessian
// block reuse.
func (s *Stage) RefreshActiveSetDiff() bool {
	switch s.Kind {
	case Clipping:
		return s.clip.refreshActiveSetDiff(s)
	case General:
		return s.gen.refreshActiveSetDiff()
	default:
		panic("stage: unknown kind")
	}
}

// NumActive reports how many of the stage's bound/inequality
// constraints are currently binding, for the driver's iteration log
// (spec.md §3's "#active" field). It counts directly off the solved
// Z against ZLow/ZUpp for Clipping stages and off the active-set flags
// solveGeneral maintains for General stages, rather than off the
// previous-iteration snapshot RefreshActiveSetDiff stores.
func (s *Stage) NumActive() int {
	n := 0
	switch s.Kind {
	case Clipping:
		for i := 0; i < s.Nz; i++ {
			if s.Z[i] <= s.ZLow[i] || s.Z[i] >= s.ZUpp[i] {
				n++
			}
		}
	case General:
		for i := 0; i < s.gen.nz; i++ {
			if s.gen.activeLow[i] || s.gen.activeUp[i] {
				n++
			}
		}
		for r := 0; r < s.gen.nd; r++ {
			if s.gen.activeD[r] != 0 {
				n++
			}
		}
	default:
		panic("stage: unknown kind")
	}
	return n
}

func (c *clippingData) refreshActiveSetDiff(s *Stage) bool {
	changed := false
	if c.prevLow == nil {
		c.prevLow = make([]bool, s.Nz)
		c.prevUpp = make([]bool, s.Nz)
		changed = true
	}
	for i := 0; i < s.Nz; i++ {
		low := s.Z[i] <= s.ZLow[i]
		upp := s.Z[i] >= s.ZUpp[i]
		if low != c.prevLow[i] || upp != c.prevUpp[i] {
			changed = true
		}
		c.prevLow[i] = low
		c.prevUpp[i] = upp
	}
	return changed
}

func (g *generalData) refreshActiveSetDiff() bool {
	changed := false
	if g.prevActiveD == nil {
		g.prevActiveLow = make([]bool, g.nz)
		g.prevActiveUp = make([]bool, g.nz)
		g.prevActiveD = make([]int8, g.nd)
		changed = true
	}
	for i := 0; i < g.nz; i++ {
		if g.activeLow[i] != g.prevActiveLow[i] || g.activeUp[i] != g.prevActiveUp[i] {
			changed = true
		}
	}
	for r := 0; r < g.nd; r++ {
		if g.activeD[r] != g.prevActiveD[r] {
			changed = true
		}
	}
	copy(g.prevActiveLow, g.activeLow)
	copy(g.prevActiveUp, g.activeUp)
	copy(g.prevActiveD, g.activeD)
	return changed
}
