package dualqp

import "gonum.org/v1/gonum/floats"

// computeGradient assembles the dual gradient from the stages' current
// primal solutions: block k (k = 0..N-1) is C_k*z_k + c_k - z_{k+1}[0:Nx],
// the residual of the coupling equality linking stage k to stage k+1
// (spec.md §4.2, testable property 1). It has no failure mode.
func (p *Problem) computeGradient() {
	for k := 0; k < p.N; k++ {
		sk := p.Stages[k]
		sk1 := p.Stages[k+1]
		base := k * p.Nx
		for i := 0; i < p.Nx; i++ {
			var v float64
			for j := 0; j < sk.Nz; j++ {
				v += sk.C.At(i, j) * sk.Z[j]
			}
			if sk.C0 != nil {
				v += sk.C0[i]
			}
			v -= sk1.Z[i]
			p.gradient[base+i] = v
		}
	}
}

func (p *Problem) gradientNorm() float64 {
	return floats.Norm(p.gradient, 2)
}
