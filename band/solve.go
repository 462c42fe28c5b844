package band

import "math"

// defaultZeroTol is QPDUNES_ZERO from spec.md §6: the relative
// tolerance a pivot must clear during back-substitution before it's
// treated as a division by zero, used when a caller passes zeroTol <= 0.
const defaultZeroTol = 1e-16

func resolveZeroTol(zeroTol float64) float64 {
	if zeroTol > 0 {
		return zeroTol
	}
	return defaultZeroTol
}

// ForwardSolve solves L*Lᵀ*x = g for x, where l is the factor produced
// by Forward: first L*y = g top-down, then Lᵀ*x = y bottom-up. Rows
// marked in singular (from the matching Result.Singular) have their
// solution component zeroed instead of divided, per the sidecar-bitset
// design note in spec.md §9. zeroTol is Settings.QPDUNESZero (or any
// non-positive value to use the package default).
func ForwardSolve(l *Band, g []float64, singular []bool, zeroTol float64) ([]float64, error) {
	zeroTol = resolveZeroTol(zeroTol)
	n, nx := l.N(), l.Nx()
	total := n * nx
	if len(g) != total {
		panic("band: gradient length mismatch")
	}
	y := make([]float64, total)
	for k := 0; k < n; k++ {
		for i := 0; i < nx; i++ {
			row := k*nx + i
			sum := g[row]
			if k > 0 {
				for j := 0; j < nx; j++ {
					sum -= l.At(k, -1, i, j) * y[(k-1)*nx+j]
				}
			}
			for j := 0; j < i; j++ {
				sum -= l.At(k, 0, i, j) * y[k*nx+j]
			}
			diag := l.At(k, 0, i, i)
			if singular != nil && singular[row] {
				y[row] = 0
				continue
			}
			if math.Abs(diag) < zeroTol*math.Abs(sum) {
				return nil, ErrDivisionByZero
			}
			y[row] = sum / diag
		}
	}

	x := make([]float64, total)
	for k := n - 1; k >= 0; k-- {
		for i := nx - 1; i >= 0; i-- {
			row := k*nx + i
			sum := y[row]
			for j := i + 1; j < nx; j++ {
				sum -= l.At(k, 0, j, i) * x[k*nx+j]
			}
			if k < n-1 {
				for j := 0; j < nx; j++ {
					sum -= l.At(k+1, -1, j, i) * x[(k+1)*nx+j]
				}
			}
			diag := l.At(k, 0, i, i)
			if singular != nil && singular[row] {
				x[row] = 0
				continue
			}
			if math.Abs(diag) < zeroTol*math.Abs(sum) {
				return nil, ErrDivisionByZero
			}
			x[row] = sum / diag
		}
	}
	return x, nil
}

// ReverseSolve solves Lᵀ*L*x = g for x, where l is the factor produced
// by Reverse (H = Lᵀ*L): first Lᵀ*y = g bottom-up, then L*x = y
// top-down. zeroTol
// is Settings.QPDUNESZero (or any non-positive value to use the
// package default).
func ReverseSolve(l *Band, g []float64, singular []bool, zeroTol float64) ([]float64, error) {
	zeroTol = resolveZeroTol(zeroTol)
	n, nx := l.N(), l.Nx()
	total := n * nx
	if len(g) != total {
		panic("band: gradient length mismatch")
	}
	y := make([]float64, total)
	for k := n - 1; k >= 0; k-- {
		for i := nx - 1; i >= 0; i-- {
			row := k*nx + i
			sum := g[row]
			for j := i + 1; j < nx; j++ {
				sum -= l.At(k, 0, j, i) * y[k*nx+j]
			}
			if k < n-1 {
				for j := 0; j < nx; j++ {
					sum -= l.At(k+1, -1, j, i) * y[(k+1)*nx+j]
				}
			}
			diag := l.At(k, 0, i, i)
			if singular != nil && singular[row] {
				y[row] = 0
				continue
			}
			if math.Abs(diag) < zeroTol*math.Abs(sum) {
				return nil, ErrDivisionByZero
			}
			y[row] = sum / diag
		}
	}

	x := make([]float64, total)
	for k := 0; k < n; k++ {
		for i := 0; i < nx; i++ {
			row := k*nx + i
			sum := y[row]
			if k > 0 {
				for j := 0; j < nx; j++ {
					sum -= l.At(k, -1, i, j) * x[(k-1)*nx+j]
				}
			}
			for j := 0; j < i; j++ {
				sum -= l.At(k, 0, i, j) * x[k*nx+j]
			}
			diag := l.At(k, 0, i, i)
			if singular != nil && singular[row] {
				x[row] = 0
				continue
			}
			if math.Abs(diag) < zeroTol*math.Abs(sum) {
				return nil, ErrDivisionByZero
			}
			x[row] = sum / diag
		}
	}
	return x, nil
}
