package band

import "math"

// defaultSentinelSquared poisons a pivot so that, were it divided into
// directly, the result would be numerically inert. Back-substitution
// never reaches this branch: poisoned rows are marked in Result.Singular
// and zeroed explicitly instead (spec.md §9's sidecar-bitset
// alternative). Used when a caller leaves Config.Sentinel unset.
const defaultSentinelSquared = 1e50

// sentinel returns cfg's configured poisoned-pivot value, or the
// package default if the caller left it unset.
func (cfg Config) sentinel() float64 {
	if cfg.Sentinel != 0 {
		return cfg.Sentinel
	}
	return defaultSentinelSquared
}

// Forward factors H in place into L (L may alias H) using a top-down
// block-tridiagonal Cholesky sweep: block-column k = 0..N-1, in-block
// column j = 0..nx-1. Every entry of H is read before the same entry of
// L is written, so callers can factor in place (L == H, overwritten
// column by column) or out of place.
func Forward(h, l *Band, cfg Config) (Result, error) {
	n, nx := h.N(), h.Nx()
	res := Result{MinPivot: math.Inf(1), Singular: make([]bool, n*nx)}

	for k := 0; k < n; k++ {
		for j := 0; j < nx; j++ {
			sum := h.At(k, 0, j, j)
			for ll := 0; ll < j; ll++ {
				v := l.At(k, 0, j, ll)
				sum -= v * v
			}
			if k > 0 {
				for ll := 0; ll < nx; ll++ {
					v := l.At(k, -1, j, ll)
					sum -= v * v
				}
			}

			row := k*nx + j
			if sum < cfg.Tolerance {
				switch cfg.Reg {
				case SingularDirections:
					sum += cfg.Param
					res.Regularized = true
					if sum < cfg.Tolerance {
						// Can't be rescued; poison the row instead of
						// failing outright, matching the source's
						// sentinel-pivot intent.
						sum = cfg.sentinel()
						res.Singular[row] = true
					}
				case GradientStep:
					return res, ErrGradientStep
				default:
					return res, ErrDivisionByZero
				}
			}
			pivot := math.Sqrt(sum)
			if pivot < res.MinPivot {
				res.MinPivot = pivot
			}
			l.Set(k, 0, j, j, pivot)

			for i := j + 1; i < nx; i++ {
				s := h.At(k, 0, i, j)
				for ll := 0; ll < j; ll++ {
					s -= l.At(k, 0, i, ll) * l.At(k, 0, j, ll)
				}
				if k > 0 {
					for ll := 0; ll < nx; ll++ {
						s -= l.At(k, -1, i, ll) * l.At(k, -1, j, ll)
					}
				}
				l.Set(k, 0, i, j, s/pivot)
			}

			if k+1 < n {
				for i := 0; i < nx; i++ {
					s := h.At(k+1, -1, i, j)
					for ll := 0; ll < j; ll++ {
						s -= l.At(k+1, -1, i, ll) * l.At(k, 0, j, ll)
					}
					l.Set(k+1, -1, i, j, s/pivot)
				}
			}
		}
	}
	return res, nil
}

// Reverse factors H in place into L using a bottom-up block-tridiagonal
// Cholesky sweep restarted at block-row start (clamped to [0, N-1]) and
// decrementing to 0. The factor is block lower-triangular with
// H = Lᵀ*L (not L*Lᵀ). Block-rows after start are assumed already
// factored (from a prior call) and are left untouched, enabling partial
// refactorization when only a suffix of the Hessian changed.
func Reverse(h, l *Band, start int, cfg Config) (Result, error) {
	n, nx := h.N(), h.Nx()
	if start < 0 {
		start = 0
	}
	if start > n-1 {
		start = n - 1
	}
	res := Result{MinPivot: math.Inf(1), Singular: make([]bool, n*nx)}

	for k := start; k >= 0; k-- {
		for j := nx - 1; j >= 0; j-- {
			sum := h.At(k, 0, j, j)
			for ll := j + 1; ll < nx; ll++ {
				v := l.At(k, 0, ll, j)
				sum -= v * v
			}
			if k < n-1 {
				for ll := 0; ll < nx; ll++ {
					v := l.At(k+1, -1, ll, j)
					sum -= v * v
				}
			}

			row := k*nx + j
			if sum < cfg.Tolerance {
				switch cfg.Reg {
				case SingularDirections:
					sum += cfg.Param
					res.Regularized = true
					if sum < cfg.Tolerance {
						sum = cfg.sentinel()
						res.Singular[row] = true
					}
				case GradientStep:
					return res, ErrGradientStep
				default:
					return res, ErrDivisionByZero
				}
			}
			pivot := math.Sqrt(sum)
			if pivot < res.MinPivot {
				res.MinPivot = pivot
			}
			l.Set(k, 0, j, j, pivot)

			for i := j - 1; i >= 0; i-- {
				s := h.At(k, 0, j, i)
				for ll := j + 1; ll < nx; ll++ {
					s -= l.At(k, 0, ll, i) * l.At(k, 0, ll, j)
				}
				if k < n-1 {
					for ll := 0; ll < nx; ll++ {
						s -= l.At(k+1, -1, ll, i) * l.At(k+1, -1, ll, j)
					}
				}
				l.Set(k, 0, j, i, s/pivot)
			}

			if k > 0 {
				for i := nx - 1; i >= 0; i-- {
					s := h.At(k, -1, j, i)
					for ll := j + 1; ll < nx; ll++ {
						s -= l.At(k, -1, ll, i) * l.At(k, 0, ll, j)
					}
					l.Set(k, -1, j, i, s/pivot)
				}
			}
		}
	}
	return res, nil
}
