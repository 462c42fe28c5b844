package dualqp

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// lineSearchResult is the outcome classification from spec.md §4.6:
// alpha carries the chosen step; err is lsErrNone unless the search
// failed or hit a cap (lsErrMinStep/lsErrNoAscent are fatal to the whole
// solve, the rest accept the last alpha tried).
type lineSearchResult struct {
	alpha float64
	err   LineSearchError
}

// lineSearch picks a step along deltaLambda for the current Newton (or
// gradient) direction, per spec.md §4.6. alphaMin is the smallest
// per-stage minStepToActiveSetChange (+Inf if none computable);
// alphaMax is always 1. incumbent is the current dual objective value.
func (p *Problem) lineSearch(cfg Settings, alphaMin float64, regularized bool) lineSearchResult {
	incumbent := p.objVal
	if alphaMin > 1-cfg.EqualityTolerance && !regularized {
		return lineSearchResult{alpha: 1}
	}

	switch cfg.LineSearch {
	case BacktrackingLS:
		return p.backtrackingLineSearch(cfg, alphaMin, incumbent, 1)
	case BacktrackingASChangeLS:
		res := p.backtrackingLineSearch(cfg, alphaMin, incumbent, 1)
		if res.err == lsErrNone && alphaMin < 1 && res.alpha < alphaMin {
			res.alpha = alphaMin
		}
		return res
	case GoldenSectionLS:
		return p.goldenSectionLineSearch(cfg, alphaMin, 1)
	case GradientBisectionLS:
		return p.gradientBisectionLineSearch(cfg, alphaMin, 1)
	case GridLS:
		return p.gridLineSearch(cfg, alphaMin, 1)
	case AcceleratedBisectionLS, AcceleratedGridLS:
		shrunk := p.backtrackingLineSearch(cfg, alphaMin, incumbent, 1)
		alphaMax := shrunk.alpha / cfg.LineSearchReductionFactor
		if alphaMax > 1 {
			alphaMax = 1
		}
		if cfg.LineSearch == AcceleratedBisectionLS {
			return p.gradientBisectionLineSearch(cfg, alphaMin, alphaMax)
		}
		return p.gridLineSearch(cfg, alphaMin, alphaMax)
	default:
		return lineSearchResult{alpha: 0, err: lsErrNoAscent}
	}
}

// dualValueAt evaluates the dual objective at lambda + alpha*deltaLambda
// by resolving every stage QP against the trial dual and summing the
// resulting stage objectives. This leaves each stage's Z/Y at the trial
// solution; the driver re-evaluates at the accepted alpha during Accept
// so the final stage state always reflects the chosen step.
func (p *Problem) dualValueAt(alpha float64) float64 {
	trial := p.trialLambda(alpha)
	val, err := p.resolveStagesAt(trial)
	if err != nil {
		return math.Inf(-1)
	}
	return val
}

// directionalDerivativeAt returns gradient(lambda + alpha*deltaLambda)ᵀ
// deltaLambda / min(1, ‖deltaLambda‖), the normalized quantity the
// gradient-bisection strategy drives to zero.
func (p *Problem) directionalDerivativeAt(alpha float64) float64 {
	trial := p.trialLambda(alpha)
	if _, err := p.resolveStagesAt(trial); err != nil {
		return 0
	}
	p.computeGradient()
	dd := floats.Dot(p.gradient, p.deltaLambda)
	norm := floats.Norm(p.deltaLambda, 2)
	if norm > 0 && norm < 1 {
		dd /= norm
	}
	return dd
}

func (p *Problem) trialLambda(alpha float64) []float64 {
	trial := make([]float64, len(p.lambda))
	for i := range trial {
		trial[i] = p.lambda[i] + alpha*p.deltaLambda[i]
	}
	return trial
}

func (p *Problem) backtrackingLineSearch(cfg Settings, alphaMin, incumbent, alphaMax float64) lineSearchResult {
	alpha := alphaMax
	dlNorm := floats.Norm(p.deltaLambda, 2)
	for iter := 0; iter < cfg.MaxNumLineSearchIterations; iter++ {
		val := p.dualValueAt(alpha)
		if val > incumbent+cfg.LineSearchMinRelProgress*math.Abs(incumbent)+cfg.LineSearchMinAbsProgress {
			return lineSearchResult{alpha: alpha}
		}
		alpha *= cfg.LineSearchReductionFactor
		if dlNorm*(alpha-alphaMin) < cfg.EqualityTolerance {
			return lineSearchResult{alpha: alpha, err: lsErrMinStep}
		}
	}
	return lineSearchResult{alpha: alpha, err: lsErrMaxIter}
}

func (p *Problem) goldenSectionLineSearch(cfg Settings, alphaMin, alphaMax float64) lineSearchResult {
	const phi = 0.6180339887498949 // (sqrt(5)-1)/2
	a, b := alphaMin, alphaMax
	if !(a < b) {
		return lineSearchResult{alpha: alphaMax}
	}
	c := b - phi*(b-a)
	d := a + phi*(b-a)
	fc := p.dualValueAt(c)
	fd := p.dualValueAt(d)
	var prevBest float64 = math.Inf(-1)
	for iter := 0; iter < cfg.MaxNumLineSearchRefinementIterations; iter++ {
		best := math.Max(fc, fd)
		if math.Abs(best-prevBest) < cfg.LineSearchStationarityTolerance {
			break
		}
		prevBest = best
		if fc > fd {
			b, d, fd = d, c, fc
			c = b - phi*(b-a)
			fc = p.dualValueAt(c)
		} else {
			a, c, fc = c, d, fd
			d = a + phi*(b-a)
			fd = p.dualValueAt(d)
		}
	}
	alpha := c
	if fd > fc {
		alpha = d
	}
	return lineSearchResult{alpha: alpha}
}

func (p *Problem) gradientBisectionLineSearch(cfg Settings, alphaMin, alphaMax float64) lineSearchResult {
	for {
		dd := p.directionalDerivativeAt(alphaMax)
		if dd <= 0 || alphaMax >= cfg.LineSearchMaxStepSize {
			break
		}
		alphaMax *= cfg.LineSearchIncreaseFactor
	}

	lo, hi := alphaMin, alphaMax
	if !(lo < hi) {
		lo, hi = 0, alphaMax
	}
	var alpha float64
	for iter := 0; iter < cfg.MaxNumLineSearchRefinementIterations; iter++ {
		alpha = 0.5 * (lo + hi)
		dd := p.directionalDerivativeAt(alpha)
		if math.Abs(dd) <= cfg.LineSearchStationarityTolerance {
			return lineSearchResult{alpha: alpha}
		}
		if dd > 0 {
			lo = alpha
		} else {
			hi = alpha
		}
	}
	return lineSearchResult{alpha: alpha, err: lsErrMaxIter}
}

func (p *Problem) gridLineSearch(cfg Settings, alphaMin, alphaMax float64) lineSearchResult {
	lo := alphaMin
	if math.IsInf(lo, 1) || lo > alphaMax {
		lo = 0
	}
	n := cfg.LineSearchNbrGridPoints
	if n < 2 {
		n = 2
	}
	step := (alphaMax - lo) / float64(n-1)
	bestAlpha := lo
	bestVal := math.Inf(-1)
	for i := 0; i < n; i++ {
		a := lo + float64(i)*step
		v := p.dualValueAt(a)
		if v > bestVal {
			bestVal = v
			bestAlpha = a
		}
	}
	return lineSearchResult{alpha: bestAlpha}
}
