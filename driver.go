package dualqp

import (
	"errors"
	"math"
	"sync"

	"github.com/qpdual/dualqp/band"
	"gonum.org/v1/gonum/floats"
)

// Solve runs the dual-Newton iteration on p per cfg (zero numeric fields
// of cfg are filled from DefaultSettings; enum, bool and progress fields
// are used as given), implementing the state machine of
// spec.md §4.7: Initial, then up to cfg.MaxIter rounds of StepSelect,
// Factorize, Solve, LineSearch, Accept.
func Solve(p *Problem, cfg Settings) (Result, error) {
	cfg = cfg.withDefaults()

	if !p.warmStart {
		for i := range p.lambda {
			p.lambda[i] = 0
		}
	}
	var err error
	p.objVal, err = p.resolveStagesAt(p.lambda)
	if err != nil {
		return Result{Status: StageInfeasible}, err
	}
	p.captureActiveSet()

	if p.N == 0 {
		// No coupling multiplier exists to optimize; the stage QP already
		// solved above is the whole problem (spec.md §8 scenario S1).
		return p.finish(OptimalFound, 0, cfg), nil
	}

	for iter := 0; iter < cfg.MaxIter; iter++ {
		optimal, regularized, serr := p.stepSelect(cfg, iter)
		if serr != nil {
			status := NewtonSetupFailed
			var e *Error
			if errors.As(serr, &e) {
				status = e.Status
			}
			return p.finish(status, iter, cfg), serr
		}
		if optimal {
			return p.finish(OptimalFound, iter, cfg), nil
		}

		alphaMin := p.minStepToActiveSetChange()
		ls := p.lineSearch(cfg, alphaMin, regularized)
		if ls.err.fatal() {
			return p.finish(NoAscentDirection, iter, cfg), newError(NoAscentDirection, "line search found no ascent step")
		}

		if err := p.acceptStep(ls.alpha); err != nil {
			return p.finish(StageInfeasible, iter, cfg), err
		}
		p.recordIteration(cfg, iter, ls.alpha, regularized)

		if p.gradientNorm() < cfg.StationarityTolerance {
			return p.finish(OK, iter+1, cfg), nil
		}
	}
	return p.finish(IterationLimitReached, cfg.MaxIter, cfg), newError(IterationLimitReached, "reached %d iterations", cfg.MaxIter)
}

// resolveStagesAt sets every stage's dual contribution from lambda,
// solves each stage QP to optimality, and returns the summed objective
// (spec.md §5: the N+1 stage solves share only the already-written
// read-only lambda slices and write to disjoint per-stage workspaces,
// so they run concurrently behind a fork-join barrier).
func (p *Problem) resolveStagesAt(lambda []float64) (float64, error) {
	objs := make([]float64, len(p.Stages))
	errs := make([]error, len(p.Stages))
	var wg sync.WaitGroup
	for k, s := range p.Stages {
		k, s := k, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lamK, lamK1 []float64
			if k > 0 {
				lamK = lambda[(k-1)*p.Nx : k*p.Nx]
			}
			if k < p.N {
				lamK1 = lambda[k*p.Nx : (k+1)*p.Nx]
			}
			s.SetDual(lamK, lamK1)
			if err := s.SolveLocal(); err != nil {
				errs[k] = err
				return
			}
			_, _, q := s.DoStep(0)
			objs[k] = q
		}()
	}
	wg.Wait()

	var failed int
	for k, e := range errs {
		if e != nil {
			failed++
			if failed == 1 {
				return 0, newError(StageInfeasible, "stage %d: %v", k, e)
			}
		}
	}
	return floats.Sum(objs), nil
}

// stepSelect advances the dual driver by one StepSelect phase: either a
// pure gradient step (for iterations 1..cfg.NbrInitialGradientSteps,
// after iteration 0's Newton step) or a full Newton step (Hessian
// assembly, factorization, back-substitution). optimal reports the
// stationarity early-out; regularized reports whether factorize had to
// touch the Hessian.
func (p *Problem) stepSelect(cfg Settings, iter int) (optimal, regularized bool, err error) {
	if iter >= 1 && iter <= cfg.NbrInitialGradientSteps {
		p.computeGradient()
		if p.gradientNorm() < cfg.StationarityTolerance {
			return true, false, nil
		}
		copy(p.deltaLambda, p.gradient)
		p.setStageDualDirections()
		return false, false, nil
	}

	if done := p.newtonSetup(cfg); done {
		return true, false, nil
	}

	res, ferr := p.factorize(cfg)
	if ferr != nil {
		if errors.Is(ferr, band.ErrGradientStep) {
			copy(p.deltaLambda, p.gradient)
			p.setStageDualDirections()
			return false, false, nil
		}
		if dqErr, ok := ferr.(*Error); ok && dqErr.Status == InvalidArgument {
			return false, false, ferr
		}
		return false, false, newError(FactorizationFailed, "%v", ferr)
	}

	dl, serr := p.backSubstitute(cfg, res)
	if serr != nil {
		return false, false, newError(FactorizationFailed, "back-substitution: %v", serr)
	}
	copy(p.deltaLambda, dl)
	p.setStageDualDirections()
	return false, res.Regularized, nil
}

// setStageDualDirections installs each stage's slice of the current
// deltaLambda so MinStepToActiveSetChange reflects the direction the
// line search is actually about to try.
func (p *Problem) setStageDualDirections() {
	for k, s := range p.Stages {
		var dK, dK1 []float64
		if k > 0 {
			dK = p.deltaLambda[(k-1)*p.Nx : k*p.Nx]
		}
		if k < p.N {
			dK1 = p.deltaLambda[k*p.Nx : (k+1)*p.Nx]
		}
		s.SetDualDirection(dK, dK1)
	}
}

// minStepToActiveSetChange returns the smallest positive per-stage
// minStepToActiveSetChange, or +Inf if no stage reports a finite one
// (General stages report +Inf; spec.md §4.6).
func (p *Problem) minStepToActiveSetChange() float64 {
	min := math.Inf(1)
	for _, s := range p.Stages {
		a := s.MinStepToActiveSetChange()
		if a < min {
			min = a
		}
	}
	return min
}

// acceptStep installs the chosen alpha: lambda advances along
// deltaLambda, every stage resolves against the new dual, and the
// incumbent objective and active-set snapshot are refreshed.
func (p *Problem) acceptStep(alpha float64) error {
	for i := range p.lambda {
		p.lambda[i] += alpha * p.deltaLambda[i]
	}
	obj, err := p.resolveStagesAt(p.lambda)
	if err != nil {
		return err
	}
	p.objVal = obj
	p.captureActiveSet()
	return nil
}

// captureActiveSet diffs each stage's current active set against the
// one captured at the previous Accept, setting ActSetHasChanged and
// lastActSetChangeIdx for the next Newton setup (spec.md §4.3, §5).
func (p *Problem) captureActiveSet() {
	p.lastActSetChangeIdx = -1
	for k, s := range p.Stages {
		changed := s.RefreshActiveSetDiff()
		s.ActSetHasChanged = changed
		if changed {
			p.lastActSetChangeIdx = k
		}
	}
}

// countActive sums each stage's currently binding bound/inequality
// constraints, for IterRecord.NumActive.
func (p *Problem) countActive() int {
	n := 0
	for _, s := range p.Stages {
		n += s.NumActive()
	}
	return n
}

// countChanged sums the stages whose active set flipped at the last
// captureActiveSet, for IterRecord.NumChanged.
func (p *Problem) countChanged() int {
	n := 0
	for _, s := range p.Stages {
		if s.ActSetHasChanged {
			n++
		}
	}
	return n
}

// recordIteration appends (and, if cfg.Recorder is set, hands off) the
// iteration log entry for the just-accepted step, per the data model of
// spec.md §3: #active and #changed are counted fresh off the active-set
// state acceptStep's captureActiveSet just refreshed; regularized is
// stepSelect's report of whether factorize had to touch the Hessian to
// produce this step's direction.
func (p *Problem) recordIteration(cfg Settings, iter int, alpha float64, regularized bool) {
	if cfg.LogLevel == LogNone && cfg.Recorder == nil {
		return
	}
	rec := IterRecord{
		Iter:             iter,
		ObjectiveValue:   p.objVal,
		GradientNorm:     p.gradientNorm(),
		StepNorm:         floats.Norm(p.deltaLambda, 2),
		Alpha:            alpha,
		NumActive:        p.countActive(),
		NumChanged:       p.countChanged(),
		Regularized:      regularized,
		LastChangedStage: p.lastActSetChangeIdx,
	}
	if cfg.LogLevel == LogAllData {
		rec.Lambda = append([]float64(nil), p.lambda...)
		rec.DeltaLambda = append([]float64(nil), p.deltaLambda...)
		rec.Hessian = p.hessian.Clone()
		rec.Factor = p.factor.Clone()
	}
	p.log = append(p.log, rec)
	if cfg.Recorder != nil {
		cfg.Recorder.Record(rec)
	}
}

func (p *Problem) finish(status Status, iters int, cfg Settings) Result {
	return Result{
		Status:         status,
		Iterations:     iters,
		ObjectiveValue: p.objVal,
		Log:            p.log,
	}
}
