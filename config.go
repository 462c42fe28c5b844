package dualqp

import "github.com/qpdual/dualqp/band"

// FactorizationAlgorithm selects the banded Cholesky sweep direction.
type FactorizationAlgorithm int

const (
	// BandForward factors top-down, block-column 0 first.
	BandForward FactorizationAlgorithm = iota
	// BandReverse factors bottom-up from LastActSetChangeIdx, enabling
	// partial refactorization of only the changed suffix.
	BandReverse
)

// RegType selects the Newton-Hessian regularization policy, per
// spec.md §6.
type RegType int

const (
	// LevenbergMarquardt restarts the factorization from scratch with
	// RegParam added to the original Hessian's diagonal.
	LevenbergMarquardt RegType = iota
	// SingularDirections rescues a too-small pivot in place.
	SingularDirections
	// GradientStep aborts factorization and requests a pure gradient
	// step for the current outer iteration.
	GradientStep
	// NormalizedLM is deprecated; this build treats it identically to
	// LevenbergMarquardt.
	NormalizedLM
	// UnconstrainedHessian is not implemented; selecting it makes
	// Solve return InvalidArgument.
	UnconstrainedHessian
)

// LineSearchType selects the line-search strategy, per spec.md §4.6.
type LineSearchType int

const (
	BacktrackingLS LineSearchType = iota
	BacktrackingASChangeLS
	GoldenSectionLS
	GradientBisectionLS
	GridLS
	AcceleratedBisectionLS
	AcceleratedGridLS
)

// LogLevel controls how much of each iteration IterLog retains.
type LogLevel int

const (
	LogNone LogLevel = iota
	LogIterations
	LogAllData
)

// Settings bundles every configuration option from spec.md §6. It is a
// plain struct of fields with documented defaults, mirroring
// gonum/optimize.Settings, rather than a functional-options API.
type Settings struct {
	MaxIter                int
	NbrInitialGradientSteps int

	FactorizationAlgorithm FactorizationAlgorithm
	Reg                    RegType
	RegParam               float64
	NewtonHessDiagRegTolerance float64

	StationarityTolerance float64
	EqualityTolerance     float64
	QPDUNESZero           float64
	QPDUNESInfty          float64

	LineSearch                         LineSearchType
	LineSearchReductionFactor         float64
	LineSearchIncreaseFactor          float64
	LineSearchMinAbsProgress          float64
	LineSearchMinRelProgress          float64
	LineSearchStationarityTolerance   float64
	LineSearchMaxStepSize             float64
	LineSearchNbrGridPoints           int
	MaxNumLineSearchIterations        int
	MaxNumLineSearchRefinementIterations int

	LogLevel              LogLevel
	CheckForInfeasibility bool

	// Recorder, if non-nil, additionally receives every IterRecord as
	// it is produced (see log.go), mirroring gonum/optimize.Recorder.
	Recorder Recorder
}

// DefaultSettings returns the recommended option set, chosen to match
// the numerical tolerances and iteration caps used throughout spec.md's
// examples. Solve fills only the zero numeric fields of the Settings it
// is given (iteration caps, tolerances, line-search factors and sizes,
// RegParam) from these values; Reg, LogLevel, NbrInitialGradientSteps,
// FactorizationAlgorithm, LineSearch, CheckForInfeasibility and the
// line-search progress thresholds keep their zero values, so a
// Settings{} does not behave like DefaultSettings().
func DefaultSettings() Settings {
	return Settings{
		MaxIter:                    100,
		NbrInitialGradientSteps:    1,
		FactorizationAlgorithm:     BandForward,
		Reg:                        SingularDirections,
		RegParam:                   1e-6,
		NewtonHessDiagRegTolerance: 1e-10,
		StationarityTolerance:      1e-8,
		EqualityTolerance:          1e-10,
		QPDUNESZero:                1e-16,
		QPDUNESInfty:               1e12,
		LineSearch:                 BacktrackingLS,
		LineSearchReductionFactor:  0.5,
		LineSearchIncreaseFactor:   2,
		LineSearchMinAbsProgress:   1e-12,
		LineSearchMinRelProgress:   1e-10,
		LineSearchStationarityTolerance: 1e-6,
		LineSearchMaxStepSize:      1e6,
		LineSearchNbrGridPoints:    20,
		MaxNumLineSearchIterations: 50,
		MaxNumLineSearchRefinementIterations: 50,
		LogLevel:                   LogIterations,
		CheckForInfeasibility:      false,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxIter == 0 {
		s.MaxIter = d.MaxIter
	}
	if s.NewtonHessDiagRegTolerance == 0 {
		s.NewtonHessDiagRegTolerance = d.NewtonHessDiagRegTolerance
	}
	if s.StationarityTolerance == 0 {
		s.StationarityTolerance = d.StationarityTolerance
	}
	if s.EqualityTolerance == 0 {
		s.EqualityTolerance = d.EqualityTolerance
	}
	if s.QPDUNESZero == 0 {
		s.QPDUNESZero = d.QPDUNESZero
	}
	if s.QPDUNESInfty == 0 {
		s.QPDUNESInfty = d.QPDUNESInfty
	}
	if s.LineSearchReductionFactor == 0 {
		s.LineSearchReductionFactor = d.LineSearchReductionFactor
	}
	if s.LineSearchIncreaseFactor == 0 {
		s.LineSearchIncreaseFactor = d.LineSearchIncreaseFactor
	}
	if s.LineSearchStationarityTolerance == 0 {
		s.LineSearchStationarityTolerance = d.LineSearchStationarityTolerance
	}
	if s.LineSearchMaxStepSize == 0 {
		s.LineSearchMaxStepSize = d.LineSearchMaxStepSize
	}
	if s.LineSearchNbrGridPoints == 0 {
		s.LineSearchNbrGridPoints = d.LineSearchNbrGridPoints
	}
	if s.MaxNumLineSearchIterations == 0 {
		s.MaxNumLineSearchIterations = d.MaxNumLineSearchIterations
	}
	if s.MaxNumLineSearchRefinementIterations == 0 {
		s.MaxNumLineSearchRefinementIterations = d.MaxNumLineSearchRefinementIterations
	}
	if s.RegParam == 0 {
		s.RegParam = d.RegParam
	}
	return s
}

func (s Settings) bandRegType() band.RegType {
	switch s.Reg {
	case SingularDirections:
		return band.SingularDirections
	case GradientStep:
		return band.GradientStep
	default:
		// LevenbergMarquardt/NormalizedLM run an unrescued pass first;
		// the driver handles the from-scratch restart itself.
		return band.None
	}
}
