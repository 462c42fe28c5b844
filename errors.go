package dualqp

import "fmt"

// Status reports the outcome of a Solve call, mirroring the
// gonum/optimize Status convention of a small closed enum plus an
// accompanying error for the failure cases.
type Status int

const (
	// NotTerminated is the zero value; Solve never returns it.
	NotTerminated Status = iota
	// OK indicates a solution was found and accepted.
	OK
	// OptimalFound indicates the gradient was already below
	// Settings.StationarityTolerance at the start of an iteration (or
	// N == 0, so there is no multiplier to optimize).
	OptimalFound
	// IterationLimitReached indicates Settings.MaxIter was hit without
	// convergence.
	IterationLimitReached
	// NoAscentDirection indicates the line search could not find any
	// improving step.
	NoAscentDirection
	// StageInfeasible indicates at least one stage QP solve failed.
	StageInfeasible
	// NewtonSetupFailed indicates Hessian assembly could not proceed.
	NewtonSetupFailed
	// FactorizationFailed indicates the banded Cholesky failed even
	// after the configured regularization policy was applied.
	FactorizationFailed
	// UnknownLineSearchType indicates Settings.LineSearch names a value
	// this build does not implement.
	UnknownLineSearchType
	// InvalidArgument indicates malformed Settings or Problem data.
	InvalidArgument
	// UnknownError is a catch-all for conditions with no dedicated
	// Status.
	UnknownError
)

var statusNames = map[Status]string{
	NotTerminated:          "NotTerminated",
	OK:                     "OK",
	OptimalFound:           "OptimalFound",
	IterationLimitReached:  "IterationLimitReached",
	NoAscentDirection:      "NoAscentDirection",
	StageInfeasible:        "StageInfeasible",
	NewtonSetupFailed:      "NewtonSetupFailed",
	FactorizationFailed:    "FactorizationFailed",
	UnknownLineSearchType:  "UnknownLineSearchType",
	InvalidArgument:        "InvalidArgument",
	UnknownError:           "UnknownError",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Error is returned alongside a non-terminal Status to carry detail
// about what failed.
type Error struct {
	Status Status
	Msg    string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Msg)
}

func newError(s Status, format string, args ...interface{}) *Error {
	return &Error{Status: s, Msg: fmt.Sprintf(format, args...)}
}

// LineSearchError classifies a failed or non-fatal line search, per
// spec.md §7: MinStep/NoAscent are fatal to the solve, MaxStep/MaxIter
// are non-fatal (the last alpha tried is accepted).
type LineSearchError int

const (
	lsErrNone LineSearchError = iota
	lsErrMinStep
	lsErrMaxIter
	lsErrMaxStepSize
	lsErrNoAscent
)

func (e LineSearchError) fatal() bool {
	return e == lsErrMinStep || e == lsErrNoAscent
}
