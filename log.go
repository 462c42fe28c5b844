package dualqp

import "github.com/qpdual/dualqp/band"

// IterRecord is one entry of the iteration log described in spec.md
// §3, "Iteration log": the scalar summary every iteration always
// produces, plus optional deeper snapshots gated by Settings.LogLevel.
type IterRecord struct {
	Iter             int
	ObjectiveValue   float64
	GradientNorm     float64
	StepNorm         float64
	Alpha            float64
	NumActive        int
	NumChanged       int
	Regularized      bool
	LastChangedStage int

	// Populated only when Settings.LogLevel == LogAllData.
	Lambda      []float64
	DeltaLambda []float64
	Hessian     *band.Band
	Factor      *band.Band
}

// IterLog is the finite sequence of per-iteration records produced by a
// Solve call.
type IterLog []IterRecord

// Recorder receives a copy of every IterRecord as it is produced,
// mirroring gonum/optimize's Recorder hook for plugging in an external
// sink (file, metrics system, ...) without the core driver depending on
// one.
type Recorder interface {
	Record(IterRecord) error
}
