package models

import "time"

// MeasurementSample is one cycle's raw probe reading for one link. It is
// immutable once produced and discarded after the cycle that consumes it.
type MeasurementSample struct {
	LinkID    string
	Values    map[Metric]float64
	Success   bool
	Timestamp time.Time
}

// FailedSample builds the sample recorded when a probe fails or times out.
func FailedSample(linkID string, at time.Time) MeasurementSample {
	return MeasurementSample{LinkID: linkID, Success: false, Timestamp: at}
}

// CycleContext is the ephemeral record of one control-loop tick. It is owned
// by the loop for the duration of the tick and never shared across ticks.
type CycleContext struct {
	Seq        uint64
	Interval   time.Duration
	StartedAt  time.Time
	Samples    map[string]MeasurementSample
	Directives DirectiveSet
}
