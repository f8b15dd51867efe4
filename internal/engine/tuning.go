package engine

import (
	"fmt"
	"math"
	"time"
)

// RealTimeConstants are the wall-clock targets that stay fixed while the
// cycle interval is tuned: the EWMA time constant, how long congestion must
// persist before the engine acts, and how long recovery must persist before
// it trusts a link again.
type RealTimeConstants struct {
	TimeConstant     time.Duration
	ConfirmCongested time.Duration
	ConfirmClear     time.Duration
}

// Tuning is the per-cycle parameter set derived from the real-time constants
// and the current interval. It must be re-derived on every interval change so
// that detection and recovery latency stay invariant in wall-clock terms.
type Tuning struct {
	Interval             time.Duration
	Alpha                float64
	RedSamplesRequired   int
	GreenSamplesRequired int
}

// Derive computes the tuning for the given interval.
//
//	alpha = 1 - exp(-dt/T)
//	redSamplesRequired = max(1, round(R/dt))
//	greenSamplesRequired = max(1, round(G/dt))
func Derive(c RealTimeConstants, interval time.Duration) (Tuning, error) {
	if interval <= 0 {
		return Tuning{}, fmt.Errorf("interval must be positive, got %s", interval)
	}
	if c.TimeConstant <= 0 || c.ConfirmCongested <= 0 || c.ConfirmClear <= 0 {
		return Tuning{}, fmt.Errorf("real-time constants must be positive")
	}

	dt := interval.Seconds()
	return Tuning{
		Interval:             interval,
		Alpha:                1 - math.Exp(-dt/c.TimeConstant.Seconds()),
		RedSamplesRequired:   samplesFor(c.ConfirmCongested, dt),
		GreenSamplesRequired: samplesFor(c.ConfirmClear, dt),
	}, nil
}

func samplesFor(window time.Duration, dt float64) int {
	n := int(math.Round(window.Seconds() / dt))
	if n < 1 {
		return 1
	}
	return n
}
