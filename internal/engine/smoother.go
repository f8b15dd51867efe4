package engine

import "github.com/steerstack/wansteer/internal/models"

// Smoother folds raw samples into each link's per-metric EWMA and tracks the
// missed-sample streak. A failed sample never feeds a synthetic value into
// the average; unknown health is escalated through the streak instead.
type Smoother struct {
	ceiling int
}

// NewSmoother creates a smoother that forces a congested classification once
// a link's missed-sample streak reaches ceiling.
func NewSmoother(ceiling int) *Smoother {
	if ceiling < 1 {
		ceiling = 1
	}
	return &Smoother{ceiling: ceiling}
}

// SetCeiling updates the missed-sample ceiling on reconfiguration.
func (s *Smoother) SetCeiling(ceiling int) {
	if ceiling < 1 {
		ceiling = 1
	}
	s.ceiling = ceiling
}

// Apply folds one sample into the link state using the given decay factor.
// It reports whether the link must be treated as congested this cycle
// because its missed-sample streak reached the ceiling.
func (s *Smoother) Apply(link *models.WANLink, sample models.MeasurementSample, alpha float64) bool {
	if !sample.Success {
		link.MissedStreak++
		return link.MissedStreak >= s.ceiling
	}

	link.MissedStreak = 0
	for metric, raw := range sample.Values {
		prev, seeded := link.EWMA[metric]
		if !seeded {
			// First good reading seeds the average directly so a link does
			// not spend its first time constant converging from zero.
			link.EWMA[metric] = raw
			continue
		}
		link.EWMA[metric] = alpha*raw + (1-alpha)*prev
	}
	return false
}
