package engine

import (
	"github.com/steerstack/wansteer/internal/config"
	"github.com/steerstack/wansteer/internal/models"
)

// Classifier maps each link's smoothed metrics to an instantaneous health
// tier against entry/recovery threshold bands. The band separation gives
// threshold-level hysteresis, independent of the consecutive-sample
// hysteresis applied afterwards by the state machine.
type Classifier struct {
	combine    config.CombinePolicy
	thresholds map[string]map[models.Metric]config.ThresholdBand

	// crossed remembers, per link and metric, whether the metric last sat on
	// the congested side of its band. Inside the band the previous side wins.
	crossed map[string]map[models.Metric]bool
}

// NewClassifier builds a classifier from per-link threshold bands.
func NewClassifier(combine config.CombinePolicy, links []config.LinkConfig) *Classifier {
	thresholds := make(map[string]map[models.Metric]config.ThresholdBand, len(links))
	for _, link := range links {
		bands := make(map[models.Metric]config.ThresholdBand, len(link.Thresholds))
		for metric, band := range link.Thresholds {
			bands[metric] = band
		}
		thresholds[link.ID] = bands
	}
	return &Classifier{
		combine:    combine,
		thresholds: thresholds,
		crossed:    make(map[string]map[models.Metric]bool),
	}
}

// Classify returns the link's tier for this cycle. Metrics without a seeded
// EWMA are skipped; a link with no seeded metrics classifies clear and relies
// on the missed-sample ceiling for protection.
func (c *Classifier) Classify(link *models.WANLink) models.Tier {
	bands, ok := c.thresholds[link.ID]
	if !ok {
		return models.TierClear
	}

	sides := c.crossed[link.ID]
	if sides == nil {
		sides = make(map[models.Metric]bool, len(bands))
		c.crossed[link.ID] = sides
	}

	congested := 0
	warned := 0
	evaluated := 0
	for metric, band := range bands {
		value, seeded := link.EWMA[metric]
		if !seeded {
			continue
		}
		evaluated++

		switch tier := c.classifyMetric(sides, metric, band, value); tier {
		case models.TierCongested:
			congested++
		case models.TierWarn:
			warned++
		}
	}

	if evaluated == 0 {
		return models.TierClear
	}

	switch c.combine {
	case config.CombineAll:
		if congested == evaluated {
			return models.TierCongested
		}
		if congested > 0 || warned > 0 {
			return models.TierWarn
		}
		return models.TierClear
	default: // worst
		if congested > 0 {
			return models.TierCongested
		}
		if warned > 0 {
			return models.TierWarn
		}
		return models.TierClear
	}
}

// classifyMetric applies the entry/recovery band to one metric. Entry is
// inclusive (value >= entry crosses into congestion), recovery is inclusive
// on the way back (value <= recovery); between the two the previous side is
// kept.
func (c *Classifier) classifyMetric(sides map[models.Metric]bool, metric models.Metric, band config.ThresholdBand, value float64) models.Tier {
	if sides[metric] {
		if value <= band.Recovery {
			sides[metric] = false
			return models.TierClear
		}
		return models.TierCongested
	}

	if value >= band.Entry {
		sides[metric] = true
		return models.TierCongested
	}
	if value > band.Recovery {
		return models.TierWarn
	}
	return models.TierClear
}
