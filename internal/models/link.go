package models

// Tier is the instantaneous, per-cycle health classification of a link.
type Tier string

const (
	TierClear     Tier = "clear"
	TierWarn      Tier = "warn"
	TierCongested Tier = "congested"
)

// State is the hysteresis-protected committed health of a link. Steering
// decisions are based exclusively on committed state, never on a single
// cycle's tier.
type State string

const (
	StateClear     State = "clear"
	StateCongested State = "congested"
)

// Metric enumerates the per-link quantities tracked by the smoother.
type Metric string

const (
	MetricLatencyMs Metric = "latencyMs"
	MetricLossRatio Metric = "lossRatio"
)

// Metrics lists all tracked metrics in a stable order.
func Metrics() []Metric {
	return []Metric{MetricLatencyMs, MetricLossRatio}
}

// WANLink holds the decision state for one managed uplink. It is owned by
// the control loop and mutated once per cycle; the committed state changes
// only through the hysteresis rule.
type WANLink struct {
	ID string

	// EWMA holds the current smoothed value per metric. A metric is absent
	// until the first successful sample seeds it.
	EWMA map[Metric]float64

	// MissedStreak counts consecutive failed samples. It resets on the
	// first good sample and forces a congested tier once it exceeds the
	// configured ceiling.
	MissedStreak int

	// PendingTier and ConsecutiveCount track the streak being accumulated
	// toward a committed-state flip.
	PendingTier      Tier
	ConsecutiveCount int

	Committed State
}

// NewWANLink returns a link starting in the clear committed state.
func NewWANLink(id string) *WANLink {
	return &WANLink{
		ID:          id,
		EWMA:        make(map[Metric]float64),
		PendingTier: TierClear,
		Committed:   StateClear,
	}
}
