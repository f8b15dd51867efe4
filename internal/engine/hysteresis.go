package engine

import "github.com/steerstack/wansteer/internal/models"

// StateMachine applies the consecutive-sample commitment rule. A committed
// state flips only after the required number of consecutive agreeing cycles;
// any disagreeing cycle resets the streak with no partial credit. The red and
// green requirements are independent so deployments can fail fast and recover
// cautiously, or the reverse.
type StateMachine struct {
	red   int
	green int
}

// NewStateMachine builds a machine requiring red consecutive congested cycles
// to commit congestion and green consecutive clear cycles to commit recovery.
func NewStateMachine(red, green int) *StateMachine {
	if red < 1 {
		red = 1
	}
	if green < 1 {
		green = 1
	}
	return &StateMachine{red: red, green: green}
}

// SetRequirements updates the required counts when the cycle interval is
// retuned. In-progress streaks are kept; they are simply measured against
// the new requirement from the next cycle on.
func (m *StateMachine) SetRequirements(red, green int) {
	if red < 1 {
		red = 1
	}
	if green < 1 {
		green = 1
	}
	m.red = red
	m.green = green
}

// Advance feeds one cycle's tier into the link and reports whether the
// committed state flipped. WARN is informational: it never advances a streak,
// it only breaks one.
func (m *StateMachine) Advance(link *models.WANLink, tier models.Tier) bool {
	switch {
	case link.Committed == models.StateClear && tier == models.TierCongested:
		if link.PendingTier != models.TierCongested {
			link.PendingTier = models.TierCongested
			link.ConsecutiveCount = 0
		}
		link.ConsecutiveCount++
		if link.ConsecutiveCount >= m.red {
			link.Committed = models.StateCongested
			link.ConsecutiveCount = 0
			return true
		}

	case link.Committed == models.StateCongested && tier == models.TierClear:
		if link.PendingTier != models.TierClear {
			link.PendingTier = models.TierClear
			link.ConsecutiveCount = 0
		}
		link.ConsecutiveCount++
		if link.ConsecutiveCount >= m.green {
			link.Committed = models.StateClear
			link.ConsecutiveCount = 0
			return true
		}

	default:
		// Agreeing or WARN cycles reset any opposing streak.
		link.PendingTier = tier
		link.ConsecutiveCount = 0
	}
	return false
}
