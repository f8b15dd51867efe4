package models

import "time"

// LinkStatus is the read-only view of one link inside a status snapshot.
type LinkStatus struct {
	ID               string             `json:"id"`
	Committed        State              `json:"committed"`
	Tier             Tier               `json:"tier"`
	EWMA             map[Metric]float64 `json:"ewma,omitempty"`
	MissedStreak     int                `json:"missedStreak"`
	PendingTier      Tier               `json:"pendingTier"`
	ConsecutiveCount int                `json:"consecutiveCount"`
}

// StatusSnapshot is the cycle-tagged, immutable view published by the control
// loop at the end of every tick. Readers never observe a link mid-update.
type StatusSnapshot struct {
	Cycle      uint64        `json:"cycle"`
	Interval   time.Duration `json:"interval"`
	TakenAt    time.Time     `json:"takenAt"`
	Links      []LinkStatus  `json:"links"`
	Directives DirectiveSet  `json:"directives"`
	Overruns   uint64        `json:"overruns"`
	Degraded   bool          `json:"degraded"`
	CycleP50   time.Duration `json:"cycleP50"`
	CycleP99   time.Duration `json:"cycleP99"`
}
