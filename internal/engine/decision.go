package engine

import (
	"sort"

	"github.com/steerstack/wansteer/internal/config"
	"github.com/steerstack/wansteer/internal/models"
)

// DecisionEngine converts the links' committed states into a steering
// directive set. It is a pure function of its input: identical committed
// states always produce identical directives, sorted by link ID.
type DecisionEngine struct {
	policy      config.SteeringPolicy
	totalWeight int
}

// NewDecisionEngine builds a decision engine distributing totalWeight across
// clear links, handling congested links per policy.
func NewDecisionEngine(policy config.SteeringPolicy, totalWeight int) *DecisionEngine {
	if totalWeight < 1 {
		totalWeight = 1
	}
	return &DecisionEngine{policy: policy, totalWeight: totalWeight}
}

// SetPolicy updates the steering policy and weight budget on reconfiguration.
func (e *DecisionEngine) SetPolicy(policy config.SteeringPolicy, totalWeight int) {
	if totalWeight < 1 {
		totalWeight = 1
	}
	e.policy = policy
	e.totalWeight = totalWeight
}

// Decide emits the directive set for the given committed states. If every
// link is congested, all links stay enabled at equal weight: the engine never
// produces a directive set with zero usable egress.
func (e *DecisionEngine) Decide(cycle uint64, states map[string]models.State) models.DirectiveSet {
	ids := make([]string, 0, len(states))
	clear := 0
	for id, state := range states {
		ids = append(ids, id)
		if state == models.StateClear {
			clear++
		}
	}
	sort.Strings(ids)

	set := models.DirectiveSet{
		Cycle:      cycle,
		Directives: make([]models.SteeringDirective, 0, len(ids)),
	}

	if clear == 0 {
		// Fail open: no healthy egress is still egress.
		weights := splitWeight(e.totalWeight, len(ids))
		for i, id := range ids {
			set.Directives = append(set.Directives, models.SteeringDirective{
				LinkID:  id,
				Weight:  weights[i],
				Enabled: true,
				State:   states[id],
			})
		}
		return set
	}

	weights := splitWeight(e.totalWeight, clear)
	next := 0
	for _, id := range ids {
		if states[id] == models.StateClear {
			set.Directives = append(set.Directives, models.SteeringDirective{
				LinkID:  id,
				Weight:  weights[next],
				Enabled: true,
				State:   states[id],
			})
			next++
			continue
		}
		set.Directives = append(set.Directives, models.SteeringDirective{
			LinkID:  id,
			Weight:  0,
			Enabled: e.policy != config.PolicyDisable,
			State:   states[id],
		})
	}
	return set
}

// splitWeight divides total into n integer shares; the remainder goes to the
// first shares so the split is deterministic for a sorted input.
func splitWeight(total, n int) []int {
	if n <= 0 {
		return nil
	}
	base := total / n
	rem := total % n
	shares := make([]int, n)
	for i := range shares {
		shares[i] = base
		if i < rem {
			shares[i]++
		}
	}
	return shares
}
