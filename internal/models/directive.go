package models

// SteeringDirective tells the route controller how one link should carry
// traffic for the coming cycles. The core never mutates a directive after
// emission.
type SteeringDirective struct {
	LinkID  string `json:"linkId"`
	Weight  int    `json:"weight"`
	Enabled bool   `json:"enabled"`
	State   State  `json:"state"`
}

// DirectiveSet is the full steering output of one cycle, sorted by link ID.
type DirectiveSet struct {
	Cycle      uint64              `json:"cycle"`
	Directives []SteeringDirective `json:"directives"`
}

// Equal reports whether two directive sets steer identically, ignoring the
// cycle tag.
func (s DirectiveSet) Equal(other DirectiveSet) bool {
	if len(s.Directives) != len(other.Directives) {
		return false
	}
	for i, d := range s.Directives {
		if d != other.Directives[i] {
			return false
		}
	}
	return true
}
