package state

import "slices"

// validTransitions contains the permitted non-reset transitions.
var validTransitions = map[State][]State{
	StateIdle: {
		StateOrderSymbol,
	},
	StateOrderSymbol: {
		StateOrderMargin,
	},
	StateOrderMargin: {
		StateOrderSymbol,
	},
}

// IsTransitionAllowed reports whether moving from one state to another is valid.
// Idle and error are reachable from anywhere.
func IsTransitionAllowed(from, to State) bool {
	if to == StateError || to == StateIdle {
		return true
	}

	return slices.Contains(validTransitions[from], to)
}
