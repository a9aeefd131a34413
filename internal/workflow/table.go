// Package workflow provides the transition tables backing each document
// lifecycle. A table is a compile-time map from a status to the statuses
// reachable from it; anything not listed fails with InvalidTransition.
package workflow

import "github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"

// Table maps each status to the set of statuses reachable from it.
type Table[S ~string] map[S][]S

// Allowed reports whether from -> to is present in the table.
func (t Table[S]) Allowed(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status has no outgoing transitions.
func (t Table[S]) Terminal(status S) bool {
	return len(t[status]) == 0
}

// Check returns an InvalidTransitionError for the entity when from -> to is
// not in the table.
func (t Table[S]) Check(entity string, from, to S) error {
	if !t.Allowed(from, to) {
		return shared.NewInvalidTransition(entity, string(from), string(to))
	}
	return nil
}
