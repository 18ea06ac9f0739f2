// Package lifecycle defines the three-state soft-delete lifecycle shared by
// every deletable aggregate: an entity starts Active, moves to the recycle
// Bin on soft delete, and ends Purged. Purged is terminal.
package lifecycle

import "errors"

// State enumerates lifecycle stages.
type State string

const (
	StateActive State = "ACTIVE"
	StateBin    State = "BIN"
	StatePurged State = "PURGED"
)

// Action enumerates lifecycle transitions.
type Action string

const (
	ActionSoftDelete Action = "SOFT_DELETE"
	ActionRestore    Action = "RESTORE"
	ActionPurge      Action = "PURGE"
)

// ErrIllegalTransition indicates the entity is not in a state that permits
// the requested action. Callers surface this as a not-found condition.
var ErrIllegalTransition = errors.New("lifecycle: illegal transition")

// Flags mirror the persisted soft-delete columns.
type Flags struct {
	Deleted bool
	Purged  bool
}

// State derives the lifecycle state from the persisted flags.
// Purged implies deleted; a purged flag without the deleted flag is treated
// as Purged so that corrupt rows never resurface in listings.
func (f Flags) State() State {
	switch {
	case f.Purged:
		return StatePurged
	case f.Deleted:
		return StateBin
	default:
		return StateActive
	}
}

// Apply executes a transition and returns the resulting flags.
//
//	Active --SOFT_DELETE--> Bin
//	Bin    --RESTORE-----> Active
//	Bin    --PURGE-------> Purged
//
// Purge from Active is rejected: the bin is the only gateway to permanent
// removal.
func Apply(f Flags, a Action) (Flags, error) {
	switch a {
	case ActionSoftDelete:
		if f.State() != StateActive {
			return f, ErrIllegalTransition
		}
		return Flags{Deleted: true}, nil
	case ActionRestore:
		if f.State() != StateBin {
			return f, ErrIllegalTransition
		}
		return Flags{}, nil
	case ActionPurge:
		if f.State() != StateBin {
			return f, ErrIllegalTransition
		}
		return Flags{Deleted: true, Purged: true}, nil
	default:
		return f, ErrIllegalTransition
	}
}
