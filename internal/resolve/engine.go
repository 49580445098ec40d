// Package resolve decides which repeat instance of the kiosk-registration
// form a walk-in participant should be routed to, given the instance markers
// derived from their trailing seven-day encounter window.
//
// The decision logic is pure domain code: no I/O, no side effects. Callers
// perform the determination write that ActionCreateDetermination implies.
package resolve

import (
	"errors"
	"fmt"

	dErrors "kioskgw/pkg/domain-errors"
)

// Action is the closed set of routing outcomes.
type Action int

const (
	// ActionCreateDetermination: no usable trigger anchors the window (or the
	// prior cycle fully completed), so a fresh determination event must be
	// opened at today's instance before routing there.
	ActionCreateDetermination Action = iota + 1

	// ActionCreateRegistration: a trigger exists but no registration of any
	// completeness does; route to a fresh registration at the target
	// instance.
	ActionCreateRegistration

	// ActionResumeRegistration: a registration was started but not finished;
	// route back to that exact instance, never a new one.
	ActionResumeRegistration
)

func (a Action) String() string {
	switch a {
	case ActionCreateDetermination:
		return "create_determination"
	case ActionCreateRegistration:
		return "create_registration"
	case ActionResumeRegistration:
		return "resume_registration"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Resolution is the decided action plus the instance number to act on.
type Resolution struct {
	Action   Action
	Instance int
}

// ErrOrderCompletedToday marks the same-day short-circuit: a participant who
// already completed the test-order form today is never routed back into kiosk
// registration. Callers must detect this case from the markers before calling
// Resolve; the engine returning it means a caller skipped that check.
var ErrOrderCompletedToday = errors.New("test order already completed today")

// Resolve applies the routing decision table to the markers, top to bottom,
// first match wins.
func Resolve(m Markers, today int) (Resolution, error) {
	orderCompletedToday := m.CompleteOrder != nil && *m.CompleteOrder == today

	switch {
	case m.Target == nil:
		// No triggering determination in the window.
		return Resolution{Action: ActionCreateDetermination, Instance: today}, nil

	case orderCompletedToday:
		return Resolution{}, ErrOrderCompletedToday

	case m.CompleteRegistration != nil:
		// The previous cycle ran to completion; start a new one today.
		return Resolution{Action: ActionCreateDetermination, Instance: today}, nil

	case m.IncompleteRegistration == nil:
		// Trigger exists, nothing attempted yet.
		return Resolution{Action: ActionCreateRegistration, Instance: *m.Target}, nil

	case m.IncompleteRegistration != nil:
		return Resolution{Action: ActionResumeRegistration, Instance: *m.IncompleteRegistration}, nil

	default:
		// Unreachable by construction. Surfacing it loudly beats guessing at
		// a routing destination.
		return Resolution{}, dErrors.New(dErrors.CodeInvariantViolation,
			"instance resolution decision table exhausted")
	}
}
