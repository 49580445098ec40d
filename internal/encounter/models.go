// Package encounter holds the domain model for a participant's repeating
// encounter events, as exported from the external record store.
package encounter

import (
	"fmt"
)

// FormStatus is the completion state of one instrument on one encounter
// instance. Blank means the form never existed for that instance; it is a
// distinct third state, not a synonym for Incomplete.
type FormStatus int

const (
	StatusBlank FormStatus = iota
	StatusIncomplete
	StatusUnverified
	StatusComplete
)

// Raw status codes used by the record store's export API.
const (
	codeIncomplete = "0"
	codeUnverified = "1"
	codeComplete   = "2"
)

// ParseFormStatus converts a raw store code into a FormStatus. Unrecognized
// codes are rejected rather than coerced: silently treating an unknown code as
// complete or incomplete has caused routing mistakes before.
func ParseFormStatus(code string) (FormStatus, error) {
	switch code {
	case "":
		return StatusBlank, nil
	case codeIncomplete:
		return StatusIncomplete, nil
	case codeUnverified:
		return StatusUnverified, nil
	case codeComplete:
		return StatusComplete, nil
	default:
		return StatusBlank, fmt.Errorf("unrecognized form status code %q", code)
	}
}

// Complete reports whether the form is marked complete.
func (s FormStatus) Complete() bool {
	return s == StatusComplete
}

// Started reports whether the form exists but is not complete (incomplete or
// unverified). Blank forms are not started.
func (s FormStatus) Started() bool {
	return s == StatusIncomplete || s == StatusUnverified
}

func (s FormStatus) String() string {
	switch s {
	case StatusBlank:
		return "blank"
	case StatusIncomplete:
		return "incomplete"
	case StatusUnverified:
		return "unverified"
	case StatusComplete:
		return "complete"
	default:
		return fmt.Sprintf("FormStatus(%d)", int(s))
	}
}

// Event is one row of a participant's repeating-instrument history on the
// encounter arm.
type Event struct {
	// Instance is the repeat-instance number, unique per participant per arm.
	// Always >= 1 for well-formed data; 0 marks a row whose instance was
	// missing from the export and is treated as a data-integrity error by the
	// marker extractor.
	Instance int

	// TestingTriggered records whether kiosk testing was indicated on this
	// instance's determination form.
	TestingTriggered bool

	DeterminationStatus FormStatus
	OrderStatus         FormStatus
	RegistrationStatus  FormStatus

	// SwabDate is the auxiliary date field on the registration form. Its
	// presence distinguishes a genuine registration attempt from an empty
	// shell when the optional attempt gating is enabled.
	SwabDate string
}

// Window is the set of a participant's encounter events restricted to the
// trailing seven-day period. Order is irrelevant to correctness; marker
// queries break ties by numeric maximum.
type Window struct {
	Events []Event
}

// NewWindow filters events down to those at or after the given window start
// instance.
func NewWindow(events []Event, since int) Window {
	var kept []Event
	for _, e := range events {
		if e.Instance >= since {
			kept = append(kept, e)
		}
	}
	return Window{Events: kept}
}

// Empty reports whether the window holds no events.
func (w Window) Empty() bool {
	return len(w.Events) == 0
}
