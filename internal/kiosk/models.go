package kiosk

import "time"

// Outcome classifies what a kiosk check-in resolved to.
type Outcome string

const (
	// OutcomeDestination means the participant was routed to a registration
	// instance.
	OutcomeDestination Outcome = "destination"

	// OutcomeRegistrationRequired means no fully-enrolled record exists for
	// the key; the participant must enroll before using the kiosk.
	OutcomeRegistrationRequired Outcome = "registration_required"

	// OutcomeAlreadyTested means a test order was already completed today;
	// the participant is not tested twice in one day.
	OutcomeAlreadyTested Outcome = "already_tested"
)

// CheckIn is the result of one kiosk lookup.
type CheckIn struct {
	Outcome Outcome

	// NaturalKey is the sanitized key the lookup ran with.
	NaturalKey string

	// RecordExists distinguishes "never enrolled" from "enrollment started
	// but unfinished" on the registration-required page.
	RecordExists bool

	// Instance and Destination are set only for OutcomeDestination.
	Instance    int
	Destination string
}

// Enrollment is the result of an authenticated enrollment visit.
type Enrollment struct {
	// RedirectURL points at the next survey in the participant's queue.
	// Empty when Welcome is set.
	RedirectURL string

	// Welcome marks the participant's first study day, before daily
	// check-ins open.
	Welcome bool

	// CheckinsStart is the date daily check-ins begin, shown on the welcome
	// page.
	CheckinsStart time.Time
}
