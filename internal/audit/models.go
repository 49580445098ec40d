package audit

import "time"

// Check-in outcomes recorded on audit events.
const (
	OutcomeDestination          = "destination"
	OutcomeRegistrationRequired = "registration_required"
	OutcomeAlreadyTested        = "already_tested"
	OutcomeEnrollmentRedirect   = "enrollment_redirect"
	OutcomeError                = "error"
)

// Event records one kiosk check-in or enrollment visit. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`

	// NaturalKey is the institutional identifier the participant checked in
	// with. RecordID is empty when lookup never found a record.
	NaturalKey string `json:"natural_key"`
	RecordID   string `json:"record_id,omitempty"`

	Outcome string `json:"outcome"`

	// Instance is the repeat instance the participant was routed to. Zero
	// when the outcome produced no routing.
	Instance int `json:"instance,omitempty"`

	// Detail carries outcome-specific context, such as the error summary.
	Detail string `json:"detail,omitempty"`
}
