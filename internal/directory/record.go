package directory

import "kioskgw/internal/encounter"

// Record is a participant's enrollment-arm record in the external store.
type Record struct {
	// RecordID is the store-assigned identifier used for all subsequent
	// operations on the participant.
	RecordID string `json:"record_id"`

	// NaturalKey is the institutional identifier participants are looked up
	// by at the kiosk.
	NaturalKey string `json:"natural_key"`

	EligibilityScreening    encounter.FormStatus `json:"eligibility_screening"`
	ConsentForm             encounter.FormStatus `json:"consent_form"`
	EnrollmentQuestionnaire encounter.FormStatus `json:"enrollment_questionnaire"`
}

// RegistrationComplete reports whether the participant has finished all three
// enrollment instruments. Only fully-enrolled participants are routed to the
// kiosk flow and only their records are cached.
func (r *Record) RegistrationComplete() bool {
	if r == nil {
		return false
	}
	return r.EligibilityScreening.Complete() &&
		r.ConsentForm.Complete() &&
		r.EnrollmentQuestionnaire.Complete()
}
