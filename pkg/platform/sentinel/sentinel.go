package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and transports return these
// (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the external store or cache
// - ErrConflict: the store reports more matches than the data model allows
// - ErrRetryExhausted: a transient failure persisted past the retry bound
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrRetryExhausted = errors.New("retry budget exhausted")
	ErrUnavailable    = errors.New("unavailable")
)
