package resolve

import (
	"kioskgw/internal/encounter"
	dErrors "kioskgw/pkg/domain-errors"
)

// Markers are the four scalar instance markers derived from a participant's
// encounter window. Each, when present, is the maximum qualifying instance
// number; nil means no qualifying event exists in the window.
type Markers struct {
	// Target is the latest instance whose determination form indicated
	// testing. It anchors every other query: once set, only instances at or
	// after it count.
	Target *int

	// CompleteOrder is the latest instance at/after Target with a complete
	// test-order form. Comparing it against today's instance is the same-day
	// de-duplication guard.
	CompleteOrder *int

	// CompleteRegistration is the latest instance at/after Target with a
	// complete kiosk-registration form.
	CompleteRegistration *int

	// IncompleteRegistration is the latest instance at/after Target with a
	// kiosk-registration form that exists but is not complete.
	IncompleteRegistration *int
}

// Options tune marker extraction.
type Options struct {
	// RequireSwabDate, when set, only counts an incomplete registration as a
	// genuine attempt if its swab-date field is non-blank. Some project years
	// created empty registration shells that should not be resumed.
	RequireSwabDate bool
}

// ExtractMarkers computes the instance markers for a window.
//
// Returns a data-integrity error if any event lacks a usable instance number;
// resolution must abort rather than silently skip the malformed event.
func ExtractMarkers(w encounter.Window, opts Options) (Markers, error) {
	for _, e := range w.Events {
		if e.Instance < 1 {
			return Markers{}, dErrors.New(dErrors.CodeInvariantViolation,
				"encounter event with missing or non-positive repeat instance")
		}
	}

	m := Markers{}
	m.Target = maxInstance(w, func(e encounter.Event) bool {
		return e.TestingTriggered
	})

	// The completeness queries are bounded below by the target instance when
	// one exists, and unbounded otherwise.
	since := 0
	if m.Target != nil {
		since = *m.Target
	}

	m.CompleteOrder = maxInstanceSince(w, since, func(e encounter.Event) bool {
		return e.OrderStatus.Complete()
	})
	m.CompleteRegistration = maxInstanceSince(w, since, func(e encounter.Event) bool {
		return e.RegistrationStatus.Complete()
	})
	m.IncompleteRegistration = maxInstanceSince(w, since, func(e encounter.Event) bool {
		if !e.RegistrationStatus.Started() {
			return false
		}
		if opts.RequireSwabDate && e.SwabDate == "" {
			return false
		}
		return true
	})

	return m, nil
}

func maxInstance(w encounter.Window, match func(encounter.Event) bool) *int {
	return maxInstanceSince(w, 0, match)
}

func maxInstanceSince(w encounter.Window, since int, match func(encounter.Event) bool) *int {
	var best *int
	for _, e := range w.Events {
		if e.Instance < since || !match(e) {
			continue
		}
		if best == nil || e.Instance > *best {
			instance := e.Instance
			best = &instance
		}
	}
	return best
}
