// Package identity extracts the authenticated user's attributes from the
// headers our SSO reverse proxy sets. The gateway never authenticates anyone
// itself; by the time a request arrives, the proxy has already done so.
package identity

import (
	"net/http"
	"regexp"
	"sort"
	"strings"
)

// Headers set by the reverse proxy from the IdP's attribute release.
const (
	HeaderRemoteUser  = "X-Remote-User"
	HeaderMail        = "X-Shib-Mail"
	HeaderGivenName   = "X-Shib-Given-Name"
	HeaderSurname     = "X-Shib-Surname"
	HeaderDepartment  = "X-Shib-Department"
	HeaderAffiliation = "X-Shib-Affiliation"
)

// Attributes are the authenticated user's released attributes.
type Attributes struct {
	// RemoteUser is the institutional identifier (the natural key).
	RemoteUser string

	// Email won't always be on the institutional domain.
	Email string

	// GivenName includes any middle initial. Both name fields carry the
	// preferred name parts if set, otherwise the administrative ones.
	GivenName string
	Surname   string

	// Department is generally a colon-separated set of increasingly-specific
	// labels, starting with the school.
	Department string

	// Affiliations is the raw multi-value affiliation attribute, split on
	// semicolons.
	Affiliations []string
}

// FromRequest reads the proxy-released attributes off the request headers.
func FromRequest(r *http.Request) Attributes {
	return Attributes{
		RemoteUser:   r.Header.Get(HeaderRemoteUser),
		Email:        r.Header.Get(HeaderMail),
		GivenName:    r.Header.Get(HeaderGivenName),
		Surname:      r.Header.Get(HeaderSurname),
		Department:   r.Header.Get(HeaderDepartment),
		Affiliations: splitAffiliations(r.Header.Get(HeaderAffiliation)),
	}
}

// StoreFields maps the attributes onto record store field names for a new
// enrollment record. The natural key field name comes from configuration;
// the rest match the store project's data dictionary.
func (a Attributes) StoreFields(naturalKeyField string) map[string]string {
	affiliation, other := MapAffiliation(a.Affiliations)
	return map[string]string{
		naturalKeyField:               a.RemoteUser,
		"email":                       a.Email,
		"core_participant_first_name": a.GivenName,
		"core_participant_last_name":  a.Surname,
		"school":                      a.Department,
		"affiliation":                 affiliation,
		"affiliation_other":           other,
	}
}

// MapAffiliation reduces the multi-value affiliation attribute to the store's
// single-choice field. Student outranks faculty outranks staff; "employee" is
// folded into staff. Anything else lands in the free-text other field.
// "member" is a generic catch-all the IdP attaches to everyone, so it never
// counts as an affiliation on its own.
func MapAffiliation(affiliations []string) (affiliation, other string) {
	seen := make(map[string]bool)
	var rest []string
	for _, a := range affiliations {
		if a == "" || a == "member" {
			continue
		}
		if !seen[a] {
			seen[a] = true
			rest = append(rest, a)
		}
	}

	switch {
	case seen["student"]:
		return "student", ""
	case seen["faculty"]:
		return "faculty", ""
	case seen["staff"], seen["employee"]:
		return "staff", ""
	case len(rest) > 0:
		sort.Strings(rest)
		return "other", strings.Join(rest, ";")
	default:
		return "", ""
	}
}

var nonWord = regexp.MustCompile(`\W`)

// SanitizeKey strips everything but word characters from a kiosk-entered
// natural key. Kiosk keyboards produce stray whitespace and punctuation, and
// the key is interpolated into a store filter expression.
func SanitizeKey(raw string) string {
	return nonWord.ReplaceAllString(raw, "")
}

func splitAffiliations(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ";")
}
