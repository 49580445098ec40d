package redcap

import (
	"fmt"
	"net/url"
	"strconv"
)

// DataEntryLink builds the internal data-entry deep link for the kiosk
// registration instrument at the given repeat instance. This is pure string
// formatting; no store round trip is involved.
func (c *Client) DataEntryLink(recordID string, instance int) string {
	query := url.Values{}
	query.Set("pid", strconv.Itoa(c.cfg.ProjectID))
	query.Set("id", recordID)
	query.Set("arm", c.cfg.EncounterArm)
	query.Set("event_id", strconv.Itoa(c.cfg.EventID))
	query.Set("page", c.cfg.RegistrationForm)
	query.Set("instance", strconv.Itoa(instance))

	return fmt.Sprintf("%sredcap_v%s/DataEntry/index.php?%s",
		c.cfg.BaseURL, c.cfg.Version, query.Encode())
}
