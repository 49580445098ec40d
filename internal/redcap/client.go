// Package redcap implements the external record store transport: a
// form-encoded POST API in the REDCap style, with the false-success retry
// workaround the store's API bug requires.
package redcap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kioskgw/internal/directory"
	"kioskgw/internal/encounter"
	"kioskgw/internal/platform/config"
	"kioskgw/internal/platform/metrics"
	dErrors "kioskgw/pkg/domain-errors"
	"kioskgw/pkg/platform/sentinel"
)

// falseSuccessMarker identifies the store's known API bug: a 200 response
// whose HTML body reports an unknown error. Retrying the same request
// usually succeeds.
const falseSuccessMarker = "multiple browser tabs of the same REDCap page. If that is not the case"

// Raw codes the store's import API expects. Labels are rejected with a 400.
const (
	rawYes         = "1"
	rawKioskWalkIn = "4"
	rawComplete    = "2"
)

// Clock returns the current time. Injected so tests can pin the visit
// timestamp written to new determination events.
type Clock func() time.Time

// Client talks to the external record store. It is safe for concurrent use.
type Client struct {
	cfg     config.RecordStore
	http    *http.Client
	metrics *metrics.Metrics
	clock   Clock
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces the client's time source.
func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// New builds a record store client from configuration.
func New(cfg config.RecordStore, m *metrics.Metrics, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		metrics: m,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindParticipant looks up the enrollment record matching the given natural
// key. Returns sentinel.ErrNotFound when no record matches and a conflict
// error when more than one does: the natural key is supposed to be unique,
// and routing on an arbitrary duplicate would file results under the wrong
// participant.
func (c *Client) FindParticipant(ctx context.Context, naturalKey string) (*directory.Record, error) {
	fields := []string{
		c.cfg.NaturalKeyField,
		"record_id",
		c.cfg.EligibilityForm + "_complete",
		c.cfg.ConsentForm + "_complete",
		c.cfg.EnrollmentForm + "_complete",
	}

	form := url.Values{}
	form.Set("content", "record")
	form.Set("format", "json")
	form.Set("type", "flat")
	form.Set("filterLogic", fmt.Sprintf("[%s] = %q", c.cfg.NaturalKeyField, naturalKey))
	form.Set("fields", strings.Join(fields, ","))
	form.Set("rawOrLabel", "raw")
	form.Set("returnFormat", "json")

	body, err := c.post(ctx, "find_participant", form, true)
	if err != nil {
		return nil, err
	}

	var rows []map[string]flexString
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode participant export")
	}

	switch len(rows) {
	case 0:
		return nil, sentinel.ErrNotFound
	case 1:
		return c.parseRecord(rows[0])
	default:
		ids := make([]string, len(rows))
		for i, row := range rows {
			ids[i] = string(row["record_id"])
		}
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
			"multiple records share natural key %q: %v", naturalKey, ids)
	}
}

// RegisterParticipant creates a new enrollment record carrying the given
// identity attributes and returns the store-assigned record ID. The store
// auto-numbers the new record; the placeholder ID satisfies its non-empty
// record ID requirement without colliding with a real one.
func (c *Client) RegisterParticipant(ctx context.Context, attrs map[string]string) (string, error) {
	row := map[string]string{"record_id": "record ID cannot be blank"}
	for k, v := range attrs {
		row[k] = v
	}
	payload, err := json.Marshal([]map[string]string{row})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode registration")
	}

	form := url.Values{}
	form.Set("content", "record")
	form.Set("format", "json")
	form.Set("type", "flat")
	form.Set("overwriteBehavior", "normal")
	form.Set("forceAutoNumber", "true")
	form.Set("data", string(payload))
	form.Set("returnContent", "ids")
	form.Set("returnFormat", "json")

	body, err := c.post(ctx, "register_participant", form, false)
	if err != nil {
		return "", err
	}

	var ids []flexString
	if err := json.Unmarshal(body, &ids); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "decode registration response")
	}
	if len(ids) != 1 {
		return "", dErrors.Newf(dErrors.CodeInternal, "registration returned %d record IDs, expected 1", len(ids))
	}
	return string(ids[0]), nil
}

// ExportEncounterEvents exports every repeating instance on the encounter arm
// for the given record. The store cannot filter instances server-side, so all
// of them come back; callers window the result. A row with a blank or
// non-numeric instance number is a data-integrity error, not a row to skip.
func (c *Client) ExportEncounterEvents(ctx context.Context, recordID string) ([]encounter.Event, error) {
	fields := []string{
		"record_id",
		c.cfg.TriggerField,
		c.cfg.DeterminationForm + "_complete",
		c.cfg.OrderForm + "_complete",
		c.cfg.RegistrationForm + "_complete",
		c.cfg.SwabDateField,
	}

	form := url.Values{}
	form.Set("content", "record")
	form.Set("format", "json")
	form.Set("type", "flat")
	form.Set("events", c.cfg.EncounterArm)
	form.Set("records", recordID)
	form.Set("fields", strings.Join(fields, ","))
	form.Set("rawOrLabel", "raw")
	form.Set("returnFormat", "json")

	body, err := c.post(ctx, "export_encounter_events", form, true)
	if err != nil {
		return nil, err
	}

	var rows []map[string]flexString
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode encounter export")
	}

	events := make([]encounter.Event, 0, len(rows))
	for _, row := range rows {
		event, err := c.parseEvent(row)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation,
				fmt.Sprintf("encounter export for record %s", recordID))
		}
		events = append(events, event)
	}
	return events, nil
}

// ImportDeterminationEvent writes a complete determination instance for a
// kiosk walk-in at the given repeat instance. The store reports how many
// records the import touched; anything but exactly one means the write did
// not do what we asked.
func (c *Client) ImportDeterminationEvent(ctx context.Context, recordID string, instance int) error {
	row := map[string]string{
		"record_id":              recordID,
		"redcap_event_name":      c.cfg.EncounterArm,
		"redcap_repeat_instance": strconv.Itoa(instance),
		c.cfg.TriggerField:       rawYes,
		c.cfg.VisitTypeField:     rawKioskWalkIn,
		c.cfg.VisitDateField:     c.clock().Format("2006-01-02 15:04:05"),
	}
	row[c.cfg.DeterminationForm+"_complete"] = rawComplete
	payload, err := json.Marshal([]map[string]string{row})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode determination import")
	}

	form := url.Values{}
	form.Set("content", "record")
	form.Set("format", "json")
	form.Set("type", "flat")
	form.Set("overwriteBehavior", "normal")
	form.Set("forceAutoNumber", "false")
	form.Set("data", string(payload))
	form.Set("returnContent", "ids")
	form.Set("returnFormat", "json")

	body, err := c.post(ctx, "import_determination_event", form, false)
	if err != nil {
		return err
	}

	var ids []flexString
	if err := json.Unmarshal(body, &ids); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode determination import response")
	}
	if len(ids) != 1 {
		return dErrors.Newf(dErrors.CodeInternal,
			"determination import updated %d records, expected 1", len(ids))
	}
	return nil
}

// SurveyLink asks the store to generate a one-time survey URL for the given
// instrument and event. Instance 0 means the instrument does not repeat.
func (c *Client) SurveyLink(ctx context.Context, recordID, eventName, instrument string, instance int) (string, error) {
	form := url.Values{}
	form.Set("content", "surveyLink")
	form.Set("format", "json")
	form.Set("instrument", instrument)
	form.Set("event", eventName)
	form.Set("record", recordID)
	form.Set("returnFormat", "json")
	if instance > 0 {
		form.Set("repeat_instance", strconv.Itoa(instance))
	}

	body, err := c.post(ctx, "survey_link", form, true)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// post sends one form-encoded API request. Requests marked retryable are
// retried up to MaxRetries times when the response carries the false-success
// marker; writes get a single attempt so a slow success is never repeated.
func (c *Client) post(ctx context.Context, function string, form url.Values, retryable bool) ([]byte, error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveStoreRequest(function, time.Since(start))
	}()

	form.Set("token", c.cfg.APIToken)
	attempts := 1
	if retryable {
		attempts += c.cfg.MaxRetries
	}

	var body []byte
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build record store request")
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "record store request")
		}
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read record store response")
		}

		if resp.StatusCode != http.StatusOK {
			return nil, dErrors.Newf(dErrors.CodeUnavailable,
				"record store returned %d for %s: %s", resp.StatusCode, function, truncate(body, 200))
		}
		if strings.Contains(string(body), falseSuccessMarker) {
			continue
		}
		return body, nil
	}

	return nil, dErrors.Wrap(sentinel.ErrRetryExhausted, dErrors.CodeUnavailable,
		fmt.Sprintf("record store kept returning false-success responses for %s", function))
}

func (c *Client) parseRecord(row map[string]flexString) (*directory.Record, error) {
	record := &directory.Record{
		RecordID:   string(row["record_id"]),
		NaturalKey: string(row[c.cfg.NaturalKeyField]),
	}

	var err error
	if record.EligibilityScreening, err = encounter.ParseFormStatus(string(row[c.cfg.EligibilityForm+"_complete"])); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "parse participant export")
	}
	if record.ConsentForm, err = encounter.ParseFormStatus(string(row[c.cfg.ConsentForm+"_complete"])); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "parse participant export")
	}
	if record.EnrollmentQuestionnaire, err = encounter.ParseFormStatus(string(row[c.cfg.EnrollmentForm+"_complete"])); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "parse participant export")
	}
	return record, nil
}

func (c *Client) parseEvent(row map[string]flexString) (encounter.Event, error) {
	raw, ok := row["redcap_repeat_instance"]
	if !ok || raw == "" {
		return encounter.Event{}, fmt.Errorf("event row missing repeat instance")
	}
	instance, err := strconv.Atoi(string(raw))
	if err != nil {
		return encounter.Event{}, fmt.Errorf("non-numeric repeat instance %q", string(raw))
	}

	event := encounter.Event{
		Instance:         instance,
		TestingTriggered: string(row[c.cfg.TriggerField]) == rawYes,
		SwabDate:         string(row[c.cfg.SwabDateField]),
	}
	if event.DeterminationStatus, err = encounter.ParseFormStatus(string(row[c.cfg.DeterminationForm+"_complete"])); err != nil {
		return encounter.Event{}, err
	}
	if event.OrderStatus, err = encounter.ParseFormStatus(string(row[c.cfg.OrderForm+"_complete"])); err != nil {
		return encounter.Event{}, err
	}
	if event.RegistrationStatus, err = encounter.ParseFormStatus(string(row[c.cfg.RegistrationForm+"_complete"])); err != nil {
		return encounter.Event{}, err
	}
	return event, nil
}

// flexString tolerates the store's habit of returning the same field as a
// JSON string in one export and a bare number in another.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
