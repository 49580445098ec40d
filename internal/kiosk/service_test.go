package kiosk

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kioskgw/internal/audit"
	"kioskgw/internal/directory"
	"kioskgw/internal/encounter"
	"kioskgw/internal/identity"
	"kioskgw/internal/platform/config"
	"kioskgw/internal/studyday"
	dErrors "kioskgw/pkg/domain-errors"
	"kioskgw/pkg/platform/sentinel"
)

type fakeDirectory struct {
	record       *directory.Record
	fetchErr     error
	events       []encounter.Event
	registered   map[string]string
	created      int
	surveyLinks  []string
	surveyCalled []string
}

func (f *fakeDirectory) Fetch(_ context.Context, naturalKey string) (*directory.Record, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.record == nil {
		return nil, sentinel.ErrNotFound
	}
	return f.record, nil
}

func (f *fakeDirectory) FetchOrRegister(ctx context.Context, naturalKey string, attrs map[string]string) (*directory.Record, error) {
	if f.record != nil {
		return f.record, nil
	}
	f.registered = attrs
	return &directory.Record{RecordID: "9999", NaturalKey: naturalKey}, nil
}

func (f *fakeDirectory) FetchRecentEvents(context.Context, *directory.Record) (encounter.Window, error) {
	return encounter.Window{Events: f.events}, nil
}

func (f *fakeDirectory) CreateDeterminationEvent(context.Context, *directory.Record) error {
	f.created++
	return nil
}

func (f *fakeDirectory) SurveyLink(_ context.Context, _ *directory.Record, eventName, instrument string, instance int) (string, error) {
	f.surveyCalled = append(f.surveyCalled, fmt.Sprintf("%s/%s/%d", eventName, instrument, instance))
	return "https://store.example.edu/surveys/?s=" + instrument, nil
}

func (f *fakeDirectory) RegistrationLink(record *directory.Record, instance int) string {
	return fmt.Sprintf("https://store.example.edu/entry/%s/%d", record.RecordID, instance)
}

func enrolled() *directory.Record {
	return &directory.Record{
		RecordID:                "1234",
		NaturalKey:              "jdoe",
		EligibilityScreening:    encounter.StatusComplete,
		ConsentForm:             encounter.StatusComplete,
		EnrollmentQuestionnaire: encounter.StatusComplete,
	}
}

// Study day 30 throughout: start Aug 1, "now" Aug 30.
func newTestService(t *testing.T, dir *fakeDirectory) (*Service, *audit.MemorySink, func()) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	calendar := studyday.New(
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		studyday.WithClock(func() time.Time {
			return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		}),
	)
	publisher := audit.NewPublisher(16, logger)
	sink := audit.NewMemorySink()
	worker := audit.NewWorker(sink, publisher.Events(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()
	stop := func() {
		cancel()
		<-done
	}

	cfg := config.RecordStore{
		EncounterArm:    "encounter_arm_1",
		EnrollmentArm:   "enrollment_arm_1",
		EligibilityForm: "eligibility_screening",
		AttestationForm: "daily_attestation",
		NaturalKeyField: "netid",
	}
	return NewService(dir, calendar, publisher, logger, nil, cfg), sink, stop
}

func TestCheckInUnknownKey(t *testing.T) {
	svc, sink, stop := newTestService(t, &fakeDirectory{})

	result, err := svc.CheckIn(context.Background(), "nobody")
	require.NoError(t, err)

	assert.Equal(t, OutcomeRegistrationRequired, result.Outcome)
	assert.False(t, result.RecordExists)

	stop()
	events := sink.List()
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeRegistrationRequired, events[0].Outcome)
}

func TestCheckInIncompleteEnrollment(t *testing.T) {
	dir := &fakeDirectory{record: &directory.Record{
		RecordID:             "1234",
		NaturalKey:           "jdoe",
		EligibilityScreening: encounter.StatusComplete,
	}}
	svc, _, stop := newTestService(t, dir)
	defer stop()

	result, err := svc.CheckIn(context.Background(), "jdoe")
	require.NoError(t, err)

	assert.Equal(t, OutcomeRegistrationRequired, result.Outcome)
	assert.True(t, result.RecordExists)
}

func TestCheckInSanitizesKey(t *testing.T) {
	dir := &fakeDirectory{}
	svc, sink, stop := newTestService(t, dir)

	result, err := svc.CheckIn(context.Background(), " j.doe!\n")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", result.NaturalKey)

	stop()
	assert.Equal(t, "jdoe", sink.List()[0].NaturalKey)
}

func TestCheckInRejectsEmptyKey(t *testing.T) {
	svc, _, stop := newTestService(t, &fakeDirectory{})
	defer stop()

	_, err := svc.CheckIn(context.Background(), "!!!")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestCheckInEmptyWindowCreatesDetermination(t *testing.T) {
	dir := &fakeDirectory{record: enrolled()}
	svc, sink, stop := newTestService(t, dir)

	result, err := svc.CheckIn(context.Background(), "jdoe")
	require.NoError(t, err)

	assert.Equal(t, OutcomeDestination, result.Outcome)
	assert.Equal(t, 30, result.Instance)
	assert.Equal(t, "https://store.example.edu/entry/1234/30", result.Destination)
	assert.Equal(t, 1, dir.created)

	stop()
	events := sink.List()
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeDestination, events[0].Outcome)
	assert.Equal(t, 30, events[0].Instance)
}

func TestCheckInRoutesToFreshRegistrationAtTarget(t *testing.T) {
	dir := &fakeDirectory{
		record: enrolled(),
		events: []encounter.Event{
			{Instance: 27, TestingTriggered: true, DeterminationStatus: encounter.StatusComplete},
		},
	}
	svc, _, stop := newTestService(t, dir)
	defer stop()

	result, err := svc.CheckIn(context.Background(), "jdoe")
	require.NoError(t, err)

	assert.Equal(t, OutcomeDestination, result.Outcome)
	assert.Equal(t, 27, result.Instance)
	assert.Equal(t, 0, dir.created)
}

func TestCheckInResumesIncompleteRegistration(t *testing.T) {
	dir := &fakeDirectory{
		record: enrolled(),
		events: []encounter.Event{
			{Instance: 26, TestingTriggered: true},
			{Instance: 28, RegistrationStatus: encounter.StatusIncomplete},
		},
	}
	svc, _, stop := newTestService(t, dir)
	defer stop()

	result, err := svc.CheckIn(context.Background(), "jdoe")
	require.NoError(t, err)

	assert.Equal(t, OutcomeDestination, result.Outcome)
	assert.Equal(t, 28, result.Instance)
	assert.Equal(t, 0, dir.created)
}

func TestCheckInAlreadyTestedToday(t *testing.T) {
	dir := &fakeDirectory{
		record: enrolled(),
		events: []encounter.Event{
			{Instance: 29, TestingTriggered: true},
			{Instance: 30, OrderStatus: encounter.StatusComplete},
		},
	}
	svc, sink, stop := newTestService(t, dir)

	result, err := svc.CheckIn(context.Background(), "jdoe")
	require.NoError(t, err)

	assert.Equal(t, OutcomeAlreadyTested, result.Outcome)
	assert.Equal(t, 0, dir.created)

	stop()
	assert.Equal(t, audit.OutcomeAlreadyTested, sink.List()[0].Outcome)
}

func TestCheckInCompletedCycleStartsNewDetermination(t *testing.T) {
	dir := &fakeDirectory{
		record: enrolled(),
		events: []encounter.Event{
			{Instance: 25, TestingTriggered: true},
			{Instance: 26, RegistrationStatus: encounter.StatusComplete},
			{Instance: 26, OrderStatus: encounter.StatusComplete},
		},
	}
	svc, _, stop := newTestService(t, dir)
	defer stop()

	result, err := svc.CheckIn(context.Background(), "jdoe")
	require.NoError(t, err)

	assert.Equal(t, OutcomeDestination, result.Outcome)
	assert.Equal(t, 30, result.Instance)
	assert.Equal(t, 1, dir.created)
}

func TestCheckInStoreErrorAudited(t *testing.T) {
	dir := &fakeDirectory{fetchErr: dErrors.New(dErrors.CodeUnavailable, "store down")}
	svc, sink, stop := newTestService(t, dir)

	_, err := svc.CheckIn(context.Background(), "jdoe")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))

	stop()
	events := sink.List()
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeError, events[0].Outcome)
	assert.Contains(t, events[0].Detail, "store down")
}

func TestEnrollNewParticipantGetsEligibilitySurvey(t *testing.T) {
	dir := &fakeDirectory{}
	svc, _, stop := newTestService(t, dir)
	defer stop()

	attrs := identity.Attributes{
		RemoteUser:   "jdoe",
		Email:        "jdoe@example.edu",
		Affiliations: []string{"member", "student"},
	}
	enrollment, err := svc.Enroll(context.Background(), attrs)
	require.NoError(t, err)

	assert.Equal(t, "https://store.example.edu/surveys/?s=eligibility_screening", enrollment.RedirectURL)
	assert.Equal(t, "jdoe", dir.registered["netid"])
	assert.Equal(t, "student", dir.registered["affiliation"])
	require.Len(t, dir.surveyCalled, 1)
	assert.Equal(t, "enrollment_arm_1/eligibility_screening/0", dir.surveyCalled[0])
}

func TestEnrollEnrolledParticipantGetsTodaysAttestation(t *testing.T) {
	dir := &fakeDirectory{record: enrolled()}
	svc, _, stop := newTestService(t, dir)
	defer stop()

	enrollment, err := svc.Enroll(context.Background(), identity.Attributes{RemoteUser: "jdoe"})
	require.NoError(t, err)

	assert.Equal(t, "https://store.example.edu/surveys/?s=daily_attestation", enrollment.RedirectURL)
	require.Len(t, dir.surveyCalled, 1)
	assert.Equal(t, "encounter_arm_1/daily_attestation/30", dir.surveyCalled[0])
}

func TestEnrollFirstStudyDayShowsWelcome(t *testing.T) {
	dir := &fakeDirectory{record: enrolled()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	calendar := studyday.New(
		time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		studyday.WithClock(func() time.Time {
			return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		}),
	)
	publisher := audit.NewPublisher(16, logger)
	svc := NewService(dir, calendar, publisher, logger, nil, config.RecordStore{NaturalKeyField: "netid"})

	enrollment, err := svc.Enroll(context.Background(), identity.Attributes{RemoteUser: "jdoe"})
	require.NoError(t, err)

	assert.True(t, enrollment.Welcome)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), enrollment.CheckinsStart)
	assert.Empty(t, dir.surveyCalled)
}

func TestEnrollRequiresRemoteUser(t *testing.T) {
	svc, _, stop := newTestService(t, &fakeDirectory{})
	defer stop()

	_, err := svc.Enroll(context.Background(), identity.Attributes{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
