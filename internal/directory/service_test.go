package directory

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kioskgw/internal/encounter"
	"kioskgw/internal/studyday"
	"kioskgw/pkg/platform/sentinel"
)

type fakeStore struct {
	findCalls     int
	findFunc      func(ctx context.Context, naturalKey string) (*Record, error)
	registerCalls int
	registerFunc  func(ctx context.Context, attrs map[string]string) (string, error)
	exportFunc    func(ctx context.Context, recordID string) ([]encounter.Event, error)
	importCalls   int
	importedAt    int
}

func (f *fakeStore) FindParticipant(ctx context.Context, naturalKey string) (*Record, error) {
	f.findCalls++
	if f.findFunc == nil {
		return nil, sentinel.ErrNotFound
	}
	return f.findFunc(ctx, naturalKey)
}

func (f *fakeStore) RegisterParticipant(ctx context.Context, attrs map[string]string) (string, error) {
	f.registerCalls++
	if f.registerFunc == nil {
		return "9999", nil
	}
	return f.registerFunc(ctx, attrs)
}

func (f *fakeStore) ExportEncounterEvents(ctx context.Context, recordID string) ([]encounter.Event, error) {
	if f.exportFunc == nil {
		return nil, nil
	}
	return f.exportFunc(ctx, recordID)
}

func (f *fakeStore) ImportDeterminationEvent(_ context.Context, _ string, instance int) error {
	f.importCalls++
	f.importedAt = instance
	return nil
}

func (f *fakeStore) SurveyLink(_ context.Context, _, _, instrument string, _ int) (string, error) {
	return "https://example.edu/surveys/?s=" + instrument, nil
}

func (f *fakeStore) DataEntryLink(recordID string, instance int) string {
	return "https://example.edu/entry/" + recordID
}

func enrolledRecord(naturalKey string) *Record {
	return &Record{
		RecordID:                "1234",
		NaturalKey:              naturalKey,
		EligibilityScreening:    encounter.StatusComplete,
		ConsentForm:             encounter.StatusComplete,
		EnrollmentQuestionnaire: encounter.StatusComplete,
	}
}

func newTestService(t *testing.T, store *fakeStore, opts ...Option) *Service {
	t.Helper()
	calendar := studyday.New(
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		studyday.WithClock(func() time.Time {
			return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		}),
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, NewMemoryCache(), calendar, logger, nil, opts...)
}

func TestFetchCachesEnrolledParticipants(t *testing.T) {
	store := &fakeStore{
		findFunc: func(_ context.Context, naturalKey string) (*Record, error) {
			return enrolledRecord(naturalKey), nil
		},
	}
	svc := newTestService(t, store)

	first, err := svc.Fetch(context.Background(), "jdoe")
	require.NoError(t, err)
	second, err := svc.Fetch(context.Background(), "jdoe")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.findCalls)
}

func TestFetchDoesNotCacheIncompleteEnrollment(t *testing.T) {
	store := &fakeStore{
		findFunc: func(_ context.Context, naturalKey string) (*Record, error) {
			return &Record{RecordID: "1234", NaturalKey: naturalKey}, nil
		},
	}
	svc := newTestService(t, store)

	_, err := svc.Fetch(context.Background(), "jdoe")
	require.NoError(t, err)
	_, err = svc.Fetch(context.Background(), "jdoe")
	require.NoError(t, err)

	assert.Equal(t, 2, store.findCalls)
}

func TestFetchPropagatesNotFound(t *testing.T) {
	svc := newTestService(t, &fakeStore{})

	_, err := svc.Fetch(context.Background(), "nobody")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestFetchOrRegisterReturnsExisting(t *testing.T) {
	store := &fakeStore{
		findFunc: func(_ context.Context, naturalKey string) (*Record, error) {
			return enrolledRecord(naturalKey), nil
		},
	}
	svc := newTestService(t, store)

	record, err := svc.FetchOrRegister(context.Background(), "jdoe", map[string]string{"netid": "jdoe"})
	require.NoError(t, err)

	assert.Equal(t, "1234", record.RecordID)
	assert.Equal(t, 0, store.registerCalls)
}

func TestFetchOrRegisterRegistersNew(t *testing.T) {
	var registered map[string]string
	store := &fakeStore{
		registerFunc: func(_ context.Context, attrs map[string]string) (string, error) {
			registered = attrs
			return "9999", nil
		},
	}
	svc := newTestService(t, store)

	attrs := map[string]string{"netid": "jdoe", "core_participant_first_name": "Jo"}
	record, err := svc.FetchOrRegister(context.Background(), "jdoe", attrs)
	require.NoError(t, err)

	assert.Equal(t, "9999", record.RecordID)
	assert.Equal(t, "jdoe", record.NaturalKey)
	assert.False(t, record.RegistrationComplete())
	assert.Equal(t, attrs, registered)
}

func TestFetchRecentEventsWindowsHistory(t *testing.T) {
	// Study day 30; window start is 23.
	store := &fakeStore{
		exportFunc: func(_ context.Context, _ string) ([]encounter.Event, error) {
			return []encounter.Event{
				{Instance: 5, TestingTriggered: true},
				{Instance: 23},
				{Instance: 29, TestingTriggered: true},
			}, nil
		},
	}
	svc := newTestService(t, store)

	window, err := svc.FetchRecentEvents(context.Background(), enrolledRecord("jdoe"))
	require.NoError(t, err)

	require.Len(t, window.Events, 2)
	assert.Equal(t, 23, window.Events[0].Instance)
	assert.Equal(t, 29, window.Events[1].Instance)
}

func TestCreateDeterminationEventWritesToday(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store)

	err := svc.CreateDeterminationEvent(context.Background(), enrolledRecord("jdoe"))
	require.NoError(t, err)

	assert.Equal(t, 1, store.importCalls)
	assert.Equal(t, 30, store.importedAt)
}

func TestCreateDeterminationEventDryRun(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store, WithDryRun(true))

	err := svc.CreateDeterminationEvent(context.Background(), enrolledRecord("jdoe"))
	require.NoError(t, err)

	assert.Equal(t, 0, store.importCalls)
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	cache := NewMemoryCache()
	record := enrolledRecord("jdoe")
	require.NoError(t, cache.Set(context.Background(), "jdoe", record))

	got, err := cache.Get(context.Background(), "jdoe")
	require.NoError(t, err)
	got.RecordID = "mutated"

	again, err := cache.Get(context.Background(), "jdoe")
	require.NoError(t, err)
	assert.Equal(t, "1234", again.RecordID)
}

func TestMemoryCacheMiss(t *testing.T) {
	cache := NewMemoryCache()

	_, err := cache.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
