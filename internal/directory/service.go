// Package directory is the participant directory: fetch-or-register by
// natural key, a read-through cache of fully-enrolled participants, and the
// encounter-history and determination operations the kiosk flow needs.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"kioskgw/internal/encounter"
	"kioskgw/internal/platform/metrics"
	"kioskgw/internal/studyday"
	"kioskgw/pkg/platform/sentinel"
	"kioskgw/pkg/requestcontext"
)

// Store is the external record store the directory is backed by.
type Store interface {
	FindParticipant(ctx context.Context, naturalKey string) (*Record, error)
	RegisterParticipant(ctx context.Context, attrs map[string]string) (string, error)
	ExportEncounterEvents(ctx context.Context, recordID string) ([]encounter.Event, error)
	ImportDeterminationEvent(ctx context.Context, recordID string, instance int) error
	SurveyLink(ctx context.Context, recordID, eventName, instrument string, instance int) (string, error)
	DataEntryLink(recordID string, instance int) string
}

// Cache stores participant records by natural key. Implementations return
// sentinel.ErrNotFound on a miss.
type Cache interface {
	Get(ctx context.Context, naturalKey string) (*Record, error)
	Set(ctx context.Context, naturalKey string, record *Record) error
}

// Service is the participant directory.
type Service struct {
	store    Store
	cache    Cache
	calendar *studyday.Calendar
	logger   *slog.Logger
	metrics  *metrics.Metrics
	group    singleflight.Group

	// dryRun suppresses determination writes so walk-through runs against the
	// test project leave no trace.
	dryRun bool
}

// Option customizes a Service.
type Option func(*Service)

// WithDryRun suppresses determination-event writes.
func WithDryRun(dryRun bool) Option {
	return func(s *Service) { s.dryRun = dryRun }
}

// NewService builds a participant directory over the given store and cache.
func NewService(store Store, cache Cache, calendar *studyday.Calendar, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cache:    cache,
		calendar: calendar,
		logger:   logger,
		metrics:  m,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the participant record for the given natural key, consulting
// the cache first. Only fully-enrolled records are cached: enrollment status
// can still change for everyone else, and a stale incomplete record would
// keep bouncing an enrolled participant back to the survey queue.
// Returns sentinel.ErrNotFound when no record exists.
func (s *Service) Fetch(ctx context.Context, naturalKey string) (*Record, error) {
	if record, err := s.cache.Get(ctx, naturalKey); err == nil {
		s.metrics.IncrementCacheLookup("hit")
		return record, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "participant cache read failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	s.metrics.IncrementCacheLookup("miss")

	// Concurrent kiosk scans for the same participant collapse into one
	// store round trip.
	value, err, _ := s.group.Do("fetch:"+naturalKey, func() (any, error) {
		record, err := s.store.FindParticipant(ctx, naturalKey)
		if err != nil {
			return nil, err
		}
		if record.RegistrationComplete() {
			if err := s.cache.Set(ctx, naturalKey, record); err != nil {
				s.logger.WarnContext(ctx, "participant cache write failed",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
			}
		}
		return record, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Record), nil
}

// FetchOrRegister returns the existing record for the given natural key, or
// registers a new one carrying the given identity attributes. Registration is
// idempotent per key within this process; the store's natural-key uniqueness
// backstops the rest.
func (s *Service) FetchOrRegister(ctx context.Context, naturalKey string, attrs map[string]string) (*Record, error) {
	record, err := s.Fetch(ctx, naturalKey)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	value, err, _ := s.group.Do("register:"+naturalKey, func() (any, error) {
		// Re-check inside the flight: a concurrent caller may have
		// registered while we waited.
		record, err := s.store.FindParticipant(ctx, naturalKey)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}

		recordID, err := s.store.RegisterParticipant(ctx, attrs)
		if err != nil {
			return nil, fmt.Errorf("register participant: %w", err)
		}
		s.logger.InfoContext(ctx, "registered new participant",
			"request_id", requestcontext.RequestID(ctx),
			"record_id", recordID,
		)
		return &Record{RecordID: recordID, NaturalKey: naturalKey}, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Record), nil
}

// FetchRecentEvents exports the participant's encounter history and windows
// it to the trailing seven study days.
func (s *Service) FetchRecentEvents(ctx context.Context, record *Record) (encounter.Window, error) {
	events, err := s.store.ExportEncounterEvents(ctx, record.RecordID)
	if err != nil {
		return encounter.Window{}, err
	}
	return encounter.NewWindow(events, s.calendar.WindowStart()), nil
}

// CreateDeterminationEvent writes a walk-in determination at today's
// instance. In dry-run mode the write is skipped but logged, so the routing
// outcome is still observable.
func (s *Service) CreateDeterminationEvent(ctx context.Context, record *Record) error {
	today := s.calendar.Today()
	if s.dryRun {
		s.logger.InfoContext(ctx, "dry run: skipping determination create",
			"request_id", requestcontext.RequestID(ctx),
			"record_id", record.RecordID,
			"instance", today,
		)
		return nil
	}
	return s.store.ImportDeterminationEvent(ctx, record.RecordID, today)
}

// SurveyLink generates a survey URL for the given instrument and event.
func (s *Service) SurveyLink(ctx context.Context, record *Record, eventName, instrument string, instance int) (string, error) {
	return s.store.SurveyLink(ctx, record.RecordID, eventName, instrument, instance)
}

// RegistrationLink builds the data-entry deep link to the kiosk registration
// instrument at the given instance.
func (s *Service) RegistrationLink(record *Record, instance int) string {
	return s.store.DataEntryLink(record.RecordID, instance)
}
