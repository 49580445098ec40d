// Package kiosk orchestrates the two participant-facing flows: the kiosk
// walk-in check-in and the authenticated enrollment redirect.
package kiosk

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kioskgw/internal/audit"
	"kioskgw/internal/directory"
	"kioskgw/internal/encounter"
	"kioskgw/internal/identity"
	"kioskgw/internal/platform/config"
	"kioskgw/internal/platform/metrics"
	"kioskgw/internal/resolve"
	"kioskgw/internal/studyday"
	dErrors "kioskgw/pkg/domain-errors"
	"kioskgw/pkg/platform/sentinel"
	"kioskgw/pkg/requestcontext"
)

// Directory is the participant directory the kiosk flows run against.
type Directory interface {
	Fetch(ctx context.Context, naturalKey string) (*directory.Record, error)
	FetchOrRegister(ctx context.Context, naturalKey string, attrs map[string]string) (*directory.Record, error)
	FetchRecentEvents(ctx context.Context, record *directory.Record) (encounter.Window, error)
	CreateDeterminationEvent(ctx context.Context, record *directory.Record) error
	SurveyLink(ctx context.Context, record *directory.Record, eventName, instrument string, instance int) (string, error)
	RegistrationLink(record *directory.Record, instance int) string
}

// Service implements the check-in and enrollment flows.
type Service struct {
	directory Directory
	calendar  *studyday.Calendar
	audit     *audit.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	cfg config.RecordStore
}

// NewService builds the kiosk service.
func NewService(dir Directory, calendar *studyday.Calendar, publisher *audit.Publisher, logger *slog.Logger, m *metrics.Metrics, cfg config.RecordStore) *Service {
	return &Service{
		directory: dir,
		calendar:  calendar,
		audit:     publisher,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("kioskgw/internal/kiosk"),
		cfg:       cfg,
	}
}

// CheckIn resolves a kiosk lookup for the given raw key into a routing
// outcome. Exactly one of three things comes back: a registration deep link,
// a registration-required notice, or an already-tested notice.
func (s *Service) CheckIn(ctx context.Context, rawKey string) (*CheckIn, error) {
	ctx, span := s.tracer.Start(ctx, "kiosk.CheckIn")
	defer span.End()

	naturalKey := identity.SanitizeKey(rawKey)
	if naturalKey == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "missing or unusable lookup key")
	}

	result, err := s.checkIn(ctx, naturalKey)
	if err != nil {
		span.RecordError(err)
		s.metrics.IncrementCheckinOutcome(audit.OutcomeError)
		s.audit.Emit(ctx, audit.Event{
			NaturalKey: naturalKey,
			Outcome:    audit.OutcomeError,
			Detail:     err.Error(),
		})
		return nil, err
	}

	span.SetAttributes(
		attribute.String("checkin.outcome", string(result.Outcome)),
		attribute.Int("checkin.instance", result.Instance),
	)
	s.metrics.IncrementCheckinOutcome(string(result.Outcome))
	return result, nil
}

func (s *Service) checkIn(ctx context.Context, naturalKey string) (*CheckIn, error) {
	record, err := s.directory.Fetch(ctx, naturalKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.audit.Emit(ctx, audit.Event{
			NaturalKey: naturalKey,
			Outcome:    audit.OutcomeRegistrationRequired,
		})
		return &CheckIn{Outcome: OutcomeRegistrationRequired, NaturalKey: naturalKey}, nil
	}
	if err != nil {
		return nil, err
	}

	if !record.RegistrationComplete() {
		s.audit.Emit(ctx, audit.Event{
			NaturalKey: naturalKey,
			RecordID:   record.RecordID,
			Outcome:    audit.OutcomeRegistrationRequired,
		})
		return &CheckIn{
			Outcome:      OutcomeRegistrationRequired,
			NaturalKey:   naturalKey,
			RecordExists: true,
		}, nil
	}

	window, err := s.directory.FetchRecentEvents(ctx, record)
	if err != nil {
		return nil, err
	}

	markers, err := resolve.ExtractMarkers(window, resolve.Options{
		RequireSwabDate: s.cfg.RequireSwabDate,
	})
	if err != nil {
		return nil, err
	}

	today := s.calendar.Today()

	// One test per participant per day.
	if markers.CompleteOrder != nil && *markers.CompleteOrder == today {
		s.audit.Emit(ctx, audit.Event{
			NaturalKey: naturalKey,
			RecordID:   record.RecordID,
			Outcome:    audit.OutcomeAlreadyTested,
		})
		return &CheckIn{
			Outcome:      OutcomeAlreadyTested,
			NaturalKey:   naturalKey,
			RecordExists: true,
		}, nil
	}

	resolution, err := resolve.Resolve(markers, today)
	if err != nil {
		return nil, err
	}

	if resolution.Action == resolve.ActionCreateDetermination {
		if err := s.directory.CreateDeterminationEvent(ctx, record); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "resolved kiosk check-in",
		"request_id", requestcontext.RequestID(ctx),
		"record_id", record.RecordID,
		"action", resolution.Action.String(),
		"instance", resolution.Instance,
	)
	s.audit.Emit(ctx, audit.Event{
		NaturalKey: naturalKey,
		RecordID:   record.RecordID,
		Outcome:    audit.OutcomeDestination,
		Instance:   resolution.Instance,
	})

	return &CheckIn{
		Outcome:      OutcomeDestination,
		NaturalKey:   naturalKey,
		RecordExists: true,
		Instance:     resolution.Instance,
		Destination:  s.directory.RegistrationLink(record, resolution.Instance),
	}, nil
}

// Enroll handles an authenticated enrollment visit: fetch-or-register the
// participant, then point them at the next survey in their queue. Enrolled
// participants go to today's attestation instead; the store's survey queue
// handles everything in between.
func (s *Service) Enroll(ctx context.Context, attrs identity.Attributes) (*Enrollment, error) {
	ctx, span := s.tracer.Start(ctx, "kiosk.Enroll")
	defer span.End()

	naturalKey := identity.SanitizeKey(attrs.RemoteUser)
	if naturalKey == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no remote user on request")
	}

	record, err := s.directory.FetchOrRegister(ctx, naturalKey, attrs.StoreFields(s.cfg.NaturalKeyField))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	eventName := s.cfg.EnrollmentArm
	instrument := s.cfg.EligibilityForm
	instance := 0

	if record.RegistrationComplete() {
		today := s.calendar.Today()
		if today <= 0 {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
				"study day %d is before the study start", today)
		}
		if today == 1 {
			s.audit.Emit(ctx, audit.Event{
				NaturalKey: naturalKey,
				RecordID:   record.RecordID,
				Outcome:    audit.OutcomeEnrollmentRedirect,
				Detail:     "welcome",
			})
			return &Enrollment{
				Welcome:       true,
				CheckinsStart: s.calendar.Start().AddDate(0, 0, 1),
			}, nil
		}
		eventName = s.cfg.EncounterArm
		instrument = s.cfg.AttestationForm
		instance = today
	}

	link, err := s.directory.SurveyLink(ctx, record, eventName, instrument, instance)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.audit.Emit(ctx, audit.Event{
		NaturalKey: naturalKey,
		RecordID:   record.RecordID,
		Outcome:    audit.OutcomeEnrollmentRedirect,
		Instance:   instance,
		Detail:     instrument,
	})
	return &Enrollment{RedirectURL: link}, nil
}
