// Package config builds the process configuration from environment variables
// so main stays lean. Everything is an explicit struct passed by reference;
// there are no lazily-initialized globals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// Study captures study-calendar configuration.
type Study struct {
	// StartDate is the date testing opened; repeat instance 1.
	StartDate time.Time
}

// RecordStore captures the external record store (REDCap-style API)
// configuration.
type RecordStore struct {
	APIURL   string
	APIToken string

	// BaseURL is the portal root used for data-entry deep links. Defaults to
	// the API URL with its trailing "api/" segment stripped.
	BaseURL string
	// Version is the portal version that appears in deep link paths.
	Version string

	ProjectID int
	// EventID is the numeric event identifier used in data-entry deep links.
	EventID int

	// EncounterArm is the unique event name of the repeating encounter arm.
	EncounterArm string
	// EnrollmentArm is the unique event name of the one-time enrollment arm.
	EnrollmentArm string

	// RegistrationForm is the page name of the kiosk registration instrument.
	RegistrationForm string
	// DeterminationForm is the instrument recording testing determinations.
	DeterminationForm string
	// OrderForm is the instrument recording completed test orders.
	OrderForm string
	// EligibilityForm heads the enrollment survey queue.
	EligibilityForm string
	// ConsentForm and EnrollmentForm round out the enrollment instruments.
	ConsentForm    string
	EnrollmentForm string
	// AttestationForm is the repeating daily check-in instrument enrolled
	// participants are redirected to.
	AttestationForm string

	// TriggerField is the determination field marking an instance as a
	// testing trigger. VisitTypeField and VisitDateField are filled in when
	// the gateway creates a determination for a walk-in.
	TriggerField   string
	VisitTypeField string
	VisitDateField string
	// SwabDateField is the registration field holding the swab date.
	SwabDateField string

	// NaturalKeyField is the record field holding the institutional
	// identifier participants are looked up by.
	NaturalKeyField string

	Timeout    time.Duration
	MaxRetries int

	// DryRun suppresses the determination-create write. Used by the test
	// project so walk-through runs leave no trace.
	DryRun bool

	// RequireSwabDate gates incomplete-registration detection on the swab
	// date field being filled in.
	RequireSwabDate bool
}

// Redis captures participant-cache configuration. An empty URL disables the
// Redis cache and falls back to the in-process one.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Audit captures check-in audit trail configuration.
type Audit struct {
	// Sink selects the audit destination: "memory", "postgres", or "kafka".
	Sink        string
	PostgresDSN string
	Brokers     []string
	Topic       string
	BufferSize  int
}

// Config is the full process configuration.
type Config struct {
	Server Server
	Study  Study
	Store  RecordStore
	Redis  Redis
	Audit  Audit
}

// FromEnv builds a Config from environment variables. The record store URL and
// token are hard requirements; everything else has a default.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr: envOr("KIOSKGW_ADDR", ":8080"),
		},
		Store: RecordStore{
			APIURL:            os.Getenv("RECORD_STORE_API_URL"),
			APIToken:          os.Getenv("RECORD_STORE_API_TOKEN"),
			BaseURL:           os.Getenv("RECORD_STORE_BASE_URL"),
			Version:           envOr("RECORD_STORE_VERSION", "13.1.0"),
			EncounterArm:      envOr("RECORD_STORE_ENCOUNTER_ARM", "encounter_arm_1"),
			EnrollmentArm:     envOr("RECORD_STORE_ENROLLMENT_ARM", "enrollment_arm_1"),
			RegistrationForm:  envOr("RECORD_STORE_REGISTRATION_FORM", "kiosk_registration"),
			DeterminationForm: envOr("RECORD_STORE_DETERMINATION_FORM", "testing_determination"),
			OrderForm:         envOr("RECORD_STORE_ORDER_FORM", "test_order_survey"),
			EligibilityForm:   envOr("RECORD_STORE_ELIGIBILITY_FORM", "eligibility_screening"),
			ConsentForm:       envOr("RECORD_STORE_CONSENT_FORM", "consent_form"),
			EnrollmentForm:    envOr("RECORD_STORE_ENROLLMENT_FORM", "enrollment_questionnaire"),
			AttestationForm:   envOr("RECORD_STORE_ATTESTATION_FORM", "daily_attestation"),
			TriggerField:      envOr("RECORD_STORE_TRIGGER_FIELD", "testing_trigger"),
			VisitTypeField:    envOr("RECORD_STORE_VISIT_TYPE_FIELD", "testing_type"),
			VisitDateField:    envOr("RECORD_STORE_VISIT_DATE_FIELD", "testing_date"),
			SwabDateField:     envOr("RECORD_STORE_SWAB_DATE_FIELD", "swab_date"),
			NaturalKeyField:   envOr("RECORD_STORE_NATURAL_KEY_FIELD", "netid"),
			Timeout:           envDurationOr("RECORD_STORE_TIMEOUT", 30*time.Second),
			MaxRetries:        envIntOr("RECORD_STORE_MAX_RETRIES", 10),
			DryRun:            os.Getenv("KIOSKGW_DRY_RUN") == "true",
			RequireSwabDate:   os.Getenv("KIOSKGW_REQUIRE_SWAB_DATE") == "true",
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Audit: Audit{
			Sink:        envOr("AUDIT_SINK", "memory"),
			PostgresDSN: os.Getenv("DATABASE_URL"),
			Brokers:     splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:       envOr("AUDIT_TOPIC", "kioskgw.checkins"),
			BufferSize:  envIntOr("AUDIT_BUFFER_SIZE", 256),
		},
	}

	if cfg.Store.APIURL == "" {
		return Config{}, fmt.Errorf("RECORD_STORE_API_URL is required")
	}
	if cfg.Store.APIToken == "" {
		return Config{}, fmt.Errorf("RECORD_STORE_API_TOKEN is required")
	}

	if cfg.Store.BaseURL == "" {
		cfg.Store.BaseURL = strings.TrimSuffix(cfg.Store.APIURL, "api/")
	}
	if !strings.HasSuffix(cfg.Store.BaseURL, "/") {
		cfg.Store.BaseURL += "/"
	}

	var err error
	if cfg.Store.ProjectID, err = envInt("RECORD_STORE_PROJECT_ID"); err != nil {
		return Config{}, err
	}
	if cfg.Store.EventID, err = envInt("RECORD_STORE_EVENT_ID"); err != nil {
		return Config{}, err
	}

	startDate := os.Getenv("STUDY_START_DATE")
	if startDate == "" {
		return Config{}, fmt.Errorf("STUDY_START_DATE is required")
	}
	cfg.Study.StartDate, err = time.Parse("2006-01-02", startDate)
	if err != nil {
		return Config{}, fmt.Errorf("parse STUDY_START_DATE: %w", err)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitNonEmpty(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
