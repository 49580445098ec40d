// Command server runs the kiosk survey gateway: the enrollment redirect, the
// kiosk check-in flow, and their supporting cache, audit trail, and metrics.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq"

	"kioskgw/internal/audit"
	"kioskgw/internal/directory"
	"kioskgw/internal/kiosk"
	kioskhandler "kioskgw/internal/kiosk/handler"
	"kioskgw/internal/platform/config"
	"kioskgw/internal/platform/httpserver"
	"kioskgw/internal/platform/logger"
	"kioskgw/internal/platform/metrics"
	platformredis "kioskgw/internal/platform/redis"
	"kioskgw/internal/redcap"
	"kioskgw/internal/studyday"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kioskgw: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; production config comes from real env vars.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Participant cache: Redis when configured, in-process otherwise.
	var cache directory.Cache = directory.NewMemoryCache()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = directory.NewRedisCache(redisClient.Client)
		log.Info("participant cache backed by redis")
	} else {
		log.Info("participant cache in process memory")
	}

	sink, cleanup, err := buildAuditSink(ctx, cfg.Audit)
	if err != nil {
		return fmt.Errorf("configure audit sink: %w", err)
	}
	defer cleanup()
	log.Info("audit sink configured", "sink", cfg.Audit.Sink)

	publisher := audit.NewPublisher(cfg.Audit.BufferSize, log)
	worker := audit.NewWorker(sink, publisher.Events(), log)

	calendar := studyday.New(cfg.Study.StartDate)
	store := redcap.New(cfg.Store, m)
	dir := directory.NewService(store, cache, calendar, log, m,
		directory.WithDryRun(cfg.Store.DryRun))
	kioskService := kiosk.NewService(dir, calendar, publisher, log, m, cfg.Store)
	handler := kioskhandler.New(kioskService, log, m)

	router := chi.NewRouter()
	handler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := worker.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("audit worker: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting kioskgw", "addr", cfg.Server.Addr, "study_day", calendar.Today())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	log.Info("kioskgw stopped")
	return nil
}

// buildAuditSink picks the audit destination from configuration. The cleanup
// function releases whatever the sink holds open.
func buildAuditSink(ctx context.Context, cfg config.Audit) (audit.Sink, func(), error) {
	switch cfg.Sink {
	case "", "memory":
		return audit.NewMemorySink(), func() {}, nil

	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("audit sink postgres requires DATABASE_URL")
		}
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		sink := audit.NewPostgresSink(db)
		if err := sink.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return sink, func() { _ = db.Close() }, nil

	case "kafka":
		if len(cfg.Brokers) == 0 {
			return nil, nil, fmt.Errorf("audit sink kafka requires KAFKA_BROKERS")
		}
		sink, err := audit.NewKafkaSink(cfg.Brokers, cfg.Topic)
		if err != nil {
			return nil, nil, err
		}
		if err := sink.EnsureTopic(ctx, 1, 1); err != nil {
			sink.Close()
			return nil, nil, err
		}
		return sink, sink.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown audit sink %q", cfg.Sink)
	}
}
