// Command server wires the datashare process: stores, services, HTTP
// handlers, and the background sweeps. Business logic lives in the internal
// services; main only selects implementations from config and connects them.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"datashare/internal/access"
	"datashare/internal/admin"
	adminhandler "datashare/internal/admin/handler"
	"datashare/internal/audit"
	"datashare/internal/blob"
	"datashare/internal/consent"
	consenthandler "datashare/internal/consent/handler"
	"datashare/internal/identity"
	identityhandler "datashare/internal/identity/handler"
	"datashare/internal/notify"
	"datashare/internal/platform/config"
	"datashare/internal/platform/httpserver"
	"datashare/internal/platform/logger"
	"datashare/internal/platform/metrics"
	"datashare/internal/platform/postgres"
	"datashare/internal/platform/redis"
	"datashare/internal/record"
	recordhandler "datashare/internal/record/handler"
	"datashare/internal/report"
	reporthandler "datashare/internal/report/handler"
	"datashare/internal/sweeper"
	"datashare/internal/token"
	"datashare/internal/token/revocation"
	"datashare/pkg/platform/httputil"
)

const (
	auditBufferSize = 256
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		userStore    identity.Store
		recordStore  record.Store
		consentStore consent.Store
		reportStore  report.Store
		auditStore   audit.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		userStore = identity.NewPostgresStore(db)
		recordStore = record.NewPostgresStore(db)
		consentStore = consent.NewPostgresStore(db)
		reportStore = report.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
	} else {
		log.Warn("DATABASE_URL not set, running on in-memory stores")
		userStore = identity.NewInMemoryStore()
		recordStore = record.NewInMemoryStore()
		consentStore = consent.NewInMemoryStore()
		reportStore = report.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
	}

	// Token denylist. Redis shares revocation state across instances; the
	// in-process fallback is single-instance only.
	var revocations revocation.Store
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		revocations = revocation.NewRedisStore(redisClient.Client)
		log.Info("token revocation backed by redis")
	} else {
		revocations = revocation.NewMemoryStore()
	}

	auditOpts := []audit.Option{
		audit.WithAsyncBuffer(auditBufferSize),
		audit.WithDropCounter(m.AuditDropped.Inc),
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("kafka audit sink failed", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		auditOpts = append(auditOpts, audit.WithSink(sink))
		log.Info("audit events fan out to kafka", "topic", cfg.AuditTopic)
	}
	auditor := audit.NewPublisher(auditStore, log, auditOpts...)
	defer auditor.Close()

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if cfg.SMTP.Host != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTP)
	}
	dispatcher := notify.NewDispatcher(notifier, log, func(template string, ok bool) {
		outcome := "ok"
		if !ok {
			outcome = "error"
		}
		m.Notifications.WithLabelValues(template, outcome).Inc()
	})
	defer dispatcher.Close()

	tokens := token.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.TokenTTL)
	validator := token.NewMiddlewareAdapter(tokens)

	blobs := blob.NewRouter(blob.NewMemoryStore(), blob.NewHTTPFetcher(cfg.BlobFetchTimeout))

	recordSvc := record.NewService(recordStore, blobs, auditor, log)
	identitySvc := identity.NewService(userStore, tokens, revocations, recordSvc, dispatcher, auditor, log, cfg.AccountDeletionGrace)
	consentSvc := consent.NewService(consentStore, recordStore, userStore, dispatcher, auditor, log, cfg.ConsentGraceWindow)
	gate := access.NewGate(recordStore, consentStore)
	reportSvc := report.NewService(reportStore, identitySvc, identitySvc, auditor, log)
	adminSvc := admin.NewService(identitySvc, recordSvc, consentSvc, reportSvc)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "")
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/api", func(api chi.Router) {
		identityhandler.New(identitySvc, tokens, revocations, log, m, validator, revocations).Register(api)
		recordhandler.New(recordSvc, gate, consentSvc, identitySvc, auditor, log, m, validator, revocations).Register(api)
		consenthandler.New(consentSvc, log, m, validator, revocations).Register(api)
		reporthandler.New(reportSvc, log, m, validator, revocations).Register(api)
		adminhandler.New(identitySvc, recordSvc, consentSvc, reportSvc, auditStore, adminSvc, log, m, validator, revocations).Register(api)
	})

	sweeps := sweeper.New(consentSvc, identitySvc, m, log, cfg.ConsentSweepInterval, cfg.AccountPurgeInterval)
	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sweeps.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("datashare listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
