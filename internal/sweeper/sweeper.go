// Package sweeper runs the two background maintenance loops: revoking
// expired consents and purging accounts whose deletion grace has lapsed.
// Each loop is owned by the process lifecycle: it starts on boot, stops on
// context cancellation, and a failed tick is logged and retried on the next
// tick, never fatal.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"datashare/internal/platform/metrics"
)

// ConsentSweeper revokes expired approvals.
type ConsentSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// AccountPurger removes accounts past their deletion date.
type AccountPurger interface {
	PurgeDue(ctx context.Context, now time.Time) (int, error)
}

// Sweeper schedules both maintenance loops.
type Sweeper struct {
	consents ConsentSweeper
	accounts AccountPurger
	metrics  *metrics.Metrics
	logger   *slog.Logger

	consentInterval time.Duration
	purgeInterval   time.Duration
}

func New(consents ConsentSweeper, accounts AccountPurger, m *metrics.Metrics, logger *slog.Logger, consentInterval, purgeInterval time.Duration) *Sweeper {
	return &Sweeper{
		consents:        consents,
		accounts:        accounts,
		metrics:         m,
		logger:          logger,
		consentInterval: consentInterval,
		purgeInterval:   purgeInterval,
	}
}

// Run blocks until ctx is canceled, ticking both sweeps on their own
// intervals. Both run once immediately so a restart does not extend an
// already-lapsed expiry.
func (s *Sweeper) Run(ctx context.Context) {
	consentTicker := time.NewTicker(s.consentInterval)
	defer consentTicker.Stop()
	purgeTicker := time.NewTicker(s.purgeInterval)
	defer purgeTicker.Stop()

	s.RunConsentSweep(ctx)
	s.RunPurgeSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-consentTicker.C:
			s.RunConsentSweep(ctx)
		case <-purgeTicker.C:
			s.RunPurgeSweep(ctx)
		}
	}
}

// RunConsentSweep executes one expiry sweep tick. Exported so tests and
// operational tooling can trigger a sweep without waiting on the ticker.
func (s *Sweeper) RunConsentSweep(ctx context.Context) {
	n, err := s.consents.SweepExpired(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "consent expiry sweep failed", "error", err)
		s.metrics.SweepRuns.WithLabelValues("consent_expiry", "error").Inc()
		return
	}
	s.metrics.SweepRuns.WithLabelValues("consent_expiry", "ok").Inc()
	s.metrics.ConsentsSwept.Add(float64(n))
	if n > 0 {
		s.logger.InfoContext(ctx, "expired consents revoked", "count", n)
	}
}

// RunPurgeSweep executes one account purge tick.
func (s *Sweeper) RunPurgeSweep(ctx context.Context) {
	n, err := s.accounts.PurgeDue(ctx, time.Now())
	if err != nil {
		s.logger.ErrorContext(ctx, "account purge sweep failed", "error", err)
		s.metrics.SweepRuns.WithLabelValues("account_purge", "error").Inc()
		return
	}
	s.metrics.SweepRuns.WithLabelValues("account_purge", "ok").Inc()
	s.metrics.AccountsPurged.Add(float64(n))
	if n > 0 {
		s.logger.InfoContext(ctx, "overdue accounts purged", "count", n)
	}
}
