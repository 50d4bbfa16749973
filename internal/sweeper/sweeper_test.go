package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datashare/internal/platform/metrics"
)

type fakeConsentSweeper struct {
	mu    sync.Mutex
	calls int
	n     int
	err   error
}

func (f *fakeConsentSweeper) SweepExpired(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.n, f.err
}

func (f *fakeConsentSweeper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePurger struct {
	mu    sync.Mutex
	calls int
	n     int
	err   error
}

func (f *fakePurger) PurgeDue(context.Context, time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.n, f.err
}

func (f *fakePurger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newSweeper(consents *fakeConsentSweeper, accounts *fakePurger) (*Sweeper, *metrics.Metrics) {
	m := metrics.NewWith(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(consents, accounts, m, logger, time.Hour, 24*time.Hour), m
}

func TestConsentSweepCountsRevocations(t *testing.T) {
	consents := &fakeConsentSweeper{n: 3}
	s, m := newSweeper(consents, &fakePurger{})

	s.RunConsentSweep(context.Background())

	assert.Equal(t, 1, consents.callCount())
	assert.InDelta(t, 3, testutil.ToFloat64(m.ConsentsSwept), 0.01)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SweepRuns.WithLabelValues("consent_expiry", "ok")), 0.01)
}

func TestConsentSweepErrorIsNotFatal(t *testing.T) {
	consents := &fakeConsentSweeper{err: errors.New("store down")}
	s, m := newSweeper(consents, &fakePurger{})

	s.RunConsentSweep(context.Background())
	s.RunConsentSweep(context.Background())

	assert.Equal(t, 2, consents.callCount())
	assert.InDelta(t, 2, testutil.ToFloat64(m.SweepRuns.WithLabelValues("consent_expiry", "error")), 0.01)
	assert.Zero(t, testutil.ToFloat64(m.ConsentsSwept))
}

func TestPurgeSweepCountsAccounts(t *testing.T) {
	accounts := &fakePurger{n: 2}
	s, m := newSweeper(&fakeConsentSweeper{}, accounts)

	s.RunPurgeSweep(context.Background())

	assert.Equal(t, 1, accounts.callCount())
	assert.InDelta(t, 2, testutil.ToFloat64(m.AccountsPurged), 0.01)
}

func TestRunSweepsImmediatelyAndStopsOnCancel(t *testing.T) {
	consents := &fakeConsentSweeper{}
	accounts := &fakePurger{}
	s, _ := newSweeper(consents, accounts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return consents.callCount() == 1 && accounts.callCount() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
