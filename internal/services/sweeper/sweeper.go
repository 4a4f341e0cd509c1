// Package sweeper runs the periodic housekeeping that keeps stock and
// requests current: expiring donations past their shelf life, expiring
// overdue requests, refreshing request priorities and regenerating alerts.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bloodbank/bloodbank/internal/services/inventory"
	"github.com/bloodbank/bloodbank/internal/util"
)

// Donations expires stale donations.
type Donations interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Requests expires overdue requests and refreshes priorities.
type Requests interface {
	ExpireOverdue(ctx context.Context) (int, error)
	Reprioritize(ctx context.Context) (int, error)
}

// Alerts sweeps every ledger.
type Alerts interface {
	SweepAlerts(ctx context.Context) ([]inventory.SweepResult, error)
}

// Report summarizes one sweep.
type Report struct {
	StartedAt        time.Time
	Duration         time.Duration
	ExpiredDonations int
	ExpiredRequests  int
	Reprioritized    int
	ExpiredUnits     int
	AlertsRaised     int
	Err              error
}

// Sweeper runs the housekeeping steps on an interval.
type Sweeper struct {
	donations Donations
	requests  Requests
	alerts    Alerts
	interval  time.Duration
	clock     util.Clock
	logger    *slog.Logger

	mu   sync.Mutex
	last *Report
}

// New creates a sweeper. A non-positive interval defaults to 15 minutes.
func New(donations Donations, requests Requests, alerts Alerts, interval time.Duration, clock util.Clock, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if clock == nil {
		clock = util.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		donations: donations,
		requests:  requests,
		alerts:    alerts,
		interval:  interval,
		clock:     clock,
		logger:    logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("sweeper started", "interval", s.interval)
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. A failing step is logged and recorded in
// the report; the remaining steps still run.
func (s *Sweeper) RunOnce(ctx context.Context) Report {
	report := Report{StartedAt: s.clock.Now()}
	start := time.Now()
	var errs []error

	n, err := s.donations.ExpireStale(ctx)
	report.ExpiredDonations = n
	if err != nil {
		errs = append(errs, fmt.Errorf("expiring donations: %w", err))
	}

	n, err = s.requests.ExpireOverdue(ctx)
	report.ExpiredRequests = n
	if err != nil {
		errs = append(errs, fmt.Errorf("expiring requests: %w", err))
	}

	n, err = s.requests.Reprioritize(ctx)
	report.Reprioritized = n
	if err != nil {
		errs = append(errs, fmt.Errorf("reprioritizing requests: %w", err))
	}

	results, err := s.alerts.SweepAlerts(ctx)
	for _, r := range results {
		report.ExpiredUnits += r.ExpiredUnits
		report.AlertsRaised += r.Raised
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("sweeping alerts: %w", err))
	}

	report.Duration = time.Since(start)
	report.Err = errors.Join(errs...)

	if report.Err != nil {
		s.logger.Error("sweep failed", "error", report.Err)
	}
	s.logger.Debug("sweep finished",
		"expired_donations", report.ExpiredDonations,
		"expired_requests", report.ExpiredRequests,
		"reprioritized", report.Reprioritized,
		"expired_units", report.ExpiredUnits,
		"alerts_raised", report.AlertsRaised,
		"duration", report.Duration)

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
	return report
}

// Last returns the most recent report, if a sweep has run.
func (s *Sweeper) Last() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}
