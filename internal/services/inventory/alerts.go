package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bloodbank/bloodbank/internal/models"
)

// AlertPolicy controls alert generation.
type AlertPolicy struct {
	ExpiringWindowDays int
	Retention          time.Duration
}

// DefaultAlertPolicy returns the standard 7-day window and 24h retention.
func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{
		ExpiringWindowDays: models.ExpiringSoonDays,
		Retention:          models.AlertRetention,
	}
}

// GenerateAlerts derives alerts from the ledger's current state and returns
// the ones newly raised. Alerts older than the retention period are
// deactivated first. A condition that is already alerted at the same
// severity only refreshes the message of the active alert.
func GenerateAlerts(l *models.InventoryLedger, now time.Time, policy AlertPolicy) []*models.InventoryAlert {
	l.ExpireAlerts(now.Add(-policy.Retention))

	var raised []*models.InventoryAlert
	raise := func(kind models.AlertKind, severity models.AlertSeverity, msg string) {
		if a, isNew := l.UpsertAlert(kind, severity, msg, now); isNew {
			raised = append(raised, a)
		}
	}

	switch l.StockStatus() {
	case models.StockLevelCritical:
		raise(models.AlertLowStock, models.SeverityCritical,
			fmt.Sprintf("%s blood stock is critically low (%d units remaining)", l.BloodType, l.AvailableUnits))
	case models.StockLevelLow:
		raise(models.AlertLowStock, models.SeverityWarning,
			fmt.Sprintf("%s blood stock is low (%d units remaining)", l.BloodType, l.AvailableUnits))
	}

	if units := expiringUnits(l, now, policy.ExpiringWindowDays); units > 0 {
		raise(models.AlertExpiringSoon, models.SeverityWarning,
			fmt.Sprintf("%d units of %s blood will expire within %d days", units, l.BloodType, policy.ExpiringWindowDays))
	}

	if l.ReservedUnits > l.AvailableUnits {
		raise(models.AlertHighDemand, models.SeverityInfo,
			fmt.Sprintf("High demand for %s blood (%d units reserved, %d available)", l.BloodType, l.ReservedUnits, l.AvailableUnits))
	}

	return raised
}

// expiringUnits sums available entries expiring within 1..window days.
func expiringUnits(l *models.InventoryLedger, now time.Time, window int) int {
	total := 0
	for _, e := range l.DonationEntries {
		if e.Status != models.DonationEntryAvailable {
			continue
		}
		if days := daysUntil(e.ExpiryDate, now); days > 0 && days <= window {
			total += e.Quantity
		}
	}
	return total
}

func daysUntil(t, now time.Time) int {
	d := t.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// SweepResult summarises one alert sweep of a ledger.
type SweepResult struct {
	BloodType    models.BloodType
	ExpiredUnits int
	Raised       int
}

// SweepAlerts expires stale entries and regenerates alerts on every ledger.
// Ledgers are swept in parallel, one transaction each.
func (s *Service) SweepAlerts(ctx context.Context) ([]SweepResult, error) {
	types := models.AllBloodTypes()
	results := make([]SweepResult, len(types))

	g, ctx := errgroup.WithContext(ctx)
	for i, bt := range types {
		g.Go(func() error {
			var expired int
			_, raised, err := s.mutate(ctx, bt, "sweep", func(_ *sql.Tx, l *models.InventoryLedger) error {
				expired = l.ExpireStaleDonations(s.clock.Now())
				return nil
			})
			if err != nil {
				return fmt.Errorf("sweeping %s: %w", bt, err)
			}
			results[i] = SweepResult{BloodType: bt, ExpiredUnits: expired, Raised: len(raised)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
