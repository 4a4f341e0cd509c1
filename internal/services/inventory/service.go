// Package inventory provides the per-blood-type stock ledgers.
//
// Every ledger mutation runs through Mutate: the blood type's mutex is held
// for the whole read-modify-write, the ledger is loaded and saved in one
// SQLite transaction, and the save is a compare-and-swap on the ledger's
// version. Different blood types never block each other on the mutex.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bloodbank/bloodbank/internal/metrics"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/notify"
	"github.com/bloodbank/bloodbank/internal/repository"
	"github.com/bloodbank/bloodbank/internal/util"
)

// maxRetries is the number of retries after the first attempt.
const maxRetries = 2

// MutateFunc changes a ledger inside a transaction. Other entities touched
// by the function must be read and written through tx. The function may run
// more than once if the transaction is retried.
type MutateFunc func(tx *sql.Tx, ledger *models.InventoryLedger) error

// Options configures a Service. Zero values get sensible defaults.
type Options struct {
	Clock        util.Clock
	Metrics      *metrics.Metrics
	Notifier     notify.Notifier
	Logger       *slog.Logger
	Tracer       trace.Tracer
	MinThreshold int
	MaxCapacity  int
	Alerts       AlertPolicy
	// BackOff builds the retry schedule for one Mutate call.
	BackOff func() backoff.BackOff
}

// Service manages the inventory ledgers.
type Service struct {
	db       *sql.DB
	ledgers  *repository.InventoryRepository
	clock    util.Clock
	metrics  *metrics.Metrics
	notifier notify.Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	policy   AlertPolicy
	backOff  func() backoff.BackOff

	minThreshold int
	maxCapacity  int

	locks map[models.BloodType]*sync.Mutex
}

// NewService creates a new inventory service.
func NewService(db *sql.DB, opts Options) *Service {
	s := &Service{
		db:           db,
		ledgers:      repository.NewInventoryRepository(db),
		clock:        opts.Clock,
		metrics:      opts.Metrics,
		notifier:     opts.Notifier,
		logger:       opts.Logger,
		tracer:       opts.Tracer,
		policy:       opts.Alerts,
		backOff:      opts.BackOff,
		minThreshold: opts.MinThreshold,
		maxCapacity:  opts.MaxCapacity,
		locks:        make(map[models.BloodType]*sync.Mutex, len(models.AllBloodTypes())),
	}
	if s.clock == nil {
		s.clock = util.SystemClock{}
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/bloodbank/bloodbank/internal/services/inventory")
	}
	if s.policy.ExpiringWindowDays <= 0 || s.policy.Retention <= 0 {
		s.policy = DefaultAlertPolicy()
	}
	if s.backOff == nil {
		s.backOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			return b
		}
	}
	if s.minThreshold <= 0 {
		s.minThreshold = models.DefaultMinThreshold
	}
	if s.maxCapacity <= 0 {
		s.maxCapacity = models.DefaultMaxCapacity
	}
	for _, bt := range models.AllBloodTypes() {
		s.locks[bt] = &sync.Mutex{}
	}
	return s
}

// ============================================================================
// QUERIES
// ============================================================================

// Initialize creates a zeroed ledger for every blood type that has none.
// It returns how many ledgers were created.
func (s *Service) Initialize(ctx context.Context) (int, error) {
	created := 0
	for _, bt := range models.AllBloodTypes() {
		inserted, err := s.ledgers.Ensure(ctx, nil, s.newLedger(bt))
		if err != nil {
			return created, fmt.Errorf("initializing %s ledger: %w", bt, err)
		}
		if inserted {
			created++
		}
	}
	if created > 0 {
		s.logger.Info("inventory initialized", "ledgers_created", created)
	}
	return created, nil
}

// Get retrieves the ledger for a blood type.
func (s *Service) Get(ctx context.Context, bt models.BloodType) (*models.InventoryLedger, error) {
	if !bt.Valid() {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidBloodType, bt)
	}
	return s.ledgers.Get(ctx, nil, bt)
}

// List retrieves every ledger in blood type order.
func (s *Service) List(ctx context.Context) ([]*models.InventoryLedger, error) {
	return s.ledgers.List(ctx)
}

// ActiveAlerts retrieves the active alerts across all ledgers.
func (s *Service) ActiveAlerts(ctx context.Context) ([]*models.InventoryAlert, error) {
	return s.ledgers.ActiveAlerts(ctx)
}

// Summary aggregates all ledgers.
func (s *Service) Summary(ctx context.Context) (*models.InventorySummary, error) {
	ledgers, err := s.ledgers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing ledgers: %w", err)
	}

	sum := &models.InventorySummary{
		AverageShelfLife: models.ShelfLifeDays,
		ByBloodType:      make(map[models.BloodType]models.StockLevel, len(ledgers)),
	}
	for _, l := range ledgers {
		sum.TotalAvailable += l.AvailableUnits
		sum.TotalReserved += l.ReservedUnits
		sum.TotalExpired += l.ExpiredUnits
		sum.TotalUnits += l.TotalUnits
		sum.TotalDispensed += l.Statistics.TotalUnitsDispensed
		sum.TotalDonations += l.Statistics.TotalDonationsReceived
		sum.ActiveAlerts += len(l.ActiveAlerts())

		status := l.StockStatus()
		sum.ByBloodType[l.BloodType] = status
		switch status {
		case models.StockLevelCritical:
			sum.CriticalTypes = append(sum.CriticalTypes, l.BloodType)
			sum.LowStockTypes = append(sum.LowStockTypes, l.BloodType)
		case models.StockLevelLow:
			sum.LowStockTypes = append(sum.LowStockTypes, l.BloodType)
		}
	}
	return sum, nil
}

// ReservedTypes returns the blood types holding units for a request.
func (s *Service) ReservedTypes(ctx context.Context, requestID string) ([]models.BloodType, error) {
	return s.ledgers.ReservationsFor(ctx, nil, requestID)
}

// HeldUnits returns the units still reserved for a request across every
// ledger. A non-nil tx reads inside a caller's transaction.
func (s *Service) HeldUnits(ctx context.Context, tx *sql.Tx, requestID string) (int, error) {
	return s.ledgers.HeldUnits(ctx, tx, requestID)
}

// ============================================================================
// MUTATIONS
// ============================================================================

// AddDonation counts an approved donation as available stock.
func (s *Service) AddDonation(ctx context.Context, bt models.BloodType, donationID string, quantity int, expiry time.Time) (*models.InventoryLedger, error) {
	return s.Mutate(ctx, bt, "add_donation", func(_ *sql.Tx, l *models.InventoryLedger) error {
		return l.AddDonation(donationID, quantity, expiry, s.clock.Now())
	})
}

// ReserveUnits holds units of a blood type for a request.
func (s *Service) ReserveUnits(ctx context.Context, bt models.BloodType, requestID string, quantity int) (*models.InventoryLedger, error) {
	ledger, err := s.Mutate(ctx, bt, "reserve", func(_ *sql.Tx, l *models.InventoryLedger) error {
		return l.ReserveUnits(requestID, quantity, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("units reserved", "blood_type", bt, "request_id", requestID, "quantity", quantity)
	return ledger, nil
}

// FulfillReservation dispenses units held for a request.
func (s *Service) FulfillReservation(ctx context.Context, bt models.BloodType, requestID string, quantity int) (*models.InventoryLedger, error) {
	return s.Mutate(ctx, bt, "fulfill", func(_ *sql.Tx, l *models.InventoryLedger) error {
		return l.FulfillReservation(requestID, quantity, s.clock.Now())
	})
}

// ReleaseReservation returns a request's held units to available stock.
func (s *Service) ReleaseReservation(ctx context.Context, bt models.BloodType, requestID string) (int, error) {
	var released int
	_, err := s.Mutate(ctx, bt, "release", func(_ *sql.Tx, l *models.InventoryLedger) error {
		released = l.ReleaseReservation(requestID, s.clock.Now())
		return nil
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.logger.Info("reservation released", "blood_type", bt, "request_id", requestID, "quantity", released)
	}
	return released, nil
}

// ReleaseAll releases a request's holds on every ledger.
func (s *Service) ReleaseAll(ctx context.Context, requestID string) (int, error) {
	types, err := s.ledgers.ReservationsFor(ctx, nil, requestID)
	if err != nil {
		return 0, fmt.Errorf("finding reservations: %w", err)
	}

	total := 0
	for _, bt := range types {
		n, err := s.ReleaseReservation(ctx, bt, requestID)
		if err != nil {
			return total, fmt.Errorf("releasing %s: %w", bt, err)
		}
		total += n
	}
	return total, nil
}

// ExpireStaleDonations moves expired entries of one ledger into expired
// stock and returns the units moved.
func (s *Service) ExpireStaleDonations(ctx context.Context, bt models.BloodType) (int, error) {
	var expired int
	_, err := s.Mutate(ctx, bt, "expire", func(_ *sql.Tx, l *models.InventoryLedger) error {
		expired = l.ExpireStaleDonations(s.clock.Now())
		return nil
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.logger.Info("expired stock", "blood_type", bt, "quantity", expired)
	}
	return expired, nil
}

// UpdateThresholds changes a ledger's low-stock threshold and capacity.
func (s *Service) UpdateThresholds(ctx context.Context, bt models.BloodType, minThreshold, maxCapacity int) (*models.InventoryLedger, error) {
	return s.Mutate(ctx, bt, "thresholds", func(_ *sql.Tx, l *models.InventoryLedger) error {
		return l.SetThresholds(minThreshold, maxCapacity, s.clock.Now())
	})
}

// Mutate runs fn against the ledger for bt as one serialized transaction.
// Transient failures are retried; any other error from fn or the save is
// returned unchanged and nothing is written.
func (s *Service) Mutate(ctx context.Context, bt models.BloodType, op string, fn MutateFunc) (*models.InventoryLedger, error) {
	ledger, _, err := s.mutate(ctx, bt, op, fn)
	return ledger, err
}

func (s *Service) mutate(ctx context.Context, bt models.BloodType, op string, fn MutateFunc) (*models.InventoryLedger, []*models.InventoryAlert, error) {
	if !bt.Valid() {
		return nil, nil, fmt.Errorf("%w: %s", models.ErrInvalidBloodType, bt)
	}

	ctx, span := s.tracer.Start(ctx, "inventory."+op,
		trace.WithAttributes(attribute.String("blood_type", bt.String())))
	defer span.End()

	mu := s.locks[bt]
	mu.Lock()
	defer mu.Unlock()

	var (
		ledger  *models.InventoryLedger
		raised  []*models.InventoryAlert
		attempt int
	)
	operation := func() error {
		attempt++
		if attempt > 1 {
			s.metrics.LedgerRetry()
		}

		var err error
		ledger, raised, err = s.mutateOnce(ctx, bt, fn)
		if err != nil && !models.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.backOff(), maxRetries), ctx)
	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		s.logger.Debug("retrying ledger transaction", "blood_type", bt, "op", op, "error", err, "wait", wait)
	})

	s.metrics.LedgerOperation(op, err)
	span.SetAttributes(attribute.Int("attempts", attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	s.metrics.ObserveLedger(ledger)
	s.publishAlerts(ctx, raised)
	return ledger, raised, nil
}

// mutateOnce is one attempt: load, apply, derive alerts, save, commit.
func (s *Service) mutateOnce(ctx context.Context, bt models.BloodType, fn MutateFunc) (*models.InventoryLedger, []*models.InventoryAlert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ledger, err := s.ledgers.Get(ctx, tx, bt)
	if errors.Is(err, models.ErrNotFound) {
		if _, err = s.ledgers.Ensure(ctx, tx, s.newLedger(bt)); err != nil {
			return nil, nil, fmt.Errorf("creating %s ledger: %w", bt, err)
		}
		ledger, err = s.ledgers.Get(ctx, tx, bt)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading %s ledger: %w", bt, err)
	}

	before := len(ledger.Alerts)
	if err := fn(tx, ledger); err != nil {
		return nil, nil, err
	}
	GenerateAlerts(ledger, s.clock.Now(), s.policy)

	if err := ledger.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s ledger invalid after update: %w", bt, err)
	}
	if err := s.ledgers.Save(ctx, tx, ledger); err != nil {
		return nil, nil, fmt.Errorf("saving %s ledger: %w", bt, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing: %w", err)
	}

	var raised []*models.InventoryAlert
	for _, a := range ledger.Alerts[before:] {
		if a.Active {
			raised = append(raised, a)
		}
	}
	return ledger, raised, nil
}

func (s *Service) publishAlerts(ctx context.Context, alerts []*models.InventoryAlert) {
	for _, a := range alerts {
		s.metrics.AlertRaised(a)
		if err := s.notifier.Notify(ctx, notify.Event{
			Kind:       notify.EventInventoryAlert,
			BloodType:  a.BloodType,
			EntityID:   a.ID,
			Severity:   string(a.Severity),
			Message:    a.Message,
			OccurredAt: a.CreatedAt,
		}); err != nil {
			s.logger.Warn("alert notification failed", "blood_type", a.BloodType, "error", err)
		}
	}
}

func (s *Service) newLedger(bt models.BloodType) *models.InventoryLedger {
	l := models.NewInventoryLedger(bt, s.clock.Now())
	l.MinThreshold = s.minThreshold
	l.MaxCapacity = s.maxCapacity
	return l
}
