package inventory

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/bloodbank/bloodbank/internal/metrics"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/notify"
	"github.com/bloodbank/bloodbank/internal/notify/mocks"
	"github.com/bloodbank/bloodbank/internal/testutil"
	"github.com/bloodbank/bloodbank/internal/util"
)

type ServiceSuite struct {
	suite.Suite
	db       *testutil.TestDB
	clock    *util.ManualClock
	metrics  *metrics.Metrics
	notifier *mocks.MockNotifier
	svc      *Service
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.db = testutil.NewMigratedDB(s.T())
	s.clock = util.NewManualClock(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC))
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.notifier = mocks.NewMockNotifier(gomock.NewController(s.T()))
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.ctx = context.Background()

	s.svc = NewService(s.db.DB, Options{
		Clock:    s.clock,
		Metrics:  s.metrics,
		Notifier: s.notifier,
		BackOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
	_, err := s.svc.Initialize(s.ctx)
	s.Require().NoError(err)
}

func (s *ServiceSuite) stock(bt models.BloodType, units int) {
	_, err := s.svc.AddDonation(s.ctx, bt, util.NewID(), units, s.clock.Now().AddDate(0, 0, models.ShelfLifeDays))
	s.Require().NoError(err)
}

func (s *ServiceSuite) assertBalanced(l *models.InventoryLedger) {
	s.Equal(l.AvailableUnits+l.ReservedUnits+l.ExpiredUnits, l.TotalUnits, "total must equal available+reserved+expired")
	s.GreaterOrEqual(l.AvailableUnits, 0)
}

func (s *ServiceSuite) TestInitializeIsIdempotent() {
	created, err := s.svc.Initialize(s.ctx)
	s.Require().NoError(err)
	s.Zero(created)
	s.db.AssertRowCount(s.T(), "inventory_ledgers", 8)

	ledgers, err := s.svc.List(s.ctx)
	s.Require().NoError(err)
	s.Len(ledgers, 8)
	s.Equal(models.BloodTypeAPos, ledgers[0].BloodType)
}

func (s *ServiceSuite) TestAddDonationRoundTrip() {
	before, err := s.svc.Get(s.ctx, models.BloodTypeBPos)
	s.Require().NoError(err)

	s.stock(models.BloodTypeBPos, 450)

	after, err := s.svc.Get(s.ctx, models.BloodTypeBPos)
	s.Require().NoError(err)
	s.Equal(before.AvailableUnits+450, after.AvailableUnits)
	s.Equal(before.TotalUnits+450, after.TotalUnits)
	s.Equal(1, after.Statistics.TotalDonationsReceived)
	s.assertBalanced(after)
}

func (s *ServiceSuite) TestReserveRaisesLowStockWarning() {
	s.stock(models.BloodTypeONeg, 10)

	ledger, err := s.svc.ReserveUnits(s.ctx, models.BloodTypeONeg, "R1", 3)
	s.Require().NoError(err)
	s.Equal(7, ledger.AvailableUnits)
	s.Equal(3, ledger.ReservedUnits)
	s.Equal(models.StockLevelLow, ledger.StockStatus())

	var found bool
	for _, a := range ledger.ActiveAlerts() {
		if a.Kind == models.AlertLowStock && a.Message == "O- blood stock is low (7 units remaining)" {
			found = true
			s.Equal(models.SeverityWarning, a.Severity)
		}
	}
	s.True(found, "expected a low_stock warning for 7 units")
	s.assertBalanced(ledger)
}

func (s *ServiceSuite) TestReserveInsufficientStock() {
	s.stock(models.BloodTypeAPos, 2)

	_, err := s.svc.ReserveUnits(s.ctx, models.BloodTypeAPos, "R1", 3)
	s.ErrorIs(err, models.ErrInsufficientStock)

	ledger, err := s.svc.Get(s.ctx, models.BloodTypeAPos)
	s.Require().NoError(err)
	s.Equal(2, ledger.AvailableUnits)
	s.Empty(ledger.RequestEntries)
}

func (s *ServiceSuite) TestConcurrentReservationsNeverOversell() {
	s.stock(models.BloodTypeABPos, 5)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.ReserveUnits(s.ctx, models.BloodTypeABPos, util.NewID(), 3)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, models.ErrInsufficientStock):
				failures++
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Equal(workers-1, failures)

	ledger, err := s.svc.Get(s.ctx, models.BloodTypeABPos)
	s.Require().NoError(err)
	s.Equal(2, ledger.AvailableUnits)
	s.Equal(3, ledger.ReservedUnits)
	s.assertBalanced(ledger)
}

func (s *ServiceSuite) TestDifferentBloodTypesProceedInParallel() {
	s.stock(models.BloodTypeAPos, 5)
	s.stock(models.BloodTypeBNeg, 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, bt := range []models.BloodType{models.BloodTypeAPos, models.BloodTypeBNeg} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.svc.ReserveUnits(s.ctx, bt, "shared", 4)
		}()
	}
	wg.Wait()

	s.NoError(errs[0])
	s.NoError(errs[1])
	types, err := s.svc.ReservedTypes(s.ctx, "shared")
	s.Require().NoError(err)
	s.Len(types, 2)
}

func (s *ServiceSuite) TestConflictIsRetried() {
	s.stock(models.BloodTypeOPos, 10)

	attempts := 0
	ledger, err := s.svc.Mutate(s.ctx, models.BloodTypeOPos, "reserve", func(tx *sql.Tx, l *models.InventoryLedger) error {
		attempts++
		if attempts == 1 {
			// A concurrent writer bumps the version under us.
			if _, err := tx.ExecContext(s.ctx,
				`UPDATE inventory_ledgers SET version = version + 1 WHERE blood_type = ?`, "O+"); err != nil {
				return err
			}
		}
		return l.ReserveUnits("R1", 4, s.clock.Now())
	})
	s.Require().NoError(err)
	s.Equal(2, attempts)
	s.Equal(6, ledger.AvailableUnits)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.LedgerRetries))
}

func (s *ServiceSuite) TestDomainErrorsAreNotRetried() {
	attempts := 0
	_, err := s.svc.Mutate(s.ctx, models.BloodTypeOPos, "reserve", func(_ *sql.Tx, l *models.InventoryLedger) error {
		attempts++
		return l.ReserveUnits("R1", 1, s.clock.Now())
	})
	s.ErrorIs(err, models.ErrInsufficientStock)
	s.Equal(1, attempts)
}

func (s *ServiceSuite) TestFailedMutationWritesNothing() {
	s.stock(models.BloodTypeANeg, 8)
	before, err := s.svc.Get(s.ctx, models.BloodTypeANeg)
	s.Require().NoError(err)

	boom := errors.New("boom")
	_, err = s.svc.Mutate(s.ctx, models.BloodTypeANeg, "test", func(_ *sql.Tx, l *models.InventoryLedger) error {
		_ = l.ReserveUnits("R1", 5, s.clock.Now())
		return boom
	})
	s.ErrorIs(err, boom)

	after, err := s.svc.Get(s.ctx, models.BloodTypeANeg)
	s.Require().NoError(err)
	s.Equal(before.AvailableUnits, after.AvailableUnits)
	s.Equal(before.Version, after.Version)
}

func (s *ServiceSuite) TestFulfillAndRelease() {
	s.stock(models.BloodTypeBPos, 10)
	_, err := s.svc.ReserveUnits(s.ctx, models.BloodTypeBPos, "R1", 4)
	s.Require().NoError(err)

	ledger, err := s.svc.FulfillReservation(s.ctx, models.BloodTypeBPos, "R1", 3)
	s.Require().NoError(err)
	s.Equal(1, ledger.ReservedUnits)
	s.Equal(3, ledger.Statistics.TotalUnitsDispensed)

	_, err = s.svc.FulfillReservation(s.ctx, models.BloodTypeBPos, "R1", 2)
	s.ErrorIs(err, models.ErrOverFulfillment)

	_, err = s.svc.FulfillReservation(s.ctx, models.BloodTypeBPos, "R2", 1)
	s.ErrorIs(err, models.ErrReservationNotFound)

	released, err := s.svc.ReleaseAll(s.ctx, "R1")
	s.Require().NoError(err)
	s.Equal(1, released)

	ledger, err = s.svc.Get(s.ctx, models.BloodTypeBPos)
	s.Require().NoError(err)
	s.Equal(0, ledger.ReservedUnits)
	s.Equal(7, ledger.AvailableUnits)
	s.assertBalanced(ledger)
}

func (s *ServiceSuite) TestExpireStaleDonationsIsIdempotent() {
	_, err := s.svc.AddDonation(s.ctx, models.BloodTypeAPos, "old", 6, s.clock.Now().Add(24*time.Hour))
	s.Require().NoError(err)
	s.stock(models.BloodTypeAPos, 4)

	s.clock.Advance(48 * time.Hour)

	expired, err := s.svc.ExpireStaleDonations(s.ctx, models.BloodTypeAPos)
	s.Require().NoError(err)
	s.Equal(6, expired)

	first, err := s.svc.Get(s.ctx, models.BloodTypeAPos)
	s.Require().NoError(err)
	s.Equal(4, first.AvailableUnits)
	s.Equal(6, first.ExpiredUnits)
	s.assertBalanced(first)

	expired, err = s.svc.ExpireStaleDonations(s.ctx, models.BloodTypeAPos)
	s.Require().NoError(err)
	s.Zero(expired)

	second, err := s.svc.Get(s.ctx, models.BloodTypeAPos)
	s.Require().NoError(err)
	s.Equal(first.AvailableUnits, second.AvailableUnits)
	s.Equal(first.ExpiredUnits, second.ExpiredUnits)
	s.Equal(first.Statistics.TotalUnitsExpired, second.Statistics.TotalUnitsExpired)
	s.Equal(len(first.ActiveAlerts()), len(second.ActiveAlerts()))
}

func (s *ServiceSuite) TestUpdateThresholds() {
	ledger, err := s.svc.UpdateThresholds(s.ctx, models.BloodTypeONeg, 20, 200)
	s.Require().NoError(err)
	s.Equal(20, ledger.MinThreshold)
	s.Equal(200, ledger.MaxCapacity)

	_, err = s.svc.UpdateThresholds(s.ctx, models.BloodTypeONeg, 50, 40)
	s.ErrorIs(err, models.ErrInvalidInput)
}

func (s *ServiceSuite) TestInvalidBloodType() {
	_, err := s.svc.ReserveUnits(s.ctx, models.BloodType("C+"), "R1", 1)
	s.ErrorIs(err, models.ErrInvalidBloodType)
}

func (s *ServiceSuite) TestSummary() {
	s.stock(models.BloodTypeOPos, 90)
	s.stock(models.BloodTypeAPos, 8)

	sum, err := s.svc.Summary(s.ctx)
	s.Require().NoError(err)
	s.Equal(98, sum.TotalAvailable)
	s.Equal(models.StockLevelHigh, sum.ByBloodType[models.BloodTypeOPos])
	s.Equal(models.StockLevelLow, sum.ByBloodType[models.BloodTypeAPos])
	s.Contains(sum.LowStockTypes, models.BloodTypeAPos)
	// The six untouched ledgers hold nothing and are critical.
	s.Len(sum.CriticalTypes, 6)
}

func (s *ServiceSuite) TestSweepAlertsCoversEveryType() {
	_, err := s.svc.AddDonation(s.ctx, models.BloodTypeBNeg, "old", 3, s.clock.Now().Add(time.Hour))
	s.Require().NoError(err)
	s.clock.Advance(2 * time.Hour)

	results, err := s.svc.SweepAlerts(s.ctx)
	s.Require().NoError(err)
	s.Len(results, 8)

	for _, r := range results {
		if r.BloodType == models.BloodTypeBNeg {
			s.Equal(3, r.ExpiredUnits)
		} else {
			s.Zero(r.ExpiredUnits)
		}
	}

	alerts, err := s.svc.ActiveAlerts(s.ctx)
	s.Require().NoError(err)
	s.NotEmpty(alerts)
}

func TestAlertNotificationsArePublished(t *testing.T) {
	db := testutil.NewMigratedDB(t)
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)

	var (
		mu     sync.Mutex
		events []notify.Event
	)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e notify.Event) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
			return nil
		}).AnyTimes()

	clock := util.NewManualClock(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC))
	svc := NewService(db.DB, Options{Clock: clock, Notifier: notifier})

	if _, err := svc.AddDonation(context.Background(), models.BloodTypeABNeg, "d-1", 2, clock.Now().AddDate(0, 0, 35)); err != nil {
		t.Fatalf("AddDonation: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("expected 1 alert event, got %d", len(events))
	}
	e := events[0]
	if e.Kind != notify.EventInventoryAlert || e.Severity != string(models.SeverityCritical) {
		t.Errorf("unexpected event %+v", e)
	}
	if e.EntityID == "" {
		t.Error("alert event should carry the saved alert ID")
	}
}

func TestMutateRecordsSpans(t *testing.T) {
	db := testutil.NewMigratedDB(t)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	clock := util.NewManualClock(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC))
	svc := NewService(db.DB, Options{Clock: clock, Tracer: tp.Tracer("test")})
	ctx := context.Background()

	if _, err := svc.AddDonation(ctx, models.BloodTypeOPos, "d-1", 5, clock.Now().AddDate(0, 0, 35)); err != nil {
		t.Fatalf("AddDonation: %v", err)
	}
	if _, err := svc.ReserveUnits(ctx, models.BloodTypeOPos, "R1", 9); !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "inventory.add_donation" || spans[0].Status().Code != codes.Unset {
		t.Errorf("unexpected first span %q status %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != "inventory.reserve" || spans[1].Status().Code != codes.Error {
		t.Errorf("unexpected second span %q status %v", spans[1].Name(), spans[1].Status())
	}

	var bloodType string
	for _, kv := range spans[1].Attributes() {
		if kv.Key == "blood_type" {
			bloodType = kv.Value.AsString()
		}
	}
	if bloodType != "O+" {
		t.Errorf("blood_type attribute = %q, want O+", bloodType)
	}
}
