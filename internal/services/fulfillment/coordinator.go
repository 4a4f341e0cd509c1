// Package fulfillment assigns donated units to approved blood requests.
//
// An assignment touches the request, the donation and the donation's
// inventory ledger. All three are written inside one ledger transaction, so
// either every change commits or none does.
package fulfillment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bloodbank/bloodbank/internal/metrics"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/services/inventory"
	"github.com/bloodbank/bloodbank/internal/util"
)

// Ledger is the part of the inventory service the coordinator writes through.
type Ledger interface {
	Mutate(ctx context.Context, bt models.BloodType, op string, fn inventory.MutateFunc) (*models.InventoryLedger, error)
	ReleaseAll(ctx context.Context, requestID string) (int, error)
	HeldUnits(ctx context.Context, tx *sql.Tx, requestID string) (int, error)
}

// Donations loads and collects donations.
type Donations interface {
	Get(ctx context.Context, id string) (*models.Donation, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*models.Donation, error)
	MarkCollected(ctx context.Context, tx *sql.Tx, id string) (*models.Donation, error)
	Assignable(ctx context.Context, types []models.BloodType) ([]*models.Donation, error)
}

// Requests loads and saves requests.
type Requests interface {
	Get(ctx context.Context, id string) (*models.BloodRequest, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*models.BloodRequest, error)
	Save(ctx context.Context, tx *sql.Tx, req *models.BloodRequest) error
	StatusChanged(ctx context.Context, req *models.BloodRequest)
}

// Options configures a Coordinator.
type Options struct {
	Clock   util.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

// Coordinator keeps requests, donations and ledgers consistent.
type Coordinator struct {
	ledger    Ledger
	donations Donations
	requests  Requests
	clock     util.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewCoordinator creates a coordinator over the given services.
func NewCoordinator(ledger Ledger, donations Donations, requests Requests, opts Options) *Coordinator {
	c := &Coordinator{
		ledger:    ledger,
		donations: donations,
		requests:  requests,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		tracer:    opts.Tracer,
	}
	if c.clock == nil {
		c.clock = util.SystemClock{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("github.com/bloodbank/bloodbank/internal/services/fulfillment")
	}
	return c
}

// Result describes a committed assignment.
type Result struct {
	Request  *models.BloodRequest
	Donation *models.Donation
	Ledger   *models.InventoryLedger
	Assigned int
}

// AssignDonation assigns up to quantity units of a donation to a request.
// The units assigned are capped by the request's remaining need and the
// donation's quantity. If the request holds fewer reserved units on the
// donation's ledger than are being assigned, the shortfall is reserved first.
func (c *Coordinator) AssignDonation(ctx context.Context, requestID, donationID string, quantity int) (*Result, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidQuantity, quantity)
	}

	ctx, span := c.tracer.Start(ctx, "fulfillment.assign", trace.WithAttributes(
		attribute.String("request_id", requestID),
		attribute.String("donation_id", donationID),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	result, err := c.assign(ctx, requestID, donationID, quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("assigned", result.Assigned))

	c.metrics.Assignment(result.Assigned)
	c.logger.Info("donation assigned",
		"request_id", requestID,
		"donation_id", donationID,
		"blood_type", result.Donation.BloodType,
		"quantity", result.Assigned,
		"status", result.Request.Status)
	c.requests.StatusChanged(ctx, result.Request)

	if result.Request.Status == models.RequestStatusFulfilled {
		// Holds left on other ledgers are no longer needed.
		if n, err := c.ledger.ReleaseAll(ctx, requestID); err != nil {
			c.logger.Warn("releasing leftover reservations failed", "request_id", requestID, "error", err)
		} else if n > 0 {
			c.logger.Info("released leftover reservations", "request_id", requestID, "quantity", n)
		}
	}
	return result, nil
}

func (c *Coordinator) assign(ctx context.Context, requestID, donationID string, quantity int) (*Result, error) {
	// The donation's blood type picks the ledger; it is rechecked in the
	// transaction.
	pre, err := c.donations.Get(ctx, donationID)
	if err != nil {
		return nil, fmt.Errorf("getting donation: %w", err)
	}
	if _, err := c.requests.Get(ctx, requestID); err != nil {
		return nil, fmt.Errorf("getting request: %w", err)
	}

	var result Result
	ledger, err := c.ledger.Mutate(ctx, pre.BloodType, "assign", func(tx *sql.Tx, l *models.InventoryLedger) error {
		now := c.clock.Now()

		req, err := c.requests.GetForUpdate(ctx, tx, requestID)
		if err != nil {
			return fmt.Errorf("getting request: %w", err)
		}
		if !req.Status.AcceptsAssignments() {
			return fmt.Errorf("%w: request %s is %s", models.ErrRequestNotApproved, requestID, req.Status)
		}

		donation, err := c.donations.GetForUpdate(ctx, tx, donationID)
		if err != nil {
			return fmt.Errorf("getting donation: %w", err)
		}
		if !donation.Assignable() || donation.BloodType != l.BloodType {
			return fmt.Errorf("%w: donation %s is %s", models.ErrDonationUnavailable, donationID, donation.Status)
		}
		if donation.IsExpired(now) {
			return fmt.Errorf("%w: donation %s expired on %s",
				models.ErrDonationUnavailable, donationID, donation.ExpiryDate.Format(time.DateOnly))
		}
		if !models.CanDonateTo(donation.BloodType, req.BloodType) {
			return fmt.Errorf("%w: %s cannot be given to %s",
				models.ErrIncompatibleBloodType, donation.BloodType, req.BloodType)
		}

		assignQty := min(quantity, req.Remaining(), donation.Quantity)
		if assignQty <= 0 {
			return fmt.Errorf("%w: request %s needs no more units", models.ErrOverFulfillment, requestID)
		}

		if shortfall := assignQty - l.ReservedFor(requestID); shortfall > 0 {
			if err := l.ReserveUnits(requestID, shortfall, now); err != nil {
				return err
			}
		}

		req.ApplyAssignment(models.RequestAssignment{
			DonationID:   donationID,
			Quantity:     assignQty,
			AssignedDate: now,
		})
		if err := c.requests.Save(ctx, tx, req); err != nil {
			return err
		}

		collected, err := c.donations.MarkCollected(ctx, tx, donationID)
		if err != nil {
			return err
		}

		if err := l.FulfillReservation(requestID, assignQty, now); err != nil {
			return err
		}
		// The bag leaves stock whole; whatever was not assigned goes with it.
		if _, ok := l.CollectDonation(donationID, assignQty, now); !ok {
			return fmt.Errorf("%w: donation %s is not in %s stock",
				models.ErrDonationUnavailable, donationID, l.BloodType)
		}
		if req.Status == models.RequestStatusFulfilled {
			l.ReleaseReservation(requestID, now)
		}

		result = Result{Request: req, Donation: collected, Assigned: assignQty}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Ledger = ledger
	return &result, nil
}

// ReserveForRequest holds quantity units of donorType for an approved
// request. The donor type must be compatible with the request's blood type
// and the request must still need at least quantity units beyond what it
// already holds on every ledger.
func (c *Coordinator) ReserveForRequest(ctx context.Context, requestID string, donorType models.BloodType, quantity int) (*models.InventoryLedger, error) {
	if !donorType.Valid() {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidBloodType, donorType)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidQuantity, quantity)
	}

	ledger, err := c.ledger.Mutate(ctx, donorType, "reserve", func(tx *sql.Tx, l *models.InventoryLedger) error {
		req, err := c.requests.GetForUpdate(ctx, tx, requestID)
		if err != nil {
			return fmt.Errorf("getting request: %w", err)
		}
		if !req.Status.AcceptsAssignments() {
			return fmt.Errorf("%w: request %s is %s", models.ErrRequestNotApproved, requestID, req.Status)
		}
		if !models.CanDonateTo(donorType, req.BloodType) {
			return fmt.Errorf("%w: %s cannot be given to %s",
				models.ErrIncompatibleBloodType, donorType, req.BloodType)
		}
		held, err := c.ledger.HeldUnits(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if held+quantity > req.Remaining() {
			return fmt.Errorf("%w: %d more units would exceed the %d still needed",
				models.ErrInvalidQuantity, quantity, req.Remaining()-held)
		}
		return l.ReserveUnits(requestID, quantity, c.clock.Now())
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("units reserved",
		"request_id", requestID, "blood_type", donorType, "quantity", quantity)
	return ledger, nil
}

// Candidates lists donations that could be assigned to a request: approved,
// available and of a compatible blood type, soonest expiry first.
func (c *Coordinator) Candidates(ctx context.Context, requestID string) ([]*models.Donation, error) {
	req, err := c.requests.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("getting request: %w", err)
	}
	if !req.Status.AcceptsAssignments() {
		return nil, nil
	}
	return c.donations.Assignable(ctx, models.CompatibleDonorsFor(req.BloodType))
}

// IsRejection reports whether err is a business rule the caller must see,
// as opposed to an infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		models.ErrRequestNotApproved,
		models.ErrDonationUnavailable,
		models.ErrIncompatibleBloodType,
		models.ErrInsufficientStock,
		models.ErrOverFulfillment,
		models.ErrInvalidQuantity,
		models.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
