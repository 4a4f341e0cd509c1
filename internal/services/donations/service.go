// Package donations implements the donation lifecycle: pledge, screening
// approval or rejection, collection and expiry.
package donations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bloodbank/bloodbank/internal/metrics"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/notify"
	"github.com/bloodbank/bloodbank/internal/repository"
	"github.com/bloodbank/bloodbank/internal/util"
)

// Service provides donation lifecycle operations.
type Service struct {
	db          *sql.DB
	donations   *repository.DonationRepository
	ledger      Ledger
	donors      DonorRegistry
	idGenerator *util.IDGenerator
	clock       util.Clock
	metrics     *metrics.Metrics
	notifier    notify.Notifier
	logger      *slog.Logger
}

// NewService creates a new donation service.
func NewService(db *sql.DB, ledger Ledger, donors DonorRegistry, opts Options) *Service {
	s := &Service{
		db:          db,
		donations:   repository.NewDonationRepository(db),
		ledger:      ledger,
		donors:      donors,
		idGenerator: util.NewIDGenerator(),
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
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
	return s
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Submit records a pledged donation as pending. The donor must be eligible
// and of the donated blood type. The expiry date is fixed here.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*models.Donation, error) {
	if !input.BloodType.Valid() {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidBloodType, input.BloodType)
	}
	quantity := input.Quantity
	if quantity == 0 {
		quantity = models.DefaultDonationQuantity
	}
	if quantity < models.MinDonationQuantity || quantity > models.MaxDonationQuantity {
		return nil, fmt.Errorf("%w: %d ml, must be %d-%d",
			models.ErrInvalidQuantity, quantity, models.MinDonationQuantity, models.MaxDonationQuantity)
	}

	donor, eligibility, err := s.donors.CheckEligibility(ctx, input.DonorID)
	if err != nil {
		return nil, fmt.Errorf("checking donor: %w", err)
	}
	if err := eligibility.Err(); err != nil {
		return nil, err
	}
	if donor.BloodType != input.BloodType {
		return nil, fmt.Errorf("%w: donor is %s, donation is %s",
			models.ErrInvalidBloodType, donor.BloodType, input.BloodType)
	}

	donationDate := input.DonationDate
	if donationDate.IsZero() {
		donationDate = s.clock.Now()
	}

	donation := &models.Donation{
		ID:           s.idGenerator.NewID(),
		DonorID:      input.DonorID,
		BloodType:    input.BloodType,
		Quantity:     quantity,
		DonationDate: donationDate,
		Status:       models.DonationStatusPending,
		Location:     input.Location,
		Notes:        input.Notes,
	}
	donation.EnsureExpiry()

	if err := s.donations.Create(ctx, nil, donation); err != nil {
		return nil, fmt.Errorf("creating donation: %w", err)
	}

	s.metrics.Transition("donation", string(donation.Status))
	s.logger.Info("donation submitted", "donation_id", donation.ID, "blood_type", donation.BloodType, "quantity", quantity)
	return donation, nil
}

// Approve accepts a pending donation after screening. The donation, the
// donor's last donation date and the ledger are updated in one transaction.
func (s *Service) Approve(ctx context.Context, id, approver string, screening *models.MedicalScreening) (*models.Donation, error) {
	current, err := s.donations.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("getting donation: %w", err)
	}
	if current.Status != models.DonationStatusPending {
		return nil, fmt.Errorf("%w: donation %s is %s", models.ErrNotPending, id, current.Status)
	}
	if err := screening.Check(); err != nil {
		return nil, err
	}

	var approved *models.Donation
	_, err = s.ledger.Mutate(ctx, current.BloodType, "approve_donation", func(tx *sql.Tx, l *models.InventoryLedger) error {
		d, err := s.donations.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if !d.Status.CanTransitionTo(models.DonationStatusApproved) {
			return fmt.Errorf("%w: donation %s is %s", models.ErrNotPending, id, d.Status)
		}

		now := s.clock.Now()
		snap := *screening
		if snap.ScreenedBy == "" {
			snap.ScreenedBy = approver
		}
		if snap.ScreeningDate.IsZero() {
			snap.ScreeningDate = now
		}

		d.Status = models.DonationStatusApproved
		d.IsAvailable = true
		d.ApprovedBy = &approver
		d.ApprovalDate = &now
		d.Screening = &snap

		if err := s.donations.Update(ctx, tx, d); err != nil {
			return fmt.Errorf("updating donation: %w", err)
		}
		if err := s.donors.RecordDonation(ctx, tx, d.DonorID, d.DonationDate); err != nil {
			return fmt.Errorf("recording donor donation: %w", err)
		}
		if err := l.AddDonation(d.ID, d.Quantity, d.ExpiryDate, now); err != nil {
			return err
		}

		approved = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition("donation", string(approved.Status))
	s.logger.Info("donation approved", "donation_id", id, "blood_type", approved.BloodType, "quantity", approved.Quantity)
	s.notify(ctx, notify.Event{
		Kind:      notify.EventDonationApproved,
		BloodType: approved.BloodType,
		EntityID:  approved.ID,
		Status:    string(approved.Status),
		Quantity:  approved.Quantity,
	})
	return approved, nil
}

// Reject declines a pending donation. A reason is required.
func (s *Service) Reject(ctx context.Context, id, approver, reason string) (*models.Donation, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.ErrReasonRequired
	}

	d, err := s.donations.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("getting donation: %w", err)
	}
	if !d.Status.CanTransitionTo(models.DonationStatusRejected) {
		return nil, fmt.Errorf("%w: donation %s is %s", models.ErrNotPending, id, d.Status)
	}

	now := s.clock.Now()
	d.Status = models.DonationStatusRejected
	d.ApprovedBy = &approver
	d.ApprovalDate = &now
	d.RejectionReason = &reason

	if err := s.donations.Update(ctx, nil, d); err != nil {
		return nil, fmt.Errorf("updating donation: %w", err)
	}

	s.metrics.Transition("donation", string(d.Status))
	s.logger.Info("donation rejected", "donation_id", id, "reason", reason)
	s.notify(ctx, notify.Event{
		Kind:      notify.EventDonationRejected,
		BloodType: d.BloodType,
		EntityID:  d.ID,
		Status:    string(d.Status),
		Message:   reason,
	})
	return d, nil
}

// Update edits a pending donation. The expiry date is not recomputed.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*models.Donation, error) {
	d, err := s.donations.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("getting donation: %w", err)
	}
	if d.Status != models.DonationStatusPending {
		return nil, fmt.Errorf("%w: donation %s is %s", models.ErrNotPending, id, d.Status)
	}

	if input.DonationDate != nil {
		d.DonationDate = *input.DonationDate
	}
	if input.Location != nil {
		d.Location = *input.Location
	}
	if input.Quantity != nil {
		d.Quantity = *input.Quantity
	}
	if input.Notes != nil {
		d.Notes = *input.Notes
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	if err := s.donations.Update(ctx, nil, d); err != nil {
		return nil, fmt.Errorf("updating donation: %w", err)
	}
	return d, nil
}

// Cancel withdraws a pending donation.
func (s *Service) Cancel(ctx context.Context, id string) error {
	d, err := s.donations.GetByID(ctx, nil, id)
	if err != nil {
		return fmt.Errorf("getting donation: %w", err)
	}
	if d.Status != models.DonationStatusPending {
		return fmt.Errorf("%w: donation %s is %s", models.ErrNotPending, id, d.Status)
	}
	if err := s.donations.Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("deleting donation: %w", err)
	}
	s.logger.Info("donation cancelled", "donation_id", id)
	return nil
}

// GetForUpdate loads a donation inside tx.
func (s *Service) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*models.Donation, error) {
	return s.donations.GetByID(ctx, tx, id)
}

// MarkCollected marks an assignable donation as collected inside tx.
func (s *Service) MarkCollected(ctx context.Context, tx *sql.Tx, id string) (*models.Donation, error) {
	d, err := s.donations.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !d.Assignable() {
		return nil, fmt.Errorf("%w: donation %s is %s", models.ErrNotAvailable, id, d.Status)
	}

	d.Status = models.DonationStatusCollected
	d.IsAvailable = false
	if err := s.donations.Update(ctx, tx, d); err != nil {
		return nil, fmt.Errorf("updating donation: %w", err)
	}
	return d, nil
}

// ExpireStale expires approved donations past their expiry date and moves
// their units to expired stock. Each blood type is one transaction.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	stale, err := s.donations.ListStale(ctx, nil, now)
	if err != nil {
		return 0, fmt.Errorf("listing stale donations: %w", err)
	}

	byType := make(map[models.BloodType][]string)
	for _, d := range stale {
		byType[d.BloodType] = append(byType[d.BloodType], d.ID)
	}

	total := 0
	for _, bt := range models.AllBloodTypes() {
		ids := byType[bt]
		if len(ids) == 0 {
			continue
		}

		var expired int
		_, err := s.ledger.Mutate(ctx, bt, "expire_donations", func(tx *sql.Tx, l *models.InventoryLedger) error {
			expired = 0
			for _, id := range ids {
				d, err := s.donations.GetByID(ctx, tx, id)
				if err != nil {
					return err
				}
				if !d.Assignable() || !d.IsExpired(now) {
					continue
				}
				d.Status = models.DonationStatusExpired
				d.IsAvailable = false
				if err := s.donations.Update(ctx, tx, d); err != nil {
					return fmt.Errorf("updating donation: %w", err)
				}
				expired++
			}
			l.ExpireStaleDonations(now)
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("expiring %s donations: %w", bt, err)
		}
		total += expired
	}

	if total > 0 {
		s.logger.Info("donations expired", "count", total)
	}
	return total, nil
}

// ============================================================================
// QUERIES
// ============================================================================

// Get retrieves a donation by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Donation, error) {
	return s.donations.GetByID(ctx, nil, id)
}

// List retrieves donations with filtering and pagination.
func (s *Service) List(ctx context.Context, filter models.DonationFilter, page models.Pagination) (*models.DonationList, error) {
	return s.donations.List(ctx, filter, page)
}

// ListByDonor retrieves a donor's donations, newest first.
func (s *Service) ListByDonor(ctx context.Context, donorID string, page models.Pagination) (*models.DonationList, error) {
	return s.donations.List(ctx, models.DonationFilter{DonorID: donorID}, page)
}

// Assignable lists approved, available and unexpired donations of the
// given types, soonest expiry first.
func (s *Service) Assignable(ctx context.Context, types []models.BloodType) ([]*models.Donation, error) {
	return s.donations.ListAssignable(ctx, types, s.clock.Now())
}

// CountByStatus counts donations per status.
func (s *Service) CountByStatus(ctx context.Context) (map[models.DonationStatus]int, error) {
	return s.donations.CountByStatus(ctx)
}

func (s *Service) notify(ctx context.Context, e notify.Event) {
	e.OccurredAt = s.clock.Now()
	if err := s.notifier.Notify(ctx, e); err != nil {
		s.logger.Warn("notification failed", "kind", e.Kind, "error", err)
	}
}
