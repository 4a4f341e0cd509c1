// Package requests implements the blood request lifecycle and the
// priority queue staff work from.
package requests

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

// Service provides request lifecycle operations.
type Service struct {
	db           *sql.DB
	requests     *repository.RequestRepository
	reservations Reservations
	idGenerator  *util.IDGenerator
	clock        util.Clock
	metrics      *metrics.Metrics
	notifier     notify.Notifier
	logger       *slog.Logger
}

// NewService creates a new request service.
func NewService(db *sql.DB, reservations Reservations, opts Options) *Service {
	s := &Service{
		db:           db,
		requests:     repository.NewRequestRepository(db),
		reservations: reservations,
		idGenerator:  util.NewIDGenerator(),
		clock:        opts.Clock,
		metrics:      opts.Metrics,
		notifier:     opts.Notifier,
		logger:       opts.Logger,
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

// Submit creates a pending request with its initial priority.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*models.BloodRequest, error) {
	urgency := input.Urgency
	if urgency == "" {
		urgency = models.UrgencyMedium
	}

	now := s.clock.Now()
	req := &models.BloodRequest{
		ID:          s.idGenerator.NewID(),
		RecipientID: input.RecipientID,
		BloodType:   input.BloodType,
		Quantity:    input.Quantity,
		Urgency:     urgency,
		RequiredBy:  input.RequiredBy,
		Reason:      strings.TrimSpace(input.Reason),
		Hospital:    input.Hospital,
		Status:      models.RequestStatusPending,
		Notes:       input.Notes,
		IsActive:    true,
	}
	if err := req.Validate(now); err != nil {
		return nil, err
	}
	req.Reprioritize(now)

	if err := s.requests.Create(ctx, nil, req); err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	s.metrics.Transition("request", string(req.Status))
	s.logger.Info("request submitted",
		"request_id", req.ID, "blood_type", req.BloodType, "quantity", req.Quantity, "priority", req.Priority)
	return req, nil
}

// Approve accepts a pending request so donations can be assigned to it.
func (s *Service) Approve(ctx context.Context, id, approver string) (*models.BloodRequest, error) {
	req, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	req.Status = models.RequestStatusApproved
	req.ApprovedBy = &approver
	req.ApprovalDate = &now

	if err := s.Save(ctx, nil, req); err != nil {
		return nil, err
	}
	s.StatusChanged(ctx, req)
	return req, nil
}

// Reject declines a pending request. A reason is required.
func (s *Service) Reject(ctx context.Context, id, approver, reason string) (*models.BloodRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.ErrReasonRequired
	}

	req, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	req.Status = models.RequestStatusRejected
	req.ApprovedBy = &approver
	req.ApprovalDate = &now
	req.RejectionReason = &reason
	req.IsActive = false

	if err := s.Save(ctx, nil, req); err != nil {
		return nil, err
	}
	s.StatusChanged(ctx, req)
	return req, nil
}

// Update edits a pending request.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*models.BloodRequest, error) {
	req, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Quantity != nil {
		req.Quantity = *input.Quantity
	}
	if input.Urgency != nil {
		req.Urgency = *input.Urgency
	}
	if input.RequiredBy != nil {
		req.RequiredBy = *input.RequiredBy
	}
	if input.Reason != nil {
		req.Reason = strings.TrimSpace(*input.Reason)
	}
	if input.Hospital != nil {
		req.Hospital = *input.Hospital
	}
	if input.Notes != nil {
		req.Notes = *input.Notes
	}

	if err := req.Validate(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, nil, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Cancel withdraws a pending request.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if _, err := s.pending(ctx, id); err != nil {
		return err
	}
	if err := s.requests.Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("deleting request: %w", err)
	}
	s.logger.Info("request cancelled", "request_id", id)
	return nil
}

// ExpireOverdue expires open requests whose required-by date has passed.
// Their reservations are released before the request is marked expired,
// so a failure part way leaves the request open for the next run.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	overdue, err := s.requests.ListOverdue(ctx, nil, now)
	if err != nil {
		return 0, fmt.Errorf("listing overdue requests: %w", err)
	}

	expired := 0
	for _, req := range overdue {
		released, err := s.reservations.ReleaseAll(ctx, req.ID)
		if err != nil {
			return expired, fmt.Errorf("releasing reservations for %s: %w", req.ID, err)
		}

		req.Status = models.RequestStatusExpired
		req.IsActive = false
		if err := s.Save(ctx, nil, req); err != nil {
			return expired, err
		}

		s.logger.Info("request expired", "request_id", req.ID, "released_units", released)
		s.StatusChanged(ctx, req)
		expired++
	}
	return expired, nil
}

// Reprioritize re-saves open requests whose priority has drifted as their
// deadline approached. It returns how many were updated.
func (s *Service) Reprioritize(ctx context.Context) (int, error) {
	now := s.clock.Now()
	page := models.Pagination{Page: 1, PageSize: 100}

	updated := 0
	for {
		open, err := s.requests.List(ctx, models.RequestFilter{OpenOnly: true}, page)
		if err != nil {
			return updated, fmt.Errorf("listing open requests: %w", err)
		}
		for _, req := range open.Requests {
			if models.ComputePriority(req.Urgency, req.RequiredBy, now) == req.Priority {
				continue
			}
			if err := s.Save(ctx, nil, req); err != nil {
				return updated, err
			}
			updated++
		}
		if page.Page >= open.TotalPages {
			return updated, nil
		}
		page.Page++
	}
}

// ============================================================================
// PERSISTENCE HOOKS
// ============================================================================

// GetForUpdate loads a request inside tx.
func (s *Service) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*models.BloodRequest, error) {
	return s.requests.GetByID(ctx, tx, id)
}

// Save recomputes the request's priority and writes it. Every write of a
// request goes through here.
func (s *Service) Save(ctx context.Context, tx *sql.Tx, req *models.BloodRequest) error {
	req.Reprioritize(s.clock.Now())
	if err := s.requests.Update(ctx, tx, req); err != nil {
		return fmt.Errorf("updating request: %w", err)
	}
	return nil
}

// StatusChanged records and announces a request's new status. Call it after
// the write has committed.
func (s *Service) StatusChanged(ctx context.Context, req *models.BloodRequest) {
	s.metrics.Transition("request", string(req.Status))
	err := s.notifier.Notify(ctx, notify.Event{
		Kind:       notify.EventRequestStatusChanged,
		BloodType:  req.BloodType,
		EntityID:   req.ID,
		Status:     string(req.Status),
		Quantity:   req.FulfilledQuantity,
		OccurredAt: s.clock.Now(),
	})
	if err != nil {
		s.logger.Warn("notification failed", "request_id", req.ID, "error", err)
	}
}

// ============================================================================
// QUERIES
// ============================================================================

// Get retrieves a request by ID with its assignments.
func (s *Service) Get(ctx context.Context, id string) (*models.BloodRequest, error) {
	return s.requests.GetByID(ctx, nil, id)
}

// List retrieves requests with filtering and pagination.
func (s *Service) List(ctx context.Context, filter models.RequestFilter, page models.Pagination) (*models.RequestList, error) {
	return s.requests.List(ctx, filter, page)
}

// Queue retrieves open requests, highest priority first and then soonest
// required-by date.
func (s *Service) Queue(ctx context.Context, page models.Pagination) (*models.RequestList, error) {
	return s.requests.Queue(ctx, page)
}

// CountByStatus counts requests per status.
func (s *Service) CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error) {
	return s.requests.CountByStatus(ctx)
}

func (s *Service) pending(ctx context.Context, id string) (*models.BloodRequest, error) {
	req, err := s.requests.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("getting request: %w", err)
	}
	if req.Status != models.RequestStatusPending {
		return nil, fmt.Errorf("%w: request %s is %s", models.ErrNotPending, id, req.Status)
	}
	return req, nil
}
