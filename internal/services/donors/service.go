// Package donors provides the donor registry and eligibility checks.
package donors

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/repository"
	"github.com/bloodbank/bloodbank/internal/util"
)

// RegisterInput contains data for registering a donor.
type RegisterInput struct {
	FullName    string
	Email       string
	Phone       string
	BloodType   models.BloodType
	DateOfBirth time.Time
	WeightKg    float64
}

// UpdateInput contains the donor fields that may change. Nil fields are
// left as they are.
type UpdateInput struct {
	FullName *string
	Email    *string
	Phone    *string
	WeightKg *float64
}

// Service provides donor operations.
type Service struct {
	db          *sql.DB
	donors      *repository.DonorRepository
	idGenerator *util.IDGenerator
	clock       util.Clock
}

// NewService creates a new donor service.
func NewService(db *sql.DB, clock util.Clock) *Service {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &Service{
		db:          db,
		donors:      repository.NewDonorRepository(db),
		idGenerator: util.NewIDGenerator(),
		clock:       clock,
	}
}

// Register creates a new active donor.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*models.Donor, error) {
	donor := &models.Donor{
		ID:          s.idGenerator.NewID(),
		FullName:    strings.TrimSpace(input.FullName),
		Email:       strings.TrimSpace(input.Email),
		Phone:       input.Phone,
		BloodType:   input.BloodType,
		DateOfBirth: input.DateOfBirth,
		WeightKg:    input.WeightKg,
		IsActive:    true,
	}

	if err := s.donors.Create(ctx, nil, donor); err != nil {
		return nil, fmt.Errorf("creating donor: %w", err)
	}
	return donor, nil
}

// Get retrieves a donor by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Donor, error) {
	return s.donors.GetByID(ctx, nil, id)
}

// List retrieves donors with filtering and pagination.
func (s *Service) List(ctx context.Context, filter models.DonorFilter, page models.Pagination) (*models.DonorList, error) {
	return s.donors.List(ctx, filter, page)
}

// Update changes a donor's contact details or weight.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*models.Donor, error) {
	donor, err := s.donors.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("getting donor: %w", err)
	}

	if input.FullName != nil {
		donor.FullName = strings.TrimSpace(*input.FullName)
	}
	if input.Email != nil {
		donor.Email = strings.TrimSpace(*input.Email)
	}
	if input.Phone != nil {
		donor.Phone = *input.Phone
	}
	if input.WeightKg != nil {
		donor.WeightKg = *input.WeightKg
	}

	if err := s.donors.Update(ctx, nil, donor); err != nil {
		return nil, fmt.Errorf("updating donor: %w", err)
	}
	return donor, nil
}

// Deactivate marks a donor inactive. Inactive donors cannot donate.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	donor, err := s.donors.GetByID(ctx, nil, id)
	if err != nil {
		return fmt.Errorf("getting donor: %w", err)
	}
	donor.IsActive = false
	if err := s.donors.Update(ctx, nil, donor); err != nil {
		return fmt.Errorf("updating donor: %w", err)
	}
	return nil
}

// CheckEligibility loads a donor and applies the eligibility rules. An
// inactive donor is never eligible.
func (s *Service) CheckEligibility(ctx context.Context, id string) (*models.Donor, models.Eligibility, error) {
	donor, err := s.donors.GetByID(ctx, nil, id)
	if err != nil {
		return nil, models.Eligibility{}, fmt.Errorf("getting donor: %w", err)
	}

	result := donor.CheckEligibility(s.clock.Now())
	if !donor.IsActive {
		result.Eligible = false
		result.Reasons = append(result.Reasons, "Donor account is inactive")
	}
	return donor, result, nil
}

// RecordDonation stamps the donor's last donation inside tx.
func (s *Service) RecordDonation(ctx context.Context, tx *sql.Tx, donorID string, at time.Time) error {
	return s.donors.RecordDonation(ctx, tx, donorID, at)
}
