package testutil

import (
	"time"

	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/google/uuid"
)

// FixtureDonor creates an eligible O+ donor with sensible defaults.
func FixtureDonor(overrides ...func(*models.Donor)) *models.Donor {
	id := uuid.New().String()
	now := time.Now().UTC().Truncate(time.Second)

	donor := &models.Donor{
		ID:          id,
		FullName:    "Alex Donor",
		Email:       "donor-" + id[:8] + "@example.org",
		Phone:       "5550100200",
		BloodType:   models.BloodTypeOPos,
		DateOfBirth: now.AddDate(-30, 0, 0),
		WeightKg:    72,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, override := range overrides {
		override(donor)
	}

	return donor
}

// FixtureDonation creates a pending donation for donorID.
func FixtureDonation(donorID string, overrides ...func(*models.Donation)) *models.Donation {
	now := time.Now().UTC().Truncate(time.Second)

	donation := &models.Donation{
		ID:           uuid.New().String(),
		DonorID:      donorID,
		BloodType:    models.BloodTypeOPos,
		Quantity:     models.DefaultDonationQuantity,
		DonationDate: now,
		Status:       models.DonationStatusPending,
		Location: models.DonationLocation{
			BloodBank: "Central Blood Bank",
			Address:   "12 Harbor Road",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(donation)
	}
	donation.EnsureExpiry()

	return donation
}

// FixtureScreening returns a screening that passes every check.
func FixtureScreening() *models.MedicalScreening {
	return &models.MedicalScreening{
		Hemoglobin:    13.8,
		BloodPressure: models.BloodPressure{Systolic: 120, Diastolic: 80},
		Temperature:   36.7,
		Pulse:         68,
		WeightKg:      72,
		ScreenedBy:    "nurse-1",
		ScreeningDate: time.Now().UTC().Truncate(time.Second),
	}
}

// FixtureRequest creates a pending two-unit A+ request due in three days.
func FixtureRequest(overrides ...func(*models.BloodRequest)) *models.BloodRequest {
	now := time.Now().UTC().Truncate(time.Second)

	request := &models.BloodRequest{
		ID:          uuid.New().String(),
		RecipientID: uuid.New().String(),
		BloodType:   models.BloodTypeAPos,
		Quantity:    2,
		Urgency:     models.UrgencyMedium,
		RequiredBy:  now.AddDate(0, 0, 3),
		Reason:      "Elective hip replacement",
		Hospital: models.Hospital{
			Name:          "General Hospital",
			Address:       "400 Hill Street",
			ContactNumber: "5550199000",
		},
		Status:    models.RequestStatusPending,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(request)
	}
	request.Reprioritize(now)

	return request
}

// FixtureLedger creates a ledger holding available units from one donation.
func FixtureLedger(bt models.BloodType, available int) *models.InventoryLedger {
	now := time.Now().UTC().Truncate(time.Second)
	ledger := models.NewInventoryLedger(bt, now)
	if available > 0 {
		_ = ledger.AddDonation(uuid.New().String(), available, models.ExpiryFor(now), now)
	}
	return ledger
}
