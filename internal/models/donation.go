package models

import (
	"fmt"
	"time"
)

const (
	// DefaultDonationQuantity is the volume collected when none is given (ml).
	DefaultDonationQuantity = 450

	// MinDonationQuantity and MaxDonationQuantity bound a single donation (ml).
	MinDonationQuantity = 350
	MaxDonationQuantity = 500

	// MinHemoglobin is the lowest screening hemoglobin accepted (g/dL).
	MinHemoglobin = 12.5

	// MinDonorWeightKg is the lowest donor weight accepted.
	MinDonorWeightKg = 45.0
)

// DonationStatus is the state of a donation.
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusApproved  DonationStatus = "approved"
	DonationStatusRejected  DonationStatus = "rejected"
	DonationStatusCollected DonationStatus = "collected"
	DonationStatusExpired   DonationStatus = "expired"
)

// Valid returns true if the status is valid.
func (s DonationStatus) Valid() bool {
	switch s {
	case DonationStatusPending, DonationStatusApproved, DonationStatusRejected,
		DonationStatusCollected, DonationStatusExpired:
		return true
	}
	return false
}

func (s DonationStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether the donation state machine allows s -> next.
func (s DonationStatus) CanTransitionTo(next DonationStatus) bool {
	switch s {
	case DonationStatusPending:
		return next == DonationStatusApproved || next == DonationStatusRejected
	case DonationStatusApproved:
		return next == DonationStatusCollected || next == DonationStatusExpired
	}
	return false
}

// DonationLocation is where a donation is collected.
type DonationLocation struct {
	BloodBank string
	Address   string
	Latitude  *float64
	Longitude *float64
}

// BloodPressure is a systolic/diastolic reading in mmHg.
type BloodPressure struct {
	Systolic  int
	Diastolic int
}

func (bp BloodPressure) String() string {
	if bp.Systolic == 0 && bp.Diastolic == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", bp.Systolic, bp.Diastolic)
}

// MedicalScreening is the snapshot taken when a donation is approved.
type MedicalScreening struct {
	Hemoglobin    float64 // g/dL
	BloodPressure BloodPressure
	Temperature   float64 // Celsius
	Pulse         int
	WeightKg      float64
	ScreenedBy    string
	ScreeningDate time.Time
	Notes         string
}

// Check returns an error wrapping ErrScreeningFailed if the screening is
// below the minimum thresholds.
func (m *MedicalScreening) Check() error {
	if m == nil {
		return fmt.Errorf("%w: screening data is required", ErrScreeningFailed)
	}
	if m.Hemoglobin < MinHemoglobin {
		return fmt.Errorf("%w: hemoglobin %.1f below %.1f", ErrScreeningFailed, m.Hemoglobin, MinHemoglobin)
	}
	if m.WeightKg < MinDonorWeightKg {
		return fmt.Errorf("%w: weight %.1f kg below %.0f kg", ErrScreeningFailed, m.WeightKg, MinDonorWeightKg)
	}
	return nil
}

// Donation is one pledged or collected batch of blood.
type Donation struct {
	ID           string
	DonorID      string
	BloodType    BloodType
	Quantity     int // ml
	DonationDate time.Time
	ExpiryDate   time.Time
	Status       DonationStatus
	IsAvailable  bool
	Location     DonationLocation
	Screening    *MedicalScreening

	ApprovedBy      *string
	ApprovalDate    *time.Time
	RejectionReason *string
	Notes           string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	// Joined fields
	Donor *Donor
}

// ExpiryFor returns the expiry date of blood donated on the given date.
func ExpiryFor(donationDate time.Time) time.Time {
	return donationDate.AddDate(0, 0, ShelfLifeDays)
}

// EnsureExpiry sets the expiry date from the donation date if it is unset.
// An expiry that is already set is never recomputed.
func (d *Donation) EnsureExpiry() {
	if d.ExpiryDate.IsZero() {
		d.ExpiryDate = ExpiryFor(d.DonationDate)
	}
}

// IsExpired reports whether the donation's blood has passed its expiry.
func (d *Donation) IsExpired(now time.Time) bool {
	return !d.ExpiryDate.IsZero() && d.ExpiryDate.Before(now)
}

// DaysUntilExpiry returns whole days until expiry, rounded up.
func (d *Donation) DaysUntilExpiry(now time.Time) int {
	return daysUntil(d.ExpiryDate, now)
}

// Assignable reports whether the donation can be assigned to a request.
func (d *Donation) Assignable() bool {
	return d.Status == DonationStatusApproved && d.IsAvailable
}

// Validate validates the donation's fields.
func (d *Donation) Validate() error {
	if d.DonorID == "" {
		return fmt.Errorf("%w: donor is required", ErrInvalidInput)
	}
	if !d.BloodType.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidBloodType, d.BloodType)
	}
	if d.Quantity < MinDonationQuantity || d.Quantity > MaxDonationQuantity {
		return fmt.Errorf("%w: %d ml, must be %d-%d", ErrInvalidQuantity, d.Quantity, MinDonationQuantity, MaxDonationQuantity)
	}
	if d.DonationDate.IsZero() {
		return fmt.Errorf("%w: donation date is required", ErrInvalidInput)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: status %s", ErrInvalidInput, d.Status)
	}
	return nil
}

// DonationFilter defines filters for querying donations.
type DonationFilter struct {
	DonorID    string
	BloodType  *BloodType
	Status     *DonationStatus
	Available  *bool
	ExpiringBy *time.Time
}

// DonationList represents a paginated list of donations.
type DonationList struct {
	Donations  []*Donation
	Total      int
	Page       int
	TotalPages int
}

// daysUntil returns ceil((t-now)/24h).
func daysUntil(t, now time.Time) int {
	d := t.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}
