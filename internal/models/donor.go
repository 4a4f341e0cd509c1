package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	MinDonorAge = 18
	MaxDonorAge = 65

	// DonationIntervalDays is the minimum wait between two donations.
	DonationIntervalDays = 56
)

// Donor is a registered blood donor.
type Donor struct {
	ID           string
	FullName     string
	Email        string
	Phone        string
	BloodType    BloodType
	DateOfBirth  time.Time
	WeightKg     float64
	LastDonation *time.Time
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Age returns the donor's age in whole years, counting 365.25 days a year.
func (d *Donor) Age(now time.Time) int {
	years := now.Sub(d.DateOfBirth).Hours() / 24 / 365.25
	return int(math.Floor(years))
}

// DaysSinceLastDonation returns whole days since the last donation, or -1
// if the donor has never donated.
func (d *Donor) DaysSinceLastDonation(now time.Time) int {
	if d.LastDonation == nil {
		return -1
	}
	return int(now.Sub(*d.LastDonation).Hours() / 24)
}

// Eligibility is the outcome of a donor eligibility check.
type Eligibility struct {
	Eligible bool
	Reasons  []string
}

// Err returns nil when eligible, otherwise an error wrapping ErrDonorIneligible.
func (e Eligibility) Err() error {
	if e.Eligible {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDonorIneligible, strings.Join(e.Reasons, "; "))
}

// CheckEligibility applies the age, weight and donation-interval rules.
func (d *Donor) CheckEligibility(now time.Time) Eligibility {
	var reasons []string

	if age := d.Age(now); age < MinDonorAge || age > MaxDonorAge {
		reasons = append(reasons, fmt.Sprintf("Age must be between %d-%d years", MinDonorAge, MaxDonorAge))
	}
	if d.WeightKg < MinDonorWeightKg {
		reasons = append(reasons, fmt.Sprintf("Weight must be at least %.0f kg", MinDonorWeightKg))
	}
	if days := d.DaysSinceLastDonation(now); days >= 0 && days < DonationIntervalDays {
		reasons = append(reasons, fmt.Sprintf("Must wait %d more days since last donation", DonationIntervalDays-days))
	}

	return Eligibility{Eligible: len(reasons) == 0, Reasons: reasons}
}

// Validate validates the donor's fields.
func (d *Donor) Validate() error {
	if strings.TrimSpace(d.FullName) == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	if !d.BloodType.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidBloodType, d.BloodType)
	}
	if d.DateOfBirth.IsZero() {
		return fmt.Errorf("%w: date of birth is required", ErrInvalidInput)
	}
	if d.WeightKg <= 0 {
		return fmt.Errorf("%w: weight must be positive", ErrInvalidInput)
	}
	return nil
}

// DonorList represents a paginated list of donors.
type DonorList struct {
	Donors     []*Donor
	Total      int
	Page       int
	TotalPages int
}

// DonorFilter defines filters for querying donors.
type DonorFilter struct {
	BloodType  *BloodType
	ActiveOnly bool
	Search     string // matches name or email
}
