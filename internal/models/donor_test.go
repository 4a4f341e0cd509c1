package models

import (
	"errors"
	"testing"
	"time"
)

func TestDonor_CheckEligibility(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	daysAgo := func(n int) *time.Time {
		t := now.AddDate(0, 0, -n)
		return &t
	}

	tests := []struct {
		name       string
		donor      Donor
		eligible   bool
		wantReason string
	}{
		{
			name:     "Eligible first-time donor",
			donor:    Donor{DateOfBirth: now.AddDate(-30, 0, 0), WeightKg: 70},
			eligible: true,
		},
		{
			name:     "Eligible after interval",
			donor:    Donor{DateOfBirth: now.AddDate(-30, 0, 0), WeightKg: 70, LastDonation: daysAgo(56)},
			eligible: true,
		},
		{
			name:       "Too young",
			donor:      Donor{DateOfBirth: now.AddDate(-17, 0, 0), WeightKg: 70},
			wantReason: "Age must be between 18-65 years",
		},
		{
			name:       "Too old",
			donor:      Donor{DateOfBirth: now.AddDate(-67, 0, 0), WeightKg: 70},
			wantReason: "Age must be between 18-65 years",
		},
		{
			name:       "Too light",
			donor:      Donor{DateOfBirth: now.AddDate(-30, 0, 0), WeightKg: 44},
			wantReason: "Weight must be at least 45 kg",
		},
		{
			name:       "Donated recently",
			donor:      Donor{DateOfBirth: now.AddDate(-30, 0, 0), WeightKg: 70, LastDonation: daysAgo(50)},
			wantReason: "Must wait 6 more days since last donation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.donor.CheckEligibility(now)
			if got.Eligible != tt.eligible {
				t.Fatalf("Eligible = %v, want %v (reasons %v)", got.Eligible, tt.eligible, got.Reasons)
			}
			if tt.eligible {
				if got.Err() != nil {
					t.Errorf("Err() = %v, want nil", got.Err())
				}
				return
			}
			if len(got.Reasons) != 1 || got.Reasons[0] != tt.wantReason {
				t.Errorf("Reasons = %v, want [%s]", got.Reasons, tt.wantReason)
			}
			if !errors.Is(got.Err(), ErrDonorIneligible) {
				t.Errorf("Err() should wrap ErrDonorIneligible, got %v", got.Err())
			}
		})
	}
}

func TestDonor_Age(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	d := Donor{DateOfBirth: time.Date(1990, 7, 2, 0, 0, 0, 0, time.UTC)}
	if got := d.Age(now); got != 33 {
		t.Errorf("Age() = %d, want 33", got)
	}
}
