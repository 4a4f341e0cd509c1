package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestComputePriority(t *testing.T) {
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		urgency    Urgency
		requiredBy time.Time
		want       int
	}{
		{"Critical tomorrow caps at 10", UrgencyCritical, now.AddDate(0, 0, 1), 10},
		{"Critical in 30 days stays 10", UrgencyCritical, now.AddDate(0, 0, 30), 10},
		{"High within a day", UrgencyHigh, now.Add(12 * time.Hour), 10},
		{"High in 3 days", UrgencyHigh, now.AddDate(0, 0, 3), 10},
		{"High in 5 days", UrgencyHigh, now.AddDate(0, 0, 5), 9},
		{"High in 8 days", UrgencyHigh, now.AddDate(0, 0, 8), 8},
		{"Medium in 2 days", UrgencyMedium, now.AddDate(0, 0, 2), 7},
		{"Medium in 7 days", UrgencyMedium, now.AddDate(0, 0, 7), 6},
		{"Medium just over 7 days", UrgencyMedium, now.AddDate(0, 0, 7).Add(time.Minute), 5},
		{"Low tomorrow", UrgencyLow, now.AddDate(0, 0, 1), 6},
		{"Low far out", UrgencyLow, now.AddDate(0, 1, 0), 3},
		{"Overdue still gets the bonus", UrgencyLow, now.Add(-time.Hour), 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputePriority(tt.urgency, tt.requiredBy, now); got != tt.want {
				t.Errorf("ComputePriority() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBloodRequest_ReprioritizeEscalatesOverTime(t *testing.T) {
	created := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	r := &BloodRequest{Urgency: UrgencyMedium, RequiredBy: created.AddDate(0, 0, 10)}

	r.Reprioritize(created)
	if r.Priority != 5 {
		t.Fatalf("initial priority = %d, want 5", r.Priority)
	}

	// Same record saved nine days later picks up the deadline bonus.
	r.Reprioritize(created.AddDate(0, 0, 9))
	if r.Priority != 8 {
		t.Errorf("escalated priority = %d, want 8", r.Priority)
	}
}

func TestBloodRequest_ApplyAssignment(t *testing.T) {
	r := &BloodRequest{Quantity: 3, Status: RequestStatusApproved}

	r.ApplyAssignment(RequestAssignment{DonationID: "d1", Quantity: 1})
	if r.Status != RequestStatusPartiallyFulfilled || r.FulfilledQuantity != 1 {
		t.Fatalf("after first assignment: status=%s fulfilled=%d", r.Status, r.FulfilledQuantity)
	}
	if r.Remaining() != 2 {
		t.Errorf("Remaining() = %d, want 2", r.Remaining())
	}

	r.ApplyAssignment(RequestAssignment{DonationID: "d2", Quantity: 2})
	if r.Status != RequestStatusFulfilled {
		t.Fatalf("status = %s, want fulfilled", r.Status)
	}
	if r.FulfilledQuantity != r.AssignedTotal() {
		t.Errorf("fulfilled %d != assigned total %d", r.FulfilledQuantity, r.AssignedTotal())
	}
	if r.FulfillmentPercentage() != 100 {
		t.Errorf("FulfillmentPercentage() = %d, want 100", r.FulfillmentPercentage())
	}
}

func TestBloodRequest_FulfillmentPercentage(t *testing.T) {
	tests := []struct {
		quantity  int
		fulfilled int
		want      int
	}{
		{3, 0, 0},
		{3, 1, 33},
		{3, 2, 67},
		{10, 10, 100},
		{0, 0, 0},
	}

	for _, tt := range tests {
		r := &BloodRequest{Quantity: tt.quantity, FulfilledQuantity: tt.fulfilled}
		if got := r.FulfillmentPercentage(); got != tt.want {
			t.Errorf("FulfillmentPercentage(%d/%d) = %d, want %d", tt.fulfilled, tt.quantity, got, tt.want)
		}
	}
}

func TestRequestStatus(t *testing.T) {
	tests := []struct {
		status      RequestStatus
		terminal    bool
		assignments bool
	}{
		{RequestStatusPending, false, false},
		{RequestStatusApproved, false, true},
		{RequestStatusPartiallyFulfilled, false, true},
		{RequestStatusFulfilled, true, false},
		{RequestStatusRejected, true, false},
		{RequestStatusExpired, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if !tt.status.Valid() {
				t.Fatal("status should be valid")
			}
			if tt.status.IsTerminal() != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", tt.status.IsTerminal(), tt.terminal)
			}
			if tt.status.AcceptsAssignments() != tt.assignments {
				t.Errorf("AcceptsAssignments() = %v, want %v", tt.status.AcceptsAssignments(), tt.assignments)
			}
		})
	}
}

func validRequest(now time.Time) *BloodRequest {
	return &BloodRequest{
		RecipientID: "recipient-1",
		BloodType:   BloodTypeABPos,
		Quantity:    2,
		Urgency:     UrgencyHigh,
		RequiredBy:  now.AddDate(0, 0, 2),
		Reason:      "Scheduled cardiac surgery",
		Hospital: Hospital{
			Name:          "St. Mary",
			Address:       "1 Main Street",
			ContactNumber: "5551234567",
		},
	}
}

func TestBloodRequest_Validate(t *testing.T) {
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mutate  func(*BloodRequest)
		wantErr error
	}{
		{"Valid", func(*BloodRequest) {}, nil},
		{"Bad blood type", func(r *BloodRequest) { r.BloodType = "Z" }, ErrInvalidBloodType},
		{"Zero quantity", func(r *BloodRequest) { r.Quantity = 0 }, ErrInvalidQuantity},
		{"Too many units", func(r *BloodRequest) { r.Quantity = 11 }, ErrInvalidQuantity},
		{"Required by now", func(r *BloodRequest) { r.RequiredBy = now }, ErrInvalidRequiredDate},
		{"Required in the past", func(r *BloodRequest) { r.RequiredBy = now.Add(-time.Hour) }, ErrInvalidRequiredDate},
		{"Short reason", func(r *BloodRequest) { r.Reason = "surgery" }, ErrInvalidInput},
		{"Long reason", func(r *BloodRequest) { r.Reason = strings.Repeat("x", 501) }, ErrInvalidInput},
		{"Short multibyte reason", func(r *BloodRequest) { r.Reason = "緊急手術です" }, ErrInvalidInput},
		{"Long accented reason", func(r *BloodRequest) { r.Reason = strings.Repeat("é", 300) }, nil},
		{"Accented reason at the limit", func(r *BloodRequest) { r.Reason = strings.Repeat("ü", 500) }, nil},
		{"Accented reason over the limit", func(r *BloodRequest) { r.Reason = strings.Repeat("ü", 501) }, ErrInvalidInput},
		{"Bad contact", func(r *BloodRequest) { r.Hospital.ContactNumber = "555-123" }, ErrInvalidInput},
		{"Missing hospital", func(r *BloodRequest) { r.Hospital.Name = "" }, ErrInvalidInput},
		{"Bad urgency", func(r *BloodRequest) { r.Urgency = "asap" }, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest(now)
			tt.mutate(r)
			err := r.Validate(now)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
