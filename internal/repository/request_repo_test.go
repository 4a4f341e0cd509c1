package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/testutil"
)

func TestRequestRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequestRepository(db.DB)
	ctx := context.Background()

	req := testutil.FixtureRequest(func(r *models.BloodRequest) {
		r.Urgency = models.UrgencyCritical
		r.Notes = "Patient in theatre 3"
	})
	if err := repo.Create(ctx, nil, req); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	found, err := repo.GetByID(ctx, nil, req.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if found.Priority != 10 {
		t.Errorf("priority = %d, want 10", found.Priority)
	}
	if found.Hospital.ContactNumber != req.Hospital.ContactNumber {
		t.Errorf("hospital contact not persisted")
	}
	if found.Notes != req.Notes {
		t.Errorf("notes = %q, want %q", found.Notes, req.Notes)
	}
	if len(found.Assignments) != 0 {
		t.Errorf("expected no assignments, got %d", len(found.Assignments))
	}

	if _, err := repo.GetByID(ctx, nil, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestRepository_UpdateStoresAssignments(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequestRepository(db.DB)
	donations := NewDonationRepository(db.DB)
	ctx := context.Background()

	donor := createDonor(t, db)
	donation := testutil.FixtureDonation(donor.ID)
	if err := donations.Create(ctx, nil, donation); err != nil {
		t.Fatalf("creating donation: %v", err)
	}

	req := testutil.FixtureRequest(func(r *models.BloodRequest) {
		r.BloodType = models.BloodTypeOPos
		r.Quantity = 3
		r.Status = models.RequestStatusApproved
	})
	if err := repo.Create(ctx, nil, req); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	req.ApplyAssignment(models.RequestAssignment{
		DonationID:   donation.ID,
		Quantity:     2,
		AssignedDate: time.Now().UTC().Truncate(time.Second),
	})
	if err := repo.Update(ctx, nil, req); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if req.Assignments[0].ID == "" {
		t.Error("assignment should be given an ID on save")
	}

	// Saving again must not duplicate the stored assignment.
	if err := repo.Update(ctx, nil, req); err != nil {
		t.Fatalf("second Update failed: %v", err)
	}
	db.AssertRowCount(t, "request_assignments", 1)

	found, err := repo.GetByID(ctx, nil, req.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if found.Status != models.RequestStatusPartiallyFulfilled || found.FulfilledQuantity != 2 {
		t.Errorf("status=%s fulfilled=%d", found.Status, found.FulfilledQuantity)
	}
	if found.AssignedTotal() != found.FulfilledQuantity {
		t.Errorf("assigned total %d != fulfilled %d", found.AssignedTotal(), found.FulfilledQuantity)
	}
	if found.Version != 2 {
		t.Errorf("version = %d, want 2", found.Version)
	}
}

func TestRequestRepository_QueueOrdering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequestRepository(db.DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	low := testutil.FixtureRequest(func(r *models.BloodRequest) {
		r.Urgency = models.UrgencyLow
		r.RequiredBy = now.AddDate(0, 0, 20)
	})
	highLater := testutil.FixtureRequest(func(r *models.BloodRequest) {
		r.Urgency = models.UrgencyHigh
		r.RequiredBy = now.AddDate(0, 0, 12)
	})
	highSooner := testutil.FixtureRequest(func(r *models.BloodRequest) {
		r.Urgency = models.UrgencyHigh
		r.RequiredBy = now.AddDate(0, 0, 10)
	})
	fulfilled := testutil.FixtureRequest(func(r *models.BloodRequest) {
		r.Urgency = models.UrgencyCritical
		r.Status = models.RequestStatusFulfilled
	})

	for _, r := range []*models.BloodRequest{low, highLater, highSooner, fulfilled} {
		if err := repo.Create(ctx, nil, r); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	queue, err := repo.Queue(ctx, models.DefaultPagination())
	if err != nil {
		t.Fatalf("Queue failed: %v", err)
	}
	if queue.Total != 3 {
		t.Fatalf("queue total = %d, want 3 open requests", queue.Total)
	}

	want := []string{highSooner.ID, highLater.ID, low.ID}
	for i, id := range want {
		if queue.Requests[i].ID != id {
			t.Errorf("queue[%d] = %s (priority %d), want %s", i, queue.Requests[i].ID, queue.Requests[i].Priority, id)
		}
	}
}

func TestRequestRepository_ListOverdue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequestRepository(db.DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	overdue := testutil.FixtureRequest(func(r *models.BloodRequest) {
		r.RequiredBy = now.Add(-time.Hour)
		r.Status = models.RequestStatusApproved
	})
	onTime := testutil.FixtureRequest()
	rejected := testutil.FixtureRequest(func(r *models.BloodRequest) {
		r.RequiredBy = now.Add(-time.Hour)
		r.Status = models.RequestStatusRejected
	})
	for _, r := range []*models.BloodRequest{overdue, onTime, rejected} {
		if err := repo.Create(ctx, nil, r); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	list, err := repo.ListOverdue(ctx, nil, now)
	if err != nil {
		t.Fatalf("ListOverdue failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != overdue.ID {
		t.Errorf("expected only the overdue open request, got %d", len(list))
	}
}

func TestRequestRepository_Filter(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRequestRepository(db.DB)
	ctx := context.Background()

	recipient := "recipient-42"
	for i := 0; i < 3; i++ {
		r := testutil.FixtureRequest(func(r *models.BloodRequest) { r.RecipientID = recipient })
		if err := repo.Create(ctx, nil, r); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := repo.Create(ctx, nil, testutil.FixtureRequest()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	list, err := repo.List(ctx, models.RequestFilter{RecipientID: recipient}, models.Pagination{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if list.Total != 3 || len(list.Requests) != 2 || list.TotalPages != 2 {
		t.Errorf("total=%d page=%d pages=%d", list.Total, len(list.Requests), list.TotalPages)
	}
}
