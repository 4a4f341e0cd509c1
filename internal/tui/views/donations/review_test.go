package donations

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/testutil"
)

var testNow = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	donations  []*models.Donation
	lastFilter models.DonationFilter
}

func (f *fakeSource) List(_ context.Context, filter models.DonationFilter, page models.Pagination) (*models.DonationList, error) {
	f.lastFilter = filter
	return &models.DonationList{Donations: f.donations, Total: len(f.donations), Page: page.Page, TotalPages: 1}, nil
}

func TestReviewView_EmptyRender(t *testing.T) {
	view := NewReviewView(nil)
	output := view.Render(120, 40)

	if !strings.Contains(output, "DONATIONS") {
		t.Error("expected title in output")
	}
	if !strings.Contains(output, "No donations found") {
		t.Error("expected empty state message")
	}
	if !strings.Contains(output, "pending") {
		t.Error("expected pending to be the default filter")
	}
}

func TestReviewView_LoadUsesStatusFilter(t *testing.T) {
	donor := testutil.FixtureDonor(func(d *models.Donor) { d.FullName = "Ines Duarte" })
	donation := testutil.FixtureDonation(donor.ID, func(d *models.Donation) {
		d.Donor = donor
		d.DonationDate = testNow.AddDate(0, 0, -33)
		d.ExpiryDate = models.ExpiryFor(d.DonationDate)
	})
	source := &fakeSource{donations: []*models.Donation{donation}}
	view := NewReviewView(source)
	view.SetNow(testNow)

	if err := view.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if source.lastFilter.Status == nil || *source.lastFilter.Status != models.DonationStatusPending {
		t.Errorf("expected pending filter, got %+v", source.lastFilter)
	}

	output := view.Render(140, 40)
	if !strings.Contains(output, "Ines Duarte") {
		t.Error("expected donor name in output")
	}
	if !strings.Contains(output, "2d") {
		t.Error("expected short expiry countdown for a donation two days from expiry")
	}

	view.CycleStatusFilter()
	if err := view.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *source.lastFilter.Status != models.DonationStatusApproved {
		t.Errorf("expected approved filter, got %v", *source.lastFilter.Status)
	}
}

func TestReviewView_FilterWrapsThroughAll(t *testing.T) {
	view := NewReviewView(&fakeSource{})
	for range len(statusFilters) - 1 {
		view.CycleStatusFilter()
	}
	if view.FilterLabel() != "all" {
		t.Errorf("expected all, got %q", view.FilterLabel())
	}
	view.CycleStatusFilter()
	if view.FilterLabel() != "pending" {
		t.Errorf("expected wrap to pending, got %q", view.FilterLabel())
	}
}

func TestReviewView_RenderDetail(t *testing.T) {
	view := NewReviewView(nil)
	view.SetNow(testNow)

	donation := testutil.FixtureDonation("donor-1", func(d *models.Donation) {
		d.Status = models.DonationStatusApproved
		d.DonationDate = testNow.AddDate(0, 0, -2)
		d.ExpiryDate = models.ExpiryFor(d.DonationDate)
		d.Screening = testutil.FixtureScreening()
	})

	output := view.RenderDetail(donation, 120)
	for _, want := range []string{"DONATION DETAILS", "450 ml", "approved", "SCREENING", "g/dL", "Esc:Back"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in detail output", want)
		}
	}
}

func TestReviewView_RenderDetail_Nil(t *testing.T) {
	view := NewReviewView(nil)
	if !strings.Contains(view.RenderDetail(nil, 120), "No donation selected") {
		t.Error("expected placeholder for nil donation")
	}
}
