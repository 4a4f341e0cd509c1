package fulfillment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/bloodbank/bloodbank/internal/metrics"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/services/donations"
	"github.com/bloodbank/bloodbank/internal/services/donors"
	"github.com/bloodbank/bloodbank/internal/services/inventory"
	"github.com/bloodbank/bloodbank/internal/services/requests"
	"github.com/bloodbank/bloodbank/internal/testutil"
	"github.com/bloodbank/bloodbank/internal/util"
)

type CoordinatorSuite struct {
	suite.Suite
	ctx       context.Context
	db        *testutil.TestDB
	clock     *util.ManualClock
	metrics   *metrics.Metrics
	inventory *inventory.Service
	donors    *donors.Service
	donations *donations.Service
	requests  *requests.Service
	coord     *Coordinator
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = testutil.NewMigratedDB(s.T())
	s.clock = util.NewManualClock(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC))
	s.metrics = metrics.New(prometheus.NewRegistry())

	s.inventory = inventory.NewService(s.db.DB, inventory.Options{Clock: s.clock, Metrics: s.metrics})
	s.donors = donors.NewService(s.db.DB, s.clock)
	s.donations = donations.NewService(s.db.DB, s.inventory, s.donors, donations.Options{Clock: s.clock})
	s.requests = requests.NewService(s.db.DB, s.inventory, requests.Options{Clock: s.clock})
	s.coord = NewCoordinator(s.inventory, s.donations, s.requests, Options{Clock: s.clock, Metrics: s.metrics})

	_, err := s.inventory.Initialize(s.ctx)
	s.Require().NoError(err)
}

func (s *CoordinatorSuite) approvedDonation(bt models.BloodType) *models.Donation {
	donor, err := s.donors.Register(s.ctx, donors.RegisterInput{
		FullName:    "Sam Okafor",
		BloodType:   bt,
		DateOfBirth: s.clock.Now().AddDate(-40, 0, 0),
		WeightKg:    75,
	})
	s.Require().NoError(err)

	d, err := s.donations.Submit(s.ctx, donations.SubmitInput{
		DonorID:   donor.ID,
		BloodType: bt,
		Location:  models.DonationLocation{BloodBank: "Central Blood Bank", Address: "12 Harbor Road"},
	})
	s.Require().NoError(err)

	d, err = s.donations.Approve(s.ctx, d.ID, "staff-1", testutil.FixtureScreening())
	s.Require().NoError(err)
	return d
}

func (s *CoordinatorSuite) request(bt models.BloodType, quantity int) *models.BloodRequest {
	req, err := s.requests.Submit(s.ctx, requests.SubmitInput{
		RecipientID: "recipient-1",
		BloodType:   bt,
		Quantity:    quantity,
		Urgency:     models.UrgencyHigh,
		RequiredBy:  s.clock.Now().AddDate(0, 0, 5),
		Reason:      "Trauma surgery after road accident",
		Hospital: models.Hospital{
			Name:          "General Hospital",
			Address:       "400 Hill Street",
			ContactNumber: "5550199000",
		},
	})
	s.Require().NoError(err)
	return req
}

func (s *CoordinatorSuite) approvedRequest(bt models.BloodType, quantity int) *models.BloodRequest {
	req, err := s.requests.Approve(s.ctx, s.request(bt, quantity).ID, "staff-1")
	s.Require().NoError(err)
	return req
}

func (s *CoordinatorSuite) ledger(bt models.BloodType) *models.InventoryLedger {
	l, err := s.inventory.Get(s.ctx, bt)
	s.Require().NoError(err)
	s.Require().NoError(l.Validate())
	return l
}

func (s *CoordinatorSuite) TestUniversalDonorFulfillsRequest() {
	req := s.approvedRequest(models.BloodTypeABPos, 2)
	donation := s.approvedDonation(models.BloodTypeONeg)
	before := s.ledger(models.BloodTypeONeg)

	result, err := s.coord.AssignDonation(s.ctx, req.ID, donation.ID, 2)
	s.Require().NoError(err)
	s.Equal(2, result.Assigned)

	stored, err := s.requests.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.RequestStatusFulfilled, stored.Status)
	s.Equal(2, stored.FulfilledQuantity)
	s.Require().Len(stored.Assignments, 1)
	s.Equal(donation.ID, stored.Assignments[0].DonationID)
	s.Equal(stored.FulfilledQuantity, stored.AssignedTotal())

	collected, err := s.donations.Get(s.ctx, donation.ID)
	s.Require().NoError(err)
	s.Equal(models.DonationStatusCollected, collected.Status)
	s.False(collected.IsAvailable)

	// The whole bag leaves stock even though only 2 units were assigned.
	after := s.ledger(models.BloodTypeONeg)
	s.Equal(before.AvailableUnits-donation.Quantity, after.AvailableUnits)
	s.Zero(after.ReservedUnits)
	s.Equal(before.Statistics.TotalUnitsDispensed+donation.Quantity, after.Statistics.TotalUnitsDispensed)
	s.Equal(models.DonationEntryUsed, after.DonationEntry(donation.ID).Status)

	s.Equal(1.0, promtest.ToFloat64(s.metrics.Assignments))
	s.Equal(2.0, promtest.ToFloat64(s.metrics.AssignedUnits))
}

func (s *CoordinatorSuite) TestIncompatibleTypeChangesNothing() {
	req := s.approvedRequest(models.BloodTypeANeg, 2)
	donation := s.approvedDonation(models.BloodTypeBPos)
	before := s.ledger(models.BloodTypeBPos)

	_, err := s.coord.AssignDonation(s.ctx, req.ID, donation.ID, 2)
	s.ErrorIs(err, models.ErrIncompatibleBloodType)

	stored, err := s.requests.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.RequestStatusApproved, stored.Status)
	s.Zero(stored.FulfilledQuantity)
	s.Empty(stored.Assignments)
	s.Equal(req.Version, stored.Version)

	d, err := s.donations.Get(s.ctx, donation.ID)
	s.Require().NoError(err)
	s.True(d.Assignable())

	after := s.ledger(models.BloodTypeBPos)
	s.Equal(before.Version, after.Version)
	s.Equal(before.AvailableUnits, after.AvailableUnits)
	s.Zero(promtest.ToFloat64(s.metrics.Assignments))
}

func (s *CoordinatorSuite) TestAssignPreconditions() {
	pending := s.request(models.BloodTypeOPos, 2)
	donation := s.approvedDonation(models.BloodTypeOPos)

	_, err := s.coord.AssignDonation(s.ctx, pending.ID, donation.ID, 1)
	s.ErrorIs(err, models.ErrRequestNotApproved)

	approved := s.approvedRequest(models.BloodTypeOPos, 2)

	_, err = s.coord.AssignDonation(s.ctx, approved.ID, donation.ID, 0)
	s.ErrorIs(err, models.ErrInvalidQuantity)

	_, err = s.coord.AssignDonation(s.ctx, approved.ID, "missing", 1)
	s.ErrorIs(err, models.ErrNotFound)

	donor, err := s.donors.Register(s.ctx, donors.RegisterInput{
		FullName:    "Riley Chen",
		BloodType:   models.BloodTypeOPos,
		DateOfBirth: s.clock.Now().AddDate(-25, 0, 0),
		WeightKg:    60,
	})
	s.Require().NoError(err)
	unapproved, err := s.donations.Submit(s.ctx, donations.SubmitInput{DonorID: donor.ID, BloodType: models.BloodTypeOPos})
	s.Require().NoError(err)

	_, err = s.coord.AssignDonation(s.ctx, approved.ID, unapproved.ID, 1)
	s.ErrorIs(err, models.ErrDonationUnavailable)
}

func (s *CoordinatorSuite) TestPartialThenFull() {
	req := s.approvedRequest(models.BloodTypeAPos, 3)

	first, err := s.coord.AssignDonation(s.ctx, req.ID, s.approvedDonation(models.BloodTypeAPos).ID, 1)
	s.Require().NoError(err)
	s.Equal(models.RequestStatusPartiallyFulfilled, first.Request.Status)
	s.Equal(1, first.Request.Remaining())

	second, err := s.coord.AssignDonation(s.ctx, req.ID, s.approvedDonation(models.BloodTypeONeg).ID, 5)
	s.Require().NoError(err)
	s.Equal(2, second.Assigned, "capped at the remaining need")
	s.Equal(models.RequestStatusFulfilled, second.Request.Status)
	s.Equal(3, second.Request.FulfilledQuantity)

	_, err = s.coord.AssignDonation(s.ctx, req.ID, s.approvedDonation(models.BloodTypeAPos).ID, 1)
	s.ErrorIs(err, models.ErrRequestNotApproved)
}

func (s *CoordinatorSuite) TestReservedUnitsAreDispensed() {
	donation := s.approvedDonation(models.BloodTypeBNeg)
	afterApprove := s.ledger(models.BloodTypeBNeg)
	s.Equal(donation.Quantity, afterApprove.AvailableUnits)
	s.Equal(donation.Quantity, afterApprove.TotalUnits)

	req := s.approvedRequest(models.BloodTypeBPos, 4)
	reserved, err := s.coord.ReserveForRequest(s.ctx, req.ID, models.BloodTypeBNeg, 4)
	s.Require().NoError(err)
	s.Equal(4, reserved.ReservedUnits)

	result, err := s.coord.AssignDonation(s.ctx, req.ID, donation.ID, 4)
	s.Require().NoError(err)
	s.Equal(4, result.Request.FulfilledQuantity)

	after := s.ledger(models.BloodTypeBNeg)
	s.Equal(reserved.ReservedUnits-4, after.ReservedUnits)
	s.Zero(after.AvailableUnits, "the hold already left available stock and the rest left with the bag")
	s.Equal(donation.Quantity, after.Statistics.TotalUnitsDispensed)
}

func (s *CoordinatorSuite) TestFulfilledRequestReleasesOtherHolds() {
	s.approvedDonation(models.BloodTypeAPos)
	req := s.approvedRequest(models.BloodTypeABPos, 2)

	_, err := s.coord.ReserveForRequest(s.ctx, req.ID, models.BloodTypeAPos, 2)
	s.Require().NoError(err)
	s.Equal(2, s.ledger(models.BloodTypeAPos).ReservedUnits)

	_, err = s.coord.AssignDonation(s.ctx, req.ID, s.approvedDonation(models.BloodTypeONeg).ID, 2)
	s.Require().NoError(err)

	aPos := s.ledger(models.BloodTypeAPos)
	s.Zero(aPos.ReservedUnits)
	s.Equal(models.DefaultDonationQuantity, aPos.AvailableUnits)
}

func (s *CoordinatorSuite) TestReserveForRequestRules() {
	req := s.approvedRequest(models.BloodTypeONeg, 2)

	_, err := s.coord.ReserveForRequest(s.ctx, req.ID, models.BloodTypeOPos, 1)
	s.ErrorIs(err, models.ErrIncompatibleBloodType)

	_, err = s.coord.ReserveForRequest(s.ctx, req.ID, models.BloodTypeONeg, 1)
	s.ErrorIs(err, models.ErrInsufficientStock)

	s.approvedDonation(models.BloodTypeONeg)
	_, err = s.coord.ReserveForRequest(s.ctx, req.ID, models.BloodTypeONeg, 2)
	s.Require().NoError(err)

	_, err = s.coord.ReserveForRequest(s.ctx, req.ID, models.BloodTypeONeg, 1)
	s.ErrorIs(err, models.ErrInvalidQuantity)

	pending := s.request(models.BloodTypeONeg, 1)
	_, err = s.coord.ReserveForRequest(s.ctx, pending.ID, models.BloodTypeONeg, 1)
	s.ErrorIs(err, models.ErrRequestNotApproved)
}

func (s *CoordinatorSuite) TestConcurrentAssignmentsOfOneDonation() {
	donation := s.approvedDonation(models.BloodTypeONeg)
	reqs := []*models.BloodRequest{
		s.approvedRequest(models.BloodTypeAPos, 2),
		s.approvedRequest(models.BloodTypeBPos, 2),
		s.approvedRequest(models.BloodTypeOPos, 2),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(reqs))
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.coord.AssignDonation(s.ctx, req.ID, donation.ID, 2)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(errors.Is(err, models.ErrDonationUnavailable), "unexpected error: %v", err)
	}
	s.Equal(1, succeeded)

	l := s.ledger(models.BloodTypeONeg)
	s.Zero(l.AvailableUnits)
	s.Equal(donation.Quantity, l.Statistics.TotalUnitsDispensed)
	s.Equal(2.0, promtest.ToFloat64(s.metrics.AssignedUnits))
}

func (s *CoordinatorSuite) TestExpiredDonationIsNotAssignable() {
	donation := s.approvedDonation(models.BloodTypeONeg)
	s.clock.Advance(36 * 24 * time.Hour)
	s.Require().True(donation.IsExpired(s.clock.Now()))

	req := s.approvedRequest(models.BloodTypeABPos, 2)
	before := s.ledger(models.BloodTypeONeg)

	candidates, err := s.coord.Candidates(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Empty(candidates)

	_, err = s.coord.AssignDonation(s.ctx, req.ID, donation.ID, 2)
	s.ErrorIs(err, models.ErrDonationUnavailable)

	stored, err := s.requests.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.RequestStatusApproved, stored.Status)
	s.Empty(stored.Assignments)

	d, err := s.donations.Get(s.ctx, donation.ID)
	s.Require().NoError(err)
	s.Equal(models.DonationStatusApproved, d.Status)

	after := s.ledger(models.BloodTypeONeg)
	s.Equal(before.Version, after.Version)
	s.Zero(after.ReservedUnits)
}

func (s *CoordinatorSuite) TestPartialAssignmentLeavesNoStrandedStock() {
	req := s.approvedRequest(models.BloodTypeABPos, 3)
	donation := s.approvedDonation(models.BloodTypeONeg)

	result, err := s.coord.AssignDonation(s.ctx, req.ID, donation.ID, 2)
	s.Require().NoError(err)
	s.Equal(models.RequestStatusPartiallyFulfilled, result.Request.Status)

	s.clock.Advance(40 * 24 * time.Hour)
	_, err = s.inventory.SweepAlerts(s.ctx)
	s.Require().NoError(err)

	l := s.ledger(models.BloodTypeONeg)
	s.Zero(l.AvailableUnits, "the rest of a collected bag is not assignable stock")
	s.Zero(l.ExpiredUnits, "a collected bag does not expire on the shelf")
	s.Zero(l.TotalUnits)
	s.Equal(donation.Quantity, l.Statistics.TotalUnitsDispensed)
}

func (s *CoordinatorSuite) TestReserveCountsHoldsOnEveryLedger() {
	s.approvedDonation(models.BloodTypeAPos)
	s.approvedDonation(models.BloodTypeONeg)
	req := s.approvedRequest(models.BloodTypeABPos, 2)

	_, err := s.coord.ReserveForRequest(s.ctx, req.ID, models.BloodTypeAPos, 2)
	s.Require().NoError(err)

	_, err = s.coord.ReserveForRequest(s.ctx, req.ID, models.BloodTypeONeg, 1)
	s.ErrorIs(err, models.ErrInvalidQuantity)
	s.Zero(s.ledger(models.BloodTypeONeg).ReservedUnits)

	held, err := s.inventory.HeldUnits(s.ctx, nil, req.ID)
	s.Require().NoError(err)
	s.Equal(2, held)
}

func (s *CoordinatorSuite) TestCandidates() {
	req := s.approvedRequest(models.BloodTypeANeg, 1)
	aNeg := s.approvedDonation(models.BloodTypeANeg)
	oNeg := s.approvedDonation(models.BloodTypeONeg)
	s.approvedDonation(models.BloodTypeAPos)

	candidates, err := s.coord.Candidates(s.ctx, req.ID)
	s.Require().NoError(err)

	var ids []string
	for _, d := range candidates {
		ids = append(ids, d.ID)
	}
	s.ElementsMatch([]string{aNeg.ID, oNeg.ID}, ids)
}

func TestIsRejection(t *testing.T) {
	if !IsRejection(models.ErrIncompatibleBloodType) {
		t.Error("incompatible blood type should be a rejection")
	}
	if IsRejection(errors.New("disk I/O error")) {
		t.Error("infrastructure errors are not rejections")
	}
}
