package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/services/donations"
	"github.com/bloodbank/bloodbank/internal/services/donors"
	"github.com/bloodbank/bloodbank/internal/services/fulfillment"
	"github.com/bloodbank/bloodbank/internal/services/inventory"
	"github.com/bloodbank/bloodbank/internal/services/requests"
	"github.com/bloodbank/bloodbank/internal/testutil"
	"github.com/bloodbank/bloodbank/internal/util"
)

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewMigratedDB(t)
	clock := util.NewManualClock(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC))

	inv := inventory.NewService(db.DB, inventory.Options{Clock: clock})
	_, err := inv.Initialize(ctx)
	require.NoError(t, err)

	donorSvc := donors.NewService(db.DB, clock)
	donationSvc := donations.NewService(db.DB, inv, donorSvc, donations.Options{Clock: clock})
	requestSvc := requests.NewService(db.DB, inv, requests.Options{Clock: clock})
	svc := Services{
		Donors:      donorSvc,
		Donations:   donationSvc,
		Requests:    requestSvc,
		Fulfillment: fulfillment.NewCoordinator(inv, donationSvc, requestSvc, fulfillment.Options{Clock: clock}),
	}

	summary, err := NewGenerator(svc, Config{Donors: 40, Requests: 12, RandomSeed: 7}, clock).Generate(ctx)
	require.NoError(t, err)

	assert.Equal(t, 40, summary.Donors)
	assert.Equal(t, 12, summary.Requests)
	assert.Positive(t, summary.ApprovedDonations)
	db.AssertRowCount(t, "donors", 40)
	db.AssertRowCount(t, "blood_requests", 12)

	ledgers, err := inv.List(ctx)
	require.NoError(t, err)
	require.Len(t, ledgers, len(models.AllBloodTypes()))

	available := 0
	for _, l := range ledgers {
		require.NoError(t, l.Validate(), "ledger %s", l.BloodType)
		available += l.AvailableUnits + l.ReservedUnits
	}
	assert.Positive(t, available)
}

func TestGenerate_IsDeterministic(t *testing.T) {
	g1 := NewGenerator(Services{}, Config{RandomSeed: 42}, nil)
	g2 := NewGenerator(Services{}, Config{RandomSeed: 42}, nil)

	for range 20 {
		assert.Equal(t, g1.randomBloodType(), g2.randomBloodType())
		assert.Equal(t, g1.randomUrgency(), g2.randomUrgency())
	}
}
