package donations

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/bloodbank/bloodbank/internal/metrics"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/notify"
	"github.com/bloodbank/bloodbank/internal/services/inventory"
	"github.com/bloodbank/bloodbank/internal/util"
)

// Ledger is the part of the inventory service donations write through.
type Ledger interface {
	Mutate(ctx context.Context, bt models.BloodType, op string, fn inventory.MutateFunc) (*models.InventoryLedger, error)
}

// DonorRegistry supplies eligibility checks and donation stamps.
type DonorRegistry interface {
	CheckEligibility(ctx context.Context, donorID string) (*models.Donor, models.Eligibility, error)
	RecordDonation(ctx context.Context, tx *sql.Tx, donorID string, at time.Time) error
}

// Options configures a Service.
type Options struct {
	Clock    util.Clock
	Metrics  *metrics.Metrics
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// SubmitInput contains data for pledging a donation.
type SubmitInput struct {
	DonorID      string
	BloodType    models.BloodType
	DonationDate time.Time
	Location     models.DonationLocation
	Quantity     int // ml; zero means the default 450
	Notes        string
}

// UpdateInput contains the pending-donation fields that may change. Nil
// fields are left as they are.
type UpdateInput struct {
	DonationDate *time.Time
	Location     *models.DonationLocation
	Quantity     *int
	Notes        *string
}
