package requests

import (
	"context"
	"log/slog"
	"time"

	"github.com/bloodbank/bloodbank/internal/metrics"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/notify"
	"github.com/bloodbank/bloodbank/internal/util"
)

// Reservations releases the units held for a request.
type Reservations interface {
	ReleaseAll(ctx context.Context, requestID string) (int, error)
}

// Options configures a Service.
type Options struct {
	Clock    util.Clock
	Metrics  *metrics.Metrics
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// SubmitInput contains data for a new blood request.
type SubmitInput struct {
	RecipientID string
	BloodType   models.BloodType
	Quantity    int
	Urgency     models.Urgency // empty means medium
	RequiredBy  time.Time
	Reason      string
	Hospital    models.Hospital
	Notes       string
}

// UpdateInput contains the pending-request fields that may change. Nil
// fields are left as they are.
type UpdateInput struct {
	Quantity   *int
	Urgency    *models.Urgency
	RequiredBy *time.Time
	Reason     *string
	Hospital   *models.Hospital
	Notes      *string
}
