// Package notify delivers domain events to external sinks. Delivery is
// best effort: domain operations never fail because a notification did.
package notify

//go:generate mockgen -source=notify.go -destination=mocks/mocks.go -package=mocks Notifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bloodbank/bloodbank/internal/models"
)

// EventKind identifies a domain event.
type EventKind string

const (
	EventDonationApproved     EventKind = "donation.approved"
	EventDonationRejected     EventKind = "donation.rejected"
	EventRequestStatusChanged EventKind = "request.status_changed"
	EventInventoryAlert       EventKind = "inventory.alert"
)

// Event is a state transition worth telling someone about.
type Event struct {
	Kind       EventKind        `json:"kind"`
	BloodType  models.BloodType `json:"blood_type,omitempty"`
	EntityID   string           `json:"entity_id,omitempty"`
	Status     string           `json:"status,omitempty"`
	Severity   string           `json:"severity,omitempty"`
	Quantity   int              `json:"quantity,omitempty"`
	Message    string           `json:"message,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Notifier receives domain events.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs to logger, or to the default
// logger when logger is nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event at Info, or Warn for critical alerts.
func (n *LogNotifier) Notify(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	if e.Kind == EventInventoryAlert && e.Severity == string(models.SeverityCritical) {
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "event",
		"kind", e.Kind,
		"blood_type", e.BloodType,
		"entity_id", e.EntityID,
		"status", e.Status,
		"quantity", e.Quantity,
		"message", e.Message,
	)
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
