package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultMinThreshold is the low-stock threshold for a new ledger.
	DefaultMinThreshold = 10

	// DefaultMaxCapacity is the storage capacity for a new ledger.
	DefaultMaxCapacity = 100

	// ShelfLifeDays is how long donated blood stays usable.
	ShelfLifeDays = 35

	// ExpiringSoonDays is the look-ahead window for expiring_soon alerts.
	ExpiringSoonDays = 7

	// AlertRetention is how long an alert stays active after it is raised.
	AlertRetention = 24 * time.Hour
)

// StockLevel classifies a ledger's available units against its thresholds.
type StockLevel string

const (
	StockLevelNormal   StockLevel = "normal"
	StockLevelLow      StockLevel = "low"
	StockLevelCritical StockLevel = "critical"
	StockLevelHigh     StockLevel = "high"
)

func (s StockLevel) String() string {
	return string(s)
}

// DonationEntryStatus is the state of a donation counted in a ledger.
type DonationEntryStatus string

const (
	DonationEntryAvailable DonationEntryStatus = "available"
	DonationEntryReserved  DonationEntryStatus = "reserved"
	DonationEntryUsed      DonationEntryStatus = "used"
	DonationEntryExpired   DonationEntryStatus = "expired"
)

// Valid returns true if the entry status is valid.
func (s DonationEntryStatus) Valid() bool {
	switch s {
	case DonationEntryAvailable, DonationEntryReserved, DonationEntryUsed, DonationEntryExpired:
		return true
	}
	return false
}

// ReservationStatus is the state of a hold placed against a request.
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Valid returns true if the reservation status is valid.
func (s ReservationStatus) Valid() bool {
	return s == ReservationReserved || s == ReservationFulfilled || s == ReservationCancelled
}

// AlertKind identifies what an inventory alert is about.
type AlertKind string

const (
	AlertLowStock     AlertKind = "low_stock"
	AlertExpiringSoon AlertKind = "expiring_soon"
	AlertExpired      AlertKind = "expired"
	AlertHighDemand   AlertKind = "high_demand"
)

// AlertSeverity ranks inventory alerts.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// tracked marks ledger rows changed since they were loaded, so a save only
// writes new and modified rows.
type tracked struct {
	changed bool
}

// Changed reports whether the row was modified since it was loaded or saved.
func (t *tracked) Changed() bool { return t.changed }

// MarkSaved clears the change flag after the row is written.
func (t *tracked) MarkSaved() { t.changed = false }

func (t *tracked) touch() { t.changed = true }

// LedgerDonationEntry records an approved donation counted in a ledger.
type LedgerDonationEntry struct {
	tracked

	ID         string
	DonationID string
	Quantity   int
	ExpiryDate time.Time
	Status     DonationEntryStatus
	AddedAt    time.Time
}

// LedgerRequestEntry records units held for a request.
type LedgerRequestEntry struct {
	tracked

	ID                string
	RequestID         string
	Quantity          int
	FulfilledQuantity int
	Status            ReservationStatus
	ReservedAt        time.Time
	UpdatedAt         time.Time
}

// Remaining returns the units still held by the reservation.
func (e *LedgerRequestEntry) Remaining() int {
	if e.Status != ReservationReserved {
		return 0
	}
	return e.Quantity - e.FulfilledQuantity
}

// InventoryAlert is a threshold or expiry notice raised on a ledger.
// Inactive alerts are kept for audit.
type InventoryAlert struct {
	tracked

	ID        string
	BloodType BloodType
	Kind      AlertKind
	Severity  AlertSeverity
	Message   string
	Active    bool
	CreatedAt time.Time
}

// LedgerStatistics holds cumulative counters for a ledger.
type LedgerStatistics struct {
	TotalDonationsReceived int
	TotalUnitsDispensed    int
	TotalUnitsExpired      int
	AverageShelfLifeDays   int
}

// InventoryLedger is the stock record for one blood type.
type InventoryLedger struct {
	BloodType      BloodType
	AvailableUnits int
	ReservedUnits  int
	ExpiredUnits   int
	TotalUnits     int // always AvailableUnits + ReservedUnits + ExpiredUnits
	MinThreshold   int
	MaxCapacity    int

	DonationEntries []*LedgerDonationEntry
	RequestEntries  []*LedgerRequestEntry
	Alerts          []*InventoryAlert
	Statistics      LedgerStatistics

	Version     int64 // compare-and-swap token, bumped by every save
	LastUpdated time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewInventoryLedger returns a zeroed ledger with default thresholds.
func NewInventoryLedger(bt BloodType, now time.Time) *InventoryLedger {
	return &InventoryLedger{
		BloodType:    bt,
		MinThreshold: DefaultMinThreshold,
		MaxCapacity:  DefaultMaxCapacity,
		Statistics: LedgerStatistics{
			AverageShelfLifeDays: ShelfLifeDays,
		},
		LastUpdated: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (l *InventoryLedger) recompute(now time.Time) {
	l.TotalUnits = l.AvailableUnits + l.ReservedUnits + l.ExpiredUnits
	l.LastUpdated = now
}

// Validate checks the ledger's counters and thresholds.
func (l *InventoryLedger) Validate() error {
	var errs []error
	if !l.BloodType.Valid() {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidBloodType, l.BloodType))
	}
	if l.AvailableUnits < 0 || l.ReservedUnits < 0 || l.ExpiredUnits < 0 {
		errs = append(errs, errors.New("unit counters must be non-negative"))
	}
	if l.TotalUnits != l.AvailableUnits+l.ReservedUnits+l.ExpiredUnits {
		errs = append(errs, fmt.Errorf("total units %d does not match available+reserved+expired", l.TotalUnits))
	}
	if err := validateThresholds(l.MinThreshold, l.MaxCapacity); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateThresholds(minThreshold, maxCapacity int) error {
	var errs []error
	if minThreshold < 1 {
		errs = append(errs, errors.New("min threshold must be at least 1"))
	}
	if maxCapacity < 10 {
		errs = append(errs, errors.New("max capacity must be at least 10"))
	}
	if maxCapacity <= minThreshold {
		errs = append(errs, errors.New("max capacity must exceed min threshold"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// SetThresholds updates the low-stock threshold and capacity.
func (l *InventoryLedger) SetThresholds(minThreshold, maxCapacity int, now time.Time) error {
	if err := validateThresholds(minThreshold, maxCapacity); err != nil {
		return err
	}
	l.MinThreshold = minThreshold
	l.MaxCapacity = maxCapacity
	l.recompute(now)
	return nil
}

// IsLow reports whether available units are at or under the threshold.
func (l *InventoryLedger) IsLow() bool {
	return l.AvailableUnits <= l.MinThreshold
}

// IsCritical reports whether available units are at or under half the threshold.
func (l *InventoryLedger) IsCritical() bool {
	return l.AvailableUnits <= l.MinThreshold/2
}

// StockStatus classifies the ledger. Critical wins over low, low over high.
func (l *InventoryLedger) StockStatus() StockLevel {
	switch {
	case l.IsCritical():
		return StockLevelCritical
	case l.IsLow():
		return StockLevelLow
	case float64(l.AvailableUnits) >= 0.8*float64(l.MaxCapacity):
		return StockLevelHigh
	default:
		return StockLevelNormal
	}
}

// StockPercentage returns available units as a rounded percentage of
// capacity. It is not clamped and exceeds 100 when overstocked.
func (l *InventoryLedger) StockPercentage() int {
	if l.MaxCapacity <= 0 {
		return 0
	}
	return int(math.Round(float64(l.AvailableUnits) / float64(l.MaxCapacity) * 100))
}

// AddDonation counts an approved donation as available stock.
func (l *InventoryLedger) AddDonation(donationID string, quantity int, expiryDate, now time.Time) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	l.DonationEntries = append(l.DonationEntries, &LedgerDonationEntry{
		DonationID: donationID,
		Quantity:   quantity,
		ExpiryDate: expiryDate,
		Status:     DonationEntryAvailable,
		AddedAt:    now,
	})
	l.AvailableUnits += quantity
	l.Statistics.TotalDonationsReceived++
	l.recompute(now)

	if !l.IsLow() {
		l.deactivateAlerts(AlertLowStock)
	}
	return nil
}

// ReserveUnits holds quantity units for a request.
func (l *InventoryLedger) ReserveUnits(requestID string, quantity int, now time.Time) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if quantity > l.AvailableUnits {
		return fmt.Errorf("%w: %d %s units requested, %d available",
			ErrInsufficientStock, quantity, l.BloodType, l.AvailableUnits)
	}

	l.RequestEntries = append(l.RequestEntries, &LedgerRequestEntry{
		RequestID:  requestID,
		Quantity:   quantity,
		Status:     ReservationReserved,
		ReservedAt: now,
		UpdatedAt:  now,
	})
	l.AvailableUnits -= quantity
	l.ReservedUnits += quantity
	l.recompute(now)
	return nil
}

// ReservedFor returns the units currently held for a request.
func (l *InventoryLedger) ReservedFor(requestID string) int {
	held := 0
	for _, e := range l.RequestEntries {
		if e.RequestID == requestID {
			held += e.Remaining()
		}
	}
	return held
}

// FulfillReservation dispenses quantity units held for a request. Holds
// placed for the same request are consumed oldest first.
func (l *InventoryLedger) FulfillReservation(requestID string, quantity int, now time.Time) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	held := l.ReservedFor(requestID)
	if held == 0 {
		return fmt.Errorf("%w: request %s on %s", ErrReservationNotFound, requestID, l.BloodType)
	}
	if quantity > held {
		return fmt.Errorf("%w: %d requested, %d reserved", ErrOverFulfillment, quantity, held)
	}

	remaining := quantity
	for _, e := range l.RequestEntries {
		if remaining == 0 {
			break
		}
		if e.RequestID != requestID || e.Remaining() == 0 {
			continue
		}
		take := min(remaining, e.Remaining())
		e.FulfilledQuantity += take
		if e.Remaining() == 0 {
			e.Status = ReservationFulfilled
		}
		e.UpdatedAt = now
		e.touch()
		remaining -= take
	}

	l.ReservedUnits -= quantity
	l.Statistics.TotalUnitsDispensed += quantity
	l.recompute(now)
	return nil
}

// ReleaseReservation cancels every hold for a request and returns the
// unfulfilled units to available stock. It returns the units released.
func (l *InventoryLedger) ReleaseReservation(requestID string, now time.Time) int {
	released := 0
	for _, e := range l.RequestEntries {
		if e.RequestID != requestID || e.Status != ReservationReserved {
			continue
		}
		released += e.Remaining()
		e.Status = ReservationCancelled
		e.UpdatedAt = now
		e.touch()
	}
	if released == 0 {
		return 0
	}

	l.ReservedUnits -= released
	l.AvailableUnits += released
	l.recompute(now)
	return released
}

// CollectDonation retires a donation's entry once the donation has been
// collected for a request. The assigned units were already dispensed
// through the request's reservation; the rest of the entry leaves available
// stock with the bag and is counted as dispensed too. It returns the units
// removed beyond the assignment, and false if the donation has no
// available entry.
func (l *InventoryLedger) CollectDonation(donationID string, assigned int, now time.Time) (int, bool) {
	for _, e := range l.DonationEntries {
		if e.DonationID != donationID || (e.Status != DonationEntryAvailable && e.Status != DonationEntryReserved) {
			continue
		}
		e.Status = DonationEntryUsed
		e.touch()

		// Units already reserved from the pool stay reserved.
		rest := min(max(e.Quantity-assigned, 0), l.AvailableUnits)
		l.AvailableUnits -= rest
		l.Statistics.TotalUnitsDispensed += rest
		l.recompute(now)
		return rest, true
	}
	return 0, false
}

// DonationEntry returns the ledger entry for a donation, or nil.
func (l *InventoryLedger) DonationEntry(donationID string) *LedgerDonationEntry {
	for _, e := range l.DonationEntries {
		if e.DonationID == donationID {
			return e
		}
	}
	return nil
}

// ExpireStaleDonations moves available entries past their expiry date into
// expired stock and returns the units moved. A second call with nothing
// newly expired changes nothing.
func (l *InventoryLedger) ExpireStaleDonations(now time.Time) int {
	expired := 0
	for _, e := range l.DonationEntries {
		if e.Status != DonationEntryAvailable || !e.ExpiryDate.Before(now) {
			continue
		}
		// Units already reserved from the pool stay reserved.
		moved := min(e.Quantity, l.AvailableUnits)
		l.AvailableUnits -= moved
		l.ExpiredUnits += moved
		expired += moved
		e.Status = DonationEntryExpired
		e.touch()
	}
	if expired == 0 {
		return 0
	}

	l.Statistics.TotalUnitsExpired += expired
	l.recompute(now)
	l.RaiseAlert(AlertExpired, SeverityWarning,
		fmt.Sprintf("%d units of %s blood have expired", expired, l.BloodType), now)
	return expired
}

// RaiseAlert appends an active alert and returns it.
func (l *InventoryLedger) RaiseAlert(kind AlertKind, severity AlertSeverity, message string, now time.Time) *InventoryAlert {
	alert := &InventoryAlert{
		BloodType: l.BloodType,
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		Active:    true,
		CreatedAt: now,
	}
	l.Alerts = append(l.Alerts, alert)
	return alert
}

// UpsertAlert keeps at most one active alert per kind. An active alert of
// the same kind and severity gets the new message; one of another severity
// is deactivated and replaced. It returns the active alert and whether it
// was newly raised.
func (l *InventoryLedger) UpsertAlert(kind AlertKind, severity AlertSeverity, message string, now time.Time) (*InventoryAlert, bool) {
	var current *InventoryAlert
	for _, a := range l.Alerts {
		if !a.Active || a.Kind != kind {
			continue
		}
		if a.Severity == severity && current == nil {
			current = a
			continue
		}
		a.Active = false
		a.touch()
	}
	if current == nil {
		return l.RaiseAlert(kind, severity, message, now), true
	}
	if current.Message != message {
		current.Message = message
		current.touch()
	}
	return current, false
}

// ActiveAlerts returns the alerts that are still active.
func (l *InventoryLedger) ActiveAlerts() []*InventoryAlert {
	var active []*InventoryAlert
	for _, a := range l.Alerts {
		if a.Active {
			active = append(active, a)
		}
	}
	return active
}

// ExpireAlerts deactivates alerts raised before cutoff.
func (l *InventoryLedger) ExpireAlerts(cutoff time.Time) int {
	n := 0
	for _, a := range l.Alerts {
		if a.Active && a.CreatedAt.Before(cutoff) {
			a.Active = false
			a.touch()
			n++
		}
	}
	return n
}

func (l *InventoryLedger) deactivateAlerts(kind AlertKind) {
	for _, a := range l.Alerts {
		if a.Active && a.Kind == kind {
			a.Active = false
			a.touch()
		}
	}
}

// InventorySummary aggregates all ledgers.
type InventorySummary struct {
	TotalAvailable   int
	TotalReserved    int
	TotalExpired     int
	TotalUnits       int
	TotalDispensed   int
	TotalDonations   int
	ActiveAlerts     int
	AverageShelfLife int
	LowStockTypes    []BloodType
	CriticalTypes    []BloodType
	ByBloodType      map[BloodType]StockLevel
}
