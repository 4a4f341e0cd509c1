package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/util"
)

const ledgerColumns = `blood_type, available_units, reserved_units, expired_units, total_units,
	min_threshold, max_capacity, total_donations_received, total_units_dispensed,
	total_units_expired, average_shelf_life_days, version, last_updated, created_at, updated_at`

// InventoryRepository persists inventory ledgers with their donation
// entries, reservations and alerts.
type InventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository creates a new inventory repository.
func NewInventoryRepository(db *sql.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// Ensure inserts the ledger unless one already exists for its blood type.
// It reports whether a row was inserted.
func (r *InventoryRepository) Ensure(ctx context.Context, tx *sql.Tx, ledger *models.InventoryLedger) (bool, error) {
	if err := ledger.Validate(); err != nil {
		return false, fmt.Errorf("validation failed: %w", err)
	}

	result, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT OR IGNORE INTO inventory_ledgers (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ledger.BloodType),
		ledger.AvailableUnits,
		ledger.ReservedUnits,
		ledger.ExpiredUnits,
		ledger.TotalUnits,
		ledger.MinThreshold,
		ledger.MaxCapacity,
		ledger.Statistics.TotalDonationsReceived,
		ledger.Statistics.TotalUnitsDispensed,
		ledger.Statistics.TotalUnitsExpired,
		ledger.Statistics.AverageShelfLifeDays,
		ledger.Version,
		formatTime(ledger.LastUpdated),
		formatTime(ledger.CreatedAt),
		formatTime(ledger.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("inserting ledger: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}
	return true, r.saveChildren(ctx, conn(r.db, tx), ledger)
}

// Get loads the ledger for a blood type with all of its entries.
func (r *InventoryRepository) Get(ctx context.Context, tx *sql.Tx, bt models.BloodType) (*models.InventoryLedger, error) {
	db := conn(r.db, tx)

	ledger, err := scanLedger(db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM inventory_ledgers WHERE blood_type = ?`, string(bt)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ledger %s", models.ErrNotFound, bt)
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadChildren(ctx, db, ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}

// List loads every ledger in canonical blood type order.
func (r *InventoryRepository) List(ctx context.Context) ([]*models.InventoryLedger, error) {
	var ledgers []*models.InventoryLedger
	for _, bt := range models.AllBloodTypes() {
		ledger, err := r.Get(ctx, nil, bt)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ledgers = append(ledgers, ledger)
	}
	return ledgers, nil
}

// Save writes the ledger if its version still matches the stored row and
// bumps the version. A stale version returns models.ErrConflict. Entries
// and alerts are upserted; new ones get IDs here.
func (r *InventoryRepository) Save(ctx context.Context, tx *sql.Tx, ledger *models.InventoryLedger) error {
	if err := ledger.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	db := conn(r.db, tx)
	ledger.UpdatedAt = time.Now().UTC()

	result, err := db.ExecContext(ctx, `
		UPDATE inventory_ledgers SET
			available_units = ?, reserved_units = ?, expired_units = ?, total_units = ?,
			min_threshold = ?, max_capacity = ?,
			total_donations_received = ?, total_units_dispensed = ?, total_units_expired = ?,
			average_shelf_life_days = ?, last_updated = ?, updated_at = ?,
			version = version + 1
		WHERE blood_type = ? AND version = ?`,
		ledger.AvailableUnits,
		ledger.ReservedUnits,
		ledger.ExpiredUnits,
		ledger.TotalUnits,
		ledger.MinThreshold,
		ledger.MaxCapacity,
		ledger.Statistics.TotalDonationsReceived,
		ledger.Statistics.TotalUnitsDispensed,
		ledger.Statistics.TotalUnitsExpired,
		ledger.Statistics.AverageShelfLifeDays,
		formatTime(ledger.LastUpdated),
		formatTime(ledger.UpdatedAt),
		string(ledger.BloodType),
		ledger.Version,
	)
	if err != nil {
		return fmt.Errorf("updating ledger: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return missingOrConflict(ctx, db, "inventory_ledgers", "blood_type", string(ledger.BloodType), "ledger")
	}

	if err := r.saveChildren(ctx, db, ledger); err != nil {
		return err
	}
	ledger.Version++
	return nil
}

// ActiveAlerts returns the active alerts of every ledger, newest first.
func (r *InventoryRepository) ActiveAlerts(ctx context.Context) ([]*models.InventoryAlert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, blood_type, kind, severity, message, is_active, created_at
		FROM inventory_alerts
		WHERE is_active = 1
		ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.InventoryAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ReservationsFor returns the blood types holding reserved units for a request.
func (r *InventoryRepository) ReservationsFor(ctx context.Context, tx *sql.Tx, requestID string) ([]models.BloodType, error) {
	rows, err := conn(r.db, tx).QueryContext(ctx, `
		SELECT DISTINCT blood_type FROM ledger_request_entries
		WHERE request_id = ? AND status = ?
		ORDER BY blood_type`, requestID, string(models.ReservationReserved))
	if err != nil {
		return nil, fmt.Errorf("querying reservations: %w", err)
	}
	defer rows.Close()

	var types []models.BloodType
	for rows.Next() {
		var bt string
		if err := rows.Scan(&bt); err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		types = append(types, models.BloodType(bt))
	}
	return types, rows.Err()
}

// HeldUnits returns the units still reserved for a request across every
// ledger.
func (r *InventoryRepository) HeldUnits(ctx context.Context, tx *sql.Tx, requestID string) (int, error) {
	var held int
	err := conn(r.db, tx).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity - fulfilled_quantity), 0)
		FROM ledger_request_entries
		WHERE request_id = ? AND status = ?`, requestID, string(models.ReservationReserved)).Scan(&held)
	if err != nil {
		return 0, fmt.Errorf("summing reservations: %w", err)
	}
	return held, nil
}

// saveChildren inserts new ledger rows and updates only the rows changed
// since the ledger was loaded. Entries are append-only, so seq is fixed at
// insert time.
func (r *InventoryRepository) saveChildren(ctx context.Context, db dbtx, ledger *models.InventoryLedger) error {
	bt := string(ledger.BloodType)

	for seq, e := range ledger.DonationEntries {
		var err error
		switch {
		case e.ID == "":
			e.ID = util.NewID()
			_, err = db.ExecContext(ctx, `
				INSERT INTO ledger_donation_entries
					(id, blood_type, donation_id, quantity, expiry_date, status, added_at, seq)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID, bt, e.DonationID, e.Quantity, formatTime(e.ExpiryDate), string(e.Status),
				formatTime(e.AddedAt), seq,
			)
		case e.Changed():
			_, err = db.ExecContext(ctx,
				`UPDATE ledger_donation_entries SET status = ? WHERE id = ?`,
				string(e.Status), e.ID,
			)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("saving donation entry: %w", err)
		}
		e.MarkSaved()
	}

	for seq, e := range ledger.RequestEntries {
		var err error
		switch {
		case e.ID == "":
			e.ID = util.NewID()
			_, err = db.ExecContext(ctx, `
				INSERT INTO ledger_request_entries
					(id, blood_type, request_id, quantity, fulfilled_quantity, status, reserved_at, updated_at, seq)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID, bt, e.RequestID, e.Quantity, e.FulfilledQuantity, string(e.Status),
				formatTime(e.ReservedAt), formatTime(e.UpdatedAt), seq,
			)
		case e.Changed():
			_, err = db.ExecContext(ctx, `
				UPDATE ledger_request_entries
				SET fulfilled_quantity = ?, status = ?, updated_at = ?
				WHERE id = ?`,
				e.FulfilledQuantity, string(e.Status), formatTime(e.UpdatedAt), e.ID,
			)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("saving request entry: %w", err)
		}
		e.MarkSaved()
	}

	for seq, a := range ledger.Alerts {
		var err error
		switch {
		case a.ID == "":
			a.ID = util.NewID()
			_, err = db.ExecContext(ctx, `
				INSERT INTO inventory_alerts (id, blood_type, kind, severity, message, is_active, created_at, seq)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ID, bt, string(a.Kind), string(a.Severity), a.Message, boolToInt(a.Active),
				formatTime(a.CreatedAt), seq,
			)
		case a.Changed():
			_, err = db.ExecContext(ctx,
				`UPDATE inventory_alerts SET message = ?, is_active = ? WHERE id = ?`,
				a.Message, boolToInt(a.Active), a.ID,
			)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("saving alert: %w", err)
		}
		a.MarkSaved()
	}
	return nil
}

func (r *InventoryRepository) loadChildren(ctx context.Context, db dbtx, ledger *models.InventoryLedger) error {
	bt := string(ledger.BloodType)

	rows, err := db.QueryContext(ctx, `
		SELECT id, donation_id, quantity, expiry_date, status, added_at
		FROM ledger_donation_entries WHERE blood_type = ? ORDER BY seq`, bt)
	if err != nil {
		return fmt.Errorf("querying donation entries: %w", err)
	}
	for rows.Next() {
		var e models.LedgerDonationEntry
		var expiry, status, added string
		if err := rows.Scan(&e.ID, &e.DonationID, &e.Quantity, &expiry, &status, &added); err != nil {
			rows.Close()
			return fmt.Errorf("scanning donation entry: %w", err)
		}
		e.ExpiryDate = parseTime(expiry)
		e.Status = models.DonationEntryStatus(status)
		e.AddedAt = parseTime(added)
		ledger.DonationEntries = append(ledger.DonationEntries, &e)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = db.QueryContext(ctx, `
		SELECT id, request_id, quantity, fulfilled_quantity, status, reserved_at, updated_at
		FROM ledger_request_entries WHERE blood_type = ? ORDER BY seq`, bt)
	if err != nil {
		return fmt.Errorf("querying request entries: %w", err)
	}
	for rows.Next() {
		var e models.LedgerRequestEntry
		var status, reserved, updated string
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Quantity, &e.FulfilledQuantity, &status, &reserved, &updated); err != nil {
			rows.Close()
			return fmt.Errorf("scanning request entry: %w", err)
		}
		e.Status = models.ReservationStatus(status)
		e.ReservedAt = parseTime(reserved)
		e.UpdatedAt = parseTime(updated)
		ledger.RequestEntries = append(ledger.RequestEntries, &e)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	rows, err = db.QueryContext(ctx, `
		SELECT id, blood_type, kind, severity, message, is_active, created_at
		FROM inventory_alerts WHERE blood_type = ? ORDER BY seq`, bt)
	if err != nil {
		return fmt.Errorf("querying alerts: %w", err)
	}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			rows.Close()
			return err
		}
		ledger.Alerts = append(ledger.Alerts, a)
	}
	return closeRows(rows)
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}
	return nil
}

func scanLedger(row scanner) (*models.InventoryLedger, error) {
	var l models.InventoryLedger
	var bloodType, lastUpdated, createdAt, updatedAt string

	err := row.Scan(
		&bloodType, &l.AvailableUnits, &l.ReservedUnits, &l.ExpiredUnits, &l.TotalUnits,
		&l.MinThreshold, &l.MaxCapacity, &l.Statistics.TotalDonationsReceived,
		&l.Statistics.TotalUnitsDispensed, &l.Statistics.TotalUnitsExpired,
		&l.Statistics.AverageShelfLifeDays, &l.Version, &lastUpdated, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning ledger: %w", err)
	}

	l.BloodType = models.BloodType(bloodType)
	l.LastUpdated = parseTime(lastUpdated)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

func scanAlert(row scanner) (*models.InventoryAlert, error) {
	var a models.InventoryAlert
	var bloodType, kind, severity, createdAt string
	var active int

	if err := row.Scan(&a.ID, &bloodType, &kind, &severity, &a.Message, &active, &createdAt); err != nil {
		return nil, fmt.Errorf("scanning alert: %w", err)
	}
	a.BloodType = models.BloodType(bloodType)
	a.Kind = models.AlertKind(kind)
	a.Severity = models.AlertSeverity(severity)
	a.Active = active == 1
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}
