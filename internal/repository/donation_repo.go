package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bloodbank/bloodbank/internal/models"
)

const donationColumns = `id, donor_id, blood_type, quantity, donation_date, expiry_date, status, is_available,
	location_blood_bank, location_address, location_latitude, location_longitude,
	screening_hemoglobin, screening_systolic, screening_diastolic, screening_temperature,
	screening_pulse, screening_weight_kg, screening_by, screening_date, screening_notes,
	approved_by, approval_date, rejection_reason, notes, version, created_at, updated_at`

// DonationRepository handles donation data access.
type DonationRepository struct {
	db *sql.DB
}

// NewDonationRepository creates a new donation repository.
func NewDonationRepository(db *sql.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

// Create inserts a new donation. The expiry date is derived from the
// donation date if it is not already set.
func (r *DonationRepository) Create(ctx context.Context, tx *sql.Tx, d *models.Donation) error {
	d.EnsureExpiry()
	if err := d.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	d.Version = 0

	args := append([]any{d.ID}, donationValues(d)...)
	args = append(args, d.Version, formatTime(d.CreatedAt), formatTime(d.UpdatedAt))

	_, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO donations (`+donationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("inserting donation: %w", err)
	}
	return nil
}

// donationValues returns the mutable columns in donationColumns order,
// from donor_id through notes.
func donationValues(d *models.Donation) []any {
	s := d.Screening
	if s == nil {
		s = &models.MedicalScreening{}
	}
	hasScreening := d.Screening != nil

	return []any{
		d.DonorID,
		string(d.BloodType),
		d.Quantity,
		formatTime(d.DonationDate),
		formatTime(d.ExpiryDate),
		string(d.Status),
		boolToInt(d.IsAvailable),
		nullableString(d.Location.BloodBank),
		nullableString(d.Location.Address),
		nullableFloat(d.Location.Latitude),
		nullableFloat(d.Location.Longitude),
		sql.NullFloat64{Float64: s.Hemoglobin, Valid: hasScreening},
		sql.NullInt64{Int64: int64(s.BloodPressure.Systolic), Valid: hasScreening},
		sql.NullInt64{Int64: int64(s.BloodPressure.Diastolic), Valid: hasScreening},
		sql.NullFloat64{Float64: s.Temperature, Valid: hasScreening},
		sql.NullInt64{Int64: int64(s.Pulse), Valid: hasScreening},
		sql.NullFloat64{Float64: s.WeightKg, Valid: hasScreening},
		nullableString(s.ScreenedBy),
		sql.NullString{String: formatTime(s.ScreeningDate), Valid: hasScreening},
		nullableString(s.Notes),
		nullableStringPtr(d.ApprovedBy),
		nullableTimePtr(d.ApprovalDate),
		nullableStringPtr(d.RejectionReason),
		nullableString(d.Notes),
	}
}

// GetByID retrieves a donation by ID.
func (r *DonationRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.Donation, error) {
	row := conn(r.db, tx).QueryRowContext(ctx,
		`SELECT `+donationColumns+` FROM donations WHERE id = ?`, id)

	d, err := scanDonation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: donation %s", models.ErrNotFound, id)
	}
	return d, err
}

// Update writes the donation if its version still matches the stored row,
// then bumps the version. A stale version returns models.ErrConflict.
func (r *DonationRepository) Update(ctx context.Context, tx *sql.Tx, d *models.Donation) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	d.UpdatedAt = time.Now().UTC()

	args := donationValues(d)
	args = append(args, formatTime(d.UpdatedAt), d.ID, d.Version)

	db := conn(r.db, tx)
	result, err := db.ExecContext(ctx, `
		UPDATE donations SET
			donor_id = ?, blood_type = ?, quantity = ?, donation_date = ?, expiry_date = ?,
			status = ?, is_available = ?,
			location_blood_bank = ?, location_address = ?, location_latitude = ?, location_longitude = ?,
			screening_hemoglobin = ?, screening_systolic = ?, screening_diastolic = ?,
			screening_temperature = ?, screening_pulse = ?, screening_weight_kg = ?,
			screening_by = ?, screening_date = ?, screening_notes = ?,
			approved_by = ?, approval_date = ?, rejection_reason = ?, notes = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("updating donation: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return missingOrConflict(ctx, db, "donations", "id", d.ID, "donation")
	}
	d.Version++
	return nil
}

// Delete removes a donation.
func (r *DonationRepository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	result, err := conn(r.db, tx).ExecContext(ctx, "DELETE FROM donations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting donation: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: donation %s", models.ErrNotFound, id)
	}
	return nil
}

// List retrieves donations with filtering and pagination, newest first.
func (r *DonationRepository) List(ctx context.Context, filter models.DonationFilter, page models.Pagination) (*models.DonationList, error) {
	whereClause, args := donationWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM donations "+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting donations: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM donations %s ORDER BY donation_date DESC, id LIMIT ? OFFSET ?`,
		donationColumns, whereClause)
	donations, err := r.query(ctx, nil, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, err
	}

	return &models.DonationList{
		Donations:  donations,
		Total:      total,
		Page:       page.Page,
		TotalPages: page.TotalPages(total),
	}, nil
}

// ListStale returns approved, available donations whose expiry is before now.
func (r *DonationRepository) ListStale(ctx context.Context, tx *sql.Tx, now time.Time) ([]*models.Donation, error) {
	query := fmt.Sprintf(`SELECT %s FROM donations
		WHERE status = ? AND is_available = 1 AND expiry_date < ?
		ORDER BY expiry_date`, donationColumns)
	return r.query(ctx, tx, query, string(models.DonationStatusApproved), formatTime(now))
}

// ListAssignable returns approved, available donations of the given types
// that are still unexpired at now, soonest expiry first.
func (r *DonationRepository) ListAssignable(ctx context.Context, types []models.BloodType, now time.Time) ([]*models.Donation, error) {
	if len(types) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(types)), ",")
	args := []any{string(models.DonationStatusApproved)}
	for _, bt := range types {
		args = append(args, string(bt))
	}
	args = append(args, formatTime(now))

	query := fmt.Sprintf(`SELECT %s FROM donations
		WHERE status = ? AND is_available = 1 AND blood_type IN (%s) AND expiry_date >= ?
		ORDER BY expiry_date`, donationColumns, placeholders)
	return r.query(ctx, nil, query, args...)
}

// CountByStatus returns donation counts keyed by status.
func (r *DonationRepository) CountByStatus(ctx context.Context) (map[models.DonationStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM donations GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting donations by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.DonationStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[models.DonationStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *DonationRepository) query(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]*models.Donation, error) {
	rows, err := conn(r.db, tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying donations: %w", err)
	}
	defer rows.Close()

	var donations []*models.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		donations = append(donations, d)
	}
	return donations, rows.Err()
}

func donationWhere(filter models.DonationFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.DonorID != "" {
		conditions = append(conditions, "donor_id = ?")
		args = append(args, filter.DonorID)
	}
	if filter.BloodType != nil {
		conditions = append(conditions, "blood_type = ?")
		args = append(args, string(*filter.BloodType))
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Available != nil {
		conditions = append(conditions, "is_available = ?")
		args = append(args, boolToInt(*filter.Available))
	}
	if filter.ExpiringBy != nil {
		conditions = append(conditions, "expiry_date <= ?")
		args = append(args, formatTime(*filter.ExpiringBy))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanDonation(row scanner) (*models.Donation, error) {
	var d models.Donation
	var bloodType, donationDate, expiryDate, status, createdAt, updatedAt string
	var isAvailable int
	var bank, address, screenedBy, screeningDate, screeningNotes sql.NullString
	var approvedBy, approvalDate, rejectionReason, notes sql.NullString
	var lat, lng, hemoglobin, temperature, weight sql.NullFloat64
	var systolic, diastolic, pulse sql.NullInt64

	err := row.Scan(
		&d.ID, &d.DonorID, &bloodType, &d.Quantity, &donationDate, &expiryDate, &status, &isAvailable,
		&bank, &address, &lat, &lng,
		&hemoglobin, &systolic, &diastolic, &temperature,
		&pulse, &weight, &screenedBy, &screeningDate, &screeningNotes,
		&approvedBy, &approvalDate, &rejectionReason, &notes, &d.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning donation: %w", err)
	}

	d.BloodType = models.BloodType(bloodType)
	d.DonationDate = parseTime(donationDate)
	d.ExpiryDate = parseTime(expiryDate)
	d.Status = models.DonationStatus(status)
	d.IsAvailable = isAvailable == 1
	d.Location = models.DonationLocation{
		BloodBank: bank.String,
		Address:   address.String,
		Latitude:  floatPtr(lat),
		Longitude: floatPtr(lng),
	}
	if hemoglobin.Valid {
		d.Screening = &models.MedicalScreening{
			Hemoglobin: hemoglobin.Float64,
			BloodPressure: models.BloodPressure{
				Systolic:  int(systolic.Int64),
				Diastolic: int(diastolic.Int64),
			},
			Temperature:   temperature.Float64,
			Pulse:         int(pulse.Int64),
			WeightKg:      weight.Float64,
			ScreenedBy:    screenedBy.String,
			ScreeningDate: parseTime(screeningDate.String),
			Notes:         screeningNotes.String,
		}
	}
	d.ApprovedBy = stringPtr(approvedBy)
	d.ApprovalDate = timePtr(approvalDate)
	d.RejectionReason = stringPtr(rejectionReason)
	d.Notes = notes.String
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)

	return &d, nil
}

// missingOrConflict explains a versioned update that matched no rows.
func missingOrConflict(ctx context.Context, db dbtx, table, keyColumn, key, entity string) error {
	var exists int
	err := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", table, keyColumn), key,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking %s: %w", entity, err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s %s", models.ErrNotFound, entity, key)
	}
	return fmt.Errorf("%w: %s %s was modified concurrently", models.ErrConflict, entity, key)
}
