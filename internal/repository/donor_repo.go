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

const donorColumns = `id, full_name, email, phone, blood_type, date_of_birth, weight_kg,
	last_donation, is_active, created_at, updated_at`

// DonorRepository handles donor data access.
type DonorRepository struct {
	db *sql.DB
}

// NewDonorRepository creates a new donor repository.
func NewDonorRepository(db *sql.DB) *DonorRepository {
	return &DonorRepository{db: db}
}

// Create inserts a new donor.
func (r *DonorRepository) Create(ctx context.Context, tx *sql.Tx, donor *models.Donor) error {
	if err := donor.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if donor.CreatedAt.IsZero() {
		donor.CreatedAt = now
	}
	donor.UpdatedAt = now

	_, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO donors (`+donorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		donor.ID,
		donor.FullName,
		nullableString(donor.Email),
		nullableString(donor.Phone),
		string(donor.BloodType),
		donor.DateOfBirth.Format(time.DateOnly),
		donor.WeightKg,
		nullableTimePtr(donor.LastDonation),
		boolToInt(donor.IsActive),
		formatTime(donor.CreatedAt),
		formatTime(donor.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting donor: %w", err)
	}
	return nil
}

// GetByID retrieves a donor by ID.
func (r *DonorRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.Donor, error) {
	row := conn(r.db, tx).QueryRowContext(ctx,
		`SELECT `+donorColumns+` FROM donors WHERE id = ?`, id)

	donor, err := scanDonor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: donor %s", models.ErrNotFound, id)
	}
	return donor, err
}

// Update writes every mutable donor field.
func (r *DonorRepository) Update(ctx context.Context, tx *sql.Tx, donor *models.Donor) error {
	if err := donor.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	donor.UpdatedAt = time.Now().UTC()

	result, err := conn(r.db, tx).ExecContext(ctx, `
		UPDATE donors SET
			full_name = ?, email = ?, phone = ?, blood_type = ?, date_of_birth = ?,
			weight_kg = ?, last_donation = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		donor.FullName,
		nullableString(donor.Email),
		nullableString(donor.Phone),
		string(donor.BloodType),
		donor.DateOfBirth.Format(time.DateOnly),
		donor.WeightKg,
		nullableTimePtr(donor.LastDonation),
		boolToInt(donor.IsActive),
		formatTime(donor.UpdatedAt),
		donor.ID,
	)
	if err != nil {
		return fmt.Errorf("updating donor: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: donor %s", models.ErrNotFound, donor.ID)
	}
	return nil
}

// RecordDonation sets the donor's last donation date.
func (r *DonorRepository) RecordDonation(ctx context.Context, tx *sql.Tx, donorID string, at time.Time) error {
	result, err := conn(r.db, tx).ExecContext(ctx,
		`UPDATE donors SET last_donation = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), formatTime(time.Now()), donorID)
	if err != nil {
		return fmt.Errorf("recording donation: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: donor %s", models.ErrNotFound, donorID)
	}
	return nil
}

// List retrieves donors with filtering and pagination.
func (r *DonorRepository) List(ctx context.Context, filter models.DonorFilter, page models.Pagination) (*models.DonorList, error) {
	var conditions []string
	var args []any

	if filter.BloodType != nil {
		conditions = append(conditions, "blood_type = ?")
		args = append(args, string(*filter.BloodType))
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = 1")
	}
	if filter.Search != "" {
		conditions = append(conditions, "(full_name LIKE ? OR email LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM donors "+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting donors: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM donors %s ORDER BY full_name LIMIT ? OFFSET ?`, donorColumns, whereClause)
	rows, err := r.db.QueryContext(ctx, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("querying donors: %w", err)
	}
	defer rows.Close()

	var donors []*models.Donor
	for rows.Next() {
		donor, err := scanDonor(rows)
		if err != nil {
			return nil, err
		}
		donors = append(donors, donor)
	}

	return &models.DonorList{
		Donors:     donors,
		Total:      total,
		Page:       page.Page,
		TotalPages: page.TotalPages(total),
	}, rows.Err()
}

func scanDonor(row scanner) (*models.Donor, error) {
	var d models.Donor
	var email, phone, lastDonation sql.NullString
	var bloodType, dob, createdAt, updatedAt string
	var isActive int

	err := row.Scan(
		&d.ID, &d.FullName, &email, &phone, &bloodType, &dob, &d.WeightKg,
		&lastDonation, &isActive, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning donor: %w", err)
	}

	d.Email = email.String
	d.Phone = phone.String
	d.BloodType = models.BloodType(bloodType)
	d.DateOfBirth, _ = time.Parse(time.DateOnly, dob)
	d.LastDonation = timePtr(lastDonation)
	d.IsActive = isActive == 1
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)

	return &d, nil
}
