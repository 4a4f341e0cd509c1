package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/util"
)

const requestColumns = `id, recipient_id, blood_type, quantity, urgency, required_by, reason,
	hospital_name, hospital_address, hospital_contact, hospital_latitude, hospital_longitude,
	status, fulfilled_quantity, priority, approved_by, approval_date, rejection_reason, notes,
	is_active, version, created_at, updated_at`

var openRequestStatuses = []any{
	string(models.RequestStatusPending),
	string(models.RequestStatusApproved),
	string(models.RequestStatusPartiallyFulfilled),
}

// RequestRepository handles blood request data access.
type RequestRepository struct {
	db *sql.DB
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request along with any assignments it carries.
func (r *RequestRepository) Create(ctx context.Context, tx *sql.Tx, req *models.BloodRequest) error {
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	req.Version = 0

	db := conn(r.db, tx)
	args := append([]any{req.ID}, requestValues(req)...)
	args = append(args, req.Version, formatTime(req.CreatedAt), formatTime(req.UpdatedAt))

	if _, err := db.ExecContext(ctx, `
		INSERT INTO blood_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	); err != nil {
		return fmt.Errorf("inserting request: %w", err)
	}

	return r.insertAssignments(ctx, db, req)
}

func requestValues(req *models.BloodRequest) []any {
	return []any{
		req.RecipientID,
		string(req.BloodType),
		req.Quantity,
		string(req.Urgency),
		formatTime(req.RequiredBy),
		req.Reason,
		req.Hospital.Name,
		req.Hospital.Address,
		req.Hospital.ContactNumber,
		nullableFloat(req.Hospital.Latitude),
		nullableFloat(req.Hospital.Longitude),
		string(req.Status),
		req.FulfilledQuantity,
		req.Priority,
		nullableStringPtr(req.ApprovedBy),
		nullableTimePtr(req.ApprovalDate),
		nullableStringPtr(req.RejectionReason),
		nullableString(req.Notes),
		boolToInt(req.IsActive),
	}
}

// insertAssignments stores assignments that have not been persisted yet,
// recognized by an empty ID.
func (r *RequestRepository) insertAssignments(ctx context.Context, db dbtx, req *models.BloodRequest) error {
	for i := range req.Assignments {
		a := &req.Assignments[i]
		if a.ID != "" {
			continue
		}
		a.ID = util.NewID()
		if _, err := db.ExecContext(ctx, `
			INSERT INTO request_assignments (id, request_id, donation_id, quantity, assigned_date)
			VALUES (?, ?, ?, ?, ?)`,
			a.ID, req.ID, a.DonationID, a.Quantity, formatTime(a.AssignedDate),
		); err != nil {
			a.ID = ""
			return fmt.Errorf("inserting assignment: %w", err)
		}
	}
	return nil
}

// GetByID retrieves a request and its assignments.
func (r *RequestRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.BloodRequest, error) {
	db := conn(r.db, tx)
	req, err := scanRequest(db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM blood_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: request %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadAssignments(ctx, db, []*models.BloodRequest{req}); err != nil {
		return nil, err
	}
	return req, nil
}

// Update writes the request if its version still matches, bumps the
// version and stores new assignments. A stale version returns
// models.ErrConflict.
func (r *RequestRepository) Update(ctx context.Context, tx *sql.Tx, req *models.BloodRequest) error {
	req.UpdatedAt = time.Now().UTC()
	db := conn(r.db, tx)

	args := requestValues(req)
	args = append(args, formatTime(req.UpdatedAt), req.ID, req.Version)

	result, err := db.ExecContext(ctx, `
		UPDATE blood_requests SET
			recipient_id = ?, blood_type = ?, quantity = ?, urgency = ?, required_by = ?, reason = ?,
			hospital_name = ?, hospital_address = ?, hospital_contact = ?,
			hospital_latitude = ?, hospital_longitude = ?,
			status = ?, fulfilled_quantity = ?, priority = ?,
			approved_by = ?, approval_date = ?, rejection_reason = ?, notes = ?, is_active = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("updating request: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return missingOrConflict(ctx, db, "blood_requests", "id", req.ID, "request")
	}
	req.Version++

	return r.insertAssignments(ctx, db, req)
}

// Delete removes a request and its assignments.
func (r *RequestRepository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	result, err := conn(r.db, tx).ExecContext(ctx, "DELETE FROM blood_requests WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting request: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: request %s", models.ErrNotFound, id)
	}
	return nil
}

// List retrieves requests with filtering and pagination, newest first.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter, page models.Pagination) (*models.RequestList, error) {
	return r.list(ctx, filter, page, "created_at DESC, id")
}

// Queue lists open requests, highest priority first and then by deadline.
func (r *RequestRepository) Queue(ctx context.Context, page models.Pagination) (*models.RequestList, error) {
	return r.list(ctx, models.RequestFilter{OpenOnly: true}, page, "priority DESC, required_by ASC, created_at ASC")
}

func (r *RequestRepository) list(ctx context.Context, filter models.RequestFilter, page models.Pagination, orderBy string) (*models.RequestList, error) {
	whereClause, args := requestWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blood_requests "+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting requests: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM blood_requests %s ORDER BY %s LIMIT ? OFFSET ?`,
		requestColumns, whereClause, orderBy)
	requests, err := r.query(ctx, r.db, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, err
	}

	return &models.RequestList{
		Requests:   requests,
		Total:      total,
		Page:       page.Page,
		TotalPages: page.TotalPages(total),
	}, nil
}

// ListOverdue returns open requests whose requiredBy is before now.
func (r *RequestRepository) ListOverdue(ctx context.Context, tx *sql.Tx, now time.Time) ([]*models.BloodRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM blood_requests
		WHERE status IN (?, ?, ?) AND required_by < ?
		ORDER BY required_by`, requestColumns)
	args := append(append([]any{}, openRequestStatuses...), formatTime(now))
	return r.query(ctx, conn(r.db, tx), query, args...)
}

// CountByStatus returns request counts keyed by status.
func (r *RequestRepository) CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM blood_requests GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting requests by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RequestStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[models.RequestStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *RequestRepository) query(ctx context.Context, db dbtx, query string, args ...any) ([]*models.BloodRequest, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying requests: %w", err)
	}

	var requests []*models.BloodRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		requests = append(requests, req)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterating requests: %w", err)
	}

	// Rows are closed first: the single connection cannot serve a second
	// query while the first result set is open.
	if err := r.loadAssignments(ctx, db, requests); err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *RequestRepository) loadAssignments(ctx context.Context, db dbtx, requests []*models.BloodRequest) error {
	if len(requests) == 0 {
		return nil
	}

	byID := make(map[string]*models.BloodRequest, len(requests))
	args := make([]any, 0, len(requests))
	for _, req := range requests {
		byID[req.ID] = req
		req.Assignments = nil
		args = append(args, req.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(requests)), ",")

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, request_id, donation_id, quantity, assigned_date
		FROM request_assignments
		WHERE request_id IN (%s)
		ORDER BY assigned_date, id`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("querying assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.RequestAssignment
		var requestID, assigned string
		if err := rows.Scan(&a.ID, &requestID, &a.DonationID, &a.Quantity, &assigned); err != nil {
			return fmt.Errorf("scanning assignment: %w", err)
		}
		a.AssignedDate = parseTime(assigned)
		if req, ok := byID[requestID]; ok {
			req.Assignments = append(req.Assignments, a)
		}
	}
	return rows.Err()
}

func requestWhere(filter models.RequestFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.RecipientID != "" {
		conditions = append(conditions, "recipient_id = ?")
		args = append(args, filter.RecipientID)
	}
	if filter.BloodType != nil {
		conditions = append(conditions, "blood_type = ?")
		args = append(args, string(*filter.BloodType))
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Urgency != nil {
		conditions = append(conditions, "urgency = ?")
		args = append(args, string(*filter.Urgency))
	}
	if filter.OpenOnly {
		conditions = append(conditions, "status IN (?, ?, ?)")
		args = append(args, openRequestStatuses...)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanRequest(row scanner) (*models.BloodRequest, error) {
	var req models.BloodRequest
	var bloodType, urgency, requiredBy, status, createdAt, updatedAt string
	var lat, lng sql.NullFloat64
	var approvedBy, approvalDate, rejectionReason, notes sql.NullString
	var isActive int

	err := row.Scan(
		&req.ID, &req.RecipientID, &bloodType, &req.Quantity, &urgency, &requiredBy, &req.Reason,
		&req.Hospital.Name, &req.Hospital.Address, &req.Hospital.ContactNumber, &lat, &lng,
		&status, &req.FulfilledQuantity, &req.Priority, &approvedBy, &approvalDate, &rejectionReason, &notes,
		&isActive, &req.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning request: %w", err)
	}

	req.BloodType = models.BloodType(bloodType)
	req.Urgency = models.Urgency(urgency)
	req.RequiredBy = parseTime(requiredBy)
	req.Hospital.Latitude = floatPtr(lat)
	req.Hospital.Longitude = floatPtr(lng)
	req.Status = models.RequestStatus(status)
	req.ApprovedBy = stringPtr(approvedBy)
	req.ApprovalDate = timePtr(approvalDate)
	req.RejectionReason = stringPtr(rejectionReason)
	req.Notes = notes.String
	req.IsActive = isActive == 1
	req.CreatedAt = parseTime(createdAt)
	req.UpdatedAt = parseTime(updatedAt)

	return &req, nil
}
