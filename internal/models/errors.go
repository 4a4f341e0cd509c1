package models

import (
	"errors"
	"strings"
)

// Input validation errors. The caller can fix the input and retry.
var (
	ErrInvalidBloodType    = errors.New("invalid blood type")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidRequiredDate = errors.New("required-by date must be in the future")
	ErrInvalidInput        = errors.New("invalid input")
	ErrReasonRequired      = errors.New("reason is required")
)

// Domain rule violations, surfaced to the end user with the specific reason.
var (
	ErrDonorIneligible = errors.New("donor is not eligible")
	ErrScreeningFailed = errors.New("medical screening failed")
)

// State-machine violations. The caller is working from a stale view.
var (
	ErrNotFound            = errors.New("not found")
	ErrNotPending          = errors.New("record is not pending")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrRequestNotApproved  = errors.New("request is not approved")
	ErrNotAvailable        = errors.New("donation is not available")
)

// Fulfillment rule violations.
var (
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrIncompatibleBloodType = errors.New("incompatible blood type")
	ErrDonationUnavailable   = errors.New("donation unavailable")
	ErrOverFulfillment       = errors.New("quantity exceeds reservation")
)

// ErrConflict is returned when a versioned write loses a compare-and-swap.
var ErrConflict = errors.New("concurrent modification")

// IsTransient reports whether err is a persistence failure worth retrying:
// a lost compare-and-swap or SQLite lock contention. Every other error is
// terminal for the call that produced it.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
