package models

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinRequestQuantity = 1
	MaxRequestQuantity = 10

	MinReasonLength = 10
	MaxReasonLength = 500

	MinPriority = 1
	MaxPriority = 10
)

// Urgency is how urgently a recipient needs blood.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Valid returns true if the urgency is valid.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// BaseScore returns the priority an urgency starts from.
func (u Urgency) BaseScore() int {
	switch u {
	case UrgencyCritical:
		return 10
	case UrgencyHigh:
		return 8
	case UrgencyMedium:
		return 5
	case UrgencyLow:
		return 3
	default:
		return 5
	}
}

// RequestStatus is the state of a blood request.
type RequestStatus string

const (
	RequestStatusPending            RequestStatus = "pending"
	RequestStatusApproved           RequestStatus = "approved"
	RequestStatusPartiallyFulfilled RequestStatus = "partially_fulfilled"
	RequestStatusFulfilled          RequestStatus = "fulfilled"
	RequestStatusRejected           RequestStatus = "rejected"
	RequestStatusExpired            RequestStatus = "expired"
)

// Valid returns true if the status is valid.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusPartiallyFulfilled,
		RequestStatusFulfilled, RequestStatusRejected, RequestStatusExpired:
		return true
	}
	return false
}

func (s RequestStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusFulfilled || s == RequestStatusRejected || s == RequestStatusExpired
}

// AcceptsAssignments reports whether donations may be assigned in this state.
func (s RequestStatus) AcceptsAssignments() bool {
	return s == RequestStatusApproved || s == RequestStatusPartiallyFulfilled
}

// Hospital is where the requested blood is delivered.
type Hospital struct {
	Name          string
	Address       string
	ContactNumber string
	Latitude      *float64
	Longitude     *float64
}

var contactNumberPattern = regexp.MustCompile(`^[0-9]{10,15}$`)

// Validate validates the hospital details.
func (h Hospital) Validate() error {
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("%w: hospital name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(h.Address) == "" {
		return fmt.Errorf("%w: hospital address is required", ErrInvalidInput)
	}
	if !contactNumberPattern.MatchString(h.ContactNumber) {
		return fmt.Errorf("%w: contact number must be 10-15 digits", ErrInvalidInput)
	}
	return nil
}

// RequestAssignment records donated units assigned to a request.
type RequestAssignment struct {
	ID           string
	DonationID   string
	Quantity     int
	AssignedDate time.Time
}

// BloodRequest is one recipient's need for blood.
type BloodRequest struct {
	ID                string
	RecipientID       string
	BloodType         BloodType
	Quantity          int
	Urgency           Urgency
	RequiredBy        time.Time
	Reason            string
	Hospital          Hospital
	Status            RequestStatus
	FulfilledQuantity int
	Assignments       []RequestAssignment
	Priority          int

	ApprovedBy      *string
	ApprovalDate    *time.Time
	RejectionReason *string
	Notes           string
	IsActive        bool

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ComputePriority derives a 1-10 priority from urgency and time left.
// Requests due within a day gain 3, within three days 2, within a week 1.
func ComputePriority(urgency Urgency, requiredBy, now time.Time) int {
	score := urgency.BaseScore()

	switch days := daysUntil(requiredBy, now); {
	case days <= 1:
		score += 3
	case days <= 3:
		score += 2
	case days <= 7:
		score++
	}

	return max(MinPriority, min(score, MaxPriority))
}

// Reprioritize recomputes the stored priority. It runs before every save.
func (r *BloodRequest) Reprioritize(now time.Time) {
	r.Priority = ComputePriority(r.Urgency, r.RequiredBy, now)
}

// Remaining returns the units still to be fulfilled.
func (r *BloodRequest) Remaining() int {
	return max(0, r.Quantity-r.FulfilledQuantity)
}

// FulfillmentPercentage returns the rounded share of the request fulfilled.
func (r *BloodRequest) FulfillmentPercentage() int {
	if r.Quantity <= 0 {
		return 0
	}
	return int(math.Round(float64(r.FulfilledQuantity) / float64(r.Quantity) * 100))
}

// IsOverdue reports whether requiredBy has passed.
func (r *BloodRequest) IsOverdue(now time.Time) bool {
	return now.After(r.RequiredBy)
}

// DaysUntilRequired returns whole days until requiredBy, rounded up.
func (r *BloodRequest) DaysUntilRequired(now time.Time) int {
	return daysUntil(r.RequiredBy, now)
}

// AssignedTotal sums the quantities of all assignments.
func (r *BloodRequest) AssignedTotal() int {
	total := 0
	for _, a := range r.Assignments {
		total += a.Quantity
	}
	return total
}

// ApplyAssignment records an assignment and moves the request to
// partially_fulfilled or fulfilled.
func (r *BloodRequest) ApplyAssignment(a RequestAssignment) {
	r.Assignments = append(r.Assignments, a)
	r.FulfilledQuantity += a.Quantity
	if r.FulfilledQuantity >= r.Quantity {
		r.Status = RequestStatusFulfilled
	} else {
		r.Status = RequestStatusPartiallyFulfilled
	}
}

// Validate validates the request's fields as submitted.
func (r *BloodRequest) Validate(now time.Time) error {
	if r.RecipientID == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidInput)
	}
	if !r.BloodType.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidBloodType, r.BloodType)
	}
	if r.Quantity < MinRequestQuantity || r.Quantity > MaxRequestQuantity {
		return fmt.Errorf("%w: %d units, must be %d-%d", ErrInvalidQuantity, r.Quantity, MinRequestQuantity, MaxRequestQuantity)
	}
	if !r.Urgency.Valid() {
		return fmt.Errorf("%w: urgency %s", ErrInvalidInput, r.Urgency)
	}
	if !r.RequiredBy.After(now) {
		return ErrInvalidRequiredDate
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(r.Reason)); n < MinReasonLength || n > MaxReasonLength {
		return fmt.Errorf("%w: reason must be %d-%d characters", ErrInvalidInput, MinReasonLength, MaxReasonLength)
	}
	return r.Hospital.Validate()
}

// RequestFilter defines filters for querying requests.
type RequestFilter struct {
	RecipientID string
	BloodType   *BloodType
	Status      *RequestStatus
	Urgency     *Urgency
	OpenOnly    bool // pending, approved or partially fulfilled
}

// RequestList represents a paginated list of requests.
type RequestList struct {
	Requests   []*BloodRequest
	Total      int
	Page       int
	TotalPages int
}
