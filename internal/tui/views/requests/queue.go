// Package requests provides TUI views for the blood request queue.
package requests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/tui/components"
	"github.com/bloodbank/bloodbank/internal/util"
)

// Source lists requests for the view.
type Source interface {
	Queue(ctx context.Context, page models.Pagination) (*models.RequestList, error)
	List(ctx context.Context, filter models.RequestFilter, page models.Pagination) (*models.RequestList, error)
}

// statusFilters is the cycle order of the status filter. Nil is the open
// queue in priority order.
var statusFilters = []*models.RequestStatus{
	nil,
	ptr(models.RequestStatusPending),
	ptr(models.RequestStatusApproved),
	ptr(models.RequestStatusPartiallyFulfilled),
	ptr(models.RequestStatusFulfilled),
	ptr(models.RequestStatusRejected),
	ptr(models.RequestStatusExpired),
}

// QueueView displays open requests by priority, or all requests in one status.
type QueueView struct {
	source   Source
	table    *components.Table
	requests []*models.BloodRequest
	page     models.Pagination
	filter   int
	loading  bool
	err      error
	now      time.Time
}

// NewQueueView creates a new queue view.
func NewQueueView(source Source) *QueueView {
	columns := []components.Column{
		{Title: "ID", Width: 8, Priority: 10},
		{Title: "Type", Width: 4, Priority: 9},
		{Title: "Qty", Width: 5, Align: lipgloss.Right, Priority: 8},
		{Title: "Filled", Width: 6, Align: lipgloss.Right, Priority: 5},
		{Title: "Urgency", Width: 8, Priority: 6},
		{Title: "Pri", Width: 3, Align: lipgloss.Right, Priority: 7},
		{Title: "Status", Width: 19, Priority: 8},
		{Title: "Required By", Width: 11, Priority: 4},
		{Title: "Hospital", Width: 16, Weight: 1, Priority: 2},
	}

	table := components.NewTable(columns)
	table.SetVisibleRows(20)
	table.Focus(true)

	return &QueueView{
		source: source,
		table:  table,
		page:   models.Pagination{Page: 1, PageSize: 20},
	}
}

// Load fetches the current page.
func (v *QueueView) Load(ctx context.Context) error {
	v.loading = true
	v.err = nil

	var (
		result *models.RequestList
		err    error
	)
	if status := statusFilters[v.filter]; status != nil {
		result, err = v.source.List(ctx, models.RequestFilter{Status: status}, v.page)
	} else {
		result, err = v.source.Queue(ctx, v.page)
	}
	if err != nil {
		v.loading = false
		v.err = err
		return err
	}

	v.requests = result.Requests
	v.loading = false

	rows := make([][]string, len(v.requests))
	for i, r := range v.requests {
		required := r.RequiredBy.Format("2006-01-02")
		if r.IsOverdue(v.now) && !r.Status.IsTerminal() {
			required = "OVERDUE"
		}
		rows[i] = []string{
			util.ShortID(r.ID),
			string(r.BloodType),
			fmt.Sprintf("%d", r.Quantity),
			fmt.Sprintf("%d", r.FulfilledQuantity),
			string(r.Urgency),
			fmt.Sprintf("%d", r.Priority),
			r.Status.String(),
			required,
			r.Hospital.Name,
		}
	}

	v.table.SetRows(rows)
	v.table.SetPagination(result.Page, result.TotalPages, result.Total)
	return nil
}

// SetNow sets the time used for overdue markers.
func (v *QueueView) SetNow(t time.Time) {
	v.now = t
}

// SetVisibleRows sets the number of visible table rows.
func (v *QueueView) SetVisibleRows(n int) {
	v.table.SetVisibleRows(n)
}

// CycleStatusFilter advances to the next status filter.
func (v *QueueView) CycleStatusFilter() {
	v.filter = (v.filter + 1) % len(statusFilters)
	v.page.Page = 1
}

// FilterLabel names the active filter.
func (v *QueueView) FilterLabel() string {
	if status := statusFilters[v.filter]; status != nil {
		return status.String()
	}
	return "open queue"
}

// NextPage moves to the next page.
func (v *QueueView) NextPage() {
	v.page.Page++
}

// PrevPage moves to the previous page.
func (v *QueueView) PrevPage() {
	if v.page.Page > 1 {
		v.page.Page--
	}
}

// MoveUp moves the selection up.
func (v *QueueView) MoveUp() {
	v.table.MoveUp()
}

// MoveDown moves the selection down.
func (v *QueueView) MoveDown() {
	v.table.MoveDown()
}

// SelectedRequest returns the currently selected request.
func (v *QueueView) SelectedRequest() *models.BloodRequest {
	idx := v.table.Selected()
	if idx >= 0 && idx < len(v.requests) {
		return v.requests[idx]
	}
	return nil
}

// Render renders the queue.
func (v *QueueView) Render(width, height int) string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E0303A")).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("═══ BLOOD REQUESTS ═══"))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Showing: "))
	b.WriteString(valueStyle.Render(v.FilterLabel()))
	b.WriteString("\n\n")

	if v.err != nil {
		b.WriteString(errStyle.Render("Error: " + v.err.Error()))
		b.WriteString("\n\n")
	}

	if v.loading {
		b.WriteString(labelStyle.Render("Loading..."))
		b.WriteString("\n")
	} else if v.table.Empty() {
		b.WriteString(labelStyle.Render("No requests found."))
		b.WriteString("\n")
	} else {
		b.WriteString(v.table.RenderResponsive(width))
	}

	b.WriteString("\n")
	if width < 60 {
		b.WriteString(helpStyle.Render("↑↓:Nav  Enter:Details  s:Status"))
	} else {
		b.WriteString(helpStyle.Render("Up/Down:Select  Enter:Details  a:Approve  x:Reject  f:Fulfill  r:Reserve  c:Cancel  s:Status  PgUp/Dn:Page"))
	}

	return b.String()
}

// RenderDetail renders one request with its assignments.
func (v *QueueView) RenderDetail(r *models.BloodRequest, width int) string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E0303A")).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444"))
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5A5A5A"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))

	labelWidth := 20
	if width > 0 && width < 60 {
		labelWidth = 14
	}
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0")).Width(labelWidth)

	if r == nil {
		return labelStyle.Render("No request selected")
	}

	row := func(label, value string) string {
		return labelStyle.Render(label) + " " + value + "\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("═══ REQUEST DETAILS ═══"))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("REQUEST"))
	b.WriteString("\n")
	b.WriteString(row("Request ID:", valueStyle.Render(r.ID)))
	b.WriteString(row("Recipient:", valueStyle.Render(r.RecipientID)))
	b.WriteString(row("Blood Type:", valueStyle.Render(string(r.BloodType))))
	b.WriteString(row("Quantity:", valueStyle.Render(fmt.Sprintf("%d units (%d filled, %d%%)",
		r.Quantity, r.FulfilledQuantity, r.FulfillmentPercentage()))))
	b.WriteString(row("Reason:", valueStyle.Render(r.Reason)))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("TRIAGE"))
	b.WriteString("\n")
	urgencyStyle := valueStyle
	switch r.Urgency {
	case models.UrgencyHigh:
		urgencyStyle = warnStyle
	case models.UrgencyCritical:
		urgencyStyle = errStyle
	}
	b.WriteString(row("Urgency:", urgencyStyle.Render(strings.ToUpper(string(r.Urgency)))))
	b.WriteString(row("Priority:", valueStyle.Render(fmt.Sprintf("%d / 10", r.Priority))))
	b.WriteString(row("Status:", valueStyle.Render(r.Status.String())))

	dueStyle := valueStyle
	due := fmt.Sprintf("%s (%d days)", r.RequiredBy.Format("2006-01-02 15:04"), r.DaysUntilRequired(v.now))
	if r.IsOverdue(v.now) {
		dueStyle = errStyle
		due = r.RequiredBy.Format("2006-01-02 15:04") + " OVERDUE"
	}
	b.WriteString(row("Required By:", dueStyle.Render(due)))
	if r.RejectionReason != nil {
		b.WriteString(row("Rejected:", errStyle.Render(*r.RejectionReason)))
	}
	if r.ApprovedBy != nil {
		b.WriteString(row("Reviewed By:", valueStyle.Render(*r.ApprovedBy)))
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("HOSPITAL"))
	b.WriteString("\n")
	b.WriteString(row("Name:", valueStyle.Render(r.Hospital.Name)))
	b.WriteString(row("Address:", valueStyle.Render(r.Hospital.Address)))
	b.WriteString(row("Contact:", valueStyle.Render(r.Hospital.ContactNumber)))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("ASSIGNMENTS"))
	b.WriteString("\n")
	if len(r.Assignments) == 0 {
		b.WriteString(mutedStyle.Render("  none"))
		b.WriteString("\n")
	}
	for _, a := range r.Assignments {
		b.WriteString(fmt.Sprintf("  donation %s  %s units  %s\n",
			util.ShortID(a.DonationID), valueStyle.Render(fmt.Sprintf("%d", a.Quantity)), a.AssignedDate.Format("2006-01-02")))
	}

	if r.Notes != "" {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("NOTES"))
		b.WriteString("\n")
		b.WriteString(r.Notes + "\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Esc:Back  a:Approve  x:Reject  f:Fulfill  r:Reserve"))

	return b.String()
}

func ptr[T any](v T) *T {
	return &v
}
