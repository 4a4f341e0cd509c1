// Package donations provides TUI views for donation review.
package donations

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

// Source lists donations for the view.
type Source interface {
	List(ctx context.Context, filter models.DonationFilter, page models.Pagination) (*models.DonationList, error)
}

// statusFilters is the cycle order of the status filter. Pending comes
// first since review is the main job of this view; nil shows everything.
var statusFilters = []*models.DonationStatus{
	ptr(models.DonationStatusPending),
	ptr(models.DonationStatusApproved),
	ptr(models.DonationStatusCollected),
	ptr(models.DonationStatusRejected),
	ptr(models.DonationStatusExpired),
	nil,
}

// ReviewView lists donations by status.
type ReviewView struct {
	source    Source
	table     *components.Table
	donations []*models.Donation
	page      models.Pagination
	filter    int
	loading   bool
	err       error
	now       time.Time
}

// NewReviewView creates a new review view.
func NewReviewView(source Source) *ReviewView {
	columns := []components.Column{
		{Title: "ID", Width: 8, Priority: 10},
		{Title: "Donor", Width: 18, Weight: 1, Priority: 7},
		{Title: "Type", Width: 4, Priority: 9},
		{Title: "ml", Width: 4, Align: lipgloss.Right, Priority: 8},
		{Title: "Donated", Width: 10, Priority: 5},
		{Title: "Expires", Width: 10, Priority: 6},
		{Title: "Status", Width: 9, Priority: 8},
		{Title: "Site", Width: 16, Weight: 1, Priority: 2},
	}

	table := components.NewTable(columns)
	table.SetVisibleRows(20)
	table.Focus(true)

	return &ReviewView{
		source: source,
		table:  table,
		page:   models.Pagination{Page: 1, PageSize: 20},
	}
}

// Load fetches the current page.
func (v *ReviewView) Load(ctx context.Context) error {
	v.loading = true
	v.err = nil

	result, err := v.source.List(ctx, models.DonationFilter{Status: statusFilters[v.filter]}, v.page)
	if err != nil {
		v.loading = false
		v.err = err
		return err
	}

	v.donations = result.Donations
	v.loading = false

	rows := make([][]string, len(v.donations))
	for i, d := range v.donations {
		donor := util.ShortID(d.DonorID)
		if d.Donor != nil {
			donor = d.Donor.FullName
		}

		expires := d.ExpiryDate.Format("2006-01-02")
		switch days := d.DaysUntilExpiry(v.now); {
		case d.Status == models.DonationStatusExpired, days < 0:
			expires = "EXPIRED"
		case days == 0:
			expires = "TODAY"
		case days <= models.ExpiringSoonDays:
			expires = fmt.Sprintf("%dd", days)
		}

		rows[i] = []string{
			util.ShortID(d.ID),
			donor,
			string(d.BloodType),
			fmt.Sprintf("%d", d.Quantity),
			d.DonationDate.Format("2006-01-02"),
			expires,
			d.Status.String(),
			d.Location.BloodBank,
		}
	}

	v.table.SetRows(rows)
	v.table.SetPagination(result.Page, result.TotalPages, result.Total)
	return nil
}

// SetNow sets the time used for expiry countdowns.
func (v *ReviewView) SetNow(t time.Time) {
	v.now = t
}

// SetVisibleRows sets the number of visible table rows.
func (v *ReviewView) SetVisibleRows(n int) {
	v.table.SetVisibleRows(n)
}

// CycleStatusFilter advances to the next status filter.
func (v *ReviewView) CycleStatusFilter() {
	v.filter = (v.filter + 1) % len(statusFilters)
	v.page.Page = 1
}

// FilterLabel names the active filter.
func (v *ReviewView) FilterLabel() string {
	if status := statusFilters[v.filter]; status != nil {
		return status.String()
	}
	return "all"
}

// NextPage moves to the next page.
func (v *ReviewView) NextPage() {
	v.page.Page++
}

// PrevPage moves to the previous page.
func (v *ReviewView) PrevPage() {
	if v.page.Page > 1 {
		v.page.Page--
	}
}

// MoveUp moves the selection up.
func (v *ReviewView) MoveUp() {
	v.table.MoveUp()
}

// MoveDown moves the selection down.
func (v *ReviewView) MoveDown() {
	v.table.MoveDown()
}

// SelectedDonation returns the currently selected donation.
func (v *ReviewView) SelectedDonation() *models.Donation {
	idx := v.table.Selected()
	if idx >= 0 && idx < len(v.donations) {
		return v.donations[idx]
	}
	return nil
}

// Render renders the donation list.
func (v *ReviewView) Render(width, height int) string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E0303A")).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("═══ DONATIONS ═══"))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Status: "))
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
		b.WriteString(labelStyle.Render("No donations found."))
		b.WriteString("\n")
	} else {
		b.WriteString(v.table.RenderResponsive(width))
	}

	b.WriteString("\n")
	if width < 60 {
		b.WriteString(helpStyle.Render("↑↓:Nav  Enter:Details  s:Status"))
	} else {
		b.WriteString(helpStyle.Render("Up/Down:Select  Enter:Details  a:Approve  x:Reject  s:Status  PgUp/Dn:Page"))
	}

	return b.String()
}

// RenderDetail renders one donation with its screening.
func (v *ReviewView) RenderDetail(d *models.Donation, width int) string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E0303A")).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))

	labelWidth := 20
	if width > 0 && width < 60 {
		labelWidth = 14
	}
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0")).Width(labelWidth)

	if d == nil {
		return labelStyle.Render("No donation selected")
	}

	row := func(label, value string) string {
		return labelStyle.Render(label) + " " + value + "\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("═══ DONATION DETAILS ═══"))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("DONATION"))
	b.WriteString("\n")
	b.WriteString(row("Donation ID:", valueStyle.Render(d.ID)))
	if d.Donor != nil {
		b.WriteString(row("Donor:", valueStyle.Render(d.Donor.FullName)))
	} else {
		b.WriteString(row("Donor ID:", valueStyle.Render(d.DonorID)))
	}
	b.WriteString(row("Blood Type:", valueStyle.Render(string(d.BloodType))))
	b.WriteString(row("Quantity:", valueStyle.Render(fmt.Sprintf("%d ml", d.Quantity))))
	b.WriteString(row("Status:", valueStyle.Render(d.Status.String())))
	b.WriteString(row("Collected At:", valueStyle.Render(d.Location.BloodBank)))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("DATES"))
	b.WriteString("\n")
	b.WriteString(row("Donated:", valueStyle.Render(d.DonationDate.Format("2006-01-02"))))
	days := d.DaysUntilExpiry(v.now)
	var daysStr string
	switch {
	case days < 0:
		daysStr = errStyle.Render("EXPIRED")
	case days == 0:
		daysStr = errStyle.Render("TODAY")
	case days <= models.ExpiringSoonDays:
		daysStr = warnStyle.Render(fmt.Sprintf("%d days", days))
	default:
		daysStr = valueStyle.Render(fmt.Sprintf("%d days", days))
	}
	b.WriteString(row("Expires:", valueStyle.Render(d.ExpiryDate.Format("2006-01-02"))+" ("+daysStr+")"))
	b.WriteString("\n")

	if s := d.Screening; s != nil {
		b.WriteString(sectionStyle.Render("SCREENING"))
		b.WriteString("\n")
		b.WriteString(row("Hemoglobin:", valueStyle.Render(fmt.Sprintf("%.1f g/dL", s.Hemoglobin))))
		b.WriteString(row("Blood Pressure:", valueStyle.Render(s.BloodPressure.String())))
		b.WriteString(row("Temperature:", valueStyle.Render(fmt.Sprintf("%.1f C", s.Temperature))))
		b.WriteString(row("Pulse:", valueStyle.Render(fmt.Sprintf("%d bpm", s.Pulse))))
		b.WriteString(row("Weight:", valueStyle.Render(fmt.Sprintf("%.1f kg", s.WeightKg))))
		b.WriteString(row("Screened By:", valueStyle.Render(s.ScreenedBy)))
		b.WriteString("\n")
	}

	if d.RejectionReason != nil {
		b.WriteString(row("Rejected:", errStyle.Render(*d.RejectionReason)))
		b.WriteString("\n")
	}

	if d.Notes != "" {
		b.WriteString(sectionStyle.Render("NOTES"))
		b.WriteString("\n")
		b.WriteString(d.Notes + "\n\n")
	}

	b.WriteString(helpStyle.Render("Esc:Back  a:Approve  x:Reject"))

	return b.String()
}

func ptr[T any](v T) *T {
	return &v
}
