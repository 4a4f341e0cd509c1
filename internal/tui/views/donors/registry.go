// Package donors provides TUI views for the donor registry.
package donors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/tui/components"
)

// Source lists donors for the view.
type Source interface {
	List(ctx context.Context, filter models.DonorFilter, page models.Pagination) (*models.DonorList, error)
}

// RegistryView displays the donor registry.
type RegistryView struct {
	source    Source
	table     *components.Table
	donors    []*models.Donor
	page      models.Pagination
	filter    models.DonorFilter
	typeIndex int // 0 is all types, otherwise models.AllBloodTypes()[typeIndex-1]
	loading   bool
	err       error
	now       time.Time
}

// NewRegistryView creates a new registry view.
func NewRegistryView(source Source) *RegistryView {
	columns := []components.Column{
		{Title: "Name", Width: 18, Weight: 2.0, Priority: 10},
		{Title: "Type", Width: 4, Priority: 9},
		{Title: "Age", Width: 3, Align: lipgloss.Right, Priority: 6},
		{Title: "kg", Width: 5, Align: lipgloss.Right, Priority: 4},
		{Title: "Last Donation", Width: 13, Priority: 7},
		{Title: "Eligible", Width: 8, Priority: 8},
		{Title: "Email", Width: 20, Weight: 1.0, Priority: 2},
		{Title: "Active", Width: 6, Priority: 3},
	}

	table := components.NewTable(columns)
	table.SetVisibleRows(25)
	table.Focus(true)

	return &RegistryView{
		source: source,
		table:  table,
		page:   models.Pagination{Page: 1, PageSize: 25},
	}
}

// Load fetches donors.
func (v *RegistryView) Load(ctx context.Context) error {
	v.loading = true
	v.err = nil

	result, err := v.source.List(ctx, v.filter, v.page)
	if err != nil {
		v.loading = false
		v.err = err
		return err
	}

	v.donors = result.Donors
	v.loading = false

	rows := make([][]string, len(v.donors))
	for i, d := range v.donors {
		last := "never"
		if d.LastDonation != nil {
			last = d.LastDonation.Format("2006-01-02")
		}
		eligible := "yes"
		if !d.CheckEligibility(v.now).Eligible {
			eligible = "no"
		}
		active := "yes"
		if !d.IsActive {
			active = "no"
		}
		rows[i] = []string{
			d.FullName,
			string(d.BloodType),
			fmt.Sprintf("%d", d.Age(v.now)),
			fmt.Sprintf("%.1f", d.WeightKg),
			last,
			eligible,
			d.Email,
			active,
		}
	}

	v.table.SetRows(rows)
	v.table.SetPagination(result.Page, result.TotalPages, result.Total)
	return nil
}

// SetNow sets the time used for age and eligibility.
func (v *RegistryView) SetNow(t time.Time) {
	v.now = t
}

// SetSearch sets the name/email search term.
func (v *RegistryView) SetSearch(term string) {
	v.filter.Search = strings.TrimSpace(term)
	v.page.Page = 1
}

// Search returns the current search term.
func (v *RegistryView) Search() string {
	return v.filter.Search
}

// CycleBloodType advances the blood type filter through every type and
// back to all.
func (v *RegistryView) CycleBloodType() {
	v.typeIndex = (v.typeIndex + 1) % (len(models.AllBloodTypes()) + 1)
	if v.typeIndex == 0 {
		v.filter.BloodType = nil
	} else {
		bt := models.AllBloodTypes()[v.typeIndex-1]
		v.filter.BloodType = &bt
	}
	v.page.Page = 1
}

// ToggleActiveOnly hides or shows deactivated donors.
func (v *RegistryView) ToggleActiveOnly() {
	v.filter.ActiveOnly = !v.filter.ActiveOnly
	v.page.Page = 1
}

// SetVisibleRows sets the number of visible table rows.
func (v *RegistryView) SetVisibleRows(n int) {
	v.table.SetVisibleRows(n)
}

// NextPage moves to the next page.
func (v *RegistryView) NextPage() {
	v.page.Page++
}

// PrevPage moves to the previous page.
func (v *RegistryView) PrevPage() {
	if v.page.Page > 1 {
		v.page.Page--
	}
}

// MoveUp moves the selection up.
func (v *RegistryView) MoveUp() {
	v.table.MoveUp()
}

// MoveDown moves the selection down.
func (v *RegistryView) MoveDown() {
	v.table.MoveDown()
}

// SelectedDonor returns the currently selected donor.
func (v *RegistryView) SelectedDonor() *models.Donor {
	idx := v.table.Selected()
	if idx >= 0 && idx < len(v.donors) {
		return v.donors[idx]
	}
	return nil
}

// Render renders the registry, responsive to the given terminal dimensions.
func (v *RegistryView) Render(width, height int) string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E0303A")).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("═══ DONOR REGISTRY ═══"))
	b.WriteString("\n\n")

	filtered := false
	if v.filter.Search != "" {
		b.WriteString(labelStyle.Render("Search: "))
		b.WriteString(valueStyle.Render(v.filter.Search))
		b.WriteString("\n")
		filtered = true
	}
	if v.filter.BloodType != nil {
		b.WriteString(labelStyle.Render("Blood Type: "))
		b.WriteString(valueStyle.Render(string(*v.filter.BloodType)))
		b.WriteString("\n")
		filtered = true
	}
	if v.filter.ActiveOnly {
		b.WriteString(labelStyle.Render("Active donors only"))
		b.WriteString("\n")
		filtered = true
	}
	if filtered {
		b.WriteString("\n")
	}

	if v.err != nil {
		b.WriteString(errStyle.Render("Error: " + v.err.Error()))
		b.WriteString("\n\n")
	}

	if v.loading {
		b.WriteString(labelStyle.Render("Loading..."))
		b.WriteString("\n")
	} else if v.table.Empty() {
		b.WriteString(labelStyle.Render("No donors found."))
		b.WriteString("\n")
	} else {
		b.WriteString(v.table.RenderResponsive(width))
	}

	b.WriteString("\n")
	if width < 60 {
		b.WriteString(helpStyle.Render("↑↓:Nav  Enter:View  /:Search"))
	} else {
		b.WriteString(helpStyle.Render("Up/Down:Select  Enter:Details  /:Search  t:Type  v:Active only  PgUp/Dn:Page"))
	}

	return b.String()
}

// RenderDetail renders one donor with the result of an eligibility check.
func (v *RegistryView) RenderDetail(donor *models.Donor, width int) string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E0303A")).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#3DDC84"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))

	labelWidth := 18
	if width < 60 {
		labelWidth = 14
	}
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0")).Width(labelWidth)

	if donor == nil {
		return labelStyle.Render("No donor selected")
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("═══ DONOR DETAILS ═══"))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("IDENTITY"))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Donor ID:") + " " + valueStyle.Render(donor.ID) + "\n")
	b.WriteString(labelStyle.Render("Name:") + " " + valueStyle.Render(donor.FullName) + "\n")
	b.WriteString(labelStyle.Render("Blood Type:") + " " + valueStyle.Render(string(donor.BloodType)) + "\n")
	b.WriteString(labelStyle.Render("Email:") + " " + valueStyle.Render(donor.Email) + "\n")
	b.WriteString(labelStyle.Render("Phone:") + " " + valueStyle.Render(donor.Phone) + "\n")
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("HEALTH"))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Date of Birth:") + " " + valueStyle.Render(donor.DateOfBirth.Format("2006-01-02")) + "\n")
	b.WriteString(labelStyle.Render("Age:") + " " + valueStyle.Render(fmt.Sprintf("%d years", donor.Age(v.now))) + "\n")
	b.WriteString(labelStyle.Render("Weight:") + " " + valueStyle.Render(fmt.Sprintf("%.1f kg", donor.WeightKg)) + "\n")
	last := "never"
	if donor.LastDonation != nil {
		last = fmt.Sprintf("%s (%d days ago)", donor.LastDonation.Format("2006-01-02"), donor.DaysSinceLastDonation(v.now))
	}
	b.WriteString(labelStyle.Render("Last Donation:") + " " + valueStyle.Render(last) + "\n")
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("ELIGIBILITY"))
	b.WriteString("\n")
	if !donor.IsActive {
		b.WriteString(warnStyle.Render("Donor is deactivated"))
		b.WriteString("\n")
	}
	elig := donor.CheckEligibility(v.now)
	if elig.Eligible {
		b.WriteString(okStyle.Render("Eligible to donate"))
		b.WriteString("\n")
	} else {
		for _, reason := range elig.Reasons {
			b.WriteString(warnStyle.Render("- " + reason))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	b.WriteString(helpStyle.Render("Esc:Back"))

	return b.String()
}
