// Package alerts provides the TUI view for active inventory alerts.
package alerts

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/tui/components"
	"github.com/bloodbank/bloodbank/internal/util"
)

// Source returns the active alerts across all ledgers.
type Source interface {
	ActiveAlerts(ctx context.Context) ([]*models.InventoryAlert, error)
}

var severityFilters = []*models.AlertSeverity{
	nil,
	ptr(models.SeverityCritical),
	ptr(models.SeverityWarning),
	ptr(models.SeverityInfo),
}

func severityRank(s models.AlertSeverity) int {
	switch s {
	case models.SeverityCritical:
		return 0
	case models.SeverityWarning:
		return 1
	default:
		return 2
	}
}

// AlertsView lists active alerts, most severe first.
type AlertsView struct {
	source Source
	table  *components.Table
	all    []*models.InventoryAlert
	alerts []*models.InventoryAlert
	filter int
	err    error
	now    time.Time
	status components.StatusStyles
}

// NewAlertsView creates a new alerts view.
func NewAlertsView(source Source) *AlertsView {
	columns := []components.Column{
		{Title: "Severity", Width: 9, Priority: 10},
		{Title: "Type", Width: 4, Priority: 9},
		{Title: "Kind", Width: 14, Priority: 6},
		{Title: "Message", Width: 30, Weight: 3, Priority: 8},
		{Title: "Raised", Width: 14, Priority: 5},
	}

	table := components.NewTable(columns)
	table.SetVisibleRows(20)
	table.Focus(true)

	return &AlertsView{source: source, table: table, status: components.DefaultStatusStyles()}
}

// SetStatusStyles sets the palette for alert severities.
func (v *AlertsView) SetStatusStyles(s components.StatusStyles) {
	v.status = s
}

// Load fetches the active alerts.
func (v *AlertsView) Load(ctx context.Context) error {
	v.err = nil

	alerts, err := v.source.ActiveAlerts(ctx)
	if err != nil {
		v.err = err
		return err
	}

	slices.SortStableFunc(alerts, func(a, b *models.InventoryAlert) int {
		return cmp.Compare(severityRank(a.Severity), severityRank(b.Severity))
	})
	v.all = alerts
	v.applyFilter()
	return nil
}

// SetAlerts replaces the alert list without a source.
func (v *AlertsView) SetAlerts(alerts []*models.InventoryAlert) {
	v.all = alerts
	v.applyFilter()
}

func (v *AlertsView) applyFilter() {
	v.alerts = v.alerts[:0]
	want := severityFilters[v.filter]
	for _, a := range v.all {
		if want == nil || a.Severity == *want {
			v.alerts = append(v.alerts, a)
		}
	}

	rows := make([][]string, len(v.alerts))
	for i, a := range v.alerts {
		rows[i] = []string{
			strings.ToUpper(string(a.Severity)),
			string(a.BloodType),
			string(a.Kind),
			a.Message,
			util.RelativeTimeString(a.CreatedAt, v.now),
		}
	}
	v.table.SetRows(rows)
	v.table.SetPagination(1, 1, len(v.alerts))
}

// SetNow sets the time used for relative timestamps.
func (v *AlertsView) SetNow(t time.Time) {
	v.now = t
}

// SetVisibleRows sets the number of visible table rows.
func (v *AlertsView) SetVisibleRows(n int) {
	v.table.SetVisibleRows(n)
}

// CycleSeverityFilter advances to the next severity filter.
func (v *AlertsView) CycleSeverityFilter() {
	v.filter = (v.filter + 1) % len(severityFilters)
	v.applyFilter()
}

// FilterLabel names the active filter.
func (v *AlertsView) FilterLabel() string {
	if s := severityFilters[v.filter]; s != nil {
		return string(*s)
	}
	return "all"
}

// Count returns the number of alerts shown.
func (v *AlertsView) Count() int {
	return len(v.alerts)
}

// MoveUp moves the selection up.
func (v *AlertsView) MoveUp() {
	v.table.MoveUp()
}

// MoveDown moves the selection down.
func (v *AlertsView) MoveDown() {
	v.table.MoveDown()
}

// SelectedAlert returns the currently selected alert.
func (v *AlertsView) SelectedAlert() *models.InventoryAlert {
	idx := v.table.Selected()
	if idx >= 0 && idx < len(v.alerts) {
		return v.alerts[idx]
	}
	return nil
}

// Render renders the alert list.
func (v *AlertsView) Render(width, height int) string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E0303A")).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444"))
	var b strings.Builder

	b.WriteString(titleStyle.Render("═══ INVENTORY ALERTS ═══"))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Severity: "))
	b.WriteString(valueStyle.Render(v.FilterLabel()))
	if counts := v.severityCounts(); counts != "" {
		b.WriteString("  ")
		b.WriteString(counts)
	}
	b.WriteString("\n\n")

	if v.err != nil {
		b.WriteString(errStyle.Render("Error: " + v.err.Error()))
		b.WriteString("\n\n")
	}

	if v.table.Empty() {
		b.WriteString(v.status.Normal.Render("No active alerts."))
		b.WriteString("\n")
	} else {
		b.WriteString(v.table.RenderResponsive(width))
	}

	b.WriteString("\n")
	if width < 60 {
		b.WriteString(labelStyle.Render("↑↓:Nav  s:Severity  w:Sweep"))
	} else {
		b.WriteString(labelStyle.Render("Up/Down:Select  Enter:Details  s:Severity  w:Run sweep now"))
	}

	return b.String()
}

// severityCounts summarises every active alert by severity, ignoring the
// filter.
func (v *AlertsView) severityCounts() string {
	counts := make(map[models.AlertSeverity]int)
	for _, a := range v.all {
		counts[a.Severity]++
	}

	var parts []string
	for _, sev := range []models.AlertSeverity{models.SeverityCritical, models.SeverityWarning, models.SeverityInfo} {
		if n := counts[sev]; n > 0 {
			parts = append(parts, v.status.Severity(sev).Render(fmt.Sprintf("%d %s", n, sev)))
		}
	}
	return strings.Join(parts, "  ")
}

// RenderDetail renders one alert.
func (v *AlertsView) RenderDetail(a *models.InventoryAlert, width int) string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E0303A")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))

	labelWidth := 14
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0")).Width(labelWidth)

	if a == nil {
		return labelStyle.Render("No alert selected")
	}

	msgWidth := width - labelWidth - 2
	if msgWidth < 20 {
		msgWidth = 20
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("═══ ALERT ═══"))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Alert ID:") + " " + valueStyle.Render(a.ID) + "\n")
	b.WriteString(labelStyle.Render("Blood Type:") + " " + valueStyle.Render(string(a.BloodType)) + "\n")
	b.WriteString(labelStyle.Render("Kind:") + " " + valueStyle.Render(string(a.Kind)) + "\n")
	b.WriteString(labelStyle.Render("Severity:") + " " + v.status.SeverityBadge(a.Severity) + "\n")
	b.WriteString(labelStyle.Render("Raised:") + " " + valueStyle.Render(
		a.CreatedAt.Format("2006-01-02 15:04")+" ("+util.RelativeTimeString(a.CreatedAt, v.now)+")") + "\n")
	b.WriteString(labelStyle.Render("Clears:") + " " + valueStyle.Render(
		a.CreatedAt.Add(models.AlertRetention).Format("2006-01-02 15:04")) + "\n\n")
	b.WriteString(valueStyle.Width(msgWidth).Render(a.Message))
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("Esc:Back"))

	return b.String()
}

func ptr[T any](v T) *T {
	return &v
}
