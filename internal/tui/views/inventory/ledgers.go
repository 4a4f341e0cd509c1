// Package inventory provides TUI views for the per-type stock ledgers.
package inventory

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

// Source lists the ledgers shown by the view.
type Source interface {
	List(ctx context.Context) ([]*models.InventoryLedger, error)
}

// LedgerView displays one row per blood type.
type LedgerView struct {
	source  Source
	table   *components.Table
	ledgers []*models.InventoryLedger
	loading bool
	err     error
	now     time.Time
	status  components.StatusStyles
}

// NewLedgerView creates a new ledger view.
func NewLedgerView(source Source) *LedgerView {
	columns := []components.Column{
		{Title: "Type", Width: 4, Priority: 10},
		{Title: "Available", Width: 9, Align: lipgloss.Right, Priority: 9},
		{Title: "Reserved", Width: 8, Align: lipgloss.Right, Priority: 8},
		{Title: "Expired", Width: 7, Align: lipgloss.Right, Priority: 4},
		{Title: "Min", Width: 6, Align: lipgloss.Right, Priority: 3},
		{Title: "Max", Width: 6, Align: lipgloss.Right, Priority: 2},
		{Title: "Stock", Width: 5, Align: lipgloss.Right, Priority: 6},
		{Title: "Status", Width: 8, Weight: 1, Priority: 7},
		{Title: "Alerts", Width: 6, Align: lipgloss.Right, Priority: 5},
	}

	table := components.NewTable(columns)
	table.SetVisibleRows(len(models.AllBloodTypes()))
	table.Focus(true)

	return &LedgerView{
		source: source,
		table:  table,
		status: components.DefaultStatusStyles(),
	}
}

// SetStatusStyles sets the palette for stock levels and alert severities.
func (v *LedgerView) SetStatusStyles(s components.StatusStyles) {
	v.status = s
}

// Load fetches all ledgers.
func (v *LedgerView) Load(ctx context.Context) error {
	v.loading = true
	v.err = nil

	ledgers, err := v.source.List(ctx)
	if err != nil {
		v.loading = false
		v.err = err
		return err
	}

	v.SetLedgers(ledgers)
	v.loading = false
	return nil
}

// SetLedgers replaces the rows shown.
func (v *LedgerView) SetLedgers(ledgers []*models.InventoryLedger) {
	v.ledgers = ledgers

	rows := make([][]string, len(ledgers))
	for i, l := range ledgers {
		rows[i] = []string{
			string(l.BloodType),
			fmt.Sprintf("%d", l.AvailableUnits),
			fmt.Sprintf("%d", l.ReservedUnits),
			fmt.Sprintf("%d", l.ExpiredUnits),
			fmt.Sprintf("%d", l.MinThreshold),
			fmt.Sprintf("%d", l.MaxCapacity),
			fmt.Sprintf("%d%%", l.StockPercentage()),
			strings.ToUpper(l.StockStatus().String()),
			fmt.Sprintf("%d", len(l.ActiveAlerts())),
		}
	}
	v.table.SetRows(rows)
}

// SetNow sets the time used for expiry countdowns.
func (v *LedgerView) SetNow(t time.Time) {
	v.now = t
}

// MoveUp moves the selection up.
func (v *LedgerView) MoveUp() {
	v.table.MoveUp()
}

// MoveDown moves the selection down.
func (v *LedgerView) MoveDown() {
	v.table.MoveDown()
}

// SelectedLedger returns the currently selected ledger.
func (v *LedgerView) SelectedLedger() *models.InventoryLedger {
	idx := v.table.Selected()
	if idx >= 0 && idx < len(v.ledgers) {
		return v.ledgers[idx]
	}
	return nil
}

// Render renders the ledger list.
func (v *LedgerView) Render(width, height int) string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E0303A")).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("═══ BLOOD INVENTORY ═══"))
	b.WriteString("\n\n")

	if v.err != nil {
		b.WriteString(errStyle.Render("Error: " + v.err.Error()))
		b.WriteString("\n\n")
	}

	if v.loading {
		b.WriteString(labelStyle.Render("Loading..."))
		b.WriteString("\n")
	} else if v.table.Empty() {
		b.WriteString(labelStyle.Render("No ledgers found."))
		b.WriteString("\n")
	} else {
		b.WriteString(v.table.RenderResponsive(width))
		b.WriteString("\n")
		if line := v.shortageLine(); line != "" {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString(labelStyle.Render("Quantities in ml."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if width < 60 {
		b.WriteString(helpStyle.Render("↑↓:Nav  Enter:Details"))
	} else {
		b.WriteString(helpStyle.Render("Up/Down:Select  Enter:Details  F2:Dashboard"))
	}

	return b.String()
}

// shortageLine names the blood types at low or critical stock.
func (v *LedgerView) shortageLine() string {
	var critical, low []string
	for _, l := range v.ledgers {
		switch l.StockStatus() {
		case models.StockLevelCritical:
			critical = append(critical, string(l.BloodType))
		case models.StockLevelLow:
			low = append(low, string(l.BloodType))
		}
	}

	var parts []string
	if len(critical) > 0 {
		parts = append(parts, v.status.Critical.Render("Critical: "+strings.Join(critical, ", ")))
	}
	if len(low) > 0 {
		parts = append(parts, v.status.Low.Render("Low: "+strings.Join(low, ", ")))
	}
	return strings.Join(parts, "  ")
}

// RenderDetail renders one ledger with its donation entries, holds and alerts.
func (v *LedgerView) RenderDetail(l *models.InventoryLedger, width int) string {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E0303A")).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F2F2F2"))
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#5A5A5A"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))

	labelWidth := 20
	if width > 0 && width < 60 {
		labelWidth = 14
	}
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0")).Width(labelWidth)

	if l == nil {
		return labelStyle.Render("No ledger selected")
	}

	row := func(label, value string) string {
		return labelStyle.Render(label) + " " + value + "\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("═══ LEDGER %s ═══", l.BloodType)))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("STOCK"))
	b.WriteString("\n")
	b.WriteString(row("Status:", v.status.StockBadge(l.StockStatus())))
	b.WriteString(row("Available:", valueStyle.Render(fmt.Sprintf("%d ml", l.AvailableUnits))))
	b.WriteString(row("Reserved:", valueStyle.Render(fmt.Sprintf("%d ml", l.ReservedUnits))))
	b.WriteString(row("Expired:", valueStyle.Render(fmt.Sprintf("%d ml", l.ExpiredUnits))))
	b.WriteString(row("Total:", valueStyle.Render(fmt.Sprintf("%d ml", l.TotalUnits))))
	b.WriteString(row("Thresholds:", valueStyle.Render(fmt.Sprintf("min %d / max %d", l.MinThreshold, l.MaxCapacity))))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("STATISTICS"))
	b.WriteString("\n")
	b.WriteString(row("Donations:", valueStyle.Render(fmt.Sprintf("%d", l.Statistics.TotalDonationsReceived))))
	b.WriteString(row("Dispensed:", valueStyle.Render(fmt.Sprintf("%d ml", l.Statistics.TotalUnitsDispensed))))
	b.WriteString(row("Expired:", valueStyle.Render(fmt.Sprintf("%d ml", l.Statistics.TotalUnitsExpired))))
	b.WriteString(row("Avg Shelf Life:", valueStyle.Render(fmt.Sprintf("%d days", l.Statistics.AverageShelfLifeDays))))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("DONATIONS"))
	b.WriteString("\n")
	shown := 0
	for _, e := range l.DonationEntries {
		if e.Status != models.DonationEntryAvailable {
			continue
		}
		shown++
		days := int(e.ExpiryDate.Sub(v.now).Hours() / 24)
		expiry := valueStyle.Render(fmt.Sprintf("%d days", days))
		if days <= models.ExpiringSoonDays {
			expiry = v.status.Low.Render(fmt.Sprintf("%d days", days))
		}
		b.WriteString(fmt.Sprintf("  %s  %s  expires in %s\n",
			util.ShortID(e.DonationID), valueStyle.Render(fmt.Sprintf("%4d ml", e.Quantity)), expiry))
	}
	if shown == 0 {
		b.WriteString(mutedStyle.Render("  none available"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("HOLDS"))
	b.WriteString("\n")
	shown = 0
	for _, e := range l.RequestEntries {
		if e.Status != models.ReservationReserved {
			continue
		}
		shown++
		b.WriteString(fmt.Sprintf("  request %s  %s held, %d dispensed\n",
			util.ShortID(e.RequestID), valueStyle.Render(fmt.Sprintf("%d", e.Remaining())), e.FulfilledQuantity))
	}
	if shown == 0 {
		b.WriteString(mutedStyle.Render("  no open reservations"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if alerts := l.ActiveAlerts(); len(alerts) > 0 {
		b.WriteString(sectionStyle.Render("ALERTS"))
		b.WriteString("\n")
		for _, a := range alerts {
			b.WriteString("  " + v.status.SeverityBadge(a.Severity) + " " + a.Message + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(mutedStyle.Render("Updated " + util.RelativeTimeString(l.LastUpdated, v.now)))
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("Esc:Back"))

	return b.String()
}
