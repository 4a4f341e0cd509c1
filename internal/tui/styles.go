// Package tui provides the blood bank operator console.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bloodbank/bloodbank/internal/config"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/tui/components"
)

// palette is the set of colors one color scheme draws with.
type palette struct {
	text     lipgloss.Color
	dim      lipgloss.Color
	accent   lipgloss.Color
	muted    lipgloss.Color
	normal   lipgloss.Color
	low      lipgloss.Color
	critical lipgloss.Color
}

var palettes = map[config.ColorScheme]palette{
	// Red on black, with white for body text.
	config.ColorSchemeClinical: {
		text:     "#F2F2F2",
		dim:      "#B0B0B0",
		accent:   "#E0303A",
		muted:    "#5A5A5A",
		normal:   "#3DDC84",
		low:      "#FFAA00",
		critical: "#FF4444",
	},
	config.ColorSchemeAmber: {
		text:     "#FFAA00",
		dim:      "#AA7700",
		accent:   "#FFCC66",
		muted:    "#664400",
		normal:   "#FFAA00",
		low:      "#FFFF00",
		critical: "#FF4444",
	},
	// Grey levels only; stock level and severity are also spelled out.
	config.ColorSchemeMono: {
		text:     "#FFFFFF",
		dim:      "#AAAAAA",
		accent:   "#FFFFFF",
		muted:    "#666666",
		normal:   "#AAAAAA",
		low:      "#DDDDDD",
		critical: "#FFFFFF",
	},
}

// Theme holds the console's styles.
type Theme struct {
	Base    lipgloss.Style
	Primary lipgloss.Style
	Accent  lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style

	Header        lipgloss.Style
	Footer        lipgloss.Style
	Title         lipgloss.Style
	Subtitle      lipgloss.Style
	Label         lipgloss.Style
	Value         lipgloss.Style
	Box           lipgloss.Style
	StatusDivider lipgloss.Style

	// Status colors stock levels and alert severities. The ledger and
	// alert views share it.
	Status components.StatusStyles

	border lipgloss.Color
}

// NewTheme creates the theme for a color scheme. Unknown schemes get the
// clinical palette.
func NewTheme(scheme config.ColorScheme) *Theme {
	p, ok := palettes[scheme]
	if !ok {
		p = palettes[config.ColorSchemeClinical]
	}

	return &Theme{
		Base:    lipgloss.NewStyle().Foreground(p.text),
		Primary: lipgloss.NewStyle().Foreground(p.text),
		Accent:  lipgloss.NewStyle().Foreground(p.accent),
		Muted:   lipgloss.NewStyle().Foreground(p.muted),
		Error:   lipgloss.NewStyle().Foreground(p.critical),

		Header:   lipgloss.NewStyle().Foreground(p.text).Bold(true).Padding(0, 1),
		Footer:   lipgloss.NewStyle().Foreground(p.dim).Padding(0, 1),
		Title:    lipgloss.NewStyle().Foreground(p.accent).Bold(true).Padding(0, 1),
		Subtitle: lipgloss.NewStyle().Foreground(p.text).Padding(0, 1),
		Label:    lipgloss.NewStyle().Foreground(p.dim),
		Value:    lipgloss.NewStyle().Foreground(p.text),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.dim).
			Padding(0, 1),
		StatusDivider: lipgloss.NewStyle().Foreground(p.muted).SetString(" │ "),

		Status: components.NewStatusStyles(p.normal, p.low, p.critical, p.text),
		border: p.dim,
	}
}

// Notice renders a console notice with its level prefix.
func (t *Theme) Notice(level AlertLevel, message string) string {
	switch level {
	case AlertCritical:
		return t.Status.Critical.Blink(true).Render("CRITICAL: " + message)
	case AlertWarning:
		return t.Status.Low.Render("WARNING: " + message)
	default:
		return t.Status.Info.Bold(true).Render("INFO: " + message)
	}
}

// StockGauge renders a ledger's available units against its capacity,
// colored by the ledger's stock level rather than by fill ratio.
func (t *Theme) StockGauge(l *models.InventoryLedger, width int) string {
	barWidth := max(width-2, 4)

	ratio := 0.0
	if l.MaxCapacity > 0 {
		ratio = min(max(float64(l.AvailableUnits)/float64(l.MaxCapacity), 0), 1)
	}
	filled := int(ratio * float64(barWidth))
	if filled == 0 && l.AvailableUnits > 0 {
		filled = 1
	}

	bar := "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "]"
	return t.Status.StockLevel(l.StockStatus()).Render(bar)
}

// StockRow renders one dashboard line: type, gauge, units and level.
func (t *Theme) StockRow(l *models.InventoryLedger, gaugeWidth int) string {
	return fmt.Sprintf("%s %s %s %s",
		t.Label.Render(PadRight(string(l.BloodType), 3)),
		t.StockGauge(l, gaugeWidth),
		t.Value.Render(PadLeft(fmt.Sprintf("%d", l.AvailableUnits), 5)),
		t.Status.StockBadge(l.StockStatus()))
}

// Rule draws a single horizontal line.
func (t *Theme) Rule(width int) string {
	return lipgloss.NewStyle().Foreground(t.border).Render(strings.Repeat("─", max(width, 0)))
}

// DoubleRule draws a double horizontal line under the header.
func (t *Theme) DoubleRule(width int) string {
	return t.Primary.Render(strings.Repeat("═", max(width, 0)))
}
