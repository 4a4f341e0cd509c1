package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bloodbank/bloodbank/internal/models"
)

// StatusStyles colors stock levels and alert severities. Views render with
// DefaultStatusStyles until the console hands them its theme's palette.
type StatusStyles struct {
	Normal   lipgloss.Style
	Low      lipgloss.Style
	Critical lipgloss.Style
	Info     lipgloss.Style
}

// DefaultStatusStyles returns the clinical palette.
func DefaultStatusStyles() StatusStyles {
	return NewStatusStyles(
		lipgloss.Color("#3DDC84"),
		lipgloss.Color("#FFAA00"),
		lipgloss.Color("#FF4444"),
		lipgloss.Color("#F2F2F2"),
	)
}

// NewStatusStyles builds a palette from its four colors.
func NewStatusStyles(normal, low, critical, info lipgloss.Color) StatusStyles {
	return StatusStyles{
		Normal:   lipgloss.NewStyle().Foreground(normal),
		Low:      lipgloss.NewStyle().Foreground(low).Bold(true),
		Critical: lipgloss.NewStyle().Foreground(critical).Bold(true),
		Info:     lipgloss.NewStyle().Foreground(info),
	}
}

// StockLevel returns the style for a ledger's stock level.
func (s StatusStyles) StockLevel(level models.StockLevel) lipgloss.Style {
	switch level {
	case models.StockLevelCritical:
		return s.Critical
	case models.StockLevelLow:
		return s.Low
	default:
		return s.Normal
	}
}

// Severity returns the style for an alert severity.
func (s StatusStyles) Severity(sev models.AlertSeverity) lipgloss.Style {
	switch sev {
	case models.SeverityCritical:
		return s.Critical
	case models.SeverityWarning:
		return s.Low
	default:
		return s.Info
	}
}

// StockBadge renders a stock level in upper case with its style.
func (s StatusStyles) StockBadge(level models.StockLevel) string {
	return s.StockLevel(level).Render(strings.ToUpper(level.String()))
}

// SeverityBadge renders an alert severity in upper case with its style.
func (s StatusStyles) SeverityBadge(sev models.AlertSeverity) string {
	return s.Severity(sev).Render(strings.ToUpper(string(sev)))
}
