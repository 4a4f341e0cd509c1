package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/bloodbank/bloodbank/internal/models"
)

func TestStatusStyles_StockLevel(t *testing.T) {
	s := NewStatusStyles("#00FF00", "#FFFF00", "#FF0000", "#FFFFFF")

	tests := []struct {
		level models.StockLevel
		want  lipgloss.Color
	}{
		{models.StockLevelCritical, "#FF0000"},
		{models.StockLevelLow, "#FFFF00"},
		{models.StockLevelNormal, "#00FF00"},
		{models.StockLevelHigh, "#00FF00"},
	}

	for _, tt := range tests {
		if got := s.StockLevel(tt.level).GetForeground(); got != tt.want {
			t.Errorf("StockLevel(%s) foreground = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestStatusStyles_Severity(t *testing.T) {
	s := NewStatusStyles("#00FF00", "#FFFF00", "#FF0000", "#FFFFFF")

	tests := []struct {
		sev  models.AlertSeverity
		want lipgloss.Color
	}{
		{models.SeverityCritical, "#FF0000"},
		{models.SeverityWarning, "#FFFF00"},
		{models.SeverityInfo, "#FFFFFF"},
	}

	for _, tt := range tests {
		if got := s.Severity(tt.sev).GetForeground(); got != tt.want {
			t.Errorf("Severity(%s) foreground = %v, want %v", tt.sev, got, tt.want)
		}
	}
}

func TestStatusStyles_Badges(t *testing.T) {
	s := DefaultStatusStyles()

	if got := s.StockBadge(models.StockLevelCritical); !strings.Contains(got, "CRITICAL") {
		t.Errorf("StockBadge = %q, want CRITICAL", got)
	}
	if got := s.SeverityBadge(models.SeverityWarning); !strings.Contains(got, "WARNING") {
		t.Errorf("SeverityBadge = %q, want WARNING", got)
	}
}
