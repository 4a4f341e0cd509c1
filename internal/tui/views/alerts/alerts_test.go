package alerts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bloodbank/bloodbank/internal/models"
)

var testNow = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	alerts []*models.InventoryAlert
	err    error
}

func (f *fakeSource) ActiveAlerts(context.Context) ([]*models.InventoryAlert, error) {
	return f.alerts, f.err
}

func sampleAlerts() []*models.InventoryAlert {
	return []*models.InventoryAlert{
		{ID: "al-1", BloodType: models.BloodTypeAPos, Kind: models.AlertExpiringSoon, Severity: models.SeverityWarning,
			Message: "2 donations expiring", Active: true, CreatedAt: testNow.Add(-time.Hour)},
		{ID: "al-2", BloodType: models.BloodTypeONeg, Kind: models.AlertLowStock, Severity: models.SeverityCritical,
			Message: "O- stock critical", Active: true, CreatedAt: testNow.Add(-3 * time.Hour)},
		{ID: "al-3", BloodType: models.BloodTypeBPos, Kind: models.AlertHighDemand, Severity: models.SeverityInfo,
			Message: "B+ demand rising", Active: true, CreatedAt: testNow.Add(-2 * time.Hour)},
	}
}

func TestAlertsView_EmptyRender(t *testing.T) {
	view := NewAlertsView(&fakeSource{})
	if err := view.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	output := view.Render(120, 40)
	if !strings.Contains(output, "INVENTORY ALERTS") {
		t.Error("expected title in output")
	}
	if !strings.Contains(output, "No active alerts") {
		t.Error("expected empty state message")
	}
}

func TestAlertsView_SortsBySeverity(t *testing.T) {
	view := NewAlertsView(&fakeSource{alerts: sampleAlerts()})
	view.SetNow(testNow)
	if err := view.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := view.SelectedAlert(); got == nil || got.ID != "al-2" {
		t.Fatalf("expected critical alert first, got %+v", got)
	}
	view.MoveDown()
	if got := view.SelectedAlert(); got.ID != "al-1" {
		t.Errorf("expected warning second, got %s", got.ID)
	}

	output := view.Render(140, 40)
	for _, want := range []string{"CRITICAL", "O- stock critical", "3 hours ago"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestAlertsView_SeverityFilter(t *testing.T) {
	view := NewAlertsView(nil)
	view.SetAlerts(sampleAlerts())

	if view.Count() != 3 {
		t.Fatalf("expected 3 alerts, got %d", view.Count())
	}

	view.CycleSeverityFilter()
	if view.FilterLabel() != "critical" || view.Count() != 1 {
		t.Errorf("expected 1 critical alert, got %q/%d", view.FilterLabel(), view.Count())
	}

	view.CycleSeverityFilter()
	view.CycleSeverityFilter()
	if view.FilterLabel() != "info" || view.Count() != 1 {
		t.Errorf("expected 1 info alert, got %q/%d", view.FilterLabel(), view.Count())
	}

	view.CycleSeverityFilter()
	if view.FilterLabel() != "all" || view.Count() != 3 {
		t.Errorf("expected filter to wrap to all, got %q/%d", view.FilterLabel(), view.Count())
	}
}

func TestAlertsView_LoadError(t *testing.T) {
	view := NewAlertsView(&fakeSource{err: errors.New("database is locked")})
	if err := view.Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(view.Render(120, 40), "database is locked") {
		t.Error("expected error in output")
	}
}

func TestAlertsView_RenderDetail(t *testing.T) {
	view := NewAlertsView(nil)
	view.SetNow(testNow)

	output := view.RenderDetail(sampleAlerts()[1], 100)
	for _, want := range []string{"ALERT", "O-", "low_stock", "CRITICAL", "2024-07-02 07:00", "Esc:Back"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in detail output", want)
		}
	}

	if !strings.Contains(view.RenderDetail(nil, 100), "No alert selected") {
		t.Error("expected placeholder for nil alert")
	}
}

func TestAlertsView_SeverityCountsIgnoreFilter(t *testing.T) {
	view := NewAlertsView(&fakeSource{alerts: sampleAlerts()})
	if err := view.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	view.CycleSeverityFilter()

	output := view.Render(120, 40)
	for _, want := range []string{"1 critical", "1 warning", "1 info"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in severity summary", want)
		}
	}
	if view.Count() != 1 {
		t.Errorf("expected the critical filter to show 1 alert, got %d", view.Count())
	}
}
