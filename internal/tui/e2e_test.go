package tui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/bloodbank/bloodbank/internal/config"
)

// newE2EApp creates an App for end-to-end testing via teatest.
// Unlike newTestApp, this does NOT pre-configure width/height/ready
// since teatest sends WindowSizeMsg via WithInitialTermSize.
func newE2EApp(t *testing.T) *App {
	t.Helper()
	env := newTestServices(t)
	return New(env.svc, config.Default(), env.clock)
}

// waitFor is a convenience wrapper around teatest.WaitFor with a standard timeout.
func waitFor(t *testing.T, tm *teatest.TestModel, text string) {
	t.Helper()
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte(text))
	}, teatest.WithDuration(5*time.Second))
}

// --- End-to-end tests ---
// These launch the real Bubble Tea program in a headless virtual terminal,
// send actual keystrokes, and assert on the rendered screen output.

func TestE2E_DashboardOnStartup(t *testing.T) {
	tm := teatest.NewTestModel(t, newE2EApp(t),
		teatest.WithInitialTermSize(120, 40))
	t.Cleanup(func() { tm.Quit() })

	waitFor(t, tm, "BLOOD BANK STATUS")
}

func TestE2E_NavigateModules(t *testing.T) {
	tests := []struct {
		name  string
		key   tea.KeyType
		title string
	}{
		{"inventory", tea.KeyF3, "BLOOD INVENTORY"},
		{"requests", tea.KeyF4, "BLOOD REQUESTS"},
		{"donations", tea.KeyF5, "DONATIONS"},
		{"alerts", tea.KeyF6, "INVENTORY ALERTS"},
		{"donors", tea.KeyF7, "DONOR REGISTRY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := teatest.NewTestModel(t, newE2EApp(t),
				teatest.WithInitialTermSize(120, 40))
			t.Cleanup(func() { tm.Quit() })

			waitFor(t, tm, "BLOOD BANK STATUS")
			tm.Send(tea.KeyMsg{Type: tt.key})
			waitFor(t, tm, tt.title)
		})
	}
}

func TestE2E_HelpScreenAndBack(t *testing.T) {
	tm := teatest.NewTestModel(t, newE2EApp(t),
		teatest.WithInitialTermSize(120, 40))
	t.Cleanup(func() { tm.Quit() })

	waitFor(t, tm, "BLOOD BANK STATUS")

	// F3 → Inventory, F1 → Help
	tm.Send(tea.KeyMsg{Type: tea.KeyF3})
	waitFor(t, tm, "BLOOD INVENTORY")
	tm.Send(tea.KeyMsg{Type: tea.KeyF1})
	waitFor(t, tm, "Press Esc to return")

	// Esc → back to inventory
	tm.Send(tea.KeyMsg{Type: tea.KeyEscape})
	waitFor(t, tm, "BLOOD INVENTORY")
}

func TestE2E_QuitFlow(t *testing.T) {
	tm := teatest.NewTestModel(t, newE2EApp(t),
		teatest.WithInitialTermSize(120, 40))

	waitFor(t, tm, "BLOOD BANK STATUS")

	// Press q → confirm dialog
	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	waitFor(t, tm, "CONFIRM EXIT")

	// Press y → quit
	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})

	m := tm.FinalModel(t, teatest.WithFinalTimeout(5*time.Second))
	app, ok := m.(*App)
	if !ok {
		t.Fatal("expected *App final model")
	}
	if !app.quitting {
		t.Error("expected app to be quitting")
	}
}

func TestE2E_QuitCancel(t *testing.T) {
	tm := teatest.NewTestModel(t, newE2EApp(t),
		teatest.WithInitialTermSize(120, 40))
	t.Cleanup(func() { tm.Quit() })

	waitFor(t, tm, "BLOOD BANK STATUS")

	tm.Send(tea.KeyMsg{Type: tea.KeyF10})
	waitFor(t, tm, "CONFIRM EXIT")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})

	// Still responsive after cancelling
	tm.Send(tea.KeyMsg{Type: tea.KeyF4})
	waitFor(t, tm, "BLOOD REQUESTS")
}

func TestE2E_EmptyLists(t *testing.T) {
	tm := teatest.NewTestModel(t, newE2EApp(t),
		teatest.WithInitialTermSize(120, 40))
	t.Cleanup(func() { tm.Quit() })

	tm.Send(tea.KeyMsg{Type: tea.KeyF4})
	waitFor(t, tm, "No requests")

	tm.Send(tea.KeyMsg{Type: tea.KeyF7})
	waitFor(t, tm, "No donors found")

	tm.Send(tea.KeyMsg{Type: tea.KeyF6})
	waitFor(t, tm, "No active alerts")
}

func TestE2E_SearchFlow(t *testing.T) {
	tm := teatest.NewTestModel(t, newE2EApp(t),
		teatest.WithInitialTermSize(120, 40))
	t.Cleanup(func() { tm.Quit() })

	tm.Send(tea.KeyMsg{Type: tea.KeyF7})
	waitFor(t, tm, "DONOR REGISTRY")

	// Enter search mode with '/'
	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	waitFor(t, tm, "SEARCH")

	tm.Type("Okafor")
	waitFor(t, tm, "Okafor")

	// Submit search with Enter
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})

	tm.Send(tea.KeyMsg{Type: tea.KeyF2})
	waitFor(t, tm, "BLOOD BANK STATUS")
}

func TestE2E_SearchCancel(t *testing.T) {
	tm := teatest.NewTestModel(t, newE2EApp(t),
		teatest.WithInitialTermSize(120, 40))
	t.Cleanup(func() { tm.Quit() })

	tm.Send(tea.KeyMsg{Type: tea.KeyF7})
	waitFor(t, tm, "DONOR REGISTRY")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	waitFor(t, tm, "SEARCH")

	tm.Type("test")
	tm.Send(tea.KeyMsg{Type: tea.KeyEscape})

	tm.Send(tea.KeyMsg{Type: tea.KeyF5})
	waitFor(t, tm, "DONATIONS")
}

func TestE2E_SweepFromAlerts(t *testing.T) {
	tm := teatest.NewTestModel(t, newE2EApp(t),
		teatest.WithInitialTermSize(120, 40))
	t.Cleanup(func() { tm.Quit() })

	tm.Send(tea.KeyMsg{Type: tea.KeyF6})
	waitFor(t, tm, "No active alerts")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("w")})
	waitFor(t, tm, "Sweep:")
}

func TestE2E_NarrowTerminal(t *testing.T) {
	tm := teatest.NewTestModel(t, newE2EApp(t),
		teatest.WithInitialTermSize(50, 24))
	t.Cleanup(func() { tm.Quit() })

	waitFor(t, tm, "BBOC")

	tm.Send(tea.KeyMsg{Type: tea.KeyF3})
	waitFor(t, tm, "BLOOD INVENTORY")
}

func TestE2E_WideTerminal(t *testing.T) {
	tm := teatest.NewTestModel(t, newE2EApp(t),
		teatest.WithInitialTermSize(200, 50))
	t.Cleanup(func() { tm.Quit() })

	waitFor(t, tm, "BLOOD BANK OPERATIONS CONSOLE")

	tm.Send(tea.KeyMsg{Type: tea.KeyF4})
	waitFor(t, tm, "BLOOD REQUESTS")
}

func TestE2E_DashboardShowsStock(t *testing.T) {
	tm := teatest.NewTestModel(t, newE2EApp(t),
		teatest.WithInitialTermSize(120, 40))
	t.Cleanup(func() { tm.Quit() })

	// All dashboard panels should render in the same frame
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("Central Blood Bank")) &&
			bytes.Contains(bts, []byte("STOCK LEVELS")) &&
			bytes.Contains(bts, []byte("AB-")) &&
			bytes.Contains(bts, []byte("HOUSEKEEPING"))
	}, teatest.WithDuration(5*time.Second))
}

func TestE2E_StatusBarShowsKeyBindings(t *testing.T) {
	tm := teatest.NewTestModel(t, newE2EApp(t),
		teatest.WithInitialTermSize(120, 40))
	t.Cleanup(func() { tm.Quit() })

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("[F1]Help")) &&
			bytes.Contains(bts, []byte("[F3]Inventory")) &&
			bytes.Contains(bts, []byte("[F5]Donations"))
	}, teatest.WithDuration(5*time.Second))
}
