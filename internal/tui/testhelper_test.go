package tui

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/bloodbank/bloodbank/internal/config"
	"github.com/bloodbank/bloodbank/internal/database"
	"github.com/bloodbank/bloodbank/internal/services/donations"
	"github.com/bloodbank/bloodbank/internal/services/donors"
	"github.com/bloodbank/bloodbank/internal/services/fulfillment"
	"github.com/bloodbank/bloodbank/internal/services/inventory"
	"github.com/bloodbank/bloodbank/internal/services/requests"
	"github.com/bloodbank/bloodbank/internal/services/sweeper"
	"github.com/bloodbank/bloodbank/internal/util"
)

var testNow = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

// testEnv holds the services behind a test App so tests can seed data.
type testEnv struct {
	svc   Services
	clock *util.ManualClock
}

// newTestServices wires every service on a migrated in-memory database with
// a manual clock, and initializes the ledgers.
func newTestServices(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := database.NewMigratedInMemory(ctx)
	if err != nil {
		t.Fatalf("creating test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := util.NewManualClock(testNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	inv := inventory.NewService(db.DB, inventory.Options{Clock: clock, Logger: logger})
	donorSvc := donors.NewService(db.DB, clock)
	donationSvc := donations.NewService(db.DB, inv, donorSvc, donations.Options{Clock: clock, Logger: logger})
	requestSvc := requests.NewService(db.DB, inv, requests.Options{Clock: clock, Logger: logger})
	coord := fulfillment.NewCoordinator(inv, donationSvc, requestSvc, fulfillment.Options{Clock: clock, Logger: logger})
	sw := sweeper.New(donationSvc, requestSvc, inv, time.Minute, clock, logger)

	if _, err := inv.Initialize(ctx); err != nil {
		t.Fatalf("initializing ledgers: %v", err)
	}

	return &testEnv{
		svc: Services{
			Inventory:   inv,
			Donors:      donorSvc,
			Donations:   donationSvc,
			Requests:    requestSvc,
			Fulfillment: coord,
			Sweeper:     sw,
		},
		clock: clock,
	}
}

// newTestApp creates an App backed by an in-memory database for testing.
// The window is set to 120x40 and marked ready.
func newTestApp(t *testing.T) *App {
	t.Helper()
	app, _ := newTestAppWithEnv(t)
	return app
}

func newTestAppWithEnv(t *testing.T) (*App, *testEnv) {
	t.Helper()

	env := newTestServices(t)
	app := New(env.svc, config.Default(), env.clock)

	// Simulate a window size message to make the app ready
	app.width = 120
	app.height = 40
	app.ready = true
	app.updateViewDimensions()

	return app, env
}

// run executes cmd and feeds the resulting message back into the app,
// following batches. Ticks are skipped so the loop terminates.
func run(t *testing.T, app *App, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case nil, tickMsg:
	case tea.BatchMsg:
		for _, c := range msg {
			run(t, app, c)
		}
	default:
		_, next := app.Update(msg)
		run(t, app, next)
	}
}

// keyMsg creates a tea.KeyMsg for a regular character key.
func keyMsg(key string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

// specialKeyMsg creates a tea.KeyMsg for a special key type.
func specialKeyMsg(keyType tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: keyType}
}
