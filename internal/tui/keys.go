package tui

import (
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Binding is a named set of keys for one console command.
type Binding struct {
	Keys []string
	Help string
}

func bind(help string, keys ...string) Binding {
	return Binding{Keys: keys, Help: help}
}

// Matches reports whether msg is one of the binding's keys.
func (b Binding) Matches(msg tea.KeyMsg) bool {
	return slices.Contains(b.Keys, msg.String())
}

// Label is the binding's first key as shown in help text.
func (b Binding) Label() string {
	if len(b.Keys) == 0 {
		return ""
	}
	return b.Keys[0]
}

// ModuleKey switches the console to a module.
type ModuleKey struct {
	Binding
	Module Module
	// Short is the footer label.
	Short string
}

// KeyMap is the console's key bindings.
type KeyMap struct {
	Modules []ModuleKey

	Up       Binding
	Down     Binding
	PageUp   Binding
	PageDown Binding
	Open     Binding
	Back     Binding
	Quit     Binding

	// Request and donation desk.
	Approve Binding
	Reject  Binding
	Fulfill Binding
	Reserve Binding
	Cancel  Binding
	Filter  Binding

	// Inventory and alerts.
	Refresh Binding
	Expire  Binding
	Sweep   Binding

	// Donor registry.
	Search     Binding
	BloodType  Binding
	ActiveOnly Binding
	Deactivate Binding
}

// DefaultKeyMap returns the console's bindings. Module keys are the
// function keys F1 to F7; letters act on the selected row.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Modules: []ModuleKey{
			{Binding: bind("Help", "f1", "?"), Module: ModuleHelp, Short: "Help"},
			{Binding: bind("Dashboard", "f2"), Module: ModuleDashboard, Short: "Dashboard"},
			{Binding: bind("Blood Inventory", "f3"), Module: ModuleInventory, Short: "Inventory"},
			{Binding: bind("Blood Requests", "f4"), Module: ModuleRequests, Short: "Requests"},
			{Binding: bind("Donations", "f5"), Module: ModuleDonations, Short: "Donations"},
			{Binding: bind("Inventory Alerts", "f6"), Module: ModuleAlerts, Short: "Alerts"},
			{Binding: bind("Donor Registry", "f7"), Module: ModuleDonors, Short: "Donors"},
		},

		Up:       bind("up", "up", "k"),
		Down:     bind("down", "down", "j"),
		PageUp:   bind("previous page", "pgup"),
		PageDown: bind("next page", "pgdown"),
		Open:     bind("details", "enter"),
		Back:     bind("back", "esc", "backspace"),
		Quit:     bind("Quit", "f10", "q", "ctrl+c"),

		Approve: bind("Approve request or donation", "a"),
		Reject:  bind("Reject (asks for a reason)", "x"),
		Fulfill: bind("Fulfill request from best candidate", "f"),
		Reserve: bind("Reserve units for request", "r"),
		Cancel:  bind("Cancel pending request", "c"),
		Filter:  bind("Cycle status filter", "s"),

		Refresh: bind("Reload ledgers", "r"),
		Expire:  bind("Expire stale units on ledger", "x"),
		Sweep:   bind("Run sweep now (alerts)", "w"),

		Search:     bind("Search donors", "/", "s"),
		BloodType:  bind("Cycle donor blood type", "t"),
		ActiveOnly: bind("Toggle active donors only", "v"),
		Deactivate: bind("Deactivate donor (detail)", "d"),
	}
}

// ModuleFor returns the module a key switches to.
func (km KeyMap) ModuleFor(msg tea.KeyMsg) (Module, bool) {
	for _, mk := range km.Modules {
		if mk.Matches(msg) {
			return mk.Module, true
		}
	}
	return "", false
}

// StatusBarHelp is the footer line. Narrow terminals only get help and quit.
func (km KeyMap) StatusBarHelp(narrow bool) string {
	var b strings.Builder
	for _, mk := range km.Modules {
		if narrow && mk.Module != ModuleHelp {
			continue
		}
		if mk.Module == ModuleDonors {
			continue
		}
		b.WriteString("[" + strings.ToUpper(mk.Label()) + "]" + mk.Short + " ")
	}
	b.WriteString("[" + strings.ToUpper(km.Quit.Label()) + "]" + km.Quit.Help)
	return b.String()
}

// ActionHelp lists the row actions for the help screen.
func (km KeyMap) ActionHelp() []Binding {
	return []Binding{
		km.Approve, km.Reject, km.Fulfill, km.Reserve, km.Cancel, km.Filter,
		km.Expire, km.Sweep, km.Search, km.BloodType, km.ActiveOnly, km.Deactivate,
	}
}
