package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/bloodbank/bloodbank/internal/config"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/services/donations"
	"github.com/bloodbank/bloodbank/internal/services/donors"
	"github.com/bloodbank/bloodbank/internal/services/fulfillment"
	"github.com/bloodbank/bloodbank/internal/services/inventory"
	"github.com/bloodbank/bloodbank/internal/services/requests"
	"github.com/bloodbank/bloodbank/internal/services/sweeper"
	"github.com/bloodbank/bloodbank/internal/tui/components"
	alertviews "github.com/bloodbank/bloodbank/internal/tui/views/alerts"
	donationviews "github.com/bloodbank/bloodbank/internal/tui/views/donations"
	donorviews "github.com/bloodbank/bloodbank/internal/tui/views/donors"
	invviews "github.com/bloodbank/bloodbank/internal/tui/views/inventory"
	reqviews "github.com/bloodbank/bloodbank/internal/tui/views/requests"
	"github.com/bloodbank/bloodbank/internal/util"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// MaxContentWidth is the maximum width for content display
const MaxContentWidth = 120

// operator is recorded as the approver of actions taken from the console.
const operator = "console"

// chromeLines is the number of lines used by header, alert bar and footer.
const chromeLines = 6

// Module represents a view module in the application.
type Module string

const (
	ModuleDashboard Module = "dashboard"
	ModuleInventory Module = "inventory"
	ModuleRequests  Module = "requests"
	ModuleDonations Module = "donations"
	ModuleAlerts    Module = "alerts"
	ModuleDonors    Module = "donors"
	ModuleHelp      Module = "help"
)

// Services bundles the domain services the console drives.
type Services struct {
	Inventory   *inventory.Service
	Donors      *donors.Service
	Donations   *donations.Service
	Requests    *requests.Service
	Fulfillment *fulfillment.Coordinator
	Sweeper     *sweeper.Sweeper
}

// App is the main Bubble Tea application model.
type App struct {
	// Dependencies
	svc    Services
	config *config.Config
	clock  util.Clock

	// Views
	ledgerView    *invviews.LedgerView
	queueView     *reqviews.QueueView
	reviewView    *donationviews.ReviewView
	alertsView    *alertviews.AlertsView
	registryView  *donorviews.RegistryView
	screeningForm *donationviews.ScreeningForm
	reasonForm    *components.Form
	reasonInput   *components.Input
	reasonTarget  reasonTarget
	donorDetail   *models.Donor

	// UI state
	theme       *Theme
	keys        KeyMap
	width       int
	height      int
	ready       bool
	quitting    bool
	showConfirm bool

	// Current view
	currentModule  Module
	previousModule Module
	showDetail     bool // Show detail view instead of list
	showForm       bool // Show screening or reason form
	searchMode     bool // Donor search input mode
	searchInput    string

	// Alerts
	alerts     []Alert
	alertIndex int
	ticks      int

	// Dashboard data (refreshed periodically)
	dashboard dashboardData
}

// Alert represents a console notice shown in the alert bar.
type Alert struct {
	Level   AlertLevel
	Message string
	Time    time.Time
}

// AlertLevel indicates the severity of an alert.
type AlertLevel int

const (
	AlertInfo AlertLevel = iota
	AlertWarning
	AlertCritical
)

// reasonTarget names what a rejection reason is being collected for.
type reasonTarget struct {
	kind string // "request" or "donation"
	id   string
}

type dashboardData struct {
	summary   *models.InventorySummary
	ledgers   []*models.InventoryLedger
	requests  map[models.RequestStatus]int
	donations map[models.DonationStatus]int
	loaded    bool
}

// tickMsg is sent periodically to update the UI.
type tickMsg time.Time

// New creates a new App instance.
func New(svc Services, cfg *config.Config, clock util.Clock) *App {
	if clock == nil {
		clock = util.SystemClock{}
	}
	now := clock.Now()

	theme := NewTheme(cfg.Display.ColorScheme)

	ledgerView := invviews.NewLedgerView(svc.Inventory)
	ledgerView.SetNow(now)
	ledgerView.SetStatusStyles(theme.Status)

	queueView := reqviews.NewQueueView(svc.Requests)
	queueView.SetNow(now)

	reviewView := donationviews.NewReviewView(svc.Donations)
	reviewView.SetNow(now)

	alertsView := alertviews.NewAlertsView(svc.Inventory)
	alertsView.SetNow(now)
	alertsView.SetStatusStyles(theme.Status)

	registryView := donorviews.NewRegistryView(svc.Donors)
	registryView.SetNow(now)

	return &App{
		svc:           svc,
		config:        cfg,
		clock:         clock,
		ledgerView:    ledgerView,
		queueView:     queueView,
		reviewView:    reviewView,
		alertsView:    alertsView,
		registryView:  registryView,
		theme:         theme,
		keys:          DefaultKeyMap(),
		currentModule: ModuleDashboard,
		alerts:        []Alert{},
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		tickCmd(),
		a.loadDashboard(),
	)
}

// tickCmd returns a command that sends tick messages.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.updateViewDimensions()
		return a, nil

	case tickMsg:
		return a, a.handleTick()

	case dashboardMsg:
		if msg.err != nil {
			a.AddAlert(AlertWarning, "Failed to load dashboard: "+msg.err.Error())
			return a, nil
		}
		a.dashboard = msg.data
		return a, nil

	case ledgersLoadedMsg:
		if msg.err != nil {
			a.AddAlert(AlertWarning, "Failed to load inventory: "+msg.err.Error())
		}
		return a, nil

	case requestsLoadedMsg:
		if msg.err != nil {
			a.AddAlert(AlertWarning, "Failed to load requests: "+msg.err.Error())
		}
		return a, nil

	case donationsLoadedMsg:
		if msg.err != nil {
			a.AddAlert(AlertWarning, "Failed to load donations: "+msg.err.Error())
		}
		return a, nil

	case alertsLoadedMsg:
		if msg.err != nil {
			a.AddAlert(AlertWarning, "Failed to load alerts: "+msg.err.Error())
		}
		return a, nil

	case donorsLoadedMsg:
		if msg.err != nil {
			a.AddAlert(AlertWarning, "Failed to load donors: "+msg.err.Error())
		}
		return a, nil

	case donorDetailMsg:
		if msg.err != nil {
			a.AddAlert(AlertWarning, "Failed to load donor: "+msg.err.Error())
			return a, nil
		}
		a.donorDetail = msg.donor
		a.showDetail = true
		return a, nil

	case screeningResultMsg:
		if msg.err != nil && a.screeningForm != nil {
			a.screeningForm.SetError(msg.err.Error())
			return a, nil
		}
		a.closeForms()
		return a, a.handleAction(actionMsg{text: msg.text, err: msg.err})

	case actionMsg:
		a.closeForms()
		return a, a.handleAction(msg)

	case sweepMsg:
		r := msg.report
		if r.Err != nil {
			a.AddAlert(AlertWarning, "Sweep finished with errors: "+r.Err.Error())
		} else {
			a.AddAlert(AlertInfo, fmt.Sprintf("Sweep: %d donations expired, %d requests expired, %d alerts raised",
				r.ExpiredDonations, r.ExpiredRequests, r.AlertsRaised))
		}
		return a, tea.Batch(a.loadAlerts(), a.loadDashboard())
	}

	return a, nil
}

// handleTick advances the clock-driven state: view times, alert rotation
// and the periodic dashboard refresh.
func (a *App) handleTick() tea.Cmd {
	now := a.clock.Now()
	a.ledgerView.SetNow(now)
	a.queueView.SetNow(now)
	a.reviewView.SetNow(now)
	a.alertsView.SetNow(now)
	a.registryView.SetNow(now)

	a.ticks++
	if a.ticks%3 == 0 && len(a.alerts) > 1 {
		a.alertIndex = (a.alertIndex + 1) % len(a.alerts)
	}

	cmds := []tea.Cmd{tickCmd()}
	refresh := a.config.Display.RefreshSeconds
	if refresh > 0 && a.ticks%refresh == 0 {
		cmds = append(cmds, a.loadDashboard())
	}
	return tea.Batch(cmds...)
}

// handleAction reports an action outcome and reloads what it touched.
func (a *App) handleAction(msg actionMsg) tea.Cmd {
	switch {
	case msg.err == nil:
		a.AddAlert(AlertInfo, msg.text)
	case fulfillment.IsRejection(msg.err):
		a.AddAlert(AlertWarning, msg.err.Error())
	default:
		a.AddAlert(AlertCritical, msg.err.Error())
	}
	if a.currentModule == ModuleDonors {
		a.showDetail = false
		a.donorDetail = nil
	}
	return tea.Batch(a.reloadCurrent(), a.loadDashboard())
}

func (a *App) closeForms() {
	a.showForm = false
	a.screeningForm = nil
	a.reasonForm = nil
	a.reasonInput = nil
	a.reasonTarget = reasonTarget{}
}

// updateViewDimensions sizes the list views to the terminal height.
func (a *App) updateViewDimensions() {
	rows := ContentHeight(a.height, chromeLines+10)
	a.queueView.SetVisibleRows(rows)
	a.reviewView.SetVisibleRows(rows)
	a.alertsView.SetVisibleRows(rows)
	a.registryView.SetVisibleRows(rows)
}

// handleKeyPress processes key press events.
func (a *App) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Handle quit confirmation first (modal takes priority)
	if a.showConfirm {
		switch msg.String() {
		case "y", "Y", "enter":
			a.quitting = true
			return a, tea.Quit
		case "n", "N", "esc":
			a.showConfirm = false
			return a, nil
		}
		return a, nil
	}

	// Forms and search take all input before global keys
	if a.showForm {
		return a.handleFormKeys(msg)
	}
	if a.currentModule == ModuleDonors && a.searchMode {
		return a.handleSearchKeys(msg)
	}

	if a.keys.Quit.Matches(msg) {
		a.showConfirm = true
		return a, nil
	}

	// Module keys are always available
	if module, ok := a.keys.ModuleFor(msg); ok {
		if module == ModuleHelp {
			if a.currentModule != ModuleHelp {
				a.previousModule = a.currentModule
			}
			a.currentModule = ModuleHelp
			return a, nil
		}
		a.currentModule = module
		a.showDetail = false
		a.donorDetail = nil
		return a, a.reloadCurrent()
	}

	// Back navigation (only when not in input mode)
	if a.keys.Back.Matches(msg) {
		if a.showDetail {
			a.showDetail = false
			a.donorDetail = nil
			return a, nil
		}
		if a.currentModule == ModuleHelp && a.previousModule != "" {
			a.currentModule = a.previousModule
			a.previousModule = ""
		}
		return a, nil
	}

	switch a.currentModule {
	case ModuleInventory:
		return a.handleInventoryKeys(msg)
	case ModuleRequests:
		return a.handleRequestKeys(msg)
	case ModuleDonations:
		return a.handleDonationKeys(msg)
	case ModuleAlerts:
		return a.handleAlertKeys(msg)
	case ModuleDonors:
		return a.handleDonorKeys(msg)
	}

	return a, nil
}

// handleInventoryKeys handles key presses in the inventory module.
func (a *App) handleInventoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	km := a.keys
	if km.Expire.Matches(msg) {
		if l := a.ledgerView.SelectedLedger(); l != nil {
			return a, a.expireLedger(l.BloodType)
		}
		return a, nil
	}
	if a.showDetail {
		return a, nil
	}

	switch {
	case km.Up.Matches(msg):
		a.ledgerView.MoveUp()
	case km.Down.Matches(msg):
		a.ledgerView.MoveDown()
	case km.Open.Matches(msg):
		if a.ledgerView.SelectedLedger() != nil {
			a.showDetail = true
		}
	case km.Refresh.Matches(msg):
		return a, a.loadLedgers()
	}
	return a, nil
}

// handleRequestKeys handles key presses in the requests module. Actions work
// from both the list and the detail view.
func (a *App) handleRequestKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	km := a.keys
	req := a.queueView.SelectedRequest()

	if req != nil {
		switch {
		case km.Approve.Matches(msg):
			return a, a.approveRequest(req.ID)
		case km.Reject.Matches(msg):
			a.openReasonForm("REJECT REQUEST", reasonTarget{kind: "request", id: req.ID})
			return a, nil
		case km.Fulfill.Matches(msg):
			return a, a.fulfillRequest(req)
		case km.Reserve.Matches(msg):
			return a, a.reserveForRequest(req)
		case km.Cancel.Matches(msg):
			return a, a.cancelRequest(req.ID)
		}
	}

	if a.showDetail {
		return a, nil
	}

	switch {
	case km.Up.Matches(msg):
		a.queueView.MoveUp()
	case km.Down.Matches(msg):
		a.queueView.MoveDown()
	case km.Open.Matches(msg):
		if req != nil {
			a.showDetail = true
		}
	case km.PageUp.Matches(msg):
		a.queueView.PrevPage()
		return a, a.loadRequests()
	case km.PageDown.Matches(msg):
		a.queueView.NextPage()
		return a, a.loadRequests()
	case km.Filter.Matches(msg):
		a.queueView.CycleStatusFilter()
		return a, a.loadRequests()
	}
	return a, nil
}

// handleDonationKeys handles key presses in the donations module.
func (a *App) handleDonationKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	km := a.keys
	d := a.reviewView.SelectedDonation()

	if d != nil {
		switch {
		case km.Approve.Matches(msg):
			a.screeningForm = donationviews.NewScreeningForm(d, operator)
			a.showForm = true
			return a, nil
		case km.Reject.Matches(msg):
			a.openReasonForm("REJECT DONATION", reasonTarget{kind: "donation", id: d.ID})
			return a, nil
		}
	}

	if a.showDetail {
		return a, nil
	}

	switch {
	case km.Up.Matches(msg):
		a.reviewView.MoveUp()
	case km.Down.Matches(msg):
		a.reviewView.MoveDown()
	case km.Open.Matches(msg):
		if d != nil {
			a.showDetail = true
		}
	case km.PageUp.Matches(msg):
		a.reviewView.PrevPage()
		return a, a.loadDonations()
	case km.PageDown.Matches(msg):
		a.reviewView.NextPage()
		return a, a.loadDonations()
	case km.Filter.Matches(msg):
		a.reviewView.CycleStatusFilter()
		return a, a.loadDonations()
	}
	return a, nil
}

// handleAlertKeys handles key presses in the alerts module.
func (a *App) handleAlertKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	km := a.keys
	if km.Sweep.Matches(msg) {
		return a, a.runSweep()
	}
	if a.showDetail {
		return a, nil
	}

	switch {
	case km.Up.Matches(msg):
		a.alertsView.MoveUp()
	case km.Down.Matches(msg):
		a.alertsView.MoveDown()
	case km.Open.Matches(msg):
		if a.alertsView.SelectedAlert() != nil {
			a.showDetail = true
		}
	case km.Filter.Matches(msg):
		a.alertsView.CycleSeverityFilter()
	}
	return a, nil
}

// handleDonorKeys handles key presses in the donor registry.
// Search mode is handled in handleKeyPress before this is called.
func (a *App) handleDonorKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	km := a.keys
	if a.showDetail {
		if km.Deactivate.Matches(msg) && a.donorDetail != nil && a.donorDetail.IsActive {
			return a, a.deactivateDonor(a.donorDetail.ID)
		}
		return a, nil
	}

	switch {
	case km.Up.Matches(msg):
		a.registryView.MoveUp()
	case km.Down.Matches(msg):
		a.registryView.MoveDown()
	case km.Open.Matches(msg):
		if d := a.registryView.SelectedDonor(); d != nil {
			return a, a.loadDonorDetail(d.ID)
		}
	case km.PageUp.Matches(msg):
		a.registryView.PrevPage()
		return a, a.loadDonors()
	case km.PageDown.Matches(msg):
		a.registryView.NextPage()
		return a, a.loadDonors()
	case km.BloodType.Matches(msg):
		a.registryView.CycleBloodType()
		return a, a.loadDonors()
	case km.ActiveOnly.Matches(msg):
		a.registryView.ToggleActiveOnly()
		return a, a.loadDonors()
	case km.Search.Matches(msg):
		a.searchMode = true
		a.searchInput = ""
	}
	return a, nil
}

// openReasonForm shows a one-field form collecting a rejection reason.
func (a *App) openReasonForm(title string, target reasonTarget) {
	a.reasonInput = components.NewInput("Reason").SetRequired(true).SetWidth(40).SetMaxLength(200)
	a.reasonForm = components.NewForm(title).AddField(a.reasonInput)
	a.reasonTarget = target
	a.showForm = true
}

// handleFormKeys handles key presses in form mode.
func (a *App) handleFormKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if a.screeningForm != nil {
		a.screeningForm.HandleKey(key)
		switch {
		case a.screeningForm.IsCancelled():
			a.closeForms()
		case a.screeningForm.IsSubmitted():
			return a, a.approveDonation(a.screeningForm)
		}
		return a, nil
	}

	if a.reasonForm != nil {
		a.reasonForm.HandleKey(key)
		switch {
		case a.reasonForm.IsCancelled():
			a.closeForms()
		case a.reasonForm.IsSubmitted():
			if !a.reasonInput.Validate() {
				a.reasonForm.SetError("A reason is required")
				return a, nil
			}
			return a, a.reject(a.reasonTarget, a.reasonInput.Value())
		}
		return a, nil
	}

	a.showForm = false
	return a, nil
}

// handleSearchKeys handles key presses in search mode.
func (a *App) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "esc":
		a.searchMode = false
		a.searchInput = ""
		a.registryView.SetSearch("")
		return a, a.loadDonors()
	case "enter":
		a.searchMode = false
		a.registryView.SetSearch(a.searchInput)
		return a, a.loadDonors()
	case "backspace":
		if len(a.searchInput) > 0 {
			a.searchInput = a.searchInput[:len(a.searchInput)-1]
		}
	default:
		if len(key) == 1 {
			a.searchInput += key
		}
	}

	return a, nil
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "Initializing..."
	}

	if a.quitting {
		return a.theme.Title.Render(a.config.Bank.Name + " console shutting down...")
	}

	var b strings.Builder

	b.WriteString(a.renderHeader())
	b.WriteString("\n")

	b.WriteString(a.renderAlertBar())
	b.WriteString("\n")

	contentHeight := ContentHeight(a.height, chromeLines)
	if a.showConfirm {
		b.WriteString(a.renderConfirmDialog(contentHeight))
	} else {
		b.WriteString(a.renderContent(contentHeight))
	}

	b.WriteString("\n")
	b.WriteString(a.renderFooter())

	return b.String()
}

// renderHeader renders the top header bar, compacting on narrow terminals.
func (a *App) renderHeader() string {
	var title, info string
	if GetBreakpoint(a.width) == BreakpointNarrow {
		title = fmt.Sprintf("BBOC v%s", Version)
		info = a.config.Bank.Code
	} else {
		title = fmt.Sprintf("BLOOD BANK OPERATIONS CONSOLE v%s", Version)
		info = a.config.Bank.Name
		if s := a.dashboard.summary; s != nil {
			info += fmt.Sprintf(" | AVAIL: %d ml", s.TotalAvailable)
		}
	}

	spacing := a.width - lipgloss.Width(title) - lipgloss.Width(info) - 2
	if spacing < 1 {
		spacing = 1
	}

	header := a.theme.Header.Render(title) +
		strings.Repeat(" ", spacing) +
		a.theme.Header.Render(info)

	return header + "\n" + a.theme.DoubleRule(a.width)
}

// renderAlertBar renders the clock and the current alert. Console notices
// rotate; without any, the most pressing stock condition is shown.
func (a *App) renderAlertBar() string {
	now := a.clock.Now()
	timeStr := now.Format(a.config.Display.DateFormat + " " + a.config.Display.TimeFormat)

	var alertText string
	switch {
	case len(a.alerts) > 0:
		alert := a.alerts[a.alertIndex%len(a.alerts)]
		alertText = a.theme.Notice(alert.Level, alert.Message)
	case a.dashboard.summary != nil && len(a.dashboard.summary.CriticalTypes) > 0:
		alertText = a.theme.Status.Critical.Render("CRITICAL STOCK: " + joinTypes(a.dashboard.summary.CriticalTypes))
	case a.dashboard.summary != nil && a.dashboard.summary.ActiveAlerts > 0:
		alertText = a.theme.Status.Low.Render(fmt.Sprintf("%d active inventory alerts", a.dashboard.summary.ActiveAlerts))
	default:
		alertText = a.theme.Status.Normal.Render("Inventory nominal")
	}

	return a.theme.Value.Render(timeStr) + a.theme.StatusDivider.Render() + alertText
}

func (a *App) contentWidth() int {
	return ContentWidth(a.width, 0, MaxContentWidth)
}

// renderContent renders the main content area based on current module.
func (a *App) renderContent(height int) string {
	content := a.getModuleContent()

	style := lipgloss.NewStyle().
		Width(a.width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Top)

	contentStyle := lipgloss.NewStyle().
		Width(a.contentWidth())

	return style.Render(contentStyle.Render(content))
}

// getModuleContent returns the content for the current module.
func (a *App) getModuleContent() string {
	width := a.contentWidth()
	height := ContentHeight(a.height, chromeLines)

	if a.showForm {
		switch {
		case a.screeningForm != nil:
			return a.screeningForm.RenderResponsive(width)
		case a.reasonForm != nil:
			return a.reasonForm.RenderResponsive(width)
		}
	}

	switch a.currentModule {
	case ModuleDashboard:
		return a.renderDashboard()
	case ModuleInventory:
		if a.showDetail {
			return a.ledgerView.RenderDetail(a.ledgerView.SelectedLedger(), width)
		}
		return a.ledgerView.Render(width, height)
	case ModuleRequests:
		if a.showDetail {
			return a.queueView.RenderDetail(a.queueView.SelectedRequest(), width)
		}
		return a.queueView.Render(width, height)
	case ModuleDonations:
		if a.showDetail {
			return a.reviewView.RenderDetail(a.reviewView.SelectedDonation(), width)
		}
		return a.reviewView.Render(width, height)
	case ModuleAlerts:
		if a.showDetail {
			return a.alertsView.RenderDetail(a.alertsView.SelectedAlert(), width)
		}
		return a.alertsView.Render(width, height)
	case ModuleDonors:
		if a.showDetail {
			return a.registryView.RenderDetail(a.donorDetail, width)
		}
		var searchBar string
		if a.searchMode {
			searchBar = a.theme.Label.Render("SEARCH: ") +
				a.theme.Accent.Render(a.searchInput) +
				a.theme.Accent.Render("_") + "\n\n"
		}
		return searchBar + a.registryView.Render(width, height)
	case ModuleHelp:
		return a.renderHelp()
	}
	return ""
}

// renderDashboard renders the stock overview with request, donation and
// housekeeping panels.
func (a *App) renderDashboard() string {
	width := a.contentWidth()
	narrow := GetBreakpoint(width) == BreakpointNarrow

	var b strings.Builder
	b.WriteString(a.theme.Title.Render("═══ BLOOD BANK STATUS ═══"))
	b.WriteString("\n\n")

	panelWidth := width
	if !narrow {
		panelWidth = width/2 - 1
	}

	stock := a.theme.Panel("STOCK LEVELS", a.renderStockLevels(panelWidth-4), panelWidth)
	requests := a.theme.Panel("REQUESTS", a.renderRequestCounts(), panelWidth)
	donations := a.theme.Panel("DONATIONS", a.renderDonationCounts(), panelWidth)
	housekeeping := a.theme.Panel("HOUSEKEEPING", a.renderHousekeeping(), panelWidth)

	if narrow {
		b.WriteString(stock + "\n" + requests + "\n" + donations + "\n" + housekeeping)
		return b.String()
	}

	b.WriteString(SideBySide(stock, requests+"\n"+donations, width, 2))
	b.WriteString("\n")
	b.WriteString(housekeeping)
	return b.String()
}

func (a *App) renderStockLevels(width int) string {
	if len(a.dashboard.ledgers) == 0 {
		return a.theme.Muted.Render("No ledgers loaded")
	}

	barWidth := width - 22
	if barWidth < 6 {
		barWidth = 6
	}

	var lines []string
	for _, l := range a.dashboard.ledgers {
		lines = append(lines, a.theme.StockRow(l, barWidth))
	}

	if s := a.dashboard.summary; s != nil {
		lines = append(lines, "",
			fmt.Sprintf("Available %d  Reserved %d  Expired %d", s.TotalAvailable, s.TotalReserved, s.TotalExpired))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderRequestCounts() string {
	if !a.dashboard.loaded {
		return a.theme.Muted.Render("Loading...")
	}
	c := a.dashboard.requests
	return strings.Join([]string{
		fmt.Sprintf("Pending:   %d", c[models.RequestStatusPending]),
		fmt.Sprintf("Approved:  %d", c[models.RequestStatusApproved]),
		fmt.Sprintf("Partial:   %d", c[models.RequestStatusPartiallyFulfilled]),
		fmt.Sprintf("Fulfilled: %d", c[models.RequestStatusFulfilled]),
	}, "\n")
}

func (a *App) renderDonationCounts() string {
	if !a.dashboard.loaded {
		return a.theme.Muted.Render("Loading...")
	}
	c := a.dashboard.donations
	return strings.Join([]string{
		fmt.Sprintf("Pending:   %d", c[models.DonationStatusPending]),
		fmt.Sprintf("Approved:  %d", c[models.DonationStatusApproved]),
		fmt.Sprintf("Collected: %d", c[models.DonationStatusCollected]),
		fmt.Sprintf("Expired:   %d", c[models.DonationStatusExpired]),
	}, "\n")
}

func (a *App) renderHousekeeping() string {
	if a.svc.Sweeper == nil {
		return a.theme.Muted.Render("Sweeper disabled")
	}
	r, ok := a.svc.Sweeper.Last()
	if !ok {
		return a.theme.Muted.Render("No sweep has run yet")
	}

	line := fmt.Sprintf("Last sweep %s: %d donations expired, %d requests expired, %d reprioritized, %d alerts",
		util.RelativeTimeString(r.StartedAt, a.clock.Now()),
		r.ExpiredDonations, r.ExpiredRequests, r.Reprioritized, r.AlertsRaised)
	if r.Err != nil {
		return line + "\n" + a.theme.Error.Render(r.Err.Error())
	}
	return line
}

// renderHelp renders the help screen.
func (a *App) renderHelp() string {
	var b strings.Builder

	b.WriteString(a.theme.Title.Render("═══ HELP ═══"))
	b.WriteString("\n\n")

	b.WriteString(a.theme.Subtitle.Render("NAVIGATION"))
	b.WriteString("\n\n")

	helpLine := func(key, help string) {
		b.WriteString(a.theme.Primary.Render(fmt.Sprintf("    %-8s  %s", key, help)))
		b.WriteString("\n")
	}
	for _, mk := range a.keys.Modules {
		helpLine(strings.ToUpper(mk.Label()), mk.Help)
	}
	helpLine(strings.ToUpper(a.keys.Quit.Label()), a.keys.Quit.Help)

	b.WriteString("\n")
	b.WriteString(a.theme.Subtitle.Render("ACTIONS"))
	b.WriteString("\n\n")

	for _, binding := range a.keys.ActionHelp() {
		helpLine(binding.Label(), binding.Help)
	}

	b.WriteString("\n")
	b.WriteString(a.theme.Muted.Render("Press Esc to return"))

	return b.String()
}

// renderConfirmDialog renders the quit confirmation dialog.
func (a *App) renderConfirmDialog(height int) string {
	dialog := a.theme.Box.Render(
		a.theme.Title.Render("CONFIRM EXIT") + "\n\n" +
			a.theme.Base.Render("Are you sure you want to exit?") + "\n\n" +
			a.theme.Label.Render("[Y]es  [N]o"),
	)

	style := lipgloss.NewStyle().
		Width(a.width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center)

	return style.Render(dialog)
}

// renderFooter renders the bottom status bar.
func (a *App) renderFooter() string {
	help := a.keys.StatusBarHelp(GetBreakpoint(a.width) == BreakpointNarrow)
	return a.theme.Rule(a.width) + "\n" + a.theme.Footer.Render(help)
}

// AddAlert adds a new alert to the display.
func (a *App) AddAlert(level AlertLevel, message string) {
	a.alerts = append([]Alert{{
		Level:   level,
		Message: message,
		Time:    a.clock.Now(),
	}}, a.alerts...)
	a.alertIndex = 0

	// Keep only last 10 alerts
	if len(a.alerts) > 10 {
		a.alerts = a.alerts[:10]
	}
}

// ClearAlerts removes all alerts.
func (a *App) ClearAlerts() {
	a.alerts = []Alert{}
	a.alertIndex = 0
}

func joinTypes(types []models.BloodType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// Run starts the TUI application.
func Run(ctx context.Context, svc Services, cfg *config.Config, clock util.Clock) error {
	app := New(svc, cfg, clock)

	p := tea.NewProgram(app, tea.WithAltScreen())

	// Handle context cancellation
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	return err
}
