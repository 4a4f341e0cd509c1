package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/services/sweeper"
	donationviews "github.com/bloodbank/bloodbank/internal/tui/views/donations"
	"github.com/bloodbank/bloodbank/internal/util"
	"golang.org/x/sync/errgroup"
)

type dashboardMsg struct {
	data dashboardData
	err  error
}

type ledgersLoadedMsg struct {
	err error
}

type requestsLoadedMsg struct {
	err error
}

type donationsLoadedMsg struct {
	err error
}

type alertsLoadedMsg struct {
	err error
}

type donorsLoadedMsg struct {
	err error
}

type donorDetailMsg struct {
	donor *models.Donor
	err   error
}

// actionMsg reports the outcome of an operator action.
type actionMsg struct {
	text string
	err  error
}

// screeningResultMsg reports a donation approval. A failure keeps the
// screening form open so the operator can correct it.
type screeningResultMsg struct {
	text string
	err  error
}

type sweepMsg struct {
	report sweeper.Report
}

// loadDashboard fetches the summary, ledgers and status counts.
func (a *App) loadDashboard() tea.Cmd {
	return func() tea.Msg {
		data := dashboardData{loaded: true}

		g, ctx := errgroup.WithContext(context.Background())
		g.Go(func() error {
			var err error
			data.summary, err = a.svc.Inventory.Summary(ctx)
			return err
		})
		g.Go(func() error {
			var err error
			data.ledgers, err = a.svc.Inventory.List(ctx)
			return err
		})
		g.Go(func() error {
			var err error
			data.requests, err = a.svc.Requests.CountByStatus(ctx)
			return err
		})
		g.Go(func() error {
			var err error
			data.donations, err = a.svc.Donations.CountByStatus(ctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return dashboardMsg{err: err}
		}
		return dashboardMsg{data: data}
	}
}

// reloadCurrent reloads the data behind the current module.
func (a *App) reloadCurrent() tea.Cmd {
	switch a.currentModule {
	case ModuleDashboard:
		return a.loadDashboard()
	case ModuleInventory:
		return a.loadLedgers()
	case ModuleRequests:
		return a.loadRequests()
	case ModuleDonations:
		return a.loadDonations()
	case ModuleAlerts:
		return a.loadAlerts()
	case ModuleDonors:
		return a.loadDonors()
	}
	return nil
}

func (a *App) loadLedgers() tea.Cmd {
	return func() tea.Msg {
		return ledgersLoadedMsg{err: a.ledgerView.Load(context.Background())}
	}
}

func (a *App) loadRequests() tea.Cmd {
	return func() tea.Msg {
		return requestsLoadedMsg{err: a.queueView.Load(context.Background())}
	}
}

func (a *App) loadDonations() tea.Cmd {
	return func() tea.Msg {
		return donationsLoadedMsg{err: a.reviewView.Load(context.Background())}
	}
}

func (a *App) loadAlerts() tea.Cmd {
	return func() tea.Msg {
		return alertsLoadedMsg{err: a.alertsView.Load(context.Background())}
	}
}

func (a *App) loadDonors() tea.Cmd {
	return func() tea.Msg {
		return donorsLoadedMsg{err: a.registryView.Load(context.Background())}
	}
}

// loadDonorDetail fetches a fresh donor record for the detail view.
func (a *App) loadDonorDetail(id string) tea.Cmd {
	return func() tea.Msg {
		donor, _, err := a.svc.Donors.CheckEligibility(context.Background(), id)
		return donorDetailMsg{donor: donor, err: err}
	}
}

func (a *App) deactivateDonor(id string) tea.Cmd {
	return func() tea.Msg {
		err := a.svc.Donors.Deactivate(context.Background(), id)
		return actionMsg{text: "Donor " + util.ShortID(id) + " deactivated", err: err}
	}
}

func (a *App) expireLedger(bt models.BloodType) tea.Cmd {
	return func() tea.Msg {
		n, err := a.svc.Inventory.ExpireStaleDonations(context.Background(), bt)
		return actionMsg{text: fmt.Sprintf("%s: %d ml expired", bt, n), err: err}
	}
}

func (a *App) approveRequest(id string) tea.Cmd {
	return func() tea.Msg {
		req, err := a.svc.Requests.Approve(context.Background(), id, operator)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{text: fmt.Sprintf("Request %s approved (priority %d)", util.ShortID(req.ID), req.Priority)}
	}
}

func (a *App) cancelRequest(id string) tea.Cmd {
	return func() tea.Msg {
		err := a.svc.Requests.Cancel(context.Background(), id)
		return actionMsg{text: "Request " + util.ShortID(id) + " cancelled", err: err}
	}
}

// fulfillRequest assigns the best candidate donation, the one expiring
// soonest, to the request.
func (a *App) fulfillRequest(req *models.BloodRequest) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()

		candidates, err := a.svc.Fulfillment.Candidates(ctx, req.ID)
		if err != nil {
			return actionMsg{err: err}
		}
		if len(candidates) == 0 {
			return actionMsg{err: fmt.Errorf("%w: no compatible donation available for %s",
				models.ErrInsufficientStock, req.BloodType)}
		}

		result, err := a.svc.Fulfillment.AssignDonation(ctx, req.ID, candidates[0].ID, req.Remaining())
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{text: fmt.Sprintf("Assigned %d units of %s to request %s (%s)",
			result.Assigned, result.Donation.BloodType, util.ShortID(req.ID), result.Request.Status)}
	}
}

// reserveForRequest holds the units the request still needs on the ledger
// of its own blood type.
func (a *App) reserveForRequest(req *models.BloodRequest) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()

		ledger, err := a.svc.Inventory.Get(ctx, req.BloodType)
		if err != nil {
			return actionMsg{err: err}
		}
		qty := req.Remaining() - ledger.ReservedFor(req.ID)
		if qty <= 0 {
			return actionMsg{text: "Request " + util.ShortID(req.ID) + " is already fully reserved"}
		}

		if _, err := a.svc.Fulfillment.ReserveForRequest(ctx, req.ID, req.BloodType, qty); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{text: fmt.Sprintf("Reserved %d units of %s for request %s", qty, req.BloodType, util.ShortID(req.ID))}
	}
}

func (a *App) reject(target reasonTarget, reason string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var err error
		switch target.kind {
		case "request":
			_, err = a.svc.Requests.Reject(ctx, target.id, operator, reason)
		case "donation":
			_, err = a.svc.Donations.Reject(ctx, target.id, operator, reason)
		default:
			err = fmt.Errorf("unknown rejection target %q", target.kind)
		}
		return actionMsg{text: fmt.Sprintf("%s %s rejected", target.kind, util.ShortID(target.id)), err: err}
	}
}

func (a *App) approveDonation(form *donationviews.ScreeningForm) tea.Cmd {
	return func() tea.Msg {
		screening, err := form.GetData(a.clock.Now())
		if err != nil {
			return screeningResultMsg{err: err}
		}
		d, err := a.svc.Donations.Approve(context.Background(), form.Donation().ID, operator, screening)
		if err != nil {
			return screeningResultMsg{err: err}
		}
		return screeningResultMsg{text: fmt.Sprintf("Donation %s approved: %d ml of %s added to stock",
			util.ShortID(d.ID), d.Quantity, d.BloodType)}
	}
}

func (a *App) runSweep() tea.Cmd {
	return func() tea.Msg {
		if a.svc.Sweeper == nil {
			return actionMsg{err: errors.New("sweeper is disabled")}
		}
		return sweepMsg{report: a.svc.Sweeper.RunOnce(context.Background())}
	}
}
