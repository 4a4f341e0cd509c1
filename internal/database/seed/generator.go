package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/bloodbank/bloodbank/internal/models"
	"github.com/bloodbank/bloodbank/internal/services/donations"
	"github.com/bloodbank/bloodbank/internal/services/donors"
	"github.com/bloodbank/bloodbank/internal/services/fulfillment"
	"github.com/bloodbank/bloodbank/internal/services/requests"
	"github.com/bloodbank/bloodbank/internal/util"
)

// Config configures the seed data generator.
type Config struct {
	Donors     int
	Requests   int
	RandomSeed int64
}

// DefaultConfig returns a default seed configuration.
func DefaultConfig() Config {
	return Config{
		Donors:     120,
		Requests:   30,
		RandomSeed: 1901, // Landsteiner's ABO paper
	}
}

// Services are the domain services seed data is written through, so every
// ledger stays consistent with the donations and requests behind it.
type Services struct {
	Donors      *donors.Service
	Donations   *donations.Service
	Requests    *requests.Service
	Fulfillment *fulfillment.Coordinator
}

// Summary counts what a run created.
type Summary struct {
	Donors             int
	Donations          int
	ApprovedDonations  int
	Requests           int
	ApprovedRequests   int
	Reservations       int
	Assignments        int
	SkippedByRuleCheck int
}

// Generator generates seed data.
type Generator struct {
	svc   Services
	cfg   Config
	clock util.Clock
	rng   *rand.Rand

	summary Summary
}

// NewGenerator creates a new seed data generator.
func NewGenerator(svc Services, cfg Config, clock util.Clock) *Generator {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &Generator{
		svc:   svc,
		cfg:   cfg,
		clock: clock,
		rng:   rand.New(rand.NewSource(cfg.RandomSeed)),
	}
}

// Generate creates donors with a donation history, then requests in every
// state from pending to fulfilled.
func (g *Generator) Generate(ctx context.Context) (Summary, error) {
	slog.Info("starting seed data generation",
		"donors", g.cfg.Donors,
		"requests", g.cfg.Requests,
	)

	if err := g.generateDonors(ctx); err != nil {
		return g.summary, fmt.Errorf("generating donors: %w", err)
	}
	if err := g.generateRequests(ctx); err != nil {
		return g.summary, fmt.Errorf("generating requests: %w", err)
	}

	slog.Info("seed data generation complete",
		"donors", g.summary.Donors,
		"donations", g.summary.Donations,
		"requests", g.summary.Requests,
		"assignments", g.summary.Assignments,
	)
	return g.summary, nil
}

func (g *Generator) generateDonors(ctx context.Context) error {
	now := g.clock.Now()

	for i := 0; i < g.cfg.Donors; i++ {
		given := GivenNamesA
		if g.rng.Intn(2) == 1 {
			given = GivenNamesB
		}
		first := given[g.rng.Intn(len(given))]
		last := Surnames[g.rng.Intn(len(Surnames))]

		age := 18 + g.rng.Intn(47)
		donor, err := g.svc.Donors.Register(ctx, donors.RegisterInput{
			FullName:    first + " " + last,
			Email:       fmt.Sprintf("donor%03d@example.org", i+1),
			Phone:       fmt.Sprintf("555%07d", g.rng.Intn(10_000_000)),
			BloodType:   g.randomBloodType(),
			DateOfBirth: now.AddDate(-age, 0, -g.rng.Intn(365)),
			WeightKg:    float64(50 + g.rng.Intn(50)),
		})
		if err != nil {
			return err
		}
		g.summary.Donors++

		// Roughly four in five donors have given blood recently.
		if g.rng.Intn(5) == 0 {
			continue
		}
		if err := g.generateDonation(ctx, donor, now.AddDate(0, 0, -g.rng.Intn(34))); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) generateDonation(ctx context.Context, donor *models.Donor, date time.Time) error {
	d, err := g.svc.Donations.Submit(ctx, donations.SubmitInput{
		DonorID:      donor.ID,
		BloodType:    donor.BloodType,
		DonationDate: date,
		Location:     CollectionSites[g.rng.Intn(len(CollectionSites))],
		Quantity:     models.MinDonationQuantity + 10*g.rng.Intn(16),
	})
	if err != nil {
		return g.skip("donation", err)
	}
	g.summary.Donations++

	switch roll := g.rng.Intn(20); {
	case roll < 3:
		return nil // left pending for review
	case roll == 3:
		_, err = g.svc.Donations.Reject(ctx, d.ID, "seed", "Low iron reported at interview")
		return err
	}

	screening := &models.MedicalScreening{
		Hemoglobin:    12.6 + float64(g.rng.Intn(35))/10,
		BloodPressure: models.BloodPressure{Systolic: 110 + g.rng.Intn(25), Diastolic: 70 + g.rng.Intn(15)},
		Temperature:   36.4 + float64(g.rng.Intn(6))/10,
		Pulse:         60 + g.rng.Intn(30),
		WeightKg:      donor.WeightKg,
		ScreenedBy:    "seed",
		ScreeningDate: date,
	}
	if _, err := g.svc.Donations.Approve(ctx, d.ID, "seed", screening); err != nil {
		return err
	}
	g.summary.ApprovedDonations++
	return nil
}

func (g *Generator) generateRequests(ctx context.Context) error {
	now := g.clock.Now()

	for i := 0; i < g.cfg.Requests; i++ {
		req, err := g.svc.Requests.Submit(ctx, requests.SubmitInput{
			RecipientID: fmt.Sprintf("recipient-%03d", i+1),
			BloodType:   g.randomBloodType(),
			Quantity:    1 + g.rng.Intn(4),
			Urgency:     g.randomUrgency(),
			RequiredBy:  now.Add(time.Duration(12+g.rng.Intn(20*24)) * time.Hour),
			Reason:      RequestReasons[g.rng.Intn(len(RequestReasons))],
			Hospital:    Hospitals[g.rng.Intn(len(Hospitals))],
		})
		if err != nil {
			return err
		}
		g.summary.Requests++

		if g.rng.Intn(3) == 0 {
			continue // awaiting approval
		}
		if _, err := g.svc.Requests.Approve(ctx, req.ID, "seed"); err != nil {
			return err
		}
		g.summary.ApprovedRequests++

		switch g.rng.Intn(3) {
		case 0:
			err = g.reserve(ctx, req)
		case 1:
			err = g.assign(ctx, req)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) reserve(ctx context.Context, req *models.BloodRequest) error {
	_, err := g.svc.Fulfillment.ReserveForRequest(ctx, req.ID, req.BloodType, req.Quantity)
	if err != nil {
		return g.skip("reservation", err)
	}
	g.summary.Reservations++
	return nil
}

func (g *Generator) assign(ctx context.Context, req *models.BloodRequest) error {
	candidates, err := g.svc.Fulfillment.Candidates(ctx, req.ID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	d := candidates[g.rng.Intn(len(candidates))]
	if _, err := g.svc.Fulfillment.AssignDonation(ctx, req.ID, d.ID, req.Quantity); err != nil {
		return g.skip("assignment", err)
	}
	g.summary.Assignments++
	return nil
}

// skip swallows business rule rejections, which random data runs into,
// and returns anything else.
func (g *Generator) skip(what string, err error) error {
	if fulfillment.IsRejection(err) || errors.Is(err, models.ErrDonorIneligible) {
		slog.Debug("seed step skipped", "step", what, "reason", err)
		g.summary.SkippedByRuleCheck++
		return nil
	}
	return err
}

func (g *Generator) randomBloodType() models.BloodType {
	total := 0
	for _, bt := range BloodTypeWeights {
		total += bt.Weight
	}

	r := g.rng.Intn(total)
	cumulative := 0
	for _, bt := range BloodTypeWeights {
		cumulative += bt.Weight
		if r < cumulative {
			return bt.Type
		}
	}

	return models.BloodTypeOPos
}

func (g *Generator) randomUrgency() models.Urgency {
	total := 0
	for _, u := range UrgencyWeights {
		total += u.Weight
	}

	r := g.rng.Intn(total)
	cumulative := 0
	for _, u := range UrgencyWeights {
		cumulative += u.Weight
		if r < cumulative {
			return u.Urgency
		}
	}

	return models.UrgencyMedium
}
