// Package metrics exposes Prometheus instrumentation for the blood bank.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bloodbank/bloodbank/internal/models"
)

// Metrics holds the stock gauges and operation counters. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	AvailableUnits *prometheus.GaugeVec
	ReservedUnits  *prometheus.GaugeVec
	ExpiredUnits   *prometheus.GaugeVec
	StockPercent   *prometheus.GaugeVec

	LedgerOperations *prometheus.CounterVec
	LedgerRetries    prometheus.Counter
	AlertsRaised     *prometheus.CounterVec
	Assignments      prometheus.Counter
	AssignedUnits    prometheus.Counter
	Transitions      *prometheus.CounterVec
}

// New registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AvailableUnits: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bloodbank_available_units",
			Help: "Units available per blood type",
		}, []string{"blood_type"}),
		ReservedUnits: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bloodbank_reserved_units",
			Help: "Units reserved for requests per blood type",
		}, []string{"blood_type"}),
		ExpiredUnits: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bloodbank_expired_units",
			Help: "Expired units per blood type",
		}, []string{"blood_type"}),
		StockPercent: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bloodbank_stock_percentage",
			Help: "Available units as a percentage of capacity (may exceed 100)",
		}, []string{"blood_type"}),
		LedgerOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_ledger_operations_total",
			Help: "Ledger mutations by operation and outcome",
		}, []string{"operation", "outcome"}),
		LedgerRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "bloodbank_ledger_retries_total",
			Help: "Ledger transactions retried after a transient failure",
		}),
		AlertsRaised: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_alerts_raised_total",
			Help: "Inventory alerts raised by kind and severity",
		}, []string{"kind", "severity"}),
		Assignments: f.NewCounter(prometheus.CounterOpts{
			Name: "bloodbank_assignments_total",
			Help: "Donations assigned to requests",
		}),
		AssignedUnits: f.NewCounter(prometheus.CounterOpts{
			Name: "bloodbank_assigned_units_total",
			Help: "Units dispensed through assignments",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_state_transitions_total",
			Help: "Donation and request state transitions",
		}, []string{"entity", "status"}),
	}
}

// RegisterDropCounter exposes a running count of dropped notifications.
func (m *Metrics) RegisterDropCounter(reg prometheus.Registerer, dropped func() uint64) {
	if m == nil {
		return
	}
	promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
		Name: "bloodbank_notifications_dropped_total",
		Help: "Notifications dropped because the queue was full",
	}, func() float64 { return float64(dropped()) })
}

// ObserveLedger publishes a ledger's counters.
func (m *Metrics) ObserveLedger(l *models.InventoryLedger) {
	if m == nil || l == nil {
		return
	}
	bt := l.BloodType.String()
	m.AvailableUnits.WithLabelValues(bt).Set(float64(l.AvailableUnits))
	m.ReservedUnits.WithLabelValues(bt).Set(float64(l.ReservedUnits))
	m.ExpiredUnits.WithLabelValues(bt).Set(float64(l.ExpiredUnits))
	m.StockPercent.WithLabelValues(bt).Set(float64(l.StockPercentage()))
}

// LedgerOperation counts one ledger mutation.
func (m *Metrics) LedgerOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LedgerOperations.WithLabelValues(op, outcome).Inc()
}

// LedgerRetry counts one retried ledger transaction.
func (m *Metrics) LedgerRetry() {
	if m == nil {
		return
	}
	m.LedgerRetries.Inc()
}

// AlertRaised counts a newly raised alert.
func (m *Metrics) AlertRaised(a *models.InventoryAlert) {
	if m == nil || a == nil {
		return
	}
	m.AlertsRaised.WithLabelValues(string(a.Kind), string(a.Severity)).Inc()
}

// Assignment counts a completed donation assignment.
func (m *Metrics) Assignment(units int) {
	if m == nil {
		return
	}
	m.Assignments.Inc()
	m.AssignedUnits.Add(float64(units))
}

// Transition counts a state change of a donation or request.
func (m *Metrics) Transition(entity, status string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(entity, status).Inc()
}
