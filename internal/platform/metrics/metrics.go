package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the custody platform.
type Metrics struct {
	MintsTotal           prometheus.Counter
	BurnsTotal           prometheus.Counter
	DepositsTotal        prometheus.Counter
	WithdrawalsTotal     prometheus.Counter
	AllocationsExecuted  prometheus.Counter
	ReleaseRequestsTotal prometheus.Counter
	ReleasesTotal        prometheus.Counter
	ReturnsTotal         prometheus.Counter
	OracleConfirmations  prometheus.Counter
	EmergencyWithdrawals prometheus.Counter

	CurrentSupply    prometheus.Gauge
	CumulativeMinted prometheus.Gauge
	SystemPaused     prometheus.Gauge
}

// New creates all metrics on the default Prometheus registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on the given registerer. Tests pass a fresh
// registry so repeated setup never collides with the default one.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MintsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_ledger_mints_total",
			Help: "Total successful audit-ledger mints",
		}),
		BurnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_ledger_burns_total",
			Help: "Total successful audit-ledger burns",
		}),
		DepositsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_treasury_deposits_total",
			Help: "Total donor deposits accepted",
		}),
		WithdrawalsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_treasury_withdrawals_total",
			Help: "Total donor withdrawals completed",
		}),
		AllocationsExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_treasury_allocations_executed_total",
			Help: "Total allocation proposals executed at quorum",
		}),
		ReleaseRequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_escrow_release_requests_total",
			Help: "Total escrow release requests created",
		}),
		ReleasesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_escrow_releases_total",
			Help: "Total escrow transactions released at oracle consensus",
		}),
		ReturnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_escrow_returns_total",
			Help: "Total returns of unused funds to the treasury",
		}),
		OracleConfirmations: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_escrow_oracle_confirmations_total",
			Help: "Total oracle confirmations recorded",
		}),
		EmergencyWithdrawals: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodia_registry_emergency_withdrawals_total",
			Help: "Total emergency withdrawals executed",
		}),
		CurrentSupply: factory.NewGauge(prometheus.GaugeOpts{
			Name: "custodia_ledger_current_supply",
			Help: "Outstanding audit-ledger credit",
		}),
		CumulativeMinted: factory.NewGauge(prometheus.GaugeOpts{
			Name: "custodia_ledger_cumulative_minted",
			Help: "Lifetime audit-ledger credit ever minted",
		}),
		SystemPaused: factory.NewGauge(prometheus.GaugeOpts{
			Name: "custodia_system_paused",
			Help: "1 while the emergency pause is engaged",
		}),
	}
}
