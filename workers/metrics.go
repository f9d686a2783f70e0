package workers

import "github.com/prometheus/client_golang/prometheus"

// Poll outcomes recorded per game.
const (
	OutcomeAdvanced  = "advanced"
	OutcomeUnchanged = "unchanged"
	OutcomeTransient = "transient"
	OutcomeFailed    = "failed"
)

// Metrics of the reconciliation loop.
type Metrics struct {
	Cycles        prometheus.Counter
	Polls         *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	StaleSwept    prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tourney_reconcile_cycles_total",
			Help: "Reconciliation cycles run by the poller.",
		}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourney_game_polls_total",
			Help: "Per-game reconcile calls by outcome.",
		}, []string{"outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourney_game_transitions_total",
			Help: "Game state transitions observed through the provider.",
		}, []string{"to"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tourney_reconcile_cycle_seconds",
			Help:    "Wall time of one reconciliation cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		StaleSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tourney_stale_games_swept_total",
			Help: "Open games force-finished by the stale sweep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Cycles, m.Polls, m.Transitions, m.CycleDuration, m.StaleSwept)
	}
	return m
}
