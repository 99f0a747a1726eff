package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts swap outcomes for the /metrics endpoint.
type Metrics struct {
	Initiated       prometheus.Counter
	Settled         prometheus.Counter
	Cancelled       prometheus.Counter
	Failed          *prometheus.CounterVec
	WalletsRetained prometheus.Counter
}

// NewMetrics registers the swap counters on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Initiated: factory.NewCounter(prometheus.CounterOpts{
			Name: "swap_relay_intents_initiated_total",
			Help: "Swap intents created.",
		}),
		Settled: factory.NewCounter(prometheus.CounterOpts{
			Name: "swap_relay_intents_settled_total",
			Help: "Swap intents that completed swap and transfer.",
		}),
		Cancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "swap_relay_intents_cancelled_total",
			Help: "Swap intents declined by the user.",
		}),
		Failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "swap_relay_intents_failed_total",
			Help: "Swap intents that failed, by stage.",
		}, []string{"stage"}),
		WalletsRetained: factory.NewCounter(prometheus.CounterOpts{
			Name: "swap_relay_wallets_retained_total",
			Help: "Deposit wallets retained because they may hold funds.",
		}),
	}
}
