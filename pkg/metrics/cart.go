package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeConfirmed = "confirmed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// CartMetrics tracks optimistic cart mutations and their resolution.
type CartMetrics struct {
	mutations *prometheus.CounterVec
	rollbacks *prometheus.CounterVec
	sessions  prometheus.Gauge
}

func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_mutations_total",
		Help: "Cart mutations by operation and outcome.",
	}, []string{"op", "outcome"})
	rollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_rollbacks_total",
		Help: "Optimistic cart patches reverted after an upstream failure.",
	}, []string{"op"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_active_sessions",
		Help: "Shopping sessions currently held in memory.",
	})
	reg.MustRegister(mutations, rollbacks, sessions)
	return &CartMetrics{mutations: mutations, rollbacks: rollbacks, sessions: sessions}
}

func (c *CartMetrics) Mutation(op, outcome string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
}

func (c *CartMetrics) Rollback(op string) {
	if c == nil || c.rollbacks == nil {
		return
	}
	c.rollbacks.WithLabelValues(normalizeLabel(op)).Inc()
}

func (c *CartMetrics) SetActiveSessions(n int) {
	if c == nil || c.sessions == nil {
		return
	}
	c.sessions.Set(float64(n))
}
