package ratelimit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// trackerMetrics holds the Prometheus collectors registered by
// WithPrometheus. Grounded on vjache-cie's use of
// github.com/prometheus/client_golang for runtime gauges/counters.
type trackerMetrics struct {
	available   *prometheus.GaugeVec
	tokensTotal *prometheus.CounterVec
	costTotal   *prometheus.CounterVec

	mu            sync.Mutex
	lastCostByKey map[string]float64 // last costUSD observed per model, so Record can push a Counter delta
}

func newTrackerMetrics(reg *prometheus.Registry) *trackerMetrics {
	m := &trackerMetrics{
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orchestrator_model_available",
			Help: "1 if the model is currently available for routing, 0 if in cooldown.",
		}, []string{"model"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_tokens_total",
			Help: "Cumulative input/output token units processed per model.",
		}, []string{"model", "direction"}),
		costTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_cost_usd_total",
			Help: "Cumulative accrued cost in USD per model.",
		}, []string{"model"}),
		lastCostByKey: make(map[string]float64),
	}
	reg.MustRegister(m.available, m.tokensTotal, m.costTotal)
	return m
}

// lastCost returns the last costUSD observed for model (0 if none yet).
func (m *trackerMetrics) lastCost(model string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCostByKey[model]
}

func (m *trackerMetrics) setLastCost(model string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCostByKey[model] = v
}
