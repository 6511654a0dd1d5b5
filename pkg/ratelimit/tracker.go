// Package ratelimit implements the Rate-Limit & Cost Tracker (spec
// §4.2): per-model failure/cooldown bookkeeping plus a token/cost
// ledger, grounded on the teacher's pkg/llm/cost.go CostTracker
// (mutex-guarded map accumulation) generalized from "one process-wide
// cost total" to "per-model availability plus cost".
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultThreshold is the consecutive-failure count that marks a model
// unavailable (spec §3 "Rate-limit record").
const DefaultThreshold = 3

// DefaultCooldown is how long a model stays unavailable after tripping
// the threshold.
const DefaultCooldown = 60 * time.Second

// record is the mutable per-model bookkeeping entry.
type record struct {
	consecutiveFailures int
	lastFailure         time.Time

	inputUnits   int64
	outputUnits  int64
	requestCount int64
	costUSD      float64
}

// ModelStats is a point-in-time snapshot for one model.
type ModelStats struct {
	Model               string
	Available           bool
	ConsecutiveFailures int
	InputUnits          int64
	OutputUnits         int64
	RequestCount        int64
	CostUSD             float64
}

// Stats is the global snapshot returned by Tracker.Stats.
type Stats struct {
	Models          []ModelStats
	TotalInputUnits int64
	TotalOutput     int64
	TotalCostUSD    float64
}

// Pricing resolves a model's per-million-unit input/output price. A
// nil Pricing (or a model with no entry) means cost is never accrued
// for that model beyond zero, matching the teacher's GetPricing
// "unknown model → zero cost" behavior (pkg/llm/cost.go).
type Pricing interface {
	PriceFor(model string) (inputPerM, outputPerM float64, ok bool)
}

// Tracker implements spec §4.2. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	records   map[string]*record
	threshold int
	cooldown  time.Duration
	pricing   Pricing
	now       func() time.Time

	metrics *trackerMetrics // nil when no *prometheus.Registry was supplied
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(n int) Option { return func(t *Tracker) { t.threshold = n } }

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option { return func(t *Tracker) { t.cooldown = d } }

// WithPricing supplies a Pricing source for cost accounting.
func WithPricing(p Pricing) Option { return func(t *Tracker) { t.pricing = p } }

// ApplyLimits updates the threshold and cooldown used for future
// failures, without disturbing any record already in flight. Used to
// pick up a reloaded on-disk configuration (orchconfig.Watch) without
// rebuilding the tracker and losing its accumulated stats.
func (t *Tracker) ApplyLimits(threshold int, cooldown time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threshold = threshold
	t.cooldown = cooldown
}

// WithPrometheus registers the tracker's gauges/counters on reg. A nil
// reg (the default, when the option is omitted) disables collection,
// matching the teacher's "nil dependency means no-op" convention
// (agent.NoOpHookRunner, agent.NoOpCompactor).
func WithPrometheus(reg *prometheus.Registry) Option {
	return func(t *Tracker) {
		if reg == nil {
			return
		}
		t.metrics = newTrackerMetrics(reg)
	}
}

// New creates a Tracker with the given options.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		records:   make(map[string]*record),
		threshold: DefaultThreshold,
		cooldown:  DefaultCooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) recordFor(model string) *record {
	r, ok := t.records[model]
	if !ok {
		r = &record{}
		t.records[model] = r
	}
	return r
}

// Available reports whether model is currently usable. When the
// cooldown window has elapsed since the last failure, the counter is
// reset to zero before answering (spec §4.2 "available(model)").
func (t *Tracker) Available(model string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.recordFor(model)

	if r.consecutiveFailures >= t.threshold {
		if t.now().Sub(r.lastFailure) >= t.cooldown {
			r.consecutiveFailures = 0
			return true
		}
		return false
	}
	return true
}

// RecordFailure increments the consecutive-failure counter for model.
func (t *Tracker) RecordFailure(model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.recordFor(model)
	r.consecutiveFailures++
	r.lastFailure = t.now()
	t.observeAvailability(model, r)
}

// RecordSuccess decrements the consecutive-failure counter, floored at
// zero.
func (t *Tracker) RecordSuccess(model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.recordFor(model)
	if r.consecutiveFailures > 0 {
		r.consecutiveFailures--
	}
	t.observeAvailability(model, r)
}

// Record accumulates token usage into the ledger. isFreeAuth is
// supplied by the caller (derived from the active authchain.Credential
// at call time) — cost contribution is zero when the active auth is
// free-tier (spec §4.2 "record(model, inputUnits, outputUnits)").
func (t *Tracker) Record(model string, inputUnits, outputUnits int64, isFreeAuth bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.recordFor(model)
	r.inputUnits += inputUnits
	r.outputUnits += outputUnits
	r.requestCount++

	if !isFreeAuth && t.pricing != nil {
		if inPrice, outPrice, ok := t.pricing.PriceFor(model); ok {
			r.costUSD += float64(inputUnits)*inPrice/1_000_000 + float64(outputUnits)*outPrice/1_000_000
		}
	}

	if t.metrics != nil {
		t.metrics.tokensTotal.WithLabelValues(model, "input").Add(float64(inputUnits))
		t.metrics.tokensTotal.WithLabelValues(model, "output").Add(float64(outputUnits))
		t.metrics.costTotal.WithLabelValues(model).Add(r.costUSD - t.metrics.lastCost(model))
		t.metrics.setLastCost(model, r.costUSD)
	}
}

func (t *Tracker) observeAvailability(model string, r *record) {
	if t.metrics == nil {
		return
	}
	available := 1.0
	if r.consecutiveFailures >= t.threshold && t.now().Sub(r.lastFailure) < t.cooldown {
		available = 0.0
	}
	t.metrics.available.WithLabelValues(model).Set(available)
}

// Stats returns a snapshot with per-model breakdown and global totals.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := Stats{Models: make([]ModelStats, 0, len(t.records))}
	for model, r := range t.records {
		available := r.consecutiveFailures < t.threshold || t.now().Sub(r.lastFailure) >= t.cooldown
		out.Models = append(out.Models, ModelStats{
			Model:               model,
			Available:           available,
			ConsecutiveFailures: r.consecutiveFailures,
			InputUnits:          r.inputUnits,
			OutputUnits:         r.outputUnits,
			RequestCount:        r.requestCount,
			CostUSD:             r.costUSD,
		})
		out.TotalInputUnits += r.inputUnits
		out.TotalOutput += r.outputUnits
		out.TotalCostUSD += r.costUSD
	}
	return out
}
