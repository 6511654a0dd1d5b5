// Package modelrouter implements the Router & Model Selector (spec
// §4.3): pure functions over (task text, tool tag, explicit hint,
// preferFast, rate-limit snapshot, auth snapshot) that classify task
// complexity and pick the cheapest model capable of handling it.
//
// Grounded on the teacher's pkg/agent.DynamicModelConfig (threshold-based
// model selection by estimated prompt size) generalized from a binary
// simple/complex split to the spec's four-way complexity classifier,
// and enriched with the regex-classifier-by-priority-order idea
// observed in the retrieval pack's model-family policy resolvers
// (auto-detect by substring match, defaults first, overrides last).
package modelrouter

import "github.com/relaywork/modelbroker/pkg/authchain"

// Complexity is the task classification outcome (spec §4.3 step 1).
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexityStandard Complexity = "standard"
	ComplexityComplex  Complexity = "complex"
	ComplexityCritical Complexity = "critical"
)

// Tier is a model's capability class: 1 = most capable, 3 = fastest/cheapest.
type Tier int

const (
	TierMostCapable Tier = 1
	TierStandard    Tier = 2
	TierFastest     Tier = 3
)

// Model is the immutable model descriptor (spec §3 "Model descriptor").
type Model struct {
	Name            string
	Tier            Tier
	InputPerMTok    float64
	OutputPerMTok   float64
	RequiresAuth    authchain.Variant // gated behind this credential variant; "" = any
	RequiresNonZero bool              // true if a zero Variant means "no restriction"
}

// PreferredTier maps a Complexity to the tier the router aims for
// (spec §4.3 step 2).
func PreferredTier(c Complexity, preferFast bool) Tier {
	if preferFast {
		return TierFastest
	}
	switch c {
	case ComplexityComplex, ComplexityCritical:
		return TierMostCapable
	case ComplexityStandard:
		return TierStandard
	default: // trivial
		return TierFastest
	}
}
