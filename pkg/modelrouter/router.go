package modelrouter

import (
	"sort"

	"github.com/relaywork/modelbroker/pkg/authchain"
)

// Availability answers whether model is usable right now (backed by
// ratelimit.Tracker.Available, injected here as a function so this
// package stays dependency-free of ratelimit per the dependency order
// in spec §2: "Router depends on Rate-Limit Tracker and Auth").
type Availability func(model string) bool

// AuthSatisfied answers whether the active credential can authorize a
// call to a model with the given RequiresAuth requirement.
type AuthSatisfied func(requires authchain.Variant) bool

// Registry is the set of known models, keyed by name.
type Registry struct {
	models map[string]Model
}

// NewRegistry builds a Registry from a model list.
func NewRegistry(models []Model) *Registry {
	r := &Registry{models: make(map[string]Model, len(models))}
	for _, m := range models {
		r.models[m.Name] = m
	}
	return r
}

// Lookup returns a model by name.
func (r *Registry) Lookup(name string) (Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// All returns every known model, unordered.
func (r *Registry) All() []Model {
	out := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	return out
}

// Request is the router's input (spec §3 "Request", the fields the
// router actually consults).
type Request struct {
	TaskText      string
	ToolTag       string
	ExplicitModel string // optional model hint; "" = none
	PreferFast    bool
}

// Decision is the router's pure output.
type Decision struct {
	Model      string
	Complexity Complexity
	Reason     string // "explicit" | "scored" | "reliable_default"
}

// Router selects a model deterministically from (task, hint,
// preferFast, rate-limit snapshot, auth snapshot) — same inputs always
// produce the same output (spec §4.3 "Tie-breaks").
type Router struct {
	registry       *Registry
	available      Availability
	authSatisfied  AuthSatisfied
	reliableDefault string
}

// New builds a Router. reliableDefault is the "designated reliable
// default model" used when every candidate is unavailable (spec §4.3
// step 5); it must name a model present in registry.
func New(registry *Registry, available Availability, authSatisfied AuthSatisfied, reliableDefault string) *Router {
	return &Router{
		registry:        registry,
		available:       available,
		authSatisfied:   authSatisfied,
		reliableDefault: reliableDefault,
	}
}

// Select runs the deterministic algorithm in spec §4.3.
func (r *Router) Select(req Request) Decision {
	complexity := Classify(req.TaskText, req.ToolTag)
	preferredTier := PreferredTier(complexity, req.PreferFast)

	if req.ExplicitModel != "" {
		if m, ok := r.registry.Lookup(req.ExplicitModel); ok {
			if r.authSatisfied(m.RequiresAuth) && r.available(m.Name) {
				return Decision{Model: m.Name, Complexity: complexity, Reason: "explicit"}
			}
		}
	}

	candidates := r.registry.All()
	sort.Slice(candidates, func(i, j int) bool {
		di := tierDistance(candidates[i].Tier, preferredTier)
		dj := tierDistance(candidates[j].Tier, preferredTier)
		if di != dj {
			return di < dj
		}
		// Tie-break: more capable (lower numeric tier) wins.
		if candidates[i].Tier != candidates[j].Tier {
			return candidates[i].Tier < candidates[j].Tier
		}
		return candidates[i].Name < candidates[j].Name // stable, deterministic
	})

	for _, m := range candidates {
		if r.authSatisfied(m.RequiresAuth) && r.available(m.Name) {
			return Decision{Model: m.Name, Complexity: complexity, Reason: "scored"}
		}
	}

	return Decision{Model: r.reliableDefault, Complexity: complexity, Reason: "reliable_default"}
}

func tierDistance(a, b Tier) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}
