package modelrouter

import (
	"testing"

	"github.com/relaywork/modelbroker/pkg/authchain"
)

func testRegistry() *Registry {
	return NewRegistry([]Model{
		{Name: "flash", Tier: TierFastest, InputPerMTok: 0.1, OutputPerMTok: 0.4},
		{Name: "sonnet", Tier: TierStandard, InputPerMTok: 3, OutputPerMTok: 15},
		{Name: "opus-preview", Tier: TierMostCapable, InputPerMTok: 15, OutputPerMTok: 75, RequiresAuth: authchain.VariantOAuth},
	})
}

func allAvailable(string) bool                { return true }
func allAuthSatisfied(authchain.Variant) bool { return true }

func TestRouter_PicksFlashForTrivialRead(t *testing.T) {
	r := New(testRegistry(), allAvailable, allAuthSatisfied, "sonnet")
	d := r.Select(Request{ToolTag: "ask_gemini", TaskText: "what is 2+2"})
	if d.Model != "flash" {
		t.Fatalf("expected flash, got %s", d.Model)
	}
}

func TestRouter_FallsBackUnderRateLimit(t *testing.T) {
	unavailable := func(model string) bool { return model != "opus-preview" }
	r := New(testRegistry(), unavailable, allAuthSatisfied, "sonnet")

	d := r.Select(Request{
		ToolTag:       "draft_code_implementation",
		TaskText:      "implement a cache",
		ExplicitModel: "opus-preview",
	})
	if d.Model == "opus-preview" {
		t.Fatalf("expected fallback away from unavailable explicit hint")
	}
	if d.Model != "sonnet" {
		t.Fatalf("expected next-most-capable available model (sonnet), got %s", d.Model)
	}
}

func TestRouter_ExplicitHintHonoredWhenHealthy(t *testing.T) {
	r := New(testRegistry(), allAvailable, allAuthSatisfied, "sonnet")
	d := r.Select(Request{TaskText: "anything", ExplicitModel: "sonnet"})
	if d.Model != "sonnet" || d.Reason != "explicit" {
		t.Fatalf("expected explicit sonnet, got %+v", d)
	}
}

func TestRouter_AuthGateExcludesCandidate(t *testing.T) {
	noOAuth := func(v authchain.Variant) bool { return v != authchain.VariantOAuth }
	r := New(testRegistry(), allAvailable, noOAuth, "sonnet")
	d := r.Select(Request{TaskText: "implement a distributed scheduler with race condition hazards"})
	if d.Model == "opus-preview" {
		t.Fatalf("opus-preview requires oauth which is not satisfied; must not be selected")
	}
}

func TestRouter_ReliableDefaultWhenAllUnavailable(t *testing.T) {
	noneAvailable := func(string) bool { return false }
	r := New(testRegistry(), noneAvailable, allAuthSatisfied, "sonnet")
	d := r.Select(Request{TaskText: "anything"})
	if d.Model != "sonnet" || d.Reason != "reliable_default" {
		t.Fatalf("expected reliable default fallback, got %+v", d)
	}
}

func TestRouter_IsPureFunction(t *testing.T) {
	r := New(testRegistry(), allAvailable, allAuthSatisfied, "sonnet")
	req := Request{TaskText: "refactor the auth module", ToolTag: ""}
	d1 := r.Select(req)
	d2 := r.Select(req)
	if d1 != d2 {
		t.Fatalf("expected identical decisions for identical inputs: %+v vs %+v", d1, d2)
	}
}

func TestClassify_ToolTagTakesPriorityOverText(t *testing.T) {
	c := Classify("implement a distributed cache", "ask_gemini")
	if c != ComplexityTrivial {
		t.Fatalf("expected tool tag to win, got %s", c)
	}
}

func TestClassify_ComplexBeforeSimple(t *testing.T) {
	c := Classify("refactor this module, what is 2+2 along the way", "")
	if c != ComplexityComplex {
		t.Fatalf("expected complex indicators to take priority, got %s", c)
	}
}

func TestPreferredTier_PreferFastOverridesComplexity(t *testing.T) {
	if got := PreferredTier(ComplexityComplex, true); got != TierFastest {
		t.Fatalf("expected preferFast to force tier 3, got %d", got)
	}
}
