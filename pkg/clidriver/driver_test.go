package clidriver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/relaywork/modelbroker/pkg/authchain"
	"github.com/relaywork/modelbroker/pkg/llm"
	"github.com/relaywork/modelbroker/pkg/modelrouter"
	"github.com/relaywork/modelbroker/pkg/ratelimit"
)

// writeFakeWorker writes an executable shell script standing in for the
// worker CLI, emitting the given newline-delimited JSONL body on stdout
// and the given stderr text, then exiting with the given code.
func writeFakeWorker(t *testing.T, body, stderr string, exitCode int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakeworker.sh")
	script := "#!/bin/sh\ncat >/dev/null\n"
	if body != "" {
		script += "cat <<'EOF'\n" + body + "\nEOF\n"
	}
	if stderr != "" {
		script += "echo '" + stderr + "' 1>&2\n"
	}
	script += "exit " + strconv.Itoa(exitCode) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake worker: %v", err)
	}
	return path
}

func testDriver(t *testing.T, workerPath string) (*Driver, *ratelimit.Tracker, *authchain.Chain) {
	t.Helper()
	registry := modelrouter.NewRegistry([]modelrouter.Model{
		{Name: "flash", Tier: modelrouter.TierFastest},
		{Name: "sonnet", Tier: modelrouter.TierStandard},
	})
	tracker := ratelimit.New(ratelimit.WithThreshold(2))
	chain := authchain.New([]*authchain.Credential{
		{Variant: authchain.VariantOAuth, Label: "primary", Secret: "x"},
	})
	router := modelrouter.New(registry, tracker.Available, func(authchain.Variant) bool { return true }, "sonnet")
	drv := New(workerPath, router, tracker, chain, nil, WithDeadline(2*time.Second))
	return drv, tracker, chain
}

func TestDriver_SuccessAccumulatesTextAndTokens(t *testing.T) {
	body := `{"type":"text","text":"hello "}
{"type":"text","text":"world"}
{"type":"usage","input_tokens":10,"output_tokens":20}`
	worker := writeFakeWorker(t, body, "", 0)
	drv, _, _ := testDriver(t, worker)

	res, err := drv.Execute(context.Background(), "hi", ExecOptions{ToolTag: "ask_gemini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ResponseText != "hello world" {
		t.Fatalf("expected accumulated text, got %q", res.ResponseText)
	}
	if res.InputTokens != 10 || res.OutputTokens != 20 {
		t.Fatalf("expected token counts 10/20, got %d/%d", res.InputTokens, res.OutputTokens)
	}
}

func TestDriver_UnknownLineTreatedAsPlainText(t *testing.T) {
	body := `not json at all`
	worker := writeFakeWorker(t, body, "", 0)
	drv, _, _ := testDriver(t, worker)

	res, err := drv.Execute(context.Background(), "hi", ExecOptions{ToolTag: "ask_gemini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ResponseText != "not json at all" {
		t.Fatalf("expected plain text fallback, got %q", res.ResponseText)
	}
}

func TestDriver_RateLimitRecordsFailureAndSurfacesAfterRetry(t *testing.T) {
	worker := writeFakeWorker(t, "", "rate limit exceeded", 1)
	drv, tracker, _ := testDriver(t, worker)

	_, err := drv.Execute(context.Background(), "hi", ExecOptions{ToolTag: "ask_gemini"})
	if err == nil {
		t.Fatalf("expected error after retry exhaustion")
	}
	if tracker.Available("flash") {
		t.Fatalf("expected flash to be marked unavailable after repeated rate-limit failures")
	}
}

func TestDriver_AuthErrorRecordsFailureOnChain(t *testing.T) {
	worker := writeFakeWorker(t, "", "401 unauthorized", 1)
	drv, _, chain := testDriver(t, worker)

	_, err := drv.Execute(context.Background(), "hi", ExecOptions{ToolTag: "ask_gemini"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, failed := chain.Active().FailureReason(); !failed {
		t.Fatalf("expected the only credential to carry a failure stamp")
	}
}

func TestDriver_GenericErrorSurfacesDirectly(t *testing.T) {
	worker := writeFakeWorker(t, "", "something broke", 1)
	drv, _, _ := testDriver(t, worker)

	_, err := drv.Execute(context.Background(), "hi", ExecOptions{ToolTag: "ask_gemini"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDriver_CacheHitSkipsSpawn(t *testing.T) {
	worker := writeFakeWorker(t, `{"type":"text","text":"fresh"}`, "", 0)
	drv, _, _ := testDriver(t, worker)

	cache := newFakeCache()
	drv.cache = cache

	res1, err := drv.Execute(context.Background(), "hi", ExecOptions{ToolTag: "ask_gemini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res1.Cached {
		t.Fatalf("first call should not be cached")
	}

	res2, err := drv.Execute(context.Background(), "hi", ExecOptions{ToolTag: "ask_gemini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res2.Cached {
		t.Fatalf("second identical call should hit cache")
	}
	if res2.ResponseText != res1.ResponseText {
		t.Fatalf("cached response should match original")
	}
}

func TestDriver_MarketplaceCredentialRoutesThroughAggregator(t *testing.T) {
	sseBody := "data: {\"id\":\"c1\",\"model\":\"sonnet\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"from aggregator\"},\"finish_reason\":\"stop\"}]}\n\ndata: {\"id\":\"c1\",\"model\":\"sonnet\",\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":7}}\n\ndata: [DONE]\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(200)
		fmt.Fprint(w, sseBody)
	}))
	defer srv.Close()

	registry := modelrouter.NewRegistry([]modelrouter.Model{
		{Name: "sonnet", Tier: modelrouter.TierStandard},
	})
	tracker := ratelimit.New(ratelimit.WithThreshold(2))
	chain := authchain.New([]*authchain.Credential{
		{Variant: authchain.VariantMarketplaceKey, Label: "aggregator", Secret: "agg-key"},
	})
	router := modelrouter.New(registry, tracker.Available, func(authchain.Variant) bool { return true }, "sonnet")
	aggregator := llm.NewCapabilityAdapter(llm.ClientConfig{BaseURL: srv.URL, APIKey: "agg-key", Model: "sonnet"})
	drv := New("/nonexistent/worker", router, tracker, chain, nil, WithAggregator(aggregator))

	res, err := drv.Execute(context.Background(), "hello", ExecOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ResponseText != "from aggregator" {
		t.Fatalf("expected aggregator-transport response, got %q", res.ResponseText)
	}
	if res.AuthUsed != authchain.VariantMarketplaceKey {
		t.Fatalf("expected AuthUsed to record the marketplace credential, got %q", res.AuthUsed)
	}
	if res.InputTokens != 5 || res.OutputTokens != 7 {
		t.Fatalf("expected usage to be recorded, got in=%d out=%d", res.InputTokens, res.OutputTokens)
	}
}

func TestDriver_MarketplaceCredentialWithoutAggregatorFails(t *testing.T) {
	registry := modelrouter.NewRegistry([]modelrouter.Model{
		{Name: "sonnet", Tier: modelrouter.TierStandard},
	})
	tracker := ratelimit.New(ratelimit.WithThreshold(2))
	chain := authchain.New([]*authchain.Credential{
		{Variant: authchain.VariantMarketplaceKey, Label: "aggregator", Secret: "agg-key"},
	})
	router := modelrouter.New(registry, tracker.Available, func(authchain.Variant) bool { return true }, "sonnet")
	drv := New("/nonexistent/worker", router, tracker, chain, nil)

	if _, err := drv.Execute(context.Background(), "hello", ExecOptions{}); err == nil {
		t.Fatalf("expected an error when no aggregator transport is configured")
	}
}

type fakeCache struct {
	entries map[string]Result
}

func newFakeCache() *fakeCache { return &fakeCache{entries: make(map[string]Result)} }

func (f *fakeCache) Get(key string) (Result, bool) {
	r, ok := f.entries[key]
	return r, ok
}

func (f *fakeCache) Set(key string, result Result) {
	f.entries[key] = result
}

func TestFingerprint_StableAcrossTrimmedWhitespace(t *testing.T) {
	a := Fingerprint("  hello world  ", "flash")
	b := Fingerprint("hello world", "flash")
	if a != b {
		t.Fatalf("expected fingerprint to ignore surrounding whitespace")
	}
}

func TestFingerprint_DiffersByModel(t *testing.T) {
	a := Fingerprint("hello", "flash")
	b := Fingerprint("hello", "sonnet")
	if a == b {
		t.Fatalf("expected different models to produce different fingerprints")
	}
}
