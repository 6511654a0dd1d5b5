package agentsession

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/relaywork/modelbroker/pkg/authchain"
	"github.com/relaywork/modelbroker/pkg/clidriver"
	"github.com/relaywork/modelbroker/pkg/modelrouter"
	"github.com/relaywork/modelbroker/pkg/ratelimit"
)

// writeFakeWorker mirrors pkg/clidriver's fake-worker test helper: a
// tiny shell script standing in for the worker CLI.
func writeFakeWorker(t *testing.T, body string, exitCode int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakeworker.sh")
	script := "#!/bin/sh\ncat >/dev/null\n"
	if body != "" {
		script += "cat <<'EOF'\n" + body + "\nEOF\n"
	}
	script += "exit " + strconv.Itoa(exitCode) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake worker: %v", err)
	}
	return path
}

func testDriver(t *testing.T, workerPath string) *clidriver.Driver {
	t.Helper()
	registry := modelrouter.NewRegistry([]modelrouter.Model{
		{Name: "flash", Tier: modelrouter.TierFastest},
	})
	tracker := ratelimit.New()
	chain := authchain.New([]*authchain.Credential{
		{Variant: authchain.VariantOAuth, Label: "primary", Secret: "x"},
	})
	router := modelrouter.New(registry, tracker.Available, func(authchain.Variant) bool { return true }, "flash")
	return clidriver.New(workerPath, router, tracker, chain, nil, clidriver.WithDeadline(2*time.Second))
}

func TestRun_SuccessRecordsResultAndTokens(t *testing.T) {
	body := `{"type":"session","session_id":"ext-123"}
{"type":"tool_use","name":"read_file","input":{"path":"a.go"}}
{"type":"text","text":"done here"}
{"type":"usage","input_tokens":5,"output_tokens":7}`
	worker := writeFakeWorker(t, body, 0)
	driver := testDriver(t, worker)

	m := testManager()
	s, err := m.Create("read a.go and summarize it", Limits{MaxIterations: 10, Deadline: time.Minute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outDir := t.TempDir()
	if err := m.Run(context.Background(), driver, s.ID, RunOptions{OutputDir: outDir}); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	got, _ := m.Get(s.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %s", got.Status)
	}
	if got.Result != "done here" {
		t.Fatalf("expected result text, got %q", got.Result)
	}
	if got.ExternalID != "ext-123" {
		t.Fatalf("expected external id captured from session event, got %q", got.ExternalID)
	}
	if got.InputTokens != 5 || got.OutputTokens != 7 {
		t.Fatalf("expected token counts 5/7, got %d/%d", got.InputTokens, got.OutputTokens)
	}
	if len(got.Effects.Read) != 1 || got.Effects.Read[0] != "a.go" {
		t.Fatalf("expected a.go recorded as read, got %+v", got.Effects.Read)
	}
	if got.OutputFile == "" {
		t.Fatalf("expected an output sink path to be recorded")
	}
	if _, err := os.Stat(got.OutputFile); err != nil {
		t.Fatalf("expected output sink file to exist on disk: %v", err)
	}
}

func TestRun_IterationLimitBreachStopsRunAndFailsSession(t *testing.T) {
	body := `{"type":"tool_use","name":"read_file","input":{"path":"a.go"}}
{"type":"tool_use","name":"read_file","input":{"path":"b.go"}}
{"type":"tool_use","name":"read_file","input":{"path":"c.go"}}
{"type":"text","text":"should not be reached"}`
	worker := writeFakeWorker(t, body, 0)
	driver := testDriver(t, worker)

	m := testManager()
	s, _ := m.Create("loop reading files", Limits{MaxIterations: 1, Deadline: time.Minute})

	outDir := t.TempDir()
	err := m.Run(context.Background(), driver, s.ID, RunOptions{OutputDir: outDir})
	if err == nil {
		t.Fatalf("expected an error once the iteration limit breaches")
	}

	got, _ := m.Get(s.ID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed status after a limit breach, got %s", got.Status)
	}
}

func TestRun_MissingSessionErrors(t *testing.T) {
	worker := writeFakeWorker(t, `{"type":"text","text":"x"}`, 0)
	driver := testDriver(t, worker)
	m := testManager()

	if err := m.Run(context.Background(), driver, "nonexistent", RunOptions{OutputDir: t.TempDir()}); err == nil {
		t.Fatalf("expected an error running an unknown session")
	}
}
