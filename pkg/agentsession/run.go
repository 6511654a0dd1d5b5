package agentsession

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relaywork/modelbroker/pkg/clidriver"
	"github.com/relaywork/modelbroker/pkg/orcherr"
)

const defaultOutputCapBytes = 64 * 1024

// RunOptions configures one Agent Session Supervisor run (spec §4.7
// steps 1-2: fresh spawn vs. resume, and prompt assembly).
type RunOptions struct {
	OutputDir     string
	ContextSuffix string // optional extra context appended to the task prompt
	ToolTag       string
}

// Run drives one full autonomous worker run against driver end to end:
// prompt assembly, dual-sink streaming, per-tool-call limit enforcement,
// and a classified terminal outcome (spec §4.7 steps 1-6).
func (m *Manager) Run(ctx context.Context, driver *clidriver.Driver, id string, opts RunOptions) error {
	s, ok := m.Get(id)
	if !ok {
		return orcherr.New(orcherr.KindSession, "agentsession.Run", "session not found: "+id)
	}

	prompt := s.Task
	if opts.ContextSuffix != "" {
		prompt = prompt + "\n\n" + opts.ContextSuffix
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return orcherr.Wrap(orcherr.KindFilesystem, "agentsession.Run", "create output directory", err)
	}
	sinkPath := filepath.Join(opts.OutputDir, fmt.Sprintf("session-%s.log", s.ID))
	sink, err := newOutputSink(sinkPath, s.ID, s.Task, s.StartedAt, defaultOutputCapBytes)
	if err != nil {
		return orcherr.Wrap(orcherr.KindFilesystem, "agentsession.Run", "open output sink", err)
	}

	m.mu.Lock()
	s.OutputFile = sinkPath
	m.mu.Unlock()

	// A tool-use that breaches the iteration/deadline quota cancels the
	// run in flight rather than waiting for the worker to exit on its
	// own (spec §4.7 step 3).
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var breach error
	written := 0
	onEvent := func(ev clidriver.Event) {
		switch ev.Kind {
		case clidriver.EventSession:
			_ = m.SetExternalID(id, ev.SessionID)
		case clidriver.EventToolUse:
			if limitErr := m.CheckLimits(id); limitErr != nil {
				breach = limitErr
				cancel()
				return
			}
			_ = m.RecordToolCall(id, ToolCall{
				Name: ev.ToolName,
				At:   time.Now(),
			}, ev.ToolInput)
		case clidriver.EventToolResult:
			// Best-effort: attaches a shell call's exit code when the
			// tool_result payload carries both the originating command
			// and an exit code under these field names.
			if cmd, code, ok := shellResultFields(ev.Raw); ok {
				_ = m.RecordShellExit(id, cmd, code)
			}
		case clidriver.EventUsage:
			_ = m.UpdateTokens(id, ev.InputTokens, ev.OutputTokens)
		case clidriver.EventText, clidriver.EventResult, clidriver.EventPlainText:
			if ev.Text != "" {
				written += len(ev.Text)
				sink.Write(ev.Text)
			}
			if ev.Kind == clidriver.EventResult && (ev.InputTokens != 0 || ev.OutputTokens != 0) {
				_ = m.UpdateTokens(id, ev.InputTokens, ev.OutputTokens)
			}
		}
	}

	result, execErr := driver.Execute(runCtx, prompt, clidriver.ExecOptions{
		ToolTag:         opts.ToolTag,
		ResumeSessionID: s.ExternalID,
		OnEvent:         onEvent,
	})

	_ = sink.Close(m.now(), written)

	if breach != nil {
		_ = m.SetError(id, ExitGenericFail, breach.Error())
		return breach
	}

	if execErr != nil {
		class := ExitUnknown
		if kind, ok := orcherr.KindOf(execErr); ok {
			switch kind {
			case orcherr.KindTimeout:
				class = ExitSessionTooLong
			case orcherr.KindAuthentication:
				class = ExitAuth
			case orcherr.KindCancelled:
				class = ExitKilled
			}
		}
		_ = m.SetError(id, class, execErr.Error())
		return execErr
	}

	_ = m.SetResult(id, result.ResponseText)
	return nil
}

// shellResultFields extracts a shell command and its exit code from a
// raw tool_result event payload, when both are present.
func shellResultFields(raw json.RawMessage) (command string, exitCode int, ok bool) {
	var v struct {
		Command  string `json:"command"`
		ExitCode *int   `json:"exit_code"`
	}
	if err := json.Unmarshal(raw, &v); err != nil || v.Command == "" || v.ExitCode == nil {
		return "", 0, false
	}
	return v.Command, *v.ExitCode, true
}
