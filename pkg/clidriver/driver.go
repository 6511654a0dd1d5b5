// Package clidriver implements the CLI Driver (spec §4.4): it spawns the
// worker CLI as a child process, streams its structured output, and
// returns a normalized result or a typed failure.
//
// Grounded on pkg/mcp.StdioTransport's spawn/graceful-terminate sequence
// and pkg/transport.StdioTransport's JSONL scanner, with stderr
// classification adapted from pkg/llm's HTTP-status classifier
// (classifyStatus) generalized to a substring word-list classifier
// since the worker CLI has no HTTP status codes to key off.
package clidriver

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/relaywork/modelbroker/pkg/authchain"
	"github.com/relaywork/modelbroker/pkg/llm"
	"github.com/relaywork/modelbroker/pkg/modelrouter"
	"github.com/relaywork/modelbroker/pkg/orchlog"
	"github.com/relaywork/modelbroker/pkg/orcherr"
	"github.com/relaywork/modelbroker/pkg/ratelimit"
)

const (
	defaultDeadline   = 120 * time.Second
	terminateGrace    = 5 * time.Second
	initialBufferSize = 64 * 1024
	maxBufferSize     = 10 * 1024 * 1024
)

// Result is the driver's normalized output (spec §4.4 "execute").
type Result struct {
	ResponseText string
	Model        string
	AuthUsed     authchain.Variant
	InputTokens  int64
	OutputTokens int64
	SessionID    string
	Cached       bool
}

// Cache is the subset of the Response Cache (spec §4.5) the driver needs.
type Cache interface {
	Get(key string) (Result, bool)
	Set(key string, result Result)
}

// ExecOptions are the per-call knobs spec §4.4 step 2 composes into argv.
type ExecOptions struct {
	ToolTag         string
	ExplicitModel   string
	PreferFast      bool
	NoTools         bool   // emits "--extensions none" for non-agent calls
	Yolo            bool   // emits "--yolo"
	ResumeSessionID string // emits "--resume <id>" when non-empty

	// OnEvent, if set, is invoked for every demultiplexed event as it
	// streams in (tool_use side effects are the caller's concern; see
	// spec §4.7 for how the Agent Session Supervisor uses this hook).
	OnEvent func(Event)
}

// Driver runs the worker CLI and normalizes its output.
type Driver struct {
	workerPath string
	router     *modelrouter.Router
	tracker    *ratelimit.Tracker
	authChain  *authchain.Chain
	cache      Cache
	deadline   time.Duration
	log        *orchlog.Logger
	aggregator *llm.CapabilityAdapter
}

// Option configures a Driver.
type Option func(*Driver)

// WithDeadline overrides the default 120s per-call deadline.
func WithDeadline(d time.Duration) Option {
	return func(drv *Driver) { drv.deadline = d }
}

// WithLogger attaches a structured logger. A nil logger (the default)
// disables logging entirely, matching ratelimit.WithPrometheus's
// nil-means-no-op convention.
func WithLogger(log *orchlog.Logger) Option {
	return func(drv *Driver) { drv.log = log }
}

// WithAggregator attaches the external aggregator marketplace transport
// (spec §6). When the active credential's Variant is
// authchain.VariantMarketplaceKey, Execute routes the request through
// this HTTP transport instead of spawning the worker CLI subprocess; a
// nil aggregator (the default) means a marketplace-key credential falls
// through to an authentication error instead, since there is nothing to
// talk to.
func WithAggregator(a *llm.CapabilityAdapter) Option {
	return func(drv *Driver) { drv.aggregator = a }
}

// New builds a Driver. workerPath is the worker CLI executable.
func New(workerPath string, router *modelrouter.Router, tracker *ratelimit.Tracker, authChain *authchain.Chain, cache Cache, opts ...Option) *Driver {
	drv := &Driver{
		workerPath: workerPath,
		router:     router,
		tracker:    tracker,
		authChain:  authChain,
		cache:      cache,
		deadline:   defaultDeadline,
	}
	for _, opt := range opts {
		opt(drv)
	}
	return drv
}

// Fingerprint computes the cache key over the trimmed prompt and the
// canonical model name (spec §4.5 "Fingerprint").
func Fingerprint(prompt, model string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(prompt)))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

// Execute runs one request end-to-end per spec §4.4's algorithm.
func (d *Driver) Execute(ctx context.Context, prompt string, opts ExecOptions) (Result, error) {
	return d.execute(ctx, prompt, opts, false)
}

func (d *Driver) execute(ctx context.Context, prompt string, opts ExecOptions, isRetry bool) (Result, error) {
	cred := d.authChain.Active()
	if cred == nil {
		return Result{}, orcherr.New(orcherr.KindAuthentication, "clidriver.Execute", "no credential available in chain")
	}

	decision := d.router.Select(modelrouter.Request{
		TaskText:      prompt,
		ToolTag:       opts.ToolTag,
		ExplicitModel: opts.ExplicitModel,
		PreferFast:    opts.PreferFast,
	})

	key := Fingerprint(prompt, decision.Model)
	if d.cache != nil {
		if cached, ok := d.cache.Get(key); ok {
			cached.Cached = true
			d.log.Info("cache hit", zap.String("model", decision.Model), zap.String("reason", decision.Reason))
			return cached, nil
		}
	}

	if cred.Variant == authchain.VariantMarketplaceKey {
		return d.executeViaAggregator(ctx, prompt, decision.Model, key, cred, opts, isRetry)
	}

	argv := composeArgv(decision.Model, opts)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, d.workerPath, argv...)
	// Cancellation runs the same graceful-then-forceful sequence as the
	// deadline timer instead of CommandContext's immediate kill.
	cmd.Cancel = func() error {
		terminate(cmd)
		return nil
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, orcherr.Wrap(orcherr.KindProcess, "clidriver.Execute", "open stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, orcherr.Wrap(orcherr.KindProcess, "clidriver.Execute", "open stdout pipe", err)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return Result{}, orcherr.Wrap(orcherr.KindProcess, "clidriver.Execute", "spawn worker", err)
	}

	if _, err := stdin.Write([]byte(prompt)); err != nil {
		_ = cmd.Process.Kill()
		return Result{}, orcherr.Wrap(orcherr.KindProcess, "clidriver.Execute", "write prompt", err)
	}
	stdin.Close()

	var timedOut atomic.Bool
	timer := time.AfterFunc(d.deadline, func() {
		timedOut.Store(true)
		terminate(cmd)
	})
	defer timer.Stop()

	acc := newAccumulator()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, initialBufferSize), maxBufferSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev := parseLine(line)
		acc.apply(ev)
		if opts.OnEvent != nil {
			opts.OnEvent(ev)
		}
	}

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return Result{}, orcherr.New(orcherr.KindCancelled, "clidriver.Execute", "execution cancelled")
	}
	if timedOut.Load() {
		d.log.Warn("worker deadline exceeded", zap.String("model", decision.Model), zap.Duration("deadline", d.deadline))
		return Result{}, orcherr.New(orcherr.KindTimeout, "clidriver.Execute", "worker deadline exceeded")
	}

	if waitErr == nil {
		d.tracker.RecordSuccess(decision.Model)
		result := Result{
			ResponseText: acc.text.String(),
			Model:        decision.Model,
			AuthUsed:     cred.Variant,
			InputTokens:  acc.inputTokens,
			OutputTokens: acc.outputTokens,
			SessionID:    acc.sessionID,
		}
		d.tracker.Record(decision.Model, acc.inputTokens, acc.outputTokens, cred.IsFree())
		if d.cache != nil {
			d.cache.Set(key, result)
		}
		return result, nil
	}

	class := classifyStderr(stderrBuf.String())
	switch class {
	case failureRateLimit, failureModelError:
		d.tracker.RecordFailure(decision.Model)
		d.log.Warn("worker failure, retrying", zap.String("model", decision.Model), zap.String("class", string(class)), zap.Bool("is_retry", isRetry))
		if !isRetry {
			return d.execute(ctx, prompt, opts, true)
		}
		return Result{}, orcherr.Wrap(orcherr.KindRateLimit, "clidriver.Execute", "worker exhausted after retry", waitErr).WithField("model")
	case failureAuthError:
		d.authChain.RecordFailure(cred, stderrBuf.String())
		d.log.Warn("auth failure, falling back", zap.String("credential", cred.Label), zap.Bool("is_retry", isRetry))
		if !isRetry {
			return d.execute(ctx, prompt, opts, true)
		}
		return Result{}, orcherr.Wrap(orcherr.KindAuthentication, "clidriver.Execute", "auth chain exhausted", waitErr)
	default:
		return Result{}, orcherr.Wrap(orcherr.KindProcess, "clidriver.Execute", fmt.Sprintf("worker exited: %s", strings.TrimSpace(stderrBuf.String())), waitErr)
	}
}

// executeViaAggregator runs one request through the external aggregator
// marketplace HTTP transport (spec §6) instead of the worker CLI
// subprocess, mirroring execute's success/failure bookkeeping so the
// Rate-Limit & Cost Tracker and Auth Fallback Manager see a uniform
// picture regardless of which transport served the request.
func (d *Driver) executeViaAggregator(ctx context.Context, prompt, model, key string, cred *authchain.Credential, opts ExecOptions, isRetry bool) (Result, error) {
	if d.aggregator == nil {
		return Result{}, orcherr.New(orcherr.KindAuthentication, "clidriver.Execute", "no aggregator transport configured for marketplace-key credential")
	}

	res, err := d.aggregator.Complete(ctx, model, "", prompt)
	if err == nil {
		d.tracker.RecordSuccess(model)
		result := Result{
			ResponseText: res.Text,
			Model:        model,
			AuthUsed:     cred.Variant,
			InputTokens:  res.InputTokens,
			OutputTokens: res.OutputTokens,
		}
		d.tracker.Record(model, res.InputTokens, res.OutputTokens, cred.IsFree())
		if d.cache != nil {
			d.cache.Set(key, result)
		}
		return result, nil
	}

	var llmErr *llm.LLMError
	if errors.As(err, &llmErr) && llmErr.SDKError == "authentication_failed" {
		d.authChain.RecordFailure(cred, llmErr.Error())
		d.log.Warn("aggregator auth failure, falling back", zap.String("credential", cred.Label), zap.Bool("is_retry", isRetry))
		if !isRetry {
			return d.execute(ctx, prompt, opts, true)
		}
		return Result{}, orcherr.Wrap(orcherr.KindAuthentication, "clidriver.Execute", "auth chain exhausted", err)
	}

	d.tracker.RecordFailure(model)
	d.log.Warn("aggregator failure, retrying", zap.String("model", model), zap.Bool("is_retry", isRetry))
	if !isRetry {
		return d.execute(ctx, prompt, opts, true)
	}
	return Result{}, orcherr.Wrap(orcherr.KindRateLimit, "clidriver.Execute", "aggregator exhausted after retry", err)
}

// composeArgv builds the worker CLI argv (spec §4.4 step 2). Arguments
// are always passed as a slice to exec.Command, never through a shell,
// so no quoting or expansion concerns arise on any platform.
func composeArgv(model string, opts ExecOptions) []string {
	argv := []string{"--model", model, "--output-format", "json"}
	if opts.NoTools {
		argv = append(argv, "--extensions", "none")
	}
	if opts.Yolo {
		argv = append(argv, "--yolo")
	}
	if opts.ResumeSessionID != "" {
		argv = append(argv, "--resume", opts.ResumeSessionID)
	}
	return argv
}

// terminate sends SIGTERM, then SIGKILL after the grace period, to the
// child process (spec §4.4 step 6 and the Cancellation clause).
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	time.AfterFunc(terminateGrace, func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	})
}

// accumulator folds the event stream into response text and token counts.
type accumulator struct {
	text         strings.Builder
	sessionID    string
	inputTokens  int64
	outputTokens int64
}

func newAccumulator() *accumulator { return &accumulator{} }

func (a *accumulator) apply(ev Event) {
	switch ev.Kind {
	case EventSession:
		a.sessionID = ev.SessionID
	case EventText, EventPlainText:
		a.text.WriteString(ev.Text)
	case EventResult:
		if ev.Text != "" {
			a.text.WriteString(ev.Text)
		}
		a.inputTokens += ev.InputTokens
		a.outputTokens += ev.OutputTokens
	case EventUsage:
		a.inputTokens += ev.InputTokens
		a.outputTokens += ev.OutputTokens
	}
}
