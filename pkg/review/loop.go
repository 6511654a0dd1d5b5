// Package review implements the Orchestration Loop (spec §4.9): a
// supervisor/worker review-and-correct protocol layered on top of the
// CLI Driver. It multiplexes two Executors — the worker that drafts a
// candidate and the supervisor that reviews it — rather than holding
// its own model-selection logic, mirroring how pkg/agent/loop.go
// drives a tool_use/stop_reason cycle against an injected client
// rather than owning HTTP concerns itself.
package review

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/relaywork/modelbroker/pkg/clidriver"
)

const (
	defaultMaxRetries    = 3
	truncatedSampleChars = 500
)

// TaskType categorizes the task being executed (spec §4.9 step 2).
type TaskType string

const (
	TaskDrafting         TaskType = "drafting"
	TaskBugFix           TaskType = "bug_fix"
	TaskRefactor         TaskType = "refactor"
	TaskReadOnlyAnalysis TaskType = "read_only_analysis"
	TaskOther            TaskType = "other"
)

// reviewRequiredTypes is the "requires review" set named in spec §4.9
// step 2 (drafting, bug-fix, refactor), excluding read-only analysis.
var reviewRequiredTypes = map[TaskType]bool{
	TaskDrafting: true,
	TaskBugFix:   true,
	TaskRefactor: true,
}

// RequiresReview reports whether taskType warrants the review/correct
// protocol.
func RequiresReview(taskType TaskType) bool {
	return reviewRequiredTypes[taskType]
}

// StepKind distinguishes a review pass from a correction pass in the
// session log (spec §4.9 step 5).
type StepKind string

const (
	StepReview     StepKind = "review"
	StepCorrection StepKind = "correction"
)

// Step is one logged supervisor/worker exchange.
type Step struct {
	Attempt      int
	Kind         StepKind
	Model        string
	InputSample  string
	OutputSample string
	InputTokens  int64
	OutputTokens int64
}

// Result is the outcome of a full Run.
type Result struct {
	Candidate string
	Approved  bool
	Steps     []Step
	Note      string // set when the retry limit was exhausted (spec §4.9 step 4)
}

// Executor runs one prompt against a model and returns its result;
// satisfied directly by (*clidriver.Driver).Execute.
type Executor func(ctx context.Context, prompt string, opts clidriver.ExecOptions) (clidriver.Result, error)

// Loop drives the supervisor/worker protocol.
type Loop struct {
	worker     Executor
	supervisor Executor
	maxRetries int
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxRetries overrides the default retry ceiling (spec §4.9 step 4: default 3).
func WithMaxRetries(n int) Option {
	return func(l *Loop) { l.maxRetries = n }
}

// New builds a Loop. worker drafts and revises candidates; supervisor
// reviews them. Both may be the same underlying driver invoked with
// different ExecOptions (e.g. a supervisor tool tag or explicit model
// hint), or genuinely distinct executors.
func New(worker, supervisor Executor, opts ...Option) *Loop {
	l := &Loop{worker: worker, supervisor: supervisor, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes task on the worker and, if taskType requires it, drives
// the review/correct protocol to convergence or retry exhaustion
// (spec §4.9 steps 1-4).
func (l *Loop) Run(ctx context.Context, task string, taskType TaskType, toolTag string) (Result, error) {
	candidate, err := l.worker(ctx, task, clidriver.ExecOptions{ToolTag: toolTag})
	if err != nil {
		return Result{}, err
	}
	out := candidate.ResponseText

	if !RequiresReview(taskType) {
		return Result{Candidate: out}, nil
	}

	var steps []Step
	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		reviewPrompt := buildReviewPrompt(task, out)
		reviewRes, err := l.supervisor(ctx, reviewPrompt, clidriver.ExecOptions{ToolTag: "review"})
		if err != nil {
			return Result{}, err
		}
		steps = append(steps, Step{
			Attempt:      attempt,
			Kind:         StepReview,
			Model:        reviewRes.Model,
			InputSample:  truncateSample(reviewPrompt),
			OutputSample: truncateSample(reviewRes.ResponseText),
			InputTokens:  reviewRes.InputTokens,
			OutputTokens: reviewRes.OutputTokens,
		})

		// An ambiguous response carrying both the sentinel and a fenced
		// block is resolved in favor of approval (spec §9 open question).
		if approved, polished := parseApproved(reviewRes.ResponseText); approved {
			if polished != "" {
				out = polished
			}
			return Result{Candidate: out, Approved: true, Steps: steps}, nil
		}

		if block := firstFencedBlock(reviewRes.ResponseText); block != "" {
			out = block
			continue
		}

		correctionPrompt := buildCorrectionPrompt(task, out, reviewRes.ResponseText)
		correctionRes, err := l.worker(ctx, correctionPrompt, clidriver.ExecOptions{ToolTag: toolTag})
		if err != nil {
			return Result{}, err
		}
		steps = append(steps, Step{
			Attempt:      attempt,
			Kind:         StepCorrection,
			Model:        correctionRes.Model,
			InputSample:  truncateSample(correctionPrompt),
			OutputSample: truncateSample(correctionRes.ResponseText),
			InputTokens:  correctionRes.InputTokens,
			OutputTokens: correctionRes.OutputTokens,
		})
		out = correctionRes.ResponseText
	}

	return Result{
		Candidate: out,
		Steps:     steps,
		Note:      "retry limit exhausted; returning last candidate",
	}, nil
}

var (
	sentinelRe    = regexp.MustCompile(`(?i)\bAPPROVED\b`)
	fencedBlockRe = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_+-]*\\n)?(.*?)```")
)

// parseApproved reports whether text contains the APPROVED sentinel
// and, if a fenced code block follows it, returns the polished
// version to use instead of the original candidate (spec §4.9 step 3).
func parseApproved(text string) (approved bool, polished string) {
	loc := sentinelRe.FindStringIndex(text)
	if loc == nil {
		return false, ""
	}
	if m := fencedBlockRe.FindStringSubmatch(text[loc[1]:]); m != nil {
		return true, strings.TrimSpace(m[1])
	}
	return true, ""
}

// firstFencedBlock returns the contents of the first fenced code
// block in text, or "" if none is present.
func firstFencedBlock(text string) string {
	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func buildReviewPrompt(task, candidate string) string {
	return fmt.Sprintf(
		"You are reviewing a worker's proposed solution to a task.\n\n"+
			"Task:\n%s\n\nProposed solution:\n%s\n\n"+
			"If the solution is correct and complete, respond with exactly APPROVED, "+
			"optionally followed by a fenced code block containing a polished version. "+
			"Otherwise, list the issues and provide a corrected version in a fenced code block.",
		task, candidate)
}

func buildCorrectionPrompt(task, candidate, feedback string) string {
	return fmt.Sprintf(
		"Revise the previous solution based on this feedback.\n\n"+
			"Original task:\n%s\n\nPrevious attempt:\n%s\n\nReviewer feedback:\n%s",
		task, candidate, feedback)
}

func truncateSample(s string) string {
	if len(s) <= truncatedSampleChars {
		return s
	}
	return s[:truncatedSampleChars] + fmt.Sprintf("... (truncated, %d total characters)", len(s))
}
