// Package outputsizer implements the Output Sizer (spec §4.8): it
// shapes raw worker output to fit downstream budgets without silently
// dropping information, persisting the full output and deriving
// progressively smaller summaries.
//
// Grounded on pkg/context.Compactor's threshold/proportional-budget
// split-point logic (generalized from a message-list split to a
// byte-budget split) and pkg/tools/bash.go's truncation-notice
// convention ("... (truncated, N total characters)"), extended with
// header-regex section extraction.
package outputsizer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Budgets are the character-budget tunables spec §4.8's policy reads
// (the spec also names a token budget, derived here via the same
// 4-characters-per-token assumption used elsewhere in this module).
type Budgets struct {
	SoftChars     int // under this, output passes through unchanged
	HardChars     int // absolute cap on what gets scanned for sections
	TargetChars   int // size the second, smaller summary is fit to
	ReadToolChars int // size a read-tool-facing summary is fit to
	CharsPerToken int // assumption used to translate a token budget to chars
	TailLines     int // capped tail-of-last-N-lines included in the first summary
}

// DefaultBudgets mirrors the proportions pkg/context.Compactor uses for
// its preserve ratio, adapted to this component's soft/hard/target tiers.
func DefaultBudgets() Budgets {
	return Budgets{
		SoftChars:     8_000,
		HardChars:     200_000,
		TargetChars:   4_000,
		ReadToolChars: 2_000,
		CharsPerToken: 4,
		TailLines:     40,
	}
}

// Result is what Size returns.
type Result struct {
	Text        string // the text to actually hand downstream
	Truncated   bool
	FullPath    string // full-artifact path; empty unless Truncated
	SummaryPath string // where the second, smaller summary was stored
}

// sectionPattern pairs a header-regex with the section's proportional
// share of the first summary's budget (spec §4.8 step 2: "≈40%/30%/20%
// for summary/recommendations/errors").
type sectionPattern struct {
	name  string
	re    *regexp.Regexp
	share float64
}

var sectionPatterns = []sectionPattern{
	{name: "summary", re: regexp.MustCompile(`(?im)^#+\s*summary\s*$`), share: 0.40},
	{name: "recommendations", re: regexp.MustCompile(`(?im)^#+\s*(recommendations|suggestions)\s*$`), share: 0.30},
	{name: "errors", re: regexp.MustCompile(`(?im)^#+\s*(errors|issues)\s*$`), share: 0.20},
}

var filesChangedPattern = regexp.MustCompile(`(?im)^#+\s*files[\s_-]?changed\s*$`)

// Sizer persists full output and builds summaries under a directory.
type Sizer struct {
	dir     string
	budgets Budgets
	now     func() time.Time
}

// Option configures a Sizer.
type Option func(*Sizer)

// WithBudgets overrides the default budget tiers.
func WithBudgets(b Budgets) Option {
	return func(s *Sizer) { s.budgets = b }
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(s *Sizer) { s.now = now }
}

// New builds a Sizer that writes full-output artifacts under dir.
func New(dir string, opts ...Option) *Sizer {
	s := &Sizer{dir: dir, budgets: DefaultBudgets(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Size implements spec §4.8's policy. estimatedTokens is the caller's
// own token estimate for raw (so the soft-budget check in step 1 can
// consider both dimensions without this package depending on a
// tokenizer).
func (s *Sizer) Size(raw string, estimatedTokens int) (Result, error) {
	softTokenBudget := s.budgets.SoftChars / max(s.budgets.CharsPerToken, 1)
	if len(raw) <= s.budgets.SoftChars && estimatedTokens <= softTokenBudget {
		return Result{Text: raw}, nil
	}

	fullPath, err := s.persistFull(raw)
	if err != nil {
		return Result{}, err
	}

	scanWindow := raw
	if len(scanWindow) > s.budgets.HardChars {
		scanWindow = scanWindow[:s.budgets.HardChars]
	}

	firstSummary := s.buildSummary(scanWindow, fullPath, s.budgets.TargetChars)
	secondSummary := s.buildSummary(scanWindow, fullPath, s.budgets.ReadToolChars)

	summaryPath := fullPath + ".summary.txt"
	if err := os.WriteFile(summaryPath, []byte(secondSummary), 0o644); err != nil {
		return Result{}, err
	}

	return Result{
		Text:        firstSummary,
		Truncated:   true,
		FullPath:    fullPath,
		SummaryPath: summaryPath,
	}, nil
}

func (s *Sizer) persistFull(raw string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("output-%s-%d.txt", uuid.NewString(), s.now().UnixNano())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// buildSummary extracts sections in priority order under a proportional
// share of budget, appends a capped tail, and always names the full
// artifact path (spec §4.8 step 4's invariant).
func (s *Sizer) buildSummary(text, fullPath string, budget int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[truncated: full output at %s]\n\n", fullPath)
	remaining := budget - b.Len()

	for _, p := range sectionPatterns {
		if remaining <= 0 {
			break
		}
		share := int(float64(budget) * p.share)
		if share > remaining {
			share = remaining
		}
		section := extractSection(text, p.re)
		if section == "" {
			continue
		}
		if len(section) > share {
			section = section[:share]
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", titleCase(p.name), section)
		remaining = budget - b.Len()
	}

	if filesSection := extractSection(text, filesChangedPattern); filesSection != "" && remaining > 0 {
		if len(filesSection) > remaining {
			filesSection = filesSection[:remaining]
		}
		fmt.Fprintf(&b, "## Files Changed\n%s\n\n", filesSection)
		remaining = budget - b.Len()
	}

	if remaining > 0 {
		tail := tailLines(text, s.budgets.TailLines)
		if len(tail) > remaining {
			tail = tail[len(tail)-remaining:]
		}
		fmt.Fprintf(&b, "## Tail\n%s\n", tail)
	}

	out := b.String()
	if len(out) > budget {
		out = out[:budget]
	}
	return out
}

// extractSection returns the text following a header-regex match up to
// the next header line or end of input.
func extractSection(text string, header *regexp.Regexp) string {
	loc := header.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	lines := strings.Split(rest, "\n")
	var out []string
	nextHeader := regexp.MustCompile(`(?m)^#+\s*\S`)
	for _, line := range lines {
		if nextHeader.MatchString(line) {
			break
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func tailLines(text string, n int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
