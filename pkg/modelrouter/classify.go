package modelrouter

import "regexp"

// toolTagComplexity maps categorical tool tags straight to a
// Complexity, skipping regex classification entirely (spec §4.3 step 1:
// "Classify complexity by tool tag first").
var toolTagComplexity = map[string]Complexity{
	"ask_gemini":                ComplexityTrivial,
	"ask_worker":                ComplexityTrivial,
	"summarize":                 ComplexityStandard,
	"draft_code_implementation": ComplexityComplex,
	"refactor":                  ComplexityComplex,
	"bug_fix":                   ComplexityComplex,
	"security_review":           ComplexityCritical,
	"production_incident":       ComplexityCritical,
}

// complexIndicators are regex patterns checked in priority order
// before simpleIndicators (spec §4.3 step 1). Word lists are
// deliberately exposed as data (not buried in code) per spec §9's open
// question about the CLI driver's error-classification word lists
// needing to be configuration — the same principle applies here.
var complexIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(architect|redesign|refactor|migrat\w*|security|vulnerab\w*|distributed|concurren\w*|race condition)\b`),
	regexp.MustCompile(`(?i)\b(production (incident|outage)|data loss|critical bug)\b`),
	regexp.MustCompile(`(?i)\bimplement\b.*\b(cache|pool|scheduler|protocol|state machine)\b`),
}

// simpleIndicators are checked only if no complexIndicators matched.
var simpleIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(what is|what's|define|explain briefly)\b`),
	regexp.MustCompile(`\d+\s*[+\-*/]\s*\d+`), // arithmetic like "2+2"
	regexp.MustCompile(`(?i)\b(format|lint|rename|typo)\b`),
}

// Classify determines task complexity: tool tag first, then regex
// classifiers in priority order (complex indicators, then simple
// indicators; otherwise "standard").
func Classify(taskText, toolTag string) Complexity {
	if toolTag != "" {
		if c, ok := toolTagComplexity[toolTag]; ok {
			return c
		}
	}

	for _, re := range complexIndicators {
		if re.MatchString(taskText) {
			return ComplexityComplex
		}
	}
	for _, re := range simpleIndicators {
		if re.MatchString(taskText) {
			return ComplexityTrivial
		}
	}
	return ComplexityStandard
}
