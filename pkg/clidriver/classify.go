package clidriver

import "strings"

// failureClass is the stderr classification outcome (spec §4.4 step 7).
type failureClass string

const (
	failureRateLimit  failureClass = "rate-limit"
	failureModelError failureClass = "model-error"
	failureAuthError  failureClass = "auth-error"
	failureGeneric    failureClass = "generic"
)

// rateLimitWords, modelErrorWords, and authErrorWords are the small
// documented word lists spec §4.4 step 7 asks for, checked in this
// priority order. Exposed as data, not buried in a decision tree, per
// the open question in spec §9 about keeping classifier word lists
// reviewable rather than hardcoded.
var (
	rateLimitWords = []string{
		"rate limit", "rate_limit", "too many requests", "429", "overloaded", "529",
	}
	modelErrorWords = []string{
		"model not found", "model_not_found", "unsupported model", "model unavailable",
		"no endpoints found", "invalid model",
	}
	authErrorWords = []string{
		"unauthorized", "authentication", "invalid api key", "invalid_api_key",
		"permission denied", "forbidden", "401", "403",
	}
)

// classifyStderr maps raw stderr output to a failure class by substring
// match, in priority order: rate-limit, model-error, auth-error, else
// generic. Model errors are folded into rate-limit handling by the
// caller (spec §4.4 step 7: "model-error ... treated as rate-limit for
// fallback purposes").
func classifyStderr(stderr string) failureClass {
	lower := strings.ToLower(stderr)

	if containsAny(lower, rateLimitWords) {
		return failureRateLimit
	}
	if containsAny(lower, modelErrorWords) {
		return failureModelError
	}
	if containsAny(lower, authErrorWords) {
		return failureAuthError
	}
	return failureGeneric
}

func containsAny(haystack string, words []string) bool {
	for _, w := range words {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}
