package orcherr

import "regexp"

// credentialLike matches substrings that look like opaque API keys,
// bearer tokens, or enterprise key/region pairs so the logging layer
// can redact them before any error context is emitted.
var credentialLike = regexp.MustCompile(`(?i)(sk-[a-z0-9-]{10,}|bearer\s+[a-z0-9._-]{10,}|api[_-]?key["':= ]+[a-z0-9._-]{8,})`)

// Mask redacts credential-shaped substrings from s. It is intentionally
// conservative: it only scrubs patterns that look like secrets, never
// entire messages, so logs stay readable.
func Mask(s string) string {
	return credentialLike.ReplaceAllStringFunc(s, func(match string) string {
		return "[redacted]"
	})
}
