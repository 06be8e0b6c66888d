// Package sanitize redacts PII- and secret-shaped text from claim
// provenance quotes before they are written to the Version Store, since
// quoted passages come verbatim from untrusted source papers.
package sanitize

import "regexp"

type pattern struct {
	regex       *regexp.Regexp
	replacement string
}

var patterns = []pattern{
	{regexp.MustCompile(`(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{20,})["']?`), "[REDACTED_API_KEY]"},
	{regexp.MustCompile(`(?i)(?:password|pwd|pass)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`), "[REDACTED_PASSWORD]"},
	{regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`), "[REDACTED_CERTIFICATE]"},
	{regexp.MustCompile(`(?i)(?:token|bearer)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-.]{20,})["']?`), "[REDACTED_TOKEN]"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`ssh-(?:rsa|dss|ed25519|ecdsa)\s+[A-Za-z0-9+/=]+`), "[REDACTED_SSH_KEY]"},
	{regexp.MustCompile(`(?i)(?:aws[_-]?access[_-]?key[_-]?id)["']?\s*[:=]\s*["']?(AKIA[A-Z0-9]{16})["']?`), "[REDACTED_AWS_KEY]"},
	{regexp.MustCompile(`(?i)(?:aws[_-]?secret[_-]?access[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`), "[REDACTED_AWS_SECRET]"},
	{regexp.MustCompile(`(?i)(?:private[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-.]{20,})["']?`), "[REDACTED_PRIVATE_KEY]"},
}

// Redact replaces PII- and secret-shaped substrings of text with a
// category placeholder. It is fail-open: unrecognized text passes through
// unmodified rather than being dropped, since the caller needs the quote
// to still evidence the claim.
func Redact(text string) string {
	out := text
	for _, p := range patterns {
		out = p.regex.ReplaceAllString(out, p.replacement)
	}
	return out
}
