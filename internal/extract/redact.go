package extract

import "regexp"

// Placeholder replaces every masked secret.
const Placeholder = "[redacted]"

// maskPatterns run in a fixed order over all captured text before it is
// embedded or persisted. Redaction is never skipped per layer; it can only
// be disabled by explicit engine configuration.
var maskPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	// key=..., token: ..., secret=..., password: ...
	{regexp.MustCompile(`(?i)\b(api[_-]?key|key|token|secret|password|passwd)\s*[:=]\s*\S+`), "$1: " + Placeholder},
	// authorization: ... header values
	{regexp.MustCompile(`(?i)\b(authorization)\s*:\s*\S+(\s+\S+)?`), "$1: " + Placeholder},
	// bearer <token>
	{regexp.MustCompile(`(?i)\b(bearer)\s+[A-Za-z0-9._\-]+`), "$1 " + Placeholder},
	// bare API-key-shaped tokens
	{regexp.MustCompile(`\b(sk-[A-Za-z0-9]{16,}|gh[pousr]_[A-Za-z0-9]{16,}|AKIA[0-9A-Z]{16})\b`), Placeholder},
}

// Redact masks secret-shaped content in s.
func Redact(s string) string {
	for _, p := range maskPatterns {
		s = p.re.ReplaceAllString(s, p.repl)
	}
	return s
}
