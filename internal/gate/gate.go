// Package gate decides whether recall should run for a layer at all. Vector
// recall is the expensive path (one embedding call plus a store search per
// layer per turn), so every layer passes through this check first.
package gate

import "strings"

// Policy is a layer's recall gating configuration. Keyword tables are domain
// data supplied by configuration, not engine logic.
type Policy struct {
	// MinQueryLen rejects trivially short queries before anything else runs.
	MinQueryLen int `json:"min_query_len" yaml:"min_query_len"`
	// AlwaysRecall skips keyword matching entirely.
	AlwaysRecall bool `json:"always_recall" yaml:"always_recall"`
	// Keywords are case-insensitive words or phrases that trigger recall.
	Keywords []string `json:"keywords" yaml:"keywords"`
	// Disabled turns the layer's recall off regardless of other settings.
	Disabled bool `json:"disabled" yaml:"disabled"`
}

// ShouldRecall applies the policy in order: length floor, disabled switch,
// always-on short-circuit, then keyword match.
func ShouldRecall(p Policy, query string) bool {
	trimmed := strings.TrimSpace(query)
	minLen := p.MinQueryLen
	if minLen <= 0 {
		minLen = 2
	}
	if len(trimmed) < minLen {
		return false
	}
	if p.Disabled {
		return false
	}
	if p.AlwaysRecall {
		return true
	}

	lower := strings.ToLower(trimmed)
	for _, kw := range p.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
