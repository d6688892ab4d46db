// Package extract turns free conversation text into typed draft records.
// Extraction grammars (tag vocabularies, continuation fields, fallback
// patterns) are injected data: one generic extractor serves every layer.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rcliao/memory-router/internal/model"
)

// DefaultMaxFallback caps how many low-confidence pattern drafts a single
// text can produce.
const DefaultMaxFallback = 5

// FallbackConfidence is assigned to drafts manufactured by inline patterns
// when the pattern does not specify its own.
const FallbackConfidence = 0.3

// Pattern is a looser inline expression used only when no explicit-prefix
// line matched. The first capture group becomes the draft name.
type Pattern struct {
	Expr       string  `json:"expr" yaml:"expr"`
	Kind       string  `json:"kind" yaml:"kind"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Grammar configures extraction for one layer.
type Grammar struct {
	// Tags open a draft when a line reads "<tag>: value" or "<tag> - value".
	Tags []string `json:"tags" yaml:"tags"`
	// Fields refine the currently open draft instead of opening a new one.
	Fields []string `json:"fields" yaml:"fields"`
	// Patterns run as phase two over the whole text.
	Patterns []Pattern `json:"patterns" yaml:"patterns"`
	// ExplicitOnly forbids the pattern fallback phase entirely.
	ExplicitOnly bool `json:"explicit_only" yaml:"explicit_only"`
	// MaxFallback bounds phase-two drafts; zero means DefaultMaxFallback.
	MaxFallback int `json:"max_fallback" yaml:"max_fallback"`
}

// Extractor is a Grammar with its expressions compiled.
type Extractor struct {
	grammar  Grammar
	tagLine  *regexp.Regexp
	fieldRe  *regexp.Regexp
	patterns []*regexp.Regexp
}

// New compiles a grammar. An invalid pattern expression is a configuration
// error and fails the whole layer.
func New(g Grammar) (*Extractor, error) {
	if len(g.Tags) == 0 {
		return nil, fmt.Errorf("grammar has no tags")
	}
	e := &Extractor{grammar: g}
	e.tagLine = prefixLine(g.Tags)
	if len(g.Fields) > 0 {
		e.fieldRe = prefixLine(g.Fields)
	}
	for _, p := range g.Patterns {
		re, err := regexp.Compile("(?i)" + p.Expr)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p.Expr, err)
		}
		e.patterns = append(e.patterns, re)
	}
	return e, nil
}

// prefixLine builds the "^<word>\s*[:\-]\s*(.+)$" matcher for a vocabulary.
func prefixLine(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(strings.TrimSpace(w))
	}
	return regexp.MustCompile(`(?i)^(` + strings.Join(quoted, "|") + `)\s*[:\-]\s*(.+)$`)
}

// Extract parses text into deduplicated draft records. Explicit-prefix lines
// run first; the pattern fallback only runs when phase one yielded nothing
// and the grammar allows it. Malformed or unmatched lines are ignored, never
// an error.
func (e *Extractor) Extract(text string) []model.Draft {
	drafts := e.explicitPhase(text)
	if len(drafts) == 0 && !e.grammar.ExplicitOnly {
		drafts = e.patternPhase(text)
	}
	return dedupe(drafts)
}

func (e *Extractor) explicitPhase(text string) []model.Draft {
	var drafts []model.Draft
	var open *model.Draft

	closeDraft := func() {
		if open != nil && strings.TrimSpace(open.Name) != "" {
			drafts = append(drafts, *open)
		}
		open = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			closeDraft()
			continue
		}
		if m := e.tagLine.FindStringSubmatch(line); m != nil {
			closeDraft()
			open = &model.Draft{
				Kind:       strings.ToLower(m[1]),
				Name:       strings.TrimSpace(m[2]),
				Confidence: 1,
			}
			continue
		}
		if open != nil && e.fieldRe != nil {
			if m := e.fieldRe.FindStringSubmatch(line); m != nil {
				if open.Fields == nil {
					open.Fields = map[string]string{}
				}
				open.Fields[strings.ToLower(m[1])] = strings.TrimSpace(m[2])
			}
		}
		// Anything else is conversational noise around the record.
	}
	closeDraft()
	return drafts
}

func (e *Extractor) patternPhase(text string) []model.Draft {
	max := e.grammar.MaxFallback
	if max <= 0 {
		max = DefaultMaxFallback
	}

	var drafts []model.Draft
	for i, re := range e.patterns {
		p := e.grammar.Patterns[i]
		kind := p.Kind
		if kind == "" {
			kind = strings.ToLower(e.grammar.Tags[0])
		}
		conf := p.Confidence
		if conf <= 0 {
			conf = FallbackConfidence
		}
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 {
				continue
			}
			name := strings.TrimSpace(m[1])
			if name == "" {
				continue
			}
			drafts = append(drafts, model.Draft{Kind: kind, Name: name, Confidence: conf})
			if len(drafts) >= max {
				return drafts
			}
		}
	}
	return drafts
}

// dedupe keeps the first draft per semantic key.
func dedupe(drafts []model.Draft) []model.Draft {
	if len(drafts) < 2 {
		return drafts
	}
	seen := map[string]bool{}
	out := drafts[:0]
	for _, d := range drafts {
		k := d.SemanticKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	return out
}
