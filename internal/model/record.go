// Package model defines the core memory data types shared by the engine.
package model

import (
	"sort"
	"strings"
	"time"
)

// Record is the unit persisted to the vector store. Records are created once
// by the capture pipeline and are immutable afterwards, except for the
// denormalized semantic-key index which may refresh UpdatedAt and Text on a
// newer capture of the same key.
type Record struct {
	ID         string            `json:"id"`
	Layer      string            `json:"layer"`
	Kind       string            `json:"kind"`
	Text       string            `json:"text"`
	Key        string            `json:"key"`
	Vector     []float32         `json:"vector,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
	OccurredAt *time.Time        `json:"occurred_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Scored pairs a record with its retrieval score. Score is derived from the
// store's distance metric as 1/(1+distance), so it lies in (0, 1].
type Scored struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
}

// Draft is an extracted record candidate before redaction and persistence.
type Draft struct {
	Kind       string            `json:"kind"`
	Name       string            `json:"name"`
	Fields     map[string]string `json:"fields,omitempty"`
	Confidence float64           `json:"confidence"`
}

// SemanticKey returns the dedup key for a draft:
// lowercase kind + "::" + lowercase name.
func (d Draft) SemanticKey() string {
	return strings.ToLower(d.Kind) + "::" + strings.ToLower(d.Name)
}

// Text renders the draft into the canonical summary stored and embedded.
// Fields are appended in a stable order so the same draft always produces
// the same text.
func (d Draft) Text() string {
	var b strings.Builder
	b.WriteString(d.Kind)
	b.WriteString(": ")
	b.WriteString(d.Name)
	written := map[string]bool{}
	for _, f := range fieldOrder {
		if v, ok := d.Fields[f]; ok {
			b.WriteString("\n" + f + ": " + v)
			written[f] = true
		}
	}
	var rest []string
	for f := range d.Fields {
		if !written[f] {
			rest = append(rest, f)
		}
	}
	sort.Strings(rest)
	for _, f := range rest {
		b.WriteString("\n" + f + ": " + d.Fields[f])
	}
	return b.String()
}

// fieldOrder fixes the rendering order of common continuation fields;
// anything else follows alphabetically.
var fieldOrder = []string{"status", "priority", "owner", "due", "relation", "detail"}

// Message is one turn of conversation history delivered on turn end.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
