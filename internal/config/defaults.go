package config

import (
	"github.com/rcliao/memory-router/internal/extract"
	"github.com/rcliao/memory-router/internal/gate"
)

// Default returns the reference configuration: four layers covering the
// common memory categories, with English keyword tables. Deployments with
// other vocabularies override these via the config file.
func Default() *Config {
	cfg := &Config{
		Embedding: EmbeddingConfig{Provider: "ollama"},
		Layers: []LayerConfig{
			{
				Name:         "episodic",
				Priority:     40,
				Header:       "Relevant past events",
				HalfLifeDays: 7,
				Gate: gate.Policy{
					MinQueryLen: 3,
					Keywords: []string{
						"remember", "last time", "previously", "earlier",
						"yesterday", "before", "again", "what happened",
					},
				},
				Capture: CaptureConfig{
					Grammar: extract.Grammar{
						Tags:   []string{"event", "happened"},
						Fields: []string{"detail", "owner"},
						Patterns: []extract.Pattern{
							{Expr: `(?:we|i) (?:just )?(?:finished|deployed|fixed|broke|shipped)\s+([^.!?\n]+)`, Kind: "event"},
						},
					},
					// Episodic history is the point: keep every occurrence.
					OnDuplicate: "append",
				},
			},
			{
				Name:         "goal",
				Priority:     30,
				Header:       "Active goals",
				HalfLifeDays: 14,
				Gate: gate.Policy{
					MinQueryLen: 3,
					Keywords: []string{
						"goal", "plan", "task", "todo", "objective",
						"working on", "need to", "deadline", "milestone",
					},
				},
				Capture: CaptureConfig{
					Grammar: extract.Grammar{
						Tags:   []string{"goal", "task"},
						Fields: []string{"status", "priority", "owner", "due"},
						Patterns: []extract.Pattern{
							{Expr: `(?:i need to|we need to|let's|we should)\s+([^.!?\n]+)`, Kind: "goal"},
						},
					},
					OnDuplicate: "refresh",
				},
			},
			{
				Name:         "entity",
				Priority:     20,
				Header:       "Known entities",
				HalfLifeDays: 60,
				Gate: gate.Policy{
					MinQueryLen: 3,
					Keywords: []string{
						"who is", "what is", "about", "server", "service",
						"project", "repo", "database", "team",
					},
				},
				Capture: CaptureConfig{
					Grammar: extract.Grammar{
						Tags:         []string{"entity", "person", "service"},
						Fields:       []string{"relation", "detail"},
						ExplicitOnly: true,
					},
					OnDuplicate: "refresh",
				},
			},
			{
				Name:         "decision",
				Priority:     10,
				Header:       "Past decisions",
				HalfLifeDays: 90,
				Gate: gate.Policy{
					MinQueryLen: 3,
					Keywords: []string{
						"decide", "decision", "chose", "why did we",
						"agreed", "convention", "policy",
					},
				},
				Capture: CaptureConfig{
					Grammar: extract.Grammar{
						Tags:         []string{"decision", "decided"},
						Fields:       []string{"status", "owner"},
						ExplicitOnly: true,
					},
					OnDuplicate: "refresh",
				},
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}
