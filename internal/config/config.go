// Package config loads engine and layer configuration from YAML. Keyword
// tables and extraction grammars are data here, not code: every layer runs
// the same gate and extractor with different tables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/memory-router/internal/embedding"
	"github.com/rcliao/memory-router/internal/extract"
	"github.com/rcliao/memory-router/internal/gate"
	"github.com/rcliao/memory-router/internal/rank"
)

// Config is the full engine configuration document.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Layers    []LayerConfig   `yaml:"layers"`
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "sqlite" (default) or "chromem"
	Path    string `yaml:"path"`
}

// LedgerConfig locates the routing ledger and its optional savings baseline.
type LedgerConfig struct {
	Path string `yaml:"path"`
	// BaselineChars is the average pre-routing context size used to derive
	// token savings. Zero disables the savings computation.
	BaselineChars int `yaml:"baseline_chars"`
}

// EmbeddingConfig mirrors embedding.Config with YAML-friendly fields.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Dims           int    `yaml:"dims"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Build constructs the configured embedder.
func (c EmbeddingConfig) Build() (embedding.Embedder, error) {
	return embedding.New(embedding.Config{
		Provider: c.Provider,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		APIKey:   c.APIKey,
		Dims:     c.Dims,
		Timeout:  time.Duration(c.TimeoutSeconds) * time.Second,
	})
}

// LayerConfig configures one memory layer.
type LayerConfig struct {
	Name         string              `yaml:"name"`
	Priority     int                 `yaml:"priority"`
	Header       string              `yaml:"header"`
	HalfLifeDays float64             `yaml:"half_life_days"`
	SearchLimit  int                 `yaml:"search_limit"`
	Gate         gate.Policy         `yaml:"gate"`
	Cluster      rank.ClusterOptions `yaml:"cluster"`
	Capture      CaptureConfig       `yaml:"capture"`
}

// CaptureConfig configures a layer's capture path.
type CaptureConfig struct {
	Grammar extract.Grammar `yaml:"grammar"`
	// OnDuplicate is "refresh" (default: one row per semantic key) or
	// "append" (always insert, keep history, refresh only the key index).
	OnDuplicate string `yaml:"on_duplicate"`
	// DisableRedaction skips secret masking. Redaction is otherwise
	// unconditional; it is never toggled implicitly per layer.
	DisableRedaction bool `yaml:"disable_redaction"`
}

// AppendOnDuplicate resolves the duplicate policy.
func (c CaptureConfig) AppendOnDuplicate() bool {
	return c.OnDuplicate == "append"
}

const (
	defaultHalfLifeDays = 30.0
	defaultSearchLimit  = 10
	defaultMinScore     = 0.35
	defaultMaxGap       = 0.1
	defaultMaxCount     = 3
)

// Load reads the config at path, or returns Default() when path is empty
// and no default file exists.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MEMORY_ROUTER_CONFIG")
	}
	if path == "" {
		path = filepath.Join(baseDir(), "config.yaml")
		if _, err := os.Stat(path); err != nil {
			return Default(), nil
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func baseDir() string {
	if dir := os.Getenv("MEMORY_ROUTER_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memory-router")
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(baseDir(), "memory.db")
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = filepath.Join(baseDir(), "ledger.json")
	}
	for i := range c.Layers {
		l := &c.Layers[i]
		if l.HalfLifeDays == 0 {
			l.HalfLifeDays = defaultHalfLifeDays
		}
		if l.SearchLimit <= 0 {
			l.SearchLimit = defaultSearchLimit
		}
		if l.Cluster.MinScore == 0 {
			l.Cluster.MinScore = defaultMinScore
		}
		if l.Cluster.MaxGap == 0 {
			l.Cluster.MaxGap = defaultMaxGap
		}
		if l.Cluster.MaxCount <= 0 {
			l.Cluster.MaxCount = defaultMaxCount
		}
		if l.Header == "" {
			l.Header = "Relevant " + l.Name + " memory"
		}
	}
}

// Validate rejects configurations the engine cannot run. Layer problems are
// fatal at load time; they never surface mid-turn.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "sqlite", "chromem":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	seen := map[string]bool{}
	for _, l := range c.Layers {
		if l.Name == "" {
			return fmt.Errorf("layer with empty name")
		}
		if seen[l.Name] {
			return fmt.Errorf("duplicate layer name %q", l.Name)
		}
		seen[l.Name] = true

		switch l.Capture.OnDuplicate {
		case "", "refresh", "append":
		default:
			return fmt.Errorf("layer %s: unknown on_duplicate policy %q", l.Name, l.Capture.OnDuplicate)
		}
		if len(l.Capture.Grammar.Tags) == 0 {
			return fmt.Errorf("layer %s: capture grammar has no tags", l.Name)
		}
	}
	return nil
}
