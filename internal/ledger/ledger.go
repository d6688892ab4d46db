// Package ledger tracks per-layer routing statistics: activations, injected
// volume, usefulness feedback, session aggregates, and token savings. The
// ledger is the only mutable state shared across layers, so all mutation
// goes through one mutex and every update is persisted immediately.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/memory-router/internal/tokens"
)

// Entry holds one layer's lifetime counters. Counters are monotonic; only
// session-scoped state (on State, not here) is ever reset.
type Entry struct {
	Activations     int       `json:"activations"`
	CharsInjected   int       `json:"chars_injected"`
	UsefulUp        int       `json:"useful_up"`
	UsefulDown      int       `json:"useful_down"`
	UsefulRate      *float64  `json:"useful_rate,omitempty"`
	ExplicitDrafts  int       `json:"explicit_drafts,omitempty"`
	PatternDrafts   int       `json:"pattern_drafts,omitempty"`
	LastActivatedAt time.Time `json:"last_activated_at,omitzero"`
	LastFeedbackAt  time.Time `json:"last_feedback_at,omitzero"`
}

// Savings is the optional token-savings derivation. It stays zero until a
// baseline is configured.
type Savings struct {
	BeforeRoutingAvg int       `json:"before_routing_avg,omitempty"`
	SavedLastSession int       `json:"saved_last_session"`
	SavedTotal       int       `json:"saved_total"`
	SavedThisWeek    int       `json:"saved_this_week"`
	WeekStart        time.Time `json:"week_start,omitzero"`
}

// State is the full persisted ledger document.
type State struct {
	Layers map[string]*Entry `json:"layers"`

	// Session aggregates live outside any single layer's entry.
	Sessions                  int     `json:"sessions"`
	TotalSessionChars         int     `json:"total_session_chars"`
	AfterRoutingAvg           float64 `json:"after_routing_avg"`
	CurrentSessionChars       int     `json:"current_session_chars"`
	CurrentSessionActivations int     `json:"current_session_activations"`

	TokenSavings Savings `json:"token_savings"`
}

// Ledger is the cross-layer statistics store backed by a single JSON file.
type Ledger struct {
	mu      sync.Mutex
	path    string
	logger  *zap.Logger
	counter *tokens.Counter
	now     func() time.Time
	st      State
}

// Open loads the ledger at path. A missing or corrupt file starts from empty
// state; that is recovery, not an error.
func Open(path string, baselineChars int, counter *tokens.Counter, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if counter == nil {
		counter = tokens.NewEstimateCounter()
	}
	l := &Ledger{
		path:    path,
		logger:  logger,
		counter: counter,
		now:     time.Now,
	}
	l.st = load(path, logger)
	if l.st.Layers == nil {
		l.st.Layers = map[string]*Entry{}
	}
	if baselineChars > 0 {
		l.st.TokenSavings.BeforeRoutingAvg = baselineChars
	}
	return l
}

func (l *Ledger) entry(layer string) *Entry {
	e, ok := l.st.Layers[layer]
	if !ok {
		e = &Entry{}
		l.st.Layers[layer] = e
	}
	return e
}

// RecordActivation notes that a layer produced injectable content of the
// given character volume. Each call represents one real injection.
func (l *Ledger) RecordActivation(layer string, chars int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(layer)
	e.Activations++
	e.CharsInjected += chars
	e.LastActivatedAt = l.now()

	l.st.CurrentSessionChars += chars
	l.st.CurrentSessionActivations++

	return l.save()
}

// RecordFeedback applies one usefulness signal to a layer, creating its
// entry lazily for unknown names.
func (l *Ledger) RecordFeedback(layer string, useful bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(layer)
	if useful {
		e.UsefulUp++
	} else {
		e.UsefulDown++
	}
	rate := round2(float64(e.UsefulUp) / float64(e.UsefulUp+e.UsefulDown))
	e.UsefulRate = &rate
	e.LastFeedbackAt = l.now()

	return l.save()
}

// RecordDrafts accumulates per-phase capture counts for a layer.
func (l *Ledger) RecordDrafts(layer string, explicit, pattern int) error {
	if explicit == 0 && pattern == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(layer)
	e.ExplicitDrafts += explicit
	e.PatternDrafts += pattern
	return l.save()
}

// FinalizeSession folds the current session counters into lifetime totals,
// derives token savings, and zeroes the current counters. With nothing
// accumulated it is a no-op, so a double finalize cannot double count.
func (l *Ledger) FinalizeSession() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.st.CurrentSessionChars == 0 && l.st.CurrentSessionActivations == 0 {
		return nil
	}

	last := l.st.CurrentSessionChars
	l.st.TotalSessionChars += last
	l.st.Sessions++
	l.st.AfterRoutingAvg = round2(float64(l.st.TotalSessionChars) / float64(l.st.Sessions))

	l.applyTokenSavings(last)

	l.st.CurrentSessionChars = 0
	l.st.CurrentSessionActivations = 0

	return l.save()
}

// ComputeTokenSavings brings the weekly window up to date and returns the
// savings snapshot. Without a configured baseline it is a no-op.
func (l *Ledger) ComputeTokenSavings() Savings {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.st.TokenSavings.BeforeRoutingAvg > 0 {
		l.rollWeekWindow()
	}
	return l.st.TokenSavings
}

// Snapshot returns a deep copy of the current state for reporting.
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.st
	out.Layers = make(map[string]*Entry, len(l.st.Layers))
	for name, e := range l.st.Layers {
		cp := *e
		if e.UsefulRate != nil {
			r := *e.UsefulRate
			cp.UsefulRate = &r
		}
		out.Layers[name] = &cp
	}
	return out
}

// Summary renders human-readable report lines.
func (l *Ledger) Summary() []string {
	st := l.Snapshot()

	names := make([]string, 0, len(st.Layers))
	for name := range st.Layers {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{
		fmt.Sprintf("sessions: %d, avg injected: %.0f chars (~%d tokens)",
			st.Sessions, st.AfterRoutingAvg, l.counter.FromChars(int(st.AfterRoutingAvg))),
	}
	for _, name := range names {
		e := st.Layers[name]
		rate := "n/a"
		if e.UsefulRate != nil {
			rate = fmt.Sprintf("%.2f", *e.UsefulRate)
		}
		lines = append(lines, fmt.Sprintf("%s: %d activations, %d chars (~%d tokens), useful %s",
			name, e.Activations, e.CharsInjected, l.counter.FromChars(e.CharsInjected), rate))
	}
	if s := st.TokenSavings; s.BeforeRoutingAvg > 0 {
		lines = append(lines, fmt.Sprintf("saved: %d chars last session, %d this week, %d total",
			s.SavedLastSession, s.SavedThisWeek, s.SavedTotal))
	}
	return lines
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
