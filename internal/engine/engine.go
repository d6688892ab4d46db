// Package engine runs the layered memory pipelines. Each configured layer is
// an independent unit: its failures are logged and contained, never allowed
// to break a conversation turn or another layer.
package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/memory-router/internal/config"
	"github.com/rcliao/memory-router/internal/embedding"
	"github.com/rcliao/memory-router/internal/extract"
	"github.com/rcliao/memory-router/internal/hooks"
	"github.com/rcliao/memory-router/internal/ledger"
	"github.com/rcliao/memory-router/internal/model"
	"github.com/rcliao/memory-router/internal/store"
)

// Layer is a configured layer with its extraction grammar compiled.
type Layer struct {
	config.LayerConfig
	extractor *extract.Extractor
}

// Engine owns the recall and capture pipelines over all configured layers.
type Engine struct {
	layers   []*Layer
	store    store.Store
	embedder embedding.Embedder
	ledger   *ledger.Ledger
	logger   *zap.Logger
	now      func() time.Time
}

// New compiles layer grammars and assembles the engine. A layer whose grammar
// fails to compile is dropped with an error log; the remaining layers run
// normally. A nil embedder disables recall and leaves captures unvectorized.
func New(cfg *config.Config, st store.Store, emb embedding.Embedder, led *ledger.Ledger, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:    st,
		embedder: emb,
		ledger:   led,
		logger:   logger,
		now:      time.Now,
	}
	for _, lc := range cfg.Layers {
		ex, err := extract.New(lc.Capture.Grammar)
		if err != nil {
			logger.Error("layer disabled: grammar did not compile",
				zap.String("layer", lc.Name), zap.Error(err))
			continue
		}
		e.layers = append(e.layers, &Layer{LayerConfig: lc, extractor: ex})
	}
	return e
}

// Layers reports the active layer names in configuration order.
func (e *Engine) Layers() []string {
	names := make([]string, len(e.layers))
	for i, l := range e.layers {
		names[i] = l.Name
	}
	return names
}

// Ledger exposes the routing ledger for reporting.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Store exposes the vector store for inspection.
func (e *Engine) Store() store.Store { return e.store }

// Register attaches the engine to the host's turn events: recall contributes
// prepended context before a turn, capture and session accounting run after.
func (e *Engine) Register(bus *hooks.Bus, priority int) {
	bus.OnTurnStart(priority, func(ctx context.Context, ev hooks.BeforeTurnStart) (*hooks.TurnStartResult, error) {
		text := e.RecallContext(ctx, ev.Prompt)
		if text == "" {
			return nil, nil
		}
		return &hooks.TurnStartResult{PrependContext: text}, nil
	})
	bus.OnTurnEnd(priority, func(ctx context.Context, ev hooks.TurnEnd) error {
		e.HandleTurnEnd(ctx, ev)
		return nil
	})
}

// HandleTurnEnd runs capture over the finished conversation, applies any
// feedback markers found in it, and folds the session into the ledger.
func (e *Engine) HandleTurnEnd(ctx context.Context, ev hooks.TurnEnd) {
	transcript := joinMessages(ev.Messages)
	if transcript != "" {
		e.Capture(ctx, transcript)
		if n := e.ledger.ApplyMarkers(transcript); n > 0 {
			e.logger.Debug("feedback markers applied", zap.Int("count", n))
		}
	}
	if err := e.ledger.FinalizeSession(); err != nil {
		e.logger.Warn("session not finalized", zap.Error(err))
	}
}

func joinMessages(msgs []model.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
