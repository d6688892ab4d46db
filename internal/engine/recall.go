package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/memory-router/internal/gate"
	"github.com/rcliao/memory-router/internal/model"
	"github.com/rcliao/memory-router/internal/rank"
)

// Block is one layer's contribution to the injected context.
type Block struct {
	Layer    string         `json:"layer"`
	Priority int            `json:"priority"`
	Header   string         `json:"header"`
	Content  string         `json:"content"`
	Records  []model.Scored `json:"records"`
}

// Recall runs the recall pipeline for every layer concurrently and returns
// the non-empty blocks ordered by layer priority, highest first. Layer
// failures are logged and produce no block; Recall itself never fails a turn.
// Each returned block has already been recorded as an activation.
func (e *Engine) Recall(ctx context.Context, prompt string) []Block {
	if e.embedder == nil || len(e.layers) == 0 {
		return nil
	}

	results := make([]*Block, len(e.layers))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range e.layers {
		i, l := i, l
		g.Go(func() error {
			b, err := e.recallLayer(gctx, l, prompt)
			if err != nil {
				e.logger.Warn("layer recall failed",
					zap.String("layer", l.Name), zap.Error(err))
				return nil
			}
			results[i] = b
			return nil
		})
	}
	_ = g.Wait() // goroutines swallow their own errors

	var blocks []Block
	for _, b := range results {
		if b != nil {
			blocks = append(blocks, *b)
		}
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].Priority != blocks[j].Priority {
			return blocks[i].Priority > blocks[j].Priority
		}
		return blocks[i].Layer < blocks[j].Layer
	})

	for _, b := range blocks {
		if err := e.ledger.RecordActivation(b.Layer, len(b.Content)); err != nil {
			e.logger.Warn("activation not persisted",
				zap.String("layer", b.Layer), zap.Error(err))
		}
	}
	return blocks
}

// RecallContext renders the recall blocks into the single string prepended to
// the turn's context. Empty when nothing recalled.
func (e *Engine) RecallContext(ctx context.Context, prompt string) string {
	blocks := e.Recall(ctx, prompt)
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Content
	}
	return strings.Join(parts, "\n\n")
}

func (e *Engine) recallLayer(ctx context.Context, l *Layer, prompt string) (*Block, error) {
	if !gate.ShouldRecall(l.Gate, prompt) {
		return nil, nil
	}

	vec, err := e.embedder.Embed(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	scored, err := e.store.Search(ctx, l.Name, vec, l.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(scored) == 0 {
		return nil, nil
	}

	now := e.now()
	for i := range scored {
		scored[i].Score = rank.Adjust(scored[i].Score, recordTime(scored[i].Record), l.HalfLifeDays, now)
	}
	rank.SortDesc(scored)
	selected := rank.SelectCluster(scored, l.Cluster)
	if len(selected) == 0 {
		return nil, nil
	}

	return &Block{
		Layer:    l.Name,
		Priority: l.Priority,
		Header:   l.Header,
		Content:  formatBlock(l.Header, selected),
		Records:  selected,
	}, nil
}

// recordTime picks the timestamp decay runs against: the domain time when
// the record carries one, otherwise its last write.
func recordTime(r model.Record) time.Time {
	if r.OccurredAt != nil {
		return *r.OccurredAt
	}
	if !r.UpdatedAt.IsZero() {
		return r.UpdatedAt
	}
	return r.CreatedAt
}

func formatBlock(header string, items []model.Scored) string {
	var b strings.Builder
	b.WriteString("== " + header + " ==")
	for i, s := range items {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, strings.ReplaceAll(s.Record.Text, "\n", "; ")))
	}
	return b.String()
}
