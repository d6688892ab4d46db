package engine

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/memory-router/internal/extract"
	"github.com/rcliao/memory-router/internal/model"
)

// CaptureResult summarizes one layer's capture pass.
type CaptureResult struct {
	Layer     string `json:"layer"`
	Drafts    int    `json:"drafts"`
	Created   int    `json:"created"`
	Refreshed int    `json:"refreshed"`
}

// Capture runs the capture pipeline for every layer concurrently over the
// given text: extract drafts, redact, embed, persist per the layer's
// duplicate policy. A layer that fails mid-way keeps what it already
// persisted and is reported with its partial counts.
func (e *Engine) Capture(ctx context.Context, text string) []CaptureResult {
	if len(e.layers) == 0 {
		return nil
	}

	results := make([]*CaptureResult, len(e.layers))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range e.layers {
		i, l := i, l
		g.Go(func() error {
			res, err := e.captureLayer(gctx, l, text)
			if err != nil {
				e.logger.Warn("layer capture failed",
					zap.String("layer", l.Name), zap.Error(err))
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var out []CaptureResult
	for _, r := range results {
		if r != nil && r.Drafts > 0 {
			out = append(out, *r)
		}
	}
	return out
}

// captureLayer may return both a partial result and an error: drafts
// persisted before the failure stay persisted.
func (e *Engine) captureLayer(ctx context.Context, l *Layer, text string) (*CaptureResult, error) {
	drafts := l.extractor.Extract(text)
	if len(drafts) == 0 {
		return nil, nil
	}

	explicit, pattern := 0, 0
	for _, d := range drafts {
		if d.Confidence >= 1 {
			explicit++
		} else {
			pattern++
		}
	}
	if err := e.ledger.RecordDrafts(l.Name, explicit, pattern); err != nil {
		e.logger.Warn("draft counts not persisted",
			zap.String("layer", l.Name), zap.Error(err))
	}

	res := &CaptureResult{Layer: l.Name, Drafts: len(drafts)}
	appendPolicy := l.Capture.AppendOnDuplicate()
	for _, d := range drafts {
		body := d.Text()
		if !l.Capture.DisableRedaction {
			body = extract.Redact(body)
		}

		rec := model.Record{
			Layer: l.Name,
			Kind:  d.Kind,
			Key:   d.SemanticKey(),
			Text:  body,
			Meta:  map[string]string{"confidence": strconv.FormatFloat(d.Confidence, 'f', -1, 64)},
		}
		if e.embedder != nil {
			vec, err := e.embedder.Embed(ctx, body)
			if err != nil {
				return res, fmt.Errorf("embed draft %q: %w", rec.Key, err)
			}
			rec.Vector = vec
		}

		_, created, err := e.store.Upsert(ctx, rec, appendPolicy)
		if err != nil {
			return res, fmt.Errorf("persist draft %q: %w", rec.Key, err)
		}
		if created {
			res.Created++
		} else {
			res.Refreshed++
		}
	}
	return res, nil
}
