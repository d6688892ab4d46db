package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// Cached wraps an embedder with an in-process result cache. The recall and
// capture pipelines frequently embed identical text within one session
// (repeated queries, re-captured records); caching keeps those calls off the
// provider.
type Cached struct {
	inner  Embedder
	cache  *ristretto.Cache
	logger *zap.Logger
}

// NewCached builds the caching wrapper around inner.
func NewCached(inner Embedder, logger *zap.Logger) (*Cached, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     32 << 20, // ~32MB of vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache, logger: logger}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) (Vector, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.(Vector); ok {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

func (c *Cached) Dims() int { return c.inner.Dims() }
