package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// Mock is a deterministic embedder for tests and dry runs: identical text
// always yields the identical unit vector, so exact-text queries retrieve
// their own record at distance zero.
type Mock struct {
	dims int

	// Err, when set, makes every Embed call fail. Used to exercise the
	// pipelines' failure isolation.
	Err error
}

// NewMock creates a mock embedder with the given dimensionality.
func NewMock(dims int) *Mock {
	return &Mock{dims: dims}
}

func (m *Mock) Embed(_ context.Context, text string) (Vector, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make(Vector, m.dims)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float32(int64(seed)) / float32(math.MaxInt64)
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

func (m *Mock) Dims() int { return m.dims }
