// Package store provides the vector store interface and its SQLite and
// chromem backends.
package store

import (
	"context"

	"github.com/rcliao/memory-router/internal/embedding"
	"github.com/rcliao/memory-router/internal/model"
)

// Store persists memory records with their vectors and answers
// nearest-neighbour searches. Scores are 1/(1+distance), so exact matches
// score 1 and scores stay in (0, 1].
type Store interface {
	// Upsert persists a record according to the duplicate policy. With
	// appendOnDuplicate false an existing semantic key is refreshed in
	// place (text, vector, updated_at); with it true a fresh row is always
	// inserted for audit history and only the lightweight key index is
	// refreshed. Returns the persisted record (id and timestamps assigned)
	// and whether a new row was created.
	Upsert(ctx context.Context, rec model.Record, appendOnDuplicate bool) (model.Record, bool, error)

	// Search returns the layer's nearest records ordered by decreasing
	// similarity score.
	Search(ctx context.Context, layer string, vec embedding.Vector, limit int) ([]model.Scored, error)

	// FindKey resolves a semantic key through the lightweight index.
	// Returns nil without error when the key is unknown.
	FindKey(ctx context.Context, layer, key string) (*model.Record, error)

	// Stats reports record counts for inspection.
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// Stats holds store statistics.
type Stats struct {
	Path         string         `json:"path,omitempty"`
	SizeBytes    int64          `json:"size_bytes,omitempty"`
	TotalRecords int            `json:"total_records"`
	ByLayer      map[string]int `json:"by_layer,omitempty"`
	ByKind       map[string]int `json:"by_kind,omitempty"`
}
