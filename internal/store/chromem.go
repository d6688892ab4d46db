package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	chromem "github.com/philippgille/chromem-go"

	"github.com/rcliao/memory-router/internal/embedding"
	"github.com/rcliao/memory-router/internal/model"
	"github.com/rcliao/memory-router/internal/rank"
)

// ChromemStore implements Store on chromem-go, an embedded pure-Go vector
// database. One collection per layer.
//
// Refresh-policy records use a deterministic document id derived from the
// semantic key, so re-adding the same key overwrites the previous document
// even across restarts. The key index itself is process-lifetime: after a
// restart FindKey misses until the key is captured again, which both
// duplicate policies tolerate.
type ChromemStore struct {
	db      *chromem.DB
	entropy *rand.Rand

	mu          sync.Mutex
	collections map[string]*chromem.Collection
	index       map[string]model.Record // layer+"::"+key -> last upserted record
}

// NewChromemStore creates a persistent chromem store at path; an empty path
// keeps everything in memory.
func NewChromemStore(path string) (*ChromemStore, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	return &ChromemStore{
		db:          db,
		entropy:     rand.New(rand.NewSource(time.Now().UnixNano())),
		collections: map[string]*chromem.Collection{},
		index:       map[string]model.Record{},
	}, nil
}

func (s *ChromemStore) collection(layer string) (*chromem.Collection, error) {
	if col, ok := s.collections[layer]; ok {
		return col, nil
	}
	col, err := s.db.GetOrCreateCollection("layer_"+layer, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("collection for layer %s: %w", layer, err)
	}
	s.collections[layer] = col
	return col, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, rec model.Record, appendOnDuplicate bool) (model.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.collection(rec.Layer)
	if err != nil {
		return rec, false, err
	}

	now := time.Now().UTC()
	indexKey := rec.Layer + "::" + rec.Key
	prev, known := s.index[indexKey]

	created := true
	switch {
	case known && !appendOnDuplicate:
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
		created = false
	case !appendOnDuplicate:
		// Deterministic id: a later refresh of this key overwrites in place.
		rec.ID = indexKey
		rec.CreatedAt = now
	default:
		rec.ID = ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	meta := map[string]string{
		"kind":       rec.Kind,
		"skey":       rec.Key,
		"created_at": rec.CreatedAt.Format(time.RFC3339),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339),
	}
	if rec.OccurredAt != nil {
		meta["occurred_at"] = rec.OccurredAt.UTC().Format(time.RFC3339)
	}
	if len(rec.Meta) > 0 {
		b, _ := json.Marshal(rec.Meta)
		meta["meta"] = string(b)
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Vector,
		Metadata:  meta,
	})
	if err != nil {
		return rec, false, fmt.Errorf("add document: %w", err)
	}

	s.index[indexKey] = rec
	return rec, created, nil
}

func (s *ChromemStore) Search(ctx context.Context, layer string, vec embedding.Vector, limit int) ([]model.Scored, error) {
	s.mu.Lock()
	col, err := s.collection(layer)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 10
	}
	// chromem rejects nResults larger than the collection.
	if n := col.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vec, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	scored := make([]model.Scored, 0, len(results))
	for _, r := range results {
		distance := 1 - float64(r.Similarity)
		scored = append(scored, model.Scored{
			Record: recordFromResult(layer, r),
			Score:  rank.ScoreFromDistance(distance),
		})
	}
	return scored, nil
}

func (s *ChromemStore) FindKey(_ context.Context, layer, key string) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.index[layer+"::"+key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *ChromemStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &Stats{ByLayer: map[string]int{}}
	for layer, col := range s.collections {
		n := col.Count()
		st.ByLayer[layer] = n
		st.TotalRecords += n
	}
	return st, nil
}

func (s *ChromemStore) Close() error {
	// chromem persists incrementally; nothing to flush.
	return nil
}

func recordFromResult(layer string, r chromem.Result) model.Record {
	rec := model.Record{
		ID:     r.ID,
		Layer:  layer,
		Kind:   r.Metadata["kind"],
		Key:    r.Metadata["skey"],
		Text:   r.Content,
		Vector: r.Embedding,
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, r.Metadata["created_at"])
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, r.Metadata["updated_at"])
	if v, ok := r.Metadata["occurred_at"]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			rec.OccurredAt = &t
		}
	}
	if v, ok := r.Metadata["meta"]; ok {
		json.Unmarshal([]byte(v), &rec.Meta)
	}
	return rec
}
