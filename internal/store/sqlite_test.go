package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rcliao/memory-router/internal/embedding"
	"github.com/rcliao/memory-router/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func embedText(t *testing.T, text string) embedding.Vector {
	t.Helper()
	vec, err := embedding.NewMock(64).Embed(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	return vec
}

func TestSQLite_UpsertRefresh(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := model.Record{Layer: "goal", Kind: "goal", Key: "goal::ship v2", Text: "goal: ship v2", Vector: embedText(t, "goal: ship v2")}
	first, created, err := s.Upsert(ctx, rec, false)
	if err != nil {
		t.Fatal(err)
	}
	if !created || first.ID == "" {
		t.Fatalf("first upsert should create: created=%v id=%q", created, first.ID)
	}

	rec.Text = "goal: ship v2\nstatus: done"
	rec.Vector = embedText(t, rec.Text)
	second, created, err := s.Upsert(ctx, rec, false)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("refresh policy must not create a second row")
	}
	if second.ID != first.ID {
		t.Fatalf("refresh changed id: %s vs %s", second.ID, first.ID)
	}
	if second.CreatedAt.IsZero() {
		t.Fatal("refresh lost created_at")
	}

	st, _ := s.Stats(ctx)
	if st.TotalRecords != 1 {
		t.Fatalf("expected 1 record after refresh, got %d", st.TotalRecords)
	}

	got, err := s.FindKey(ctx, "goal", "goal::ship v2")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Text != rec.Text {
		t.Fatalf("FindKey returned stale record: %+v", got)
	}
}

func TestSQLite_UpsertAppend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := model.Record{Layer: "episodic", Kind: "event", Key: "event::deploy", Text: "event: deploy", Vector: embedText(t, "event: deploy")}
	first, _, err := s.Upsert(ctx, rec, true)
	if err != nil {
		t.Fatal(err)
	}
	second, created, err := s.Upsert(ctx, rec, true)
	if err != nil {
		t.Fatal(err)
	}
	if !created || second.ID == first.ID {
		t.Fatal("append policy must insert a fresh row each time")
	}

	st, _ := s.Stats(ctx)
	if st.TotalRecords != 2 {
		t.Fatalf("expected 2 rows, got %d", st.TotalRecords)
	}

	// The lightweight index points at the newest row.
	got, err := s.FindKey(ctx, "episodic", "event::deploy")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != second.ID {
		t.Fatalf("index should track latest row: %+v", got)
	}
}

func TestSQLite_SearchRanksExactMatchFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, text := range []string{"the database migration plan", "lunch order for friday", "goal: ship v2"} {
		_, _, err := s.Upsert(ctx, model.Record{
			Layer: "goal", Kind: "goal", Key: "goal::" + text, Text: text,
			Vector: embedText(t, text),
		}, false)
		if err != nil {
			t.Fatal(err)
		}
	}

	results, err := s.Search(ctx, "goal", embedText(t, "goal: ship v2"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Record.Text != "goal: ship v2" {
		t.Fatalf("exact match not first: %+v", results[0].Record)
	}
	if results[0].Score < 0.999 {
		t.Fatalf("exact match should score ~1, got %v", results[0].Score)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatal("results not in decreasing score order")
		}
	}
}

func TestSQLite_SearchRespectsLayerAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, text := range []string{"alpha", "beta", "gamma"} {
		layer := "goal"
		if i == 2 {
			layer = "entity"
		}
		s.Upsert(ctx, model.Record{Layer: layer, Kind: "x", Key: "x::" + text, Text: text, Vector: embedText(t, text)}, false)
	}

	results, err := s.Search(ctx, "goal", embedText(t, "alpha"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("limit ignored: %d results", len(results))
	}
	if results[0].Record.Layer != "goal" {
		t.Fatal("layer filter leaked")
	}
}

func TestSQLite_FindKeyUnknown(t *testing.T) {
	s := newTestStore(t)
	got, err := s.FindKey(context.Background(), "goal", "goal::nope")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("unknown key must return nil, got %+v", got)
	}
}

func TestSQLite_ConcurrentUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	vec := embedding.Vector{1, 0, 0, 0}

	const workers = 8
	const perWorker = 25
	errs := make(chan error, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				text := fmt.Sprintf("event %d from worker %d", i, w)
				_, _, err := s.Upsert(ctx, model.Record{
					Layer: "episodic", Kind: "event", Key: "event::" + text,
					Text: text, Vector: vec,
				}, true)
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent upsert: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalRecords != workers*perWorker {
		t.Fatalf("lost writes: %d rows, want %d", st.TotalRecords, workers*perWorker)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vec := embedding.Vector{0.25, -1.5, 3.75, 0}
	got := decodeVector(encodeVector(vec))
	if len(got) != len(vec) {
		t.Fatalf("length: %d", len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Fatalf("component %d: %v != %v", i, got[i], vec[i])
		}
	}
	if decodeVector(nil) != nil {
		t.Fatal("nil blob must decode to nil")
	}
	if decodeVector([]byte{1, 2, 3}) != nil {
		t.Fatal("truncated blob must decode to nil")
	}
}
