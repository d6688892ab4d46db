package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rcliao/memory-router/internal/config"
	"github.com/rcliao/memory-router/internal/embedding"
	"github.com/rcliao/memory-router/internal/extract"
	"github.com/rcliao/memory-router/internal/gate"
	"github.com/rcliao/memory-router/internal/hooks"
	"github.com/rcliao/memory-router/internal/ledger"
	"github.com/rcliao/memory-router/internal/model"
	"github.com/rcliao/memory-router/internal/rank"
	"github.com/rcliao/memory-router/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Layers: []config.LayerConfig{
			{
				Name:         "goal",
				Priority:     30,
				Header:       "Active goals",
				HalfLifeDays: 14,
				SearchLimit:  10,
				Gate:         gate.Policy{Keywords: []string{"goal", "plan"}},
				// Mock vectors for different texts are effectively random, so
				// keep the floor low and rely on ordering instead.
				Cluster: rank.ClusterOptions{MinScore: 0.01, MaxGap: 1, MaxCount: 3},
				Capture: config.CaptureConfig{
					Grammar:     extract.Grammar{Tags: []string{"goal"}, Fields: []string{"status"}},
					OnDuplicate: "refresh",
				},
			},
			{
				Name:         "episodic",
				Priority:     40,
				Header:       "Relevant past events",
				HalfLifeDays: 7,
				SearchLimit:  10,
				Gate:         gate.Policy{Keywords: []string{"happened", "event"}},
				Cluster:      rank.ClusterOptions{MinScore: 0.01, MaxGap: 1, MaxCount: 3},
				Capture: config.CaptureConfig{
					Grammar:     extract.Grammar{Tags: []string{"event"}},
					OnDuplicate: "append",
				},
			},
		},
	}
}

func newTestEngine(t *testing.T, emb embedding.Embedder) *Engine {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLiteStore(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	led := ledger.Open(filepath.Join(dir, "ledger.json"), 0, nil, nil)
	return New(testConfig(), st, emb, led, nil)
}

func TestCaptureThenRecall(t *testing.T) {
	e := newTestEngine(t, embedding.NewMock(64))
	ctx := context.Background()

	results := e.Capture(ctx, "goal: ship v2\nstatus: in progress")
	if len(results) != 1 || results[0].Layer != "goal" || results[0].Created != 1 {
		t.Fatalf("capture results: %+v", results)
	}

	blocks := e.Recall(ctx, "what is our goal this week?")
	if len(blocks) != 1 || blocks[0].Layer != "goal" {
		t.Fatalf("expected one goal block, got %+v", blocks)
	}
	if !strings.Contains(blocks[0].Content, "Active goals") ||
		!strings.Contains(blocks[0].Content, "ship v2") {
		t.Fatalf("block content: %q", blocks[0].Content)
	}

	st := e.Ledger().Snapshot()
	if st.Layers["goal"].Activations != 1 {
		t.Fatalf("activation not recorded: %+v", st.Layers["goal"])
	}
	if st.Layers["goal"].ExplicitDrafts != 1 {
		t.Fatalf("draft counts not recorded: %+v", st.Layers["goal"])
	}
}

func TestRecall_GateSkipsLayer(t *testing.T) {
	e := newTestEngine(t, embedding.NewMock(64))
	ctx := context.Background()

	e.Capture(ctx, "goal: ship v2")
	if blocks := e.Recall(ctx, "tell me about the weather"); len(blocks) != 0 {
		t.Fatalf("no keyword matched, expected no blocks: %+v", blocks)
	}
	if st := e.Ledger().Snapshot(); len(st.Layers) != 1 || st.Layers["goal"].Activations != 0 {
		t.Fatalf("skipped recall must not record activations: %+v", st.Layers)
	}
}

func TestRecall_DisabledWithoutEmbedder(t *testing.T) {
	e := newTestEngine(t, nil)
	if blocks := e.Recall(context.Background(), "what is our goal?"); blocks != nil {
		t.Fatalf("recall should be disabled: %+v", blocks)
	}
}

func TestCapture_RefreshKeepsOneRow(t *testing.T) {
	e := newTestEngine(t, embedding.NewMock(64))
	ctx := context.Background()

	e.Capture(ctx, "goal: ship v2\nstatus: in progress")
	results := e.Capture(ctx, "goal: ship v2\nstatus: done")
	if len(results) != 1 || results[0].Refreshed != 1 || results[0].Created != 0 {
		t.Fatalf("second capture should refresh: %+v", results)
	}

	stats, err := e.Store().Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRecords != 1 {
		t.Fatalf("refresh policy kept %d rows", stats.TotalRecords)
	}

	rec, err := e.Store().FindKey(ctx, "goal", "goal::ship v2")
	if err != nil || rec == nil {
		t.Fatalf("FindKey: %v %v", rec, err)
	}
	if !strings.Contains(rec.Text, "status: done") {
		t.Fatalf("refresh did not update text: %q", rec.Text)
	}
}

func TestCapture_AppendKeepsHistory(t *testing.T) {
	e := newTestEngine(t, embedding.NewMock(64))
	ctx := context.Background()

	e.Capture(ctx, "event: deployed api v3")
	e.Capture(ctx, "event: deployed api v3")

	stats, _ := e.Store().Stats(ctx)
	if stats.ByLayer["episodic"] != 2 {
		t.Fatalf("append policy kept %d rows", stats.ByLayer["episodic"])
	}
}

func TestCapture_RedactsSecrets(t *testing.T) {
	e := newTestEngine(t, embedding.NewMock(64))
	ctx := context.Background()

	e.Capture(ctx, "goal: rotate the key\nstatus: api_key=sk-abcdef1234567890abcdef")

	rec, err := e.Store().FindKey(ctx, "goal", "goal::rotate the key")
	if err != nil || rec == nil {
		t.Fatalf("FindKey: %v %v", rec, err)
	}
	if strings.Contains(rec.Text, "sk-abcdef") {
		t.Fatalf("secret survived capture: %q", rec.Text)
	}
	if !strings.Contains(rec.Text, extract.Placeholder) {
		t.Fatalf("no redaction placeholder: %q", rec.Text)
	}
}

func TestFailureIsolation_EmbedError(t *testing.T) {
	e := newTestEngine(t, &embedding.Mock{Err: errors.New("provider down")})
	ctx := context.Background()

	if blocks := e.Recall(ctx, "what is our goal?"); len(blocks) != 0 {
		t.Fatalf("failed embed must yield no blocks: %+v", blocks)
	}

	// Capture still extracts and counts drafts; persistence is what fails.
	e.Capture(ctx, "goal: ship v2")
	stats, _ := e.Store().Stats(ctx)
	if stats.TotalRecords != 0 {
		t.Fatalf("no record should persist on embed failure, got %d", stats.TotalRecords)
	}
}

func TestHandleTurnEnd_CaptureFeedbackFinalize(t *testing.T) {
	e := newTestEngine(t, embedding.NewMock(64))
	ctx := context.Background()

	// An activation so the session has something to finalize.
	e.Capture(ctx, "goal: ship v2")
	if blocks := e.Recall(ctx, "status of our goal?"); len(blocks) != 1 {
		t.Fatalf("setup recall failed: %+v", blocks)
	}

	e.HandleTurnEnd(ctx, hooks.TurnEnd{
		Messages: []model.Message{
			{Role: "user", Content: "goal: write migration guide"},
			{Role: "assistant", Content: "noted. [mem-feedback] layer=goal useful=true"},
		},
		Success: true,
	})

	st := e.Ledger().Snapshot()
	if st.Sessions != 1 || st.CurrentSessionChars != 0 {
		t.Fatalf("session not finalized: %+v", st)
	}
	if st.Layers["goal"].UsefulUp != 1 {
		t.Fatalf("feedback marker not applied: %+v", st.Layers["goal"])
	}

	rec, _ := e.Store().FindKey(ctx, "goal", "goal::write migration guide")
	if rec == nil {
		t.Fatal("turn end did not capture from messages")
	}
}

func TestRegister_TurnStartPrependsContext(t *testing.T) {
	e := newTestEngine(t, embedding.NewMock(64))
	ctx := context.Background()
	e.Capture(ctx, "goal: ship v2")

	bus := hooks.NewBus(nil)
	e.Register(bus, 10)

	got := bus.FireTurnStart(ctx, hooks.BeforeTurnStart{Prompt: "what is our goal?"})
	if !strings.Contains(got, "ship v2") {
		t.Fatalf("prepended context: %q", got)
	}

	if got := bus.FireTurnStart(ctx, hooks.BeforeTurnStart{Prompt: "hello there"}); got != "" {
		t.Fatalf("gated prompt produced context: %q", got)
	}
}

func TestBlocksOrderedByPriority(t *testing.T) {
	e := newTestEngine(t, embedding.NewMock(64))
	ctx := context.Background()

	e.Capture(ctx, "goal: ship v2\n\nevent: deployed api v3")
	blocks := e.Recall(ctx, "what happened with our goal plan?")
	if len(blocks) != 2 {
		t.Fatalf("expected both layers, got %+v", blocks)
	}
	// episodic has priority 40, goal 30.
	if blocks[0].Layer != "episodic" || blocks[1].Layer != "goal" {
		t.Fatalf("priority order wrong: %s, %s", blocks[0].Layer, blocks[1].Layer)
	}
}

func TestCapture_ConcurrentLayersPersistAll(t *testing.T) {
	e := newTestEngine(t, embedding.NewMock(64))
	ctx := context.Background()

	// Both layers extract from the same text and write the shared store at
	// the same time; nothing may be lost to lock contention.
	const rounds = 5
	for i := 0; i < rounds; i++ {
		text := fmt.Sprintf("goal: milestone %d\n\nevent: deploy %d", i, i)
		results := e.Capture(ctx, text)
		if len(results) != 2 {
			t.Fatalf("round %d: expected both layers to capture, got %+v", i, results)
		}
	}

	stats, err := e.Store().Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ByLayer["goal"] != rounds || stats.ByLayer["episodic"] != rounds {
		t.Fatalf("lost writes: %+v", stats.ByLayer)
	}
	for i := 0; i < rounds; i++ {
		key := fmt.Sprintf("goal::milestone %d", i)
		rec, err := e.Store().FindKey(ctx, "goal", key)
		if err != nil || rec == nil {
			t.Fatalf("record %q missing after concurrent capture: %v", key, err)
		}
	}
}

func TestNew_DropsBadGrammar(t *testing.T) {
	cfg := testConfig()
	cfg.Layers[0].Capture.Grammar.Patterns = []extract.Pattern{{Expr: "("}}
	dir := t.TempDir()
	st, err := store.NewSQLiteStore(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	led := ledger.Open(filepath.Join(dir, "ledger.json"), 0, nil, nil)

	e := New(cfg, st, embedding.NewMock(64), led, nil)
	names := e.Layers()
	if len(names) != 1 || names[0] != "episodic" {
		t.Fatalf("bad layer should be dropped, kept %v", names)
	}
}
