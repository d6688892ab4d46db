package rank

import (
	"math"
	"testing"
	"time"

	"github.com/rcliao/memory-router/internal/model"
)

func TestAdjust_DecaysWithAge(t *testing.T) {
	now := time.Now()
	raw := 0.8

	fresh := Adjust(raw, now, 7, now)
	if math.Abs(fresh-raw) > 1e-9 {
		t.Fatalf("zero age should not decay: got %v want %v", fresh, raw)
	}

	weekOld := Adjust(raw, now.AddDate(0, 0, -7), 7, now)
	want := raw * math.Exp(-1)
	if math.Abs(weekOld-want) > 1e-6 {
		t.Fatalf("one half-life: got %v want %v", weekOld, want)
	}

	// Always <= raw for positive half-life
	for _, days := range []int{1, 3, 30, 365} {
		got := Adjust(raw, now.AddDate(0, 0, -days), 7, now)
		if got > raw {
			t.Fatalf("adjusted %v exceeds raw %v at age %dd", got, raw, days)
		}
	}
}

func TestAdjust_DisabledHalfLife(t *testing.T) {
	now := time.Now()
	old := now.AddDate(-1, 0, 0)
	for _, hl := range []float64{0, -1, -7.5} {
		if got := Adjust(0.6, old, hl, now); got != 0.6 {
			t.Fatalf("halfLife %v: got %v, want raw 0.6", hl, got)
		}
	}
}

func TestAdjust_FutureTimestamp(t *testing.T) {
	now := time.Now()
	got := Adjust(0.5, now.Add(time.Hour), 7, now)
	if got != 0.5 {
		t.Fatalf("future timestamp should clamp age to zero: got %v", got)
	}
}

func TestScoreFromDistance(t *testing.T) {
	if got := ScoreFromDistance(0); got != 1 {
		t.Fatalf("distance 0: got %v, want 1", got)
	}
	if got := ScoreFromDistance(1); got != 0.5 {
		t.Fatalf("distance 1: got %v, want 0.5", got)
	}
}

func scoredList(scores ...float64) []model.Scored {
	items := make([]model.Scored, len(scores))
	for i, s := range scores {
		items[i] = model.Scored{Score: s}
	}
	return items
}

func TestSelectCluster_GapBreak(t *testing.T) {
	// 0.6 breaks the 0.08 gap from 0.85; 0.3 is never considered.
	items := scoredList(0.9, 0.85, 0.6, 0.3)
	got := SelectCluster(items, ClusterOptions{MinScore: 0.4, MaxGap: 0.08, MaxCount: 3})
	if len(got) != 2 || got[0].Score != 0.9 || got[1].Score != 0.85 {
		t.Fatalf("got %v, want [0.9 0.85]", got)
	}
}

func TestSelectCluster_MaxCount(t *testing.T) {
	items := scoredList(0.9, 0.89, 0.88, 0.87, 0.86)
	got := SelectCluster(items, ClusterOptions{MinScore: 0.4, MaxGap: 0.08, MaxCount: 3})
	if len(got) != 3 {
		t.Fatalf("got %d items, want 3", len(got))
	}
}

func TestSelectCluster_SkipsBelowFloorWithoutStopping(t *testing.T) {
	// The below-floor 0.3 must not end selection for later qualifying items;
	// sorted input makes that unreachable, but an unsorted defensive caller
	// may still pass one. Skipping keeps 0.9 and 0.85 only.
	items := scoredList(0.9, 0.85, 0.3)
	got := SelectCluster(items, ClusterOptions{MinScore: 0.4, MaxGap: 0.1, MaxCount: 5})
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
}

func TestSelectCluster_FallbackWhenNothingQualifies(t *testing.T) {
	items := scoredList(0.3, 0.2, 0.1, 0.05)
	got := SelectCluster(items, ClusterOptions{MinScore: 0.4, MaxGap: 0.08, MaxCount: 3})
	if len(got) != 3 {
		t.Fatalf("fallback should return first maxCount items, got %d", len(got))
	}
	for i, want := range []float64{0.3, 0.2, 0.1} {
		if got[i].Score != want {
			t.Fatalf("fallback order changed: got %v at %d, want %v", got[i].Score, i, want)
		}
	}
}

func TestSelectCluster_Empty(t *testing.T) {
	if got := SelectCluster(nil, ClusterOptions{MinScore: 0.4, MaxGap: 0.08, MaxCount: 3}); got != nil {
		t.Fatalf("empty input: got %v, want nil", got)
	}
}

func TestSortDesc(t *testing.T) {
	items := scoredList(0.2, 0.9, 0.5)
	SortDesc(items)
	if items[0].Score != 0.9 || items[1].Score != 0.5 || items[2].Score != 0.2 {
		t.Fatalf("not sorted: %v", items)
	}
}
