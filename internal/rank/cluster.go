package rank

import (
	"sort"

	"github.com/rcliao/memory-router/internal/model"
)

// ClusterOptions bounds cluster selection.
type ClusterOptions struct {
	MinScore float64 `json:"min_score" yaml:"min_score"`
	MaxGap   float64 `json:"max_gap" yaml:"max_gap"`
	MaxCount int     `json:"max_count" yaml:"max_count"`
}

// SelectCluster walks a descending-sorted candidate list and picks a
// contiguous, score-homogeneous top group: items below MinScore are skipped
// (not selected, not a stop), and once an item is selected each following
// item must sit within MaxGap of the previously selected score. Selection
// ends at the first gap break or at MaxCount.
//
// If no item reached MinScore, the first MaxCount input items are returned
// unmodified — degraded output beats silently returning nothing.
func SelectCluster(sorted []model.Scored, opts ClusterOptions) []model.Scored {
	if opts.MaxCount <= 0 || len(sorted) == 0 {
		return nil
	}

	var selected []model.Scored
	prev := 0.0
	for _, item := range sorted {
		if item.Score < opts.MinScore {
			continue
		}
		if len(selected) > 0 && prev-item.Score > opts.MaxGap {
			break
		}
		selected = append(selected, item)
		prev = item.Score
		if len(selected) >= opts.MaxCount {
			break
		}
	}

	if len(selected) == 0 {
		n := opts.MaxCount
		if n > len(sorted) {
			n = len(sorted)
		}
		return sorted[:n]
	}
	return selected
}

// SortDesc orders items by descending score, stable for equal scores.
func SortDesc(items []model.Scored) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}
