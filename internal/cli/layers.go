package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memory-router/internal/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "layers",
		Short: "List configured memory layers",
		Run:   runLayers,
	}

	RootCmd.AddCommand(cmd)
}

func runLayers(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		exitErr("load config", err)
	}

	if formatFlag == "text" {
		for _, l := range cfg.Layers {
			policy := l.Capture.OnDuplicate
			if policy == "" {
				policy = "refresh"
			}
			fmt.Printf("%s (priority %d): half-life %.0fd, on_duplicate %s\n",
				l.Name, l.Priority, l.HalfLifeDays, policy)
		}
		return
	}

	type layerInfo struct {
		Name         string   `json:"name"`
		Priority     int      `json:"priority"`
		Header       string   `json:"header"`
		HalfLifeDays float64  `json:"half_life_days"`
		Keywords     []string `json:"keywords,omitempty"`
		AlwaysRecall bool     `json:"always_recall,omitempty"`
		Disabled     bool     `json:"disabled,omitempty"`
		OnDuplicate  string   `json:"on_duplicate"`
		Tags         []string `json:"tags"`
	}

	out := make([]layerInfo, 0, len(cfg.Layers))
	for _, l := range cfg.Layers {
		policy := l.Capture.OnDuplicate
		if policy == "" {
			policy = "refresh"
		}
		out = append(out, layerInfo{
			Name:         l.Name,
			Priority:     l.Priority,
			Header:       l.Header,
			HalfLifeDays: l.HalfLifeDays,
			Keywords:     l.Gate.Keywords,
			AlwaysRecall: l.Gate.AlwaysRecall,
			Disabled:     l.Gate.Disabled,
			OnDuplicate:  policy,
			Tags:         l.Capture.Grammar.Tags,
		})
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
