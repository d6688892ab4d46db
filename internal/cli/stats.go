package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memory-router/internal/ledger"
	"github.com/rcliao/memory-router/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ledger and store statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	e, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	if formatFlag == "text" {
		for _, line := range e.Ledger().Summary() {
			fmt.Println(line)
		}
		return
	}

	storeStats, err := e.Store().Stats(cmd.Context())
	if err != nil {
		exitErr("store stats", err)
	}

	out := struct {
		Ledger  ledger.State   `json:"ledger"`
		Savings ledger.Savings `json:"token_savings"`
		Store   *store.Stats   `json:"store"`
	}{
		Ledger:  e.Ledger().Snapshot(),
		Savings: e.Ledger().ComputeTokenSavings(),
		Store:   storeStats,
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
