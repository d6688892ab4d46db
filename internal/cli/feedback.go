package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "feedback [layer] [up|down]",
		Short: "Record usefulness feedback for a layer",
		Long: "Records one usefulness signal against a layer's ledger entry. The same\n" +
			"signal can also travel inline in conversation text as\n" +
			"\"[mem-feedback] layer=<name> useful=<true|false>\".",
		Args: cobra.ExactArgs(2),
		Run:  runFeedback,
	}

	RootCmd.AddCommand(cmd)
}

func runFeedback(cmd *cobra.Command, args []string) {
	layer := args[0]

	var useful bool
	switch args[1] {
	case "up", "true", "1":
		useful = true
	case "down", "false", "0":
		useful = false
	default:
		exitErr("feedback", fmt.Errorf("signal must be up or down, got %q", args[1]))
	}

	e, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	if err := e.Ledger().RecordFeedback(layer, useful); err != nil {
		exitErr("record feedback", err)
	}

	st := e.Ledger().Snapshot()
	b, _ := json.MarshalIndent(st.Layers[layer], "", "  ")
	fmt.Println(string(b))
}
