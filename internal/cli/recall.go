package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [prompt]",
		Short: "Recall memory relevant to a prompt",
		Long: "Runs the recall pipeline over every layer and prints the context blocks\n" +
			"that would be prepended to the turn. Layers whose gate rejects the prompt\n" +
			"stay silent.",
		Args: cobra.MinimumNArgs(1),
		Run:  runRecall,
	}

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	prompt := strings.Join(args, " ")

	e, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	blocks := e.Recall(cmd.Context(), prompt)

	if formatFlag == "text" {
		for i, b := range blocks {
			if i > 0 {
				fmt.Println()
			}
			fmt.Println(b.Content)
		}
		return
	}

	if len(blocks) == 0 {
		fmt.Println("[]")
		return
	}
	b, _ := json.MarshalIndent(blocks, "", "  ")
	fmt.Println(string(b))
}
