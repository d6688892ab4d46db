package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memory-router/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "capture [text]",
		Short: "Extract and store memory from conversation text",
		Long: "Runs the capture pipeline over the given text: extracts draft records per\n" +
			"layer grammar, redacts secrets, embeds, and persists. Text can be a\n" +
			"positional arg or piped via stdin. Feedback markers in the text are\n" +
			"applied to the ledger as well.",
		Run: runCapture,
	}

	cmd.Flags().Bool("finalize", false, "Fold the current session into the ledger afterwards")

	RootCmd.AddCommand(cmd)
}

func runCapture(cmd *cobra.Command, args []string) {
	finalize, _ := cmd.Flags().GetBool("finalize")

	// Text: positional arg first, then stdin.
	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			text = string(b)
		}
	}
	if strings.TrimSpace(text) == "" {
		exitErr("capture", fmt.Errorf("text is required (positional arg or stdin)"))
	}

	e, closer, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	defer closer()

	results := e.Capture(cmd.Context(), text)
	applied := e.Ledger().ApplyMarkers(text)
	if finalize {
		if err := e.Ledger().FinalizeSession(); err != nil {
			exitErr("finalize session", err)
		}
	}

	if results == nil {
		results = []engine.CaptureResult{}
	}
	out := struct {
		Layers   []engine.CaptureResult `json:"layers"`
		Feedback int                    `json:"feedback_applied,omitempty"`
	}{Layers: results, Feedback: applied}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
