// Package cli implements the memory-router CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/memory-router/internal/config"
	"github.com/rcliao/memory-router/internal/embedding"
	"github.com/rcliao/memory-router/internal/engine"
	"github.com/rcliao/memory-router/internal/ledger"
	"github.com/rcliao/memory-router/internal/store"
	"github.com/rcliao/memory-router/internal/tokens"
)

var (
	cfgPath    string
	formatFlag string
	verbose    bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memory-router",
	Short: "Layered long-term memory for conversational agents",
	Long: "Routes conversation turns through configured memory layers: recall injects\n" +
		"relevant past records before a turn, capture extracts new records after it,\n" +
		"and a ledger tracks what each layer earns its context budget with.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config path (default: $MEMORY_ROUTER_CONFIG or ~/.memory-router/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine internals to stderr")
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openEngine assembles the full engine from configuration. The returned
// closer flushes and releases everything the engine holds open.
func openEngine() (*engine.Engine, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger()

	var st store.Store
	switch cfg.Store.Backend {
	case "chromem":
		st, err = store.NewChromemStore(cfg.Store.Path)
	default:
		st, err = store.NewSQLiteStore(cfg.Store.Path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	emb, err := cfg.Embedding.Build()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if emb != nil {
		if cached, err := embedding.NewCached(emb, logger); err == nil {
			emb = cached
		} else {
			logger.Warn("embedding cache unavailable", zap.Error(err))
		}
	}

	led := ledger.Open(cfg.Ledger.Path, cfg.Ledger.BaselineChars, tokens.NewCounter(logger), logger)
	e := engine.New(cfg, st, emb, led, logger)

	closer := func() {
		st.Close()
		_ = logger.Sync()
	}
	return e, closer, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
