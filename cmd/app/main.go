package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"FKSEngine/pkg/config"
)

var configPath string

// rootCmd is the base command of the engine binary.
var rootCmd = &cobra.Command{
	Use:   "fks",
	Short: "FKS regime and signal consensus engine",
	Long: `fks classifies market regimes per symbol, scores the session and the market state,
and fuses component signals into weighted composite trade signals.

Use 'fks serve' to run the engine service and 'fks replay' to push a bar file
through the engines offline.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	rootCmd.AddCommand(serveCmd, replayCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
