package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"FKSEngine/internal/di"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine service",
	Long: `Run the engine with every configured transport: the bar feed, the Kafka consumers,
the HTTP API and the journal. Blocks until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}

	// Run application (blocks until signal)
	return app.Run(cmd.Context())
}
