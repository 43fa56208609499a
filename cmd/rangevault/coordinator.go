package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/rangevault/pkg/config"
	"github.com/cuemby/rangevault/pkg/coordinator"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run coordinator subcommands",
}

var coordinatorConfigPath string

func init() {
	coordinatorCmd.AddCommand(coordinatorServeCmd)
	coordinatorServeCmd.Flags().StringVar(&coordinatorConfigPath, "config", "/etc/rangevault/coordinator.yaml", "path to coordinator config")
}

var coordinatorServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator: Balance Plan Authority, connection manager, recovery, replication master",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadCoordinator(coordinatorConfigPath)
		if err != nil {
			return fmt.Errorf("loading coordinator config: %w", err)
		}

		c, err := coordinator.New(*cfg)
		if err != nil {
			return fmt.Errorf("constructing coordinator: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return c.Serve(ctx)
	},
}
