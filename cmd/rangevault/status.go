package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/rangevault/pkg/config"
)

var statusConfigPath string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the configuration a coordinator would start with",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadCoordinator(statusConfigPath)
		if err != nil {
			return fmt.Errorf("loading coordinator config: %w", err)
		}
		fmt.Printf("location:        %s\n", cfg.Location)
		fmt.Printf("bind_addr:       %s\n", cfg.BindAddr)
		fmt.Printf("raft_bind_addr:  %s\n", cfg.RaftBindAddr)
		fmt.Printf("data_dir:        %s\n", cfg.DataDir)
		fmt.Printf("quorum_percent:  %d\n", cfg.QuorumPercent)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "/etc/rangevault/coordinator.yaml", "path to coordinator config")
}
