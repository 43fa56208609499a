package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rangeserverCmd = &cobra.Command{
	Use:   "rangeserver",
	Short: "Run range-server subcommands",
}

var rangeserverConfigPath string

func init() {
	rangeserverCmd.AddCommand(rangeserverServeCmd)
	rangeserverServeCmd.Flags().StringVar(&rangeserverConfigPath, "config", "/etc/rangevault/rangeserver.yaml", "path to range-server config")
}

var rangeserverServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a range server (recovery destination + replication slave)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("rangeserver serve: not yet implemented (no commitlog-backed range-server process exists in this build)")
	},
}
