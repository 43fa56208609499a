package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var replicationCmd = &cobra.Command{
	Use:   "replication",
	Short: "Run cross-cluster replication subcommands",
}

var replicationMasterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run replication-master subcommands",
}

var replicationSlaveCmd = &cobra.Command{
	Use:   "slave",
	Short: "Run replication-slave subcommands",
}

func init() {
	replicationCmd.AddCommand(replicationMasterCmd)
	replicationCmd.AddCommand(replicationSlaveCmd)
	replicationMasterCmd.AddCommand(replicationMasterServeCmd)
	replicationSlaveCmd.AddCommand(replicationSlaveServeCmd)
}

// replicationMasterServeCmd is a thin convenience entrypoint: a
// replication master is already started as part of `coordinator serve`
// (pkg/coordinator wires replication.Master in-process). This
// subcommand exists for the topology where replication runs as its own
// process, separate from the coordinator, which this build does not yet
// support standalone.
var replicationMasterServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a standalone replication master",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("replication master serve: not yet implemented standalone; run via `rangevault coordinator serve`")
	},
}

var replicationSlaveServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a standalone replication slave",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("replication slave serve: not yet implemented (no commitlog-backed range-server process exists in this build)")
	},
}
