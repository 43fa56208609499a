// Package coordinator wires together the components that make up one
// coordinator process: the Balance Plan Authority (pkg/balance), the
// range-server connection roster (pkg/connection), the recovery state
// machine (pkg/recovery), the cross-cluster replication master
// (pkg/replication), and the gRPC transport (pkg/rangerpc) those talk
// over. A thin Raft layer (github.com/hashicorp/raft +
// github.com/hashicorp/raft-boltdb), grounded on
// _examples/cuemby-warren/pkg/manager/manager.go and fsm.go, gives the
// coordinator leader election across replicas: bootstrapRaft brings up a
// single-node cluster today (RaftStats/IsLeader, exposed through
// pkg/metrics, are live), the same BootstrapCluster-guarded-by-
// HasExistingState sequence manager.go's Bootstrap uses.
//
// FSM and Command (fsm.go) define the replicated-command path the same
// shape as _examples/cuemby-warren's WarrenFSM.Apply/Command: an op name plus a
// JSON payload, dispatched by FSM.Apply straight through to the Balance
// Plan Authority's own mutators, each of which still persists to its
// own replica's local metalog (Raft orders commands, it does not
// replace metalog as the durability mechanism, so Snapshot/Restore are
// deliberate no-ops). That path is not yet a caller of
// (*raft.Raft).Apply: HandleServerFailure and the recovery tick loop
// call the Balance Plan Authority directly rather than proposing a
// Command, because pkg/recovery.RecoveryOperation holds a concrete
// *balance.Authority rather than an interface a Raft-proposing wrapper
// could stand in for. Multi-coordinator deployments would need that
// interface introduced in pkg/recovery before FSM.Apply sees real
// traffic; single-coordinator deployments (the only topology this
// build's config supports — config.Coordinator has no peer list) are
// unaffected, since there is nothing to replicate to.
package coordinator
