/*
Package metrics provides Prometheus metrics collection and exposition for
rangevault.

The metrics package defines and registers all rangevault metrics using the
Prometheus client library, providing observability into range-server
health, recovery-operation progress, and cross-cluster replication lag.
Metrics are exposed via an HTTP endpoint for scraping by Prometheus
servers.

# Metrics Catalog

Cluster metrics:

rangevault_range_servers_total{status}:
  - Type: Gauge
  - Total range servers by connection status (connected/disconnected)

rangevault_ranges_total{class}:
  - Type: Gauge
  - Total ranges by table class (root/metadata/system/user)

rangevault_phantom_ranges_total{state}:
  - Type: Gauge
  - In-flight phantom ranges by staging state (loaded/replayed/prepared/committed)

Raft metrics:

rangevault_raft_is_leader, rangevault_raft_peers_total,
rangevault_raft_log_index, rangevault_raft_applied_index,
rangevault_raft_apply_duration_seconds, rangevault_raft_commit_duration_seconds:
  - Same shape as any Raft-backed coordinator: leadership gauge, peer
    count, log/applied index, and per-entry apply/commit histograms.

RPC metrics:

rangevault_rpc_requests_total{method, status}, rangevault_rpc_request_duration_seconds{method}:
  - Counter and histogram for every rangerpc call the coordinator or a
    range server issues.

Recovery metrics (spec §4.3/§4.4):

rangevault_recovery_operations_in_flight:
  - Gauge, number of RecoveryOperations currently running.

rangevault_recovery_operation_duration_seconds{result}:
  - Histogram, end-to-end time for one failed-server recovery.

rangevault_recovery_phase_duration_seconds{class, phase}:
  - Histogram, time spent in one RecoverRanges phase
    (phantom_load/replay_fragments/prepare/commit/acknowledge).

rangevault_recovery_quorum_blocks_total, rangevault_recovery_failures_total{class}:
  - Counters for quorum-gate parks and phase failures.

Replication metrics (spec §4.6/§4.7):

rangevault_replication_slaves_total{status}, rangevault_replication_fragments_assigned,
rangevault_replication_fragments_replicated_total, rangevault_replication_fragment_errors_total,
rangevault_replication_lag_seconds, rangevault_replication_fragment_duration_seconds,
rangevault_replication_gc_purged_total{kind}:
  - Slave pool health, assignment backlog, transfer throughput and
    latency, and GC of purged directories/files.

Commit log metrics:

rangevault_corrupt_fragments_total:
  - Counter, fragments found corrupt and moved aside during replay or
    replication scanning.

# Usage

	timer := metrics.NewTimer()
	// ... drive one recovery phase ...
	timer.ObserveDurationVec(metrics.RecoveryPhaseDuration, class.String(), "phantom_load")

	http.Handle("/metrics", metrics.Handler())

# Integration Points

  - pkg/recovery: operation/phase duration, quorum blocks, failures
  - pkg/replication: slave pool, fragment throughput, GC counts
  - pkg/coordinator: Raft and range-server gauges, via Collector
  - pkg/rangerpc: per-method request counters and latency
  - pkg/commitlog: corrupt-fragment counter

# Design Patterns

Package init registration: every metric is registered in init(), so
MustRegister panics immediately on a duplicate name rather than at first
use. Collector polls a narrow Source interface on a fixed interval
(spec-independent of any one coordinator implementation) and only ever
calls Set, matching the push-free, pull-based Prometheus model.

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
