package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	RangeServersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rangevault_range_servers_total",
			Help: "Total number of range servers by connection status",
		},
		[]string{"status"},
	)

	RangesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rangevault_ranges_total",
			Help: "Total number of ranges by table class",
		},
		[]string{"class"},
	)

	PhantomRangesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rangevault_phantom_ranges_total",
			Help: "Total number of in-flight phantom ranges by staging state",
		},
		[]string{"state"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rangevault_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rangevault_raft_peers_total",
			Help: "Total number of Raft peers in the coordinator cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rangevault_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rangevault_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rangevault_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rangevault_raft_commit_duration_seconds",
			Help:    "Time taken to commit a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangevault_rpc_requests_total",
			Help: "Total number of rangerpc requests by method and status",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rangevault_rpc_request_duration_seconds",
			Help:    "rangerpc request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Recovery metrics (spec §4.3/§4.4)
	RecoveryOperationsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rangevault_recovery_operations_in_flight",
			Help: "Number of RecoveryOperations currently running",
		},
	)

	RecoveryOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rangevault_recovery_operation_duration_seconds",
			Help:    "Time taken for a full failed-server recovery, end to end",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"result"},
	)

	RecoveryPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rangevault_recovery_phase_duration_seconds",
			Help:    "Time taken for one recovery sub-operation phase",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class", "phase"},
	)

	RecoveryQuorumBlocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rangevault_recovery_quorum_blocks_total",
			Help: "Total number of times a recovery sub-operation parked behind the quorum gate",
		},
	)

	RecoveryFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangevault_recovery_failures_total",
			Help: "Total number of recovery sub-operation phase failures by class",
		},
		[]string{"class"},
	)

	// Replication metrics (spec §4.6/§4.7)
	ReplicationSlavesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rangevault_replication_slaves_total",
			Help: "Total number of registered replication slaves by status",
		},
		[]string{"status"},
	)

	ReplicationFragmentsAssigned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rangevault_replication_fragments_assigned",
			Help: "Number of fragments currently assigned to a replication slave",
		},
	)

	ReplicationFragmentsReplicatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rangevault_replication_fragments_replicated_total",
			Help: "Total number of fragments successfully shipped to the remote cluster",
		},
	)

	ReplicationFragmentErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rangevault_replication_fragment_errors_total",
			Help: "Total number of fragment transfer failures",
		},
	)

	ReplicationLagSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rangevault_replication_lag_seconds",
			Help: "Age of the oldest unreplicated fragment still on local disk",
		},
	)

	ReplicationFragmentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rangevault_replication_fragment_duration_seconds",
			Help:    "Time taken to ship one fragment to the remote cluster",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReplicationGCPurgedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangevault_replication_gc_purged_total",
			Help: "Total number of purged directories/files garbage collected",
		},
		[]string{"kind"},
	)

	// Commit log metrics
	CorruptFragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rangevault_corrupt_fragments_total",
			Help: "Total number of commit log fragments found corrupt and moved aside",
		},
	)
)

func init() {
	prometheus.MustRegister(RangeServersTotal)
	prometheus.MustRegister(RangesTotal)
	prometheus.MustRegister(PhantomRangesTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RaftCommitDuration)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)

	prometheus.MustRegister(RecoveryOperationsInFlight)
	prometheus.MustRegister(RecoveryOperationDuration)
	prometheus.MustRegister(RecoveryPhaseDuration)
	prometheus.MustRegister(RecoveryQuorumBlocksTotal)
	prometheus.MustRegister(RecoveryFailuresTotal)

	prometheus.MustRegister(ReplicationSlavesTotal)
	prometheus.MustRegister(ReplicationFragmentsAssigned)
	prometheus.MustRegister(ReplicationFragmentsReplicatedTotal)
	prometheus.MustRegister(ReplicationFragmentErrorsTotal)
	prometheus.MustRegister(ReplicationLagSeconds)
	prometheus.MustRegister(ReplicationFragmentDuration)
	prometheus.MustRegister(ReplicationGCPurgedTotal)

	prometheus.MustRegister(CorruptFragmentsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
