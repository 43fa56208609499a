package metrics

import (
	"time"
)

// Source is whatever the collector polls for point-in-time counts. A
// coordinator process implements this directly; tests supply a fake.
type Source interface {
	// ConnectedServers returns (connected, total) range server counts.
	ConnectedServers() (connected, total int)
	// RangeCounts returns the number of ranges per table class.
	RangeCounts() map[string]int
	// PhantomRangeCounts returns the number of in-flight phantom ranges
	// per staging state (loaded/replayed/prepared/committed).
	PhantomRangeCounts() map[string]int
	// IsLeader reports whether this process currently holds Raft
	// leadership.
	IsLeader() bool
	// RaftStats returns last_log_index/applied_index/peers, or nil if
	// Raft has not finished bootstrapping yet.
	RaftStats() map[string]uint64
}

// Collector periodically polls a Source and updates the package-level
// Prometheus gauges, the same periodic-poll-and-set idiom
// _examples/cuemby-warren's manager package uses for its own
// cluster/service/task counts.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15-second interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectServerMetrics()
	c.collectRangeMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectServerMetrics() {
	connected, total := c.source.ConnectedServers()
	RangeServersTotal.WithLabelValues("connected").Set(float64(connected))
	RangeServersTotal.WithLabelValues("disconnected").Set(float64(total - connected))
}

func (c *Collector) collectRangeMetrics() {
	for class, count := range c.source.RangeCounts() {
		RangesTotal.WithLabelValues(class).Set(float64(count))
	}
	for state, count := range c.source.PhantomRangeCounts() {
		PhantomRangesTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectRaftMetrics() {
	if c.source.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.source.RaftStats()
	if stats == nil {
		return
	}
	if lastIndex, ok := stats["last_log_index"]; ok {
		RaftLogIndex.Set(float64(lastIndex))
	}
	if appliedIndex, ok := stats["applied_index"]; ok {
		RaftAppliedIndex.Set(float64(appliedIndex))
	}
	if peers, ok := stats["peers"]; ok {
		RaftPeers.Set(float64(peers))
	}
}
