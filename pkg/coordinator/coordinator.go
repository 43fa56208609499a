package coordinator

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	"github.com/cuemby/rangevault/pkg/admin"
	"github.com/cuemby/rangevault/pkg/balance"
	"github.com/cuemby/rangevault/pkg/config"
	"github.com/cuemby/rangevault/pkg/connection"
	"github.com/cuemby/rangevault/pkg/dfs"
	"github.com/cuemby/rangevault/pkg/events"
	"github.com/cuemby/rangevault/pkg/hyperspace"
	"github.com/cuemby/rangevault/pkg/log"
	"github.com/cuemby/rangevault/pkg/metalog"
	"github.com/cuemby/rangevault/pkg/metrics"
	"github.com/cuemby/rangevault/pkg/rangerpc"
	"github.com/cuemby/rangevault/pkg/recovery"
	"github.com/cuemby/rangevault/pkg/replication"
	"github.com/cuemby/rangevault/pkg/types"
)

// Coordinator owns one coordinator process's state: the Balance Plan
// Authority, the range-server connection roster, the replication master,
// in-flight recovery operations, and the gRPC server those talk over.
// It implements pkg/metrics.Source directly, the same "the top-level
// process is its own metrics Source" shape _examples/cuemby-warren's
// Manager uses with pkg/manager/metrics_collector.go.
type Coordinator struct {
	cfg config.Coordinator
	log zerolog.Logger

	fs    dfs.Filesystem
	hs    hyperspace.Service
	store *metalog.Store

	conns  *connection.Manager
	bpa    *balance.Authority
	ranges *metalogRangeSource
	master *replication.Master
	broker *events.Broker
	notify *admin.Hook

	dialer *rangerpc.Dialer
	server *rangerpc.Server

	raft    *raft.Raft
	fsm     *FSM
	metrics *metrics.Collector

	mu         sync.Mutex
	recoveries map[types.Location]*recovery.RecoveryOperation

	stopCh chan struct{}
}

// New constructs every component a coordinator process needs from cfg,
// but does not start serving traffic or Raft yet; call Serve for that.
func New(cfg config.Coordinator) (*Coordinator, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("coordinator: creating data dir: %w", err)
	}

	fs, err := dfs.NewLocalFilesystem(filepath.Join(cfg.DataDir, "dfs"))
	if err != nil {
		return nil, fmt.Errorf("coordinator: constructing local filesystem: %w", err)
	}

	hs := hyperspace.NewInMemoryService()

	store, err := metalog.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("coordinator: opening metalog: %w", err)
	}

	conns := connection.New(hs)

	bpa, err := balance.New(store, conns)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("coordinator: constructing balance authority: %w", err)
	}

	broker := events.NewBroker()
	notify := admin.New(broker)

	master, err := replication.New(store, fs, hs, notify, replication.Config{
		TestMode:  cfg.TestMode,
		ServerDir: cfg.ServerDir,
		ErrorDir:  cfg.ErrorDir,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("coordinator: constructing replication master: %w", err)
	}

	dialer, err := rangerpc.NewDialer("coordinator", cfg.Location)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("coordinator: constructing rpc dialer: %w", err)
	}

	server, err := rangerpc.NewServer("coordinator", cfg.Location)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("coordinator: constructing rpc server: %w", err)
	}
	server.RegisterMaster(newMasterHandler(master))

	c := &Coordinator{
		cfg:        cfg,
		log:        log.WithComponent("coordinator").With().Str("location", cfg.Location).Logger(),
		fs:         fs,
		hs:         hs,
		store:      store,
		conns:      conns,
		bpa:        bpa,
		ranges:     newMetalogRangeSource(store),
		master:     master,
		broker:     broker,
		notify:     notify,
		dialer:     dialer,
		server:     server,
		recoveries: make(map[types.Location]*recovery.RecoveryOperation),
		stopCh:     make(chan struct{}),
	}
	c.fsm = NewFSM(bpa)
	c.metrics = metrics.NewCollector(c)
	return c, nil
}

// Serve bootstraps Raft (single-node, unless cfg later grows peer
// discovery), starts the gRPC server, the metrics collector, and the
// recovery scheduler loop, and blocks until ctx is canceled.
func (c *Coordinator) Serve(ctx context.Context) error {
	if err := c.bootstrapRaft(); err != nil {
		return err
	}

	c.metrics.Start()
	defer c.metrics.Stop()

	serveErrs := make(chan error, 1)
	go func() {
		c.log.Info().Str("addr", c.cfg.BindAddr).Msg("coordinator rpc server listening")
		serveErrs <- c.server.Serve(c.cfg.BindAddr)
	}()

	ticker := time.NewTicker(c.cfg.RecoveryTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.server.Stop()
			return c.Close()
		case err := <-serveErrs:
			return err
		case <-ticker.C:
			c.tickRecoveries(ctx)
		}
	}
}

func (c *Coordinator) bootstrapRaft() error {
	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(c.cfg.Location)

	addr, err := net.ResolveTCPAddr("tcp", c.cfg.RaftBindAddr)
	if err != nil {
		return fmt.Errorf("coordinator: resolving raft bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(c.cfg.RaftBindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("coordinator: creating raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(c.cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("coordinator: creating raft snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.cfg.DataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("coordinator: creating raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("coordinator: creating raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("coordinator: creating raft node: %w", err)
	}
	c.raft = r

	hasState, err := raft.HasExistingState(logStore, stableStore, snapshotStore)
	if err != nil {
		return fmt.Errorf("coordinator: checking existing raft state: %w", err)
	}
	if !hasState {
		future := r.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
		})
		if err := future.Error(); err != nil {
			return fmt.Errorf("coordinator: bootstrapping raft cluster: %w", err)
		}
	}
	return nil
}

// Close releases every resource Serve does not already tear down on its
// own (Serve stops the gRPC server before calling Close, and stops the
// metrics collector after Close returns).
func (c *Coordinator) Close() error {
	c.dialer.Close()
	if c.raft != nil {
		c.raft.Shutdown()
	}
	return c.store.Close()
}

// RegisterServer records a range server as connected, the entrypoint a
// rangerpc-based registration RPC will eventually drive.
func (c *Coordinator) RegisterServer(location types.Location, proxyName string) {
	c.conns.Register(location, proxyName)
}

// HandleServerFailure starts a RecoveryOperation for location if one is
// not already in flight.
func (c *Coordinator) HandleServerFailure(location types.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, inFlight := c.recoveries[location]; inFlight {
		return
	}

	destClient := rangerpc.NewDestinationClient(c.dialer, c.conns)
	opCfg := recovery.OperationConfig{
		SubOp: recovery.RecoverRangesConfig{
			QuorumPercent:       c.cfg.QuorumPercent,
			PhaseTimeout:        c.cfg.PhaseTimeout,
			WithdrawnDestPolicy: c.cfg.WithdrawnPolicy(),
		},
	}
	notifier := recovery.EventNotifier{Publish: c.broker.Publish}
	op := recovery.NewRecoveryOperation(location, opCfg, c.bpa, c.conns, c.ranges, destClient, notifier)

	c.recoveries[location] = op
	c.notify.Notify(&events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventServerFailed,
		Severity:  events.SeverityError,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("recovery started for %s", location),
		Metadata:  map[string]string{"location": string(location)},
	})
}

func (c *Coordinator) tickRecoveries(ctx context.Context) {
	c.mu.Lock()
	active := make(map[types.Location]*recovery.RecoveryOperation, len(c.recoveries))
	for loc, op := range c.recoveries {
		active[loc] = op
	}
	c.mu.Unlock()

	for loc, op := range active {
		if err := op.Tick(ctx); err != nil && !recovery.IsBlocked(err) {
			c.log.Warn().Err(err).Str("location", string(loc)).Msg("recovery operation tick failed")
			continue
		}
		if op.Done() {
			c.mu.Lock()
			delete(c.recoveries, loc)
			c.mu.Unlock()
			c.conns.Remove(loc)
		}
	}
}

// --- pkg/metrics.Source ---

// ConnectedServers implements metrics.Source.
func (c *Coordinator) ConnectedServers() (connected, total int) {
	return c.conns.ConnectedCount(), c.conns.Total()
}

// PhantomRangeCounts implements metrics.Source. No central phantom-range
// tracker exists yet at the coordinator level (pkg/phantom tracks
// per-destination staging state, not a coordinator-wide view), so this
// reports an empty map rather than fabricating counts.
func (c *Coordinator) PhantomRangeCounts() map[string]int {
	return map[string]int{}
}

// IsLeader implements metrics.Source.
func (c *Coordinator) IsLeader() bool {
	if c.raft == nil {
		return false
	}
	return c.raft.State() == raft.Leader
}

// RaftStats implements metrics.Source.
func (c *Coordinator) RaftStats() map[string]uint64 {
	if c.raft == nil {
		return nil
	}
	stats := c.raft.Stats()
	out := make(map[string]uint64, len(stats))
	for k, v := range stats {
		var n uint64
		_, err := fmt.Sscanf(v, "%d", &n)
		if err == nil {
			out[k] = n
		}
	}
	return out
}
