// Package connection tracks which range servers are currently live, the
// proxy name each advertised on registration, and the exclusive
// Hyperspace lock a coordinator holds while recovering one of them. It
// answers the two questions the rest of the coordinator asks
// constantly: "how many servers are up right now" (the quorum gate) and
// "which servers can I pick as a recovery destination" (the round-robin
// source the Balance Plan Authority consults).
package connection

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/rangevault/pkg/hyperspace"
	"github.com/cuemby/rangevault/pkg/rangeerr"
	"github.com/cuemby/rangevault/pkg/types"
)

// ServerInfo is what the manager knows about one registered server.
type ServerInfo struct {
	Location  types.Location
	ProxyName string
	Connected bool
}

// Manager is the range-server connection manager (spec component L4).
// total is the number of servers ever registered, not just the currently
// connected ones; the quorum gate divides connected-over-total, so a
// server that is merely disconnected (not yet recovered and removed)
// still counts toward the denominator.
type Manager struct {
	mu sync.Mutex

	servers map[types.Location]*ServerInfo

	hyperspace hyperspace.Service
	locks      map[types.Location]*hyperspace.Handle
}

// New constructs an empty Manager backed by svc for recovery-lock
// acquisition.
func New(svc hyperspace.Service) *Manager {
	return &Manager{
		servers:    make(map[types.Location]*ServerInfo),
		hyperspace: svc,
		locks:      make(map[types.Location]*hyperspace.Handle),
	}
}

// Register adds location with proxyName, marked connected. Re-registering
// an already-known location updates its proxy name and marks it connected
// again (the rejoin path after a server restarts with a fresh connection).
func (m *Manager) Register(location types.Location, proxyName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.servers[location] = &ServerInfo{Location: location, ProxyName: proxyName, Connected: true}
}

// Disconnect marks location as no longer connected without forgetting it;
// the entry is only fully dropped by Remove, once recovery FINALIZE runs.
func (m *Manager) Disconnect(location types.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info, ok := m.servers[location]; ok {
		info.Connected = false
	}
}

// Remove forgets location entirely, called from recovery FINALIZE.
func (m *Manager) Remove(location types.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.servers, location)
}

// ConnectedServers returns every currently connected location, sorted.
// It satisfies balance.ServerSource.
func (m *Manager) ConnectedServers() []types.Location {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Location, 0, len(m.servers))
	for _, info := range m.servers {
		if info.Connected {
			out = append(out, info.Location)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ConnectedCount and Total back the quorum gate of §4.4: a sub-operation
// parks behind RECOVERY_BLOCKER whenever ConnectedCount() * 100 <
// Total() * quorumPercent.
func (m *Manager) ConnectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, info := range m.servers {
		if info.Connected {
			n++
		}
	}
	return n
}

// Total returns the number of servers ever registered and not yet Removed.
func (m *Manager) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.servers)
}

// QuorumMet reports whether the currently connected fraction meets or
// exceeds quorumPercent (0-100) of the registered total. A zero total is
// treated as quorum met: there is nothing to wait for.
func (m *Manager) QuorumMet(quorumPercent int) bool {
	total := m.Total()
	if total == 0 {
		return true
	}
	connected := m.ConnectedCount()
	return connected*100 >= total*quorumPercent
}

// ProxyName returns the proxy name location registered with, if known.
func (m *Manager) ProxyName(location types.Location) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.servers[location]
	if !ok {
		return "", false
	}
	return info.ProxyName, true
}

// AcquireRecoveryLock takes an exclusive Hyperspace lock on
// /servers/<location>, the INITIAL-state gate of the recovery state
// machine: if the lock cannot be acquired, the failed server is actually
// still alive (or has already restarted) and recovery must abort.
func (m *Manager) AcquireRecoveryLock(ctx context.Context, location types.Location) (*hyperspace.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[location]; held {
		return nil, rangeerr.New(rangeerr.KindRangeAlreadyLoaded, "connection.AcquireRecoveryLock",
			fmt.Sprintf("recovery lock for %s already held by this process", location))
	}

	name := recoveryLockName(location)
	handle, err := m.hyperspace.Open(ctx, name, hyperspace.OpenRead|hyperspace.OpenWrite|hyperspace.OpenCreate|hyperspace.OpenLock)
	if err != nil {
		return nil, fmt.Errorf("connection: open lock file for %s: %w", location, err)
	}

	_, acquired, err := m.hyperspace.TryLock(ctx, handle, hyperspace.LockExclusive)
	if err != nil {
		return nil, fmt.Errorf("connection: try-lock for %s: %w", location, err)
	}
	if !acquired {
		_ = m.hyperspace.Close(ctx, handle)
		return nil, rangeerr.New(rangeerr.KindRangeAlreadyLoaded, "connection.AcquireRecoveryLock",
			fmt.Sprintf("%s is still alive: recovery lock held by another holder", location))
	}

	m.locks[location] = handle
	return handle, nil
}

// ReleaseRecoveryLock unlocks and closes the recovery lock for location,
// matching FINALIZE's "remove the Hyperspace file and lock" step; the
// in-memory Hyperspace implementation drops a node's lock state entirely
// once no handle references it, which is the closest analogue to
// deleting the file outright.
func (m *Manager) ReleaseRecoveryLock(ctx context.Context, location types.Location) error {
	m.mu.Lock()
	handle, held := m.locks[location]
	delete(m.locks, location)
	m.mu.Unlock()

	if !held {
		return nil
	}
	if err := m.hyperspace.Unlock(ctx, handle); err != nil {
		return fmt.Errorf("connection: unlock recovery lock for %s: %w", location, err)
	}
	return m.hyperspace.Close(ctx, handle)
}

func recoveryLockName(location types.Location) string {
	return "/servers/" + string(location)
}
