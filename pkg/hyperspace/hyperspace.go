// Package hyperspace defines the lock/metadata service this repository
// relies on for "which process owns this location" and "which process is
// the active replication master" style coordination, plus an in-memory
// implementation suitable for a single coordinator process or tests.
package hyperspace

import "context"

// LockMode is the mode requested or held on a named file.
type LockMode int

const (
	LockNone LockMode = iota
	LockShared
	LockExclusive
)

func (m LockMode) String() string {
	switch m {
	case LockShared:
		return "shared"
	case LockExclusive:
		return "exclusive"
	default:
		return "none"
	}
}

// OpenFlags control how Open treats an existing (or missing) file.
type OpenFlags uint32

const (
	OpenRead OpenFlags = 1 << iota
	OpenWrite
	OpenCreate
	OpenLock
)

// Handle is a named file opened by one caller. It is not safe for
// concurrent use by multiple goroutines; each caller should own its
// handle exclusively, matching how a range server owns its own
// /servers/<location> handle.
type Handle struct {
	ID    uint64
	Name  string
	Flags OpenFlags
}

// Sequencer is returned by a successful TryLock; it orders lock holders
// so a stale holder's writes can be detected and rejected downstream.
type Sequencer struct {
	Name       string
	Mode       LockMode
	Generation uint64
}

// EventType enumerates the callback events the service delivers.
type EventType string

// EventLockReleased fires when a lock on a name is released, whether by
// explicit Unlock or by the holder's session being declared dead.
const EventLockReleased EventType = "lock_released"

// Event is delivered to subscribers of a name.
type Event struct {
	Name string
	Type EventType
}

// Service is the lock/metadata surface consumed by the coordinator (for
// /servers/<location> and /replication/master locks) and by the
// replication master (for per-cluster slave registration).
type Service interface {
	// Open opens or creates name according to flags.
	Open(ctx context.Context, name string, flags OpenFlags) (*Handle, error)

	// Close releases h without necessarily releasing any lock it holds;
	// callers that hold a lock should Unlock first. A real lock service
	// would release the lock automatically on session loss; the
	// in-memory implementation does the same when Close is called
	// without a prior Unlock, to model a crashed holder.
	Close(ctx context.Context, h *Handle) error

	// TryLock attempts to acquire mode on h's name. It returns
	// (sequencer, true, nil) on success, (nil, false, nil) if the lock
	// is currently held incompatibly by another handle, and a non-nil
	// error only for a structural problem (e.g. h was never opened with
	// OpenLock).
	TryLock(ctx context.Context, h *Handle, mode LockMode) (*Sequencer, bool, error)

	// Unlock releases whatever lock h holds and notifies subscribers of
	// name with EventLockReleased.
	Unlock(ctx context.Context, h *Handle) error

	// AttrGet reads a named attribute on name. It returns (nil, false,
	// nil) if the attribute has never been set.
	AttrGet(ctx context.Context, name, key string) ([]byte, bool, error)

	// AttrSet writes a named attribute on name, creating name if it does
	// not yet exist.
	AttrSet(ctx context.Context, name, key string, value []byte) error

	// Subscribe returns a channel of events for name and a function that
	// unsubscribes it. The channel is closed by the returned function,
	// never by the service.
	Subscribe(name string) (<-chan Event, func())
}
