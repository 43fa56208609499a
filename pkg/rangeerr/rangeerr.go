// Package rangeerr defines the stable error kinds that cross RPC and
// state-machine boundaries in this repository. A Kind is part of the wire
// contract: callers branch on it, not on an error string.
package rangeerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller should react to it.
type Kind int

const (
	// KindUnknown is never produced deliberately; it means a Kind was
	// lost across a boundary that should have preserved it.
	KindUnknown Kind = iota

	// Structural kinds: the caller's view of the world is stale.
	// Recovered by re-reading the relevant plan or map.
	KindRangeNotFound
	KindTableNotFound
	KindRangeAlreadyLoaded
	KindRangesAlreadyLive

	// KindGenerationMismatch: caller's schema generation is older than
	// the server's. The server upgrades itself and the caller retries.
	KindGenerationMismatch

	// KindPlanGenerationMismatch: retried at the coordinator by
	// snapshotting the new plan.
	KindPlanGenerationMismatch

	// KindPhantomRangeMapNotFound: the destination lost its in-memory
	// map. The coordinator restarts at PHANTOM_LOAD.
	KindPhantomRangeMapNotFound

	// KindFragmentAlreadyProcessed is an idempotent success at the
	// coordinator, not a failure.
	KindFragmentAlreadyProcessed

	// KindRequestTimeout is retried; once quorum drops the sub-op parks
	// behind RECOVERY_BLOCKER.
	KindRequestTimeout

	// KindCorruptCommitLog and KindBadKey are logged, the fragment is
	// moved to an error directory, and an administrator is notified.
	// Replication never blocks on a single corrupt fragment.
	KindCorruptCommitLog
	KindBadKey

	// KindClockSkewExceeded is fatal for the specific update; the
	// request is aborted, never retried, because silent retry would
	// violate revision ordering.
	KindClockSkewExceeded

	// KindReplicationClusterNotFound: no destination master available.
	// The slave round-robins to the next known address; if the list is
	// empty it re-fetches from the master on the next tick.
	KindReplicationClusterNotFound

	// KindDuplicateMove: the Balance Plan Authority already has an
	// in-flight move for this (table, range).
	KindDuplicateMove
)

func (k Kind) String() string {
	switch k {
	case KindRangeNotFound:
		return "range_not_found"
	case KindTableNotFound:
		return "table_not_found"
	case KindRangeAlreadyLoaded:
		return "range_already_loaded"
	case KindRangesAlreadyLive:
		return "ranges_already_live"
	case KindGenerationMismatch:
		return "generation_mismatch"
	case KindPlanGenerationMismatch:
		return "plan_generation_mismatch"
	case KindPhantomRangeMapNotFound:
		return "phantom_range_map_not_found"
	case KindFragmentAlreadyProcessed:
		return "fragment_already_processed"
	case KindRequestTimeout:
		return "request_timeout"
	case KindCorruptCommitLog:
		return "corrupt_commit_log"
	case KindBadKey:
		return "bad_key"
	case KindClockSkewExceeded:
		return "clock_skew_exceeded"
	case KindReplicationClusterNotFound:
		return "replication_cluster_not_found"
	case KindDuplicateMove:
		return "duplicate_move"
	default:
		return "unknown"
	}
}

// Structural reports whether a Kind means "caller's model is stale, retry
// after re-reading state" as opposed to a hard failure.
func (k Kind) Structural() bool {
	switch k {
	case KindRangeNotFound, KindTableNotFound, KindRangeAlreadyLoaded, KindRangesAlreadyLive:
		return true
	default:
		return false
	}
}

// Idempotent reports whether a Kind should be treated as a successful
// no-op by the caller rather than a failure.
func (k Kind) Idempotent() bool {
	return k == KindFragmentAlreadyProcessed
}

// Error wraps an underlying cause with a stable Kind and an op label
// naming where it occurred (e.g. "phantom_load", "replication_master.scan").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap builds an Error around an existing error, preserving it for
// errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, and
// KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
