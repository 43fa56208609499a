package recovery

import (
	"context"
	"time"

	"github.com/cuemby/rangevault/pkg/types"
)

// PhantomLoadRequest is the payload of a phantom_load call.
type PhantomLoadRequest struct {
	Source         types.Location
	PlanGeneration uint64
	Fragments      []types.Fragment
	Ranges         []types.QualifiedRange
	States         []types.RangeState
}

// ReplayFragmentsRequest is the payload of a replay_fragments call: the
// destination streams the given fragments' key-value blocks to the
// receivers named in ReceiverPlan for each affected range.
type ReplayFragmentsRequest struct {
	OpID         string
	Attempt      int
	Source       types.Location
	Class        types.TableClass
	Fragments    []types.Fragment
	ReceiverPlan map[types.QualifiedRange]types.Location
	Timeout      time.Duration
}

// PrepareRangesRequest is the payload of a phantom_prepare_ranges call.
type PrepareRangesRequest struct {
	OpID   string
	Source types.Location
	Ranges []types.QualifiedRange
}

// CommitRangesRequest is the payload of a phantom_commit_ranges call.
type CommitRangesRequest struct {
	OpID   string
	Source types.Location
	Ranges []types.QualifiedRange
}

// DestinationClient is the coordinator's view of the RPC surface exposed
// by a recovery destination (spec §6, "Recovery side"). A production
// implementation sends these over pkg/rangerpc; tests and this package's
// own unit tests use an in-process fake.
//
// Every call here is modeled as a synchronous, context-bounded RPC rather
// than the original's fire-and-forget-plus-async-callback shape
// (phantom_prepare_complete, phantom_commit_complete, replay_complete):
// a single coordinator process waiting on its own goroutines is
// observably identical to waiting on callback channels, and every other
// RPC in this repository (pkg/rangerpc's client calls, the mTLS
// certificate load in pkg/security) is modeled the same synchronous way,
// so collapsing these keeps the whole repository to one concurrency
// idiom instead of two.
type DestinationClient interface {
	PhantomLoad(ctx context.Context, dest types.Location, req PhantomLoadRequest) error
	ReplayFragments(ctx context.Context, dest types.Location, req ReplayFragmentsRequest) error
	PhantomPrepareRanges(ctx context.Context, dest types.Location, req PrepareRangesRequest) error
	PhantomCommitRanges(ctx context.Context, dest types.Location, req CommitRangesRequest) error
	AcknowledgeLoad(ctx context.Context, dest types.Location, ranges []types.QualifiedRange) (map[types.QualifiedRange]error, error)
}
