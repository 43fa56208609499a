package rangerpc

import (
	"github.com/cuemby/rangevault/pkg/rangeerr"
	"github.com/cuemby/rangevault/pkg/recovery"
	"github.com/cuemby/rangevault/pkg/replication"
	"github.com/cuemby/rangevault/pkg/types"
)

// WireError is rangeerr.Error flattened to plain strings so it survives
// a JSON round trip; toError/wireError below convert at the boundary.
type WireError struct {
	Kind string `json:"kind"`
	Op   string `json:"op"`
	Msg  string `json:"msg"`
}

func wireError(op string, err error) *WireError {
	if err == nil {
		return nil
	}
	return &WireError{Kind: rangeerr.KindOf(err).String(), Op: op, Msg: err.Error()}
}

func kindFromString(s string) rangeerr.Kind {
	for k := rangeerr.KindUnknown; k <= rangeerr.KindDuplicateMove; k++ {
		if k.String() == s {
			return k
		}
	}
	return rangeerr.KindUnknown
}

func (e *WireError) toError() error {
	if e == nil {
		return nil
	}
	return rangeerr.New(kindFromString(e.Kind), e.Op, e.Msg)
}

// StatusResponse is the common envelope for RPCs that only report
// success or failure (phantom_load, phantom_update,
// phantom_prepare_ranges, phantom_commit_ranges, replay_fragments,
// finished_fragment, apply_schema_update, update, shutdown). status
// replies with StatusInfoResponse instead.
type StatusResponse struct {
	Error *WireError `json:"error,omitempty"`
}

// --- Recovery side (coordinator <-> destination), spec.md §6 ---

// PhantomLoadRequest carries phantom_load's payload.
type PhantomLoadRequest struct {
	Source         types.Location        `json:"source"`
	PlanGeneration uint64                `json:"plan_generation"`
	Fragments      []types.Fragment      `json:"fragments"`
	Ranges         []types.QualifiedRange `json:"ranges"`
	States         []types.RangeState    `json:"states"`
}

func (r PhantomLoadRequest) toRecovery() recovery.PhantomLoadRequest {
	return recovery.PhantomLoadRequest{
		Source: r.Source, PlanGeneration: r.PlanGeneration,
		Fragments: r.Fragments, Ranges: r.Ranges, States: r.States,
	}
}

func phantomLoadRequestFrom(req recovery.PhantomLoadRequest) PhantomLoadRequest {
	return PhantomLoadRequest{
		Source: req.Source, PlanGeneration: req.PlanGeneration,
		Fragments: req.Fragments, Ranges: req.Ranges, States: req.States,
	}
}

// PhantomUpdateRequest carries phantom_update's payload. No in-process
// caller in this repository invokes this RPC yet (pkg/recovery folds
// incremental phantom updates into the PHANTOM_LOAD/replay path rather
// than a separate streaming call) but the message is defined so the wire
// format matches spec.md §6 in full.
type PhantomUpdateRequest struct {
	Source         types.Location       `json:"source"`
	PlanGeneration uint64               `json:"plan_generation"`
	Range          types.QualifiedRange `json:"range"`
	FragmentID     uint64               `json:"fragment_id"`
	Payload        []byte               `json:"payload"`
}

// receiverPlanEntry is a wire-safe (range, destination) pair standing in
// for map[types.QualifiedRange]types.Location, which does not survive a
// JSON round trip directly (QualifiedRange is a struct, not a string, so
// encoding/json refuses it as a map key).
type receiverPlanEntry struct {
	Range types.QualifiedRange `json:"range"`
	Dest  types.Location       `json:"dest"`
}

func receiverPlanToWire(plan map[types.QualifiedRange]types.Location) []receiverPlanEntry {
	entries := make([]receiverPlanEntry, 0, len(plan))
	for r, d := range plan {
		entries = append(entries, receiverPlanEntry{Range: r, Dest: d})
	}
	return entries
}

func receiverPlanFromWire(entries []receiverPlanEntry) map[types.QualifiedRange]types.Location {
	plan := make(map[types.QualifiedRange]types.Location, len(entries))
	for _, e := range entries {
		plan[e.Range] = e.Dest
	}
	return plan
}

// ReplayFragmentsRequest carries replay_fragments' payload.
type ReplayFragmentsRequest struct {
	OpID         string              `json:"op_id"`
	Attempt      int                 `json:"attempt"`
	Source       types.Location      `json:"source"`
	Class        types.TableClass    `json:"class"`
	Fragments    []types.Fragment    `json:"fragments"`
	ReceiverPlan []receiverPlanEntry `json:"receiver_plan"`
	TimeoutMS    int64               `json:"timeout_ms"`
}

// PrepareRangesRequest carries phantom_prepare_ranges' payload.
type PrepareRangesRequest struct {
	OpID   string                 `json:"op_id"`
	Source types.Location         `json:"source"`
	Ranges []types.QualifiedRange `json:"ranges"`
}

// CommitRangesRequest carries phantom_commit_ranges' payload.
type CommitRangesRequest struct {
	OpID   string                 `json:"op_id"`
	Source types.Location         `json:"source"`
	Ranges []types.QualifiedRange `json:"ranges"`
}

// AcknowledgeLoadRequest carries acknowledge_load's payload.
type AcknowledgeLoadRequest struct {
	Ranges []types.QualifiedRange `json:"ranges"`
}

// ackResult is a wire-safe (range, error) pair standing in for
// map[types.QualifiedRange]error.
type ackResult struct {
	Range types.QualifiedRange `json:"range"`
	Error *WireError           `json:"error,omitempty"`
}

// AcknowledgeLoadResponse carries acknowledge_load's reply.
type AcknowledgeLoadResponse struct {
	Results []ackResult `json:"results"`
	Error   *WireError  `json:"error,omitempty"`
}

// --- Replication master <-> slave, spec.md §6 ---

// AssignFragmentsRequest carries assign_fragments' payload.
type AssignFragmentsRequest struct {
	SlaveLocation types.Location `json:"slave_location"`
	SlaveAddr     string         `json:"slave_addr"`
}

// AssignFragmentsResponse carries assign_fragments' reply.
type AssignFragmentsResponse struct {
	Result replication.AssignmentResult `json:"result"`
	Error  *WireError                   `json:"error,omitempty"`
}

// FinishedFragmentRequest carries finished_fragment's payload.
type FinishedFragmentRequest struct {
	Fragment   string     `json:"fragment"`
	FragErr    *WireError `json:"frag_error,omitempty"`
	LinkedLogs []string   `json:"linked_log_dirs"`
}

// GetReceiverListRequest carries get_receiver_list's payload.
type GetReceiverListRequest struct {
	Cluster string `json:"cluster"`
}

// GetReceiverListResponse carries get_receiver_list's reply.
type GetReceiverListResponse struct {
	Addresses []string   `json:"addresses"`
	Error     *WireError `json:"error,omitempty"`
}

// ApplySchemaUpdateRequest carries notify_schema_update /
// apply_schema_update's payload (the destination cluster is implied by
// the dial target, matching "applied on the remote master").
type ApplySchemaUpdateRequest struct {
	Kind      string `json:"kind"`
	TableName string `json:"table_name"`
	TableID   string `json:"table_id"`
	Schema    string `json:"schema"`
}

// --- Slave <-> remote slave, spec.md §6 ---

// UpdateRequest carries update's payload.
type UpdateRequest struct {
	TableName string `json:"table_name"`
	Payload   []byte `json:"payload"`
}

// StatusRequest and ShutdownRequest carry status()/shutdown(), shared by
// both the replication and slave-to-slave surfaces.
type StatusRequest struct{}

type ShutdownRequest struct{}

// StatusInfoResponse carries status()'s reply.
type StatusInfoResponse struct {
	Status string     `json:"status"`
	Error  *WireError `json:"error,omitempty"`
}
