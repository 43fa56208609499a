package coordinator

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/cuemby/rangevault/pkg/balance"
	"github.com/cuemby/rangevault/pkg/types"
)

// Command is one entry in the coordinator's Raft log: an operation name
// plus its JSON-encoded argument, the same Op/Data shape
// _examples/cuemby-warren/pkg/manager/fsm.go uses for WarrenFSM.Command.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opRegisterMove         = "register_move"
	opMoveComplete         = "move_complete"
	opCreateRecoveryPlan   = "create_recovery_plan"
	opRemoveRecoveryPlan   = "remove_recovery_plan"
	opRemoveFromReplayPlan = "remove_from_replay_plan"
)

type moveCompleteArgs struct {
	Table types.TableId  `json:"table"`
	Range types.RangeSpec `json:"range"`
}

type createRecoveryPlanArgs struct {
	Failed        types.Location                          `json:"failed"`
	RangesByClass map[types.TableClass][]balance.RangeWithState `json:"ranges_by_class"`
}

type removeRecoveryPlanArgs struct {
	Failed types.Location `json:"failed"`
}

type removeFromReplayPlanArgs struct {
	Failed      types.Location   `json:"failed"`
	Class       types.TableClass `json:"class"`
	Destination types.Location   `json:"destination"`
}

// FSM is the coordinator's Raft state machine. It owns no state of its
// own: every op dispatches straight to the Balance Plan Authority, whose
// own mutators persist to this replica's local metalog. That makes
// Snapshot/Restore no-ops here — a restarted or newly-joined replica
// recovers its state from metalog via balance.New, not from a Raft
// snapshot blob — documented in DESIGN.md rather than left implicit.
type FSM struct {
	mu  sync.Mutex
	bpa *balance.Authority
}

// NewFSM constructs an FSM dispatching onto bpa.
func NewFSM(bpa *balance.Authority) *FSM {
	return &FSM{bpa: bpa}
}

// Apply implements raft.FSM. It is invoked once per committed log entry,
// identically on every coordinator replica.
func (f *FSM) Apply(entry *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(entry.Data, &cmd); err != nil {
		return fmt.Errorf("coordinator: unmarshal raft command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opRegisterMove:
		var spec types.RangeMoveSpec
		if err := json.Unmarshal(cmd.Data, &spec); err != nil {
			return err
		}
		return f.bpa.RegisterMove(spec)

	case opMoveComplete:
		var args moveCompleteArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		return f.bpa.MoveComplete(args.Table, args.Range, nil)

	case opCreateRecoveryPlan:
		var args createRecoveryPlanArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		_, err := f.bpa.CreateRecoveryPlan(args.Failed, args.RangesByClass)
		return err

	case opRemoveRecoveryPlan:
		var args removeRecoveryPlanArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		return f.bpa.RemoveRecoveryPlan(args.Failed)

	case opRemoveFromReplayPlan:
		var args removeFromReplayPlanArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		_, err := f.bpa.RemoveFromReplayPlan(args.Failed, args.Class, args.Destination)
		return err

	default:
		return fmt.Errorf("coordinator: unknown raft command %q", cmd.Op)
	}
}

// Snapshot implements raft.FSM. See the FSM doc comment: durable state
// lives in metalog, not in a Raft snapshot, so the snapshot is empty.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return emptySnapshot{}, nil
}

// Restore implements raft.FSM.
func (f *FSM) Restore(rc io.ReadCloser) error {
	return rc.Close()
}

type emptySnapshot struct{}

func (emptySnapshot) Persist(sink raft.SnapshotSink) error {
	return sink.Close()
}

func (emptySnapshot) Release() {}

// encodeCommand is the Apply-side mirror of the Command construction a
// caller does before calling raft.Raft.Apply.
func encodeCommand(op string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("coordinator: encode %s command: %w", op, err)
	}
	return json.Marshal(Command{Op: op, Data: payload})
}
