package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rangevault/pkg/admin"
	"github.com/cuemby/rangevault/pkg/balance"
	"github.com/cuemby/rangevault/pkg/connection"
	"github.com/cuemby/rangevault/pkg/events"
	"github.com/cuemby/rangevault/pkg/hyperspace"
	"github.com/cuemby/rangevault/pkg/log"
	"github.com/cuemby/rangevault/pkg/types"
)

// permanentFailureNotifyEvery is how many failed attempts a sub-operation
// accumulates before doIssueRequests escalates it to the administrator
// hook again, so a stuck recovery pages once loudly rather than once per
// scheduler tick.
const permanentFailureNotifyEvery = 5

// OpState is one state of the top-level recovery operation for a single
// failed server (spec §4.3).
type OpState int

const (
	OpInitial OpState = iota
	OpIssueRequests
	OpFinalize
	OpDone
)

func (s OpState) String() string {
	switch s {
	case OpInitial:
		return "initial"
	case OpIssueRequests:
		return "issue_requests"
	case OpFinalize:
		return "finalize"
	case OpDone:
		return "done"
	default:
		return "unknown"
	}
}

// RangeSource classifies the ranges a failed server was hosting into the
// four recovery-ordered buckets, reading whatever authoritative range
// location metadata the coordinator keeps (the root METADATA range plus
// the RSML for root/metadata themselves).
type RangeSource interface {
	RangesOnServer(ctx context.Context, location types.Location) (map[types.TableClass][]balance.RangeWithState, error)
}

// AdminNotifier is told about recovery lifecycle events worth surfacing
// to an operator, mirroring the original's notify_object_exists-style
// administrator hooks.
type AdminNotifier interface {
	Notify(event *events.Event)
}

// EventNotifier adapts an events.Broker (via its Publish-equivalent) into
// an AdminNotifier. The broker owns delivery; this type only shapes the
// event.
type EventNotifier struct {
	Publish func(event *events.Event)
}

// Notify implements AdminNotifier.
func (n EventNotifier) Notify(event *events.Event) {
	if n.Publish != nil {
		n.Publish(event)
	}
}

// OperationConfig parameterizes one RecoveryOperation.
type OperationConfig struct {
	SubOp RecoverRangesConfig
}

// RecoveryOperation drives one failed server through
// INITIAL → ISSUE_REQUESTS → FINALIZE → DONE (spec §4.3), fanning out to
// one RecoverRanges sub-operation per non-empty range class, in recovery
// order (root, metadata, system, user).
type RecoveryOperation struct {
	FailedLocation types.Location

	state   OpState
	lock    *hyperspace.Handle
	subops  []*RecoverRanges
	started time.Time

	cfg      OperationConfig
	bpa      *balance.Authority
	conns    *connection.Manager
	ranges   RangeSource
	client   DestinationClient
	notifier AdminNotifier
	log      zerolog.Logger
}

// NewRecoveryOperation constructs an operation for one failed server,
// starting at OpInitial.
func NewRecoveryOperation(failed types.Location, cfg OperationConfig, bpa *balance.Authority, conns *connection.Manager, ranges RangeSource, client DestinationClient, notifier AdminNotifier) *RecoveryOperation {
	return &RecoveryOperation{
		FailedLocation: failed,
		cfg:            cfg,
		bpa:            bpa,
		conns:          conns,
		ranges:         ranges,
		client:         client,
		notifier:       notifier,
		log:            log.WithComponent("recovery").With().Str("failed_location", string(failed)).Logger(),
	}
}

// State returns the operation's current state.
func (op *RecoveryOperation) State() OpState { return op.state }

// Done reports whether the operation has reached OpDone.
func (op *RecoveryOperation) Done() bool { return op.state == OpDone }

// Tick advances the operation by performing whatever the current state
// allows. Like RecoverRanges.Tick, it is re-entrant and meant to be
// called once per scheduler pass.
func (op *RecoveryOperation) Tick(ctx context.Context) error {
	switch op.state {
	case OpInitial:
		return op.doInitial(ctx)
	case OpIssueRequests:
		return op.doIssueRequests(ctx)
	case OpFinalize:
		return op.doFinalize(ctx)
	default:
		return nil
	}
}

func (op *RecoveryOperation) doInitial(ctx context.Context) error {
	lock, err := op.conns.AcquireRecoveryLock(ctx, op.FailedLocation)
	if err != nil {
		return fmt.Errorf("recovery: acquire lock for %s: %w", op.FailedLocation, err)
	}
	op.lock = lock
	op.started = time.Now()

	rangesByType, err := op.ranges.RangesOnServer(ctx, op.FailedLocation)
	if err != nil {
		return fmt.Errorf("recovery: classify ranges on %s: %w", op.FailedLocation, err)
	}

	if _, err := op.bpa.CreateRecoveryPlan(op.FailedLocation, rangesByType); err != nil {
		return fmt.Errorf("recovery: create plan for %s: %w", op.FailedLocation, err)
	}

	op.notifier.Notify(admin.FailoverStarted(string(op.FailedLocation)))

	op.subops = nil
	for _, class := range types.AllTableClasses {
		if len(rangesByType[class]) == 0 {
			continue
		}
		op.subops = append(op.subops, NewRecoverRanges(op.FailedLocation, class, op.cfg.SubOp, op.bpa, op.conns, op.client))
	}

	op.state = OpIssueRequests
	return nil
}

// doIssueRequests ticks every sub-operation once, in recovery order. Root
// and metadata must each fully reach DONE before the next class's
// sub-operation is ticked, since user ranges cannot safely phantom-load
// until the METADATA table that names them is itself live again.
func (op *RecoveryOperation) doIssueRequests(ctx context.Context) error {
	for _, sub := range op.subops {
		if sub.Done() {
			continue
		}
		if err := sub.Tick(ctx); err != nil && !IsBlocked(err) {
			op.log.Error().Err(err).Str("class", sub.Class.String()).Msg("recovery sub-operation failed, will retry")
			if sub.Attempts()%permanentFailureNotifyEvery == 0 {
				op.notifier.Notify(admin.RecoveryPermanentFailure(string(op.FailedLocation), sub.Class.String(), sub.Attempts(), err))
			}
		}
		// Whether this class finished, blocked, or errored, later classes
		// must not start until it is DONE.
		if !sub.Done() {
			return nil
		}
	}
	op.state = OpFinalize
	return nil
}

func (op *RecoveryOperation) doFinalize(ctx context.Context) error {
	if err := op.bpa.RemoveRecoveryPlan(op.FailedLocation); err != nil {
		return fmt.Errorf("recovery: remove plan for %s: %w", op.FailedLocation, err)
	}
	if err := op.conns.ReleaseRecoveryLock(ctx, op.FailedLocation); err != nil {
		op.log.Warn().Err(err).Msg("releasing recovery lock failed, continuing")
	}
	op.conns.Remove(op.FailedLocation)

	op.notifier.Notify(admin.FailoverCompleted(string(op.FailedLocation), time.Since(op.started)))

	op.state = OpDone
	return nil
}
