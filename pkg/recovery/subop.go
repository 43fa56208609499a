package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rangevault/pkg/balance"
	"github.com/cuemby/rangevault/pkg/connection"
	"github.com/cuemby/rangevault/pkg/log"
	"github.com/cuemby/rangevault/pkg/rangeerr"
	"github.com/cuemby/rangevault/pkg/types"
)

// SubState is one state of the RecoverRanges sub-operation (spec §4.4).
type SubState int

const (
	SubInitial SubState = iota
	SubPhantomLoad
	SubReplayFragments
	SubPrepare
	SubCommit
	SubAcknowledge
	SubDone
)

func (s SubState) String() string {
	switch s {
	case SubInitial:
		return "initial"
	case SubPhantomLoad:
		return "phantom_load"
	case SubReplayFragments:
		return "replay_fragments"
	case SubPrepare:
		return "prepare"
	case SubCommit:
		return "commit"
	case SubAcknowledge:
		return "acknowledge"
	case SubDone:
		return "done"
	default:
		return "unknown"
	}
}

// errBlocked signals that the quorum gate parked this sub-operation; it
// is not a failure, just a reason to retry on the next scheduler tick
// without making progress (spec's RECOVERY_BLOCKER dependency).
var errBlocked = errors.New("recovery: parked behind quorum gate")

// IsBlocked reports whether err is the quorum-gate park signal.
func IsBlocked(err error) bool { return errors.Is(err, errBlocked) }

// WithdrawnDestinationPolicy controls what happens when a destination
// reports RangesAlreadyLive mid-PHANTOM_LOAD and is withdrawn from the
// replay plan (spec §9, Q2). AssumeComplete is the default.
type WithdrawnDestinationPolicy int

const (
	// AssumeComplete drops the withdrawn destination's fragments from the
	// replay plan without reassigning them: RangesAlreadyLive means some
	// earlier attempt already committed this range, so replaying it again
	// would be redundant.
	AssumeComplete WithdrawnDestinationPolicy = iota
	// Rebalance treats the withdrawal like a lost destination and asks the
	// authority to reassign the withdrawn fragments, within the existing
	// recovery plan, round-robin to other connected destinations.
	Rebalance
)

// RecoverRangesConfig parameterizes one sub-operation.
type RecoverRangesConfig struct {
	QuorumPercent          int
	PhaseTimeout           time.Duration
	WithdrawnDestPolicy    WithdrawnDestinationPolicy
}

// RecoverRanges drives one (failed_location, range_type) pair through
// INITIAL → PHANTOM_LOAD → REPLAY_FRAGMENTS → PREPARE → COMMIT →
// ACKNOWLEDGE → DONE (spec §4.4). It is re-entrant: Tick can be called
// repeatedly (e.g. once per scheduler pass) and makes whatever progress
// the current phase allows before returning.
type RecoverRanges struct {
	OpID           string
	FailedLocation types.Location
	Class          types.TableClass

	state          SubState
	attempt        int
	planGeneration uint64
	plan           *balance.RecoveryPlan

	cfg    RecoverRangesConfig
	bpa    *balance.Authority
	conns  *connection.Manager
	client DestinationClient
	log    zerolog.Logger
}

// NewRecoverRanges constructs a sub-operation for one failed server and
// range class, starting at SubInitial.
func NewRecoverRanges(failed types.Location, class types.TableClass, cfg RecoverRangesConfig, bpa *balance.Authority, conns *connection.Manager, client DestinationClient) *RecoverRanges {
	return &RecoverRanges{
		OpID:           fmt.Sprintf("%s/%s", failed, class),
		FailedLocation: failed,
		Class:          class,
		cfg:            cfg,
		bpa:            bpa,
		conns:          conns,
		client:         client,
		log:            log.WithComponent("recovery").With().Str("op_id", fmt.Sprintf("%s/%s", failed, class)).Logger(),
	}
}

// State returns the sub-operation's current state.
func (r *RecoverRanges) State() SubState { return r.state }

// Done reports whether the sub-operation has reached SubDone.
func (r *RecoverRanges) Done() bool { return r.state == SubDone }

// Attempts returns the number of Tick calls that have actually executed a
// phase (i.e. were not parked behind the quorum gate), used to decide when
// a persistently failing sub-operation is worth an administrator notice.
func (r *RecoverRanges) Attempts() int { return r.attempt }

// Tick advances the sub-operation by at most one phase. It returns
// errBlocked if the quorum gate parked it, and any other error if the
// current phase failed. A failed PHANTOM_LOAD stays in that state; a
// failed REPLAY_FRAGMENTS, PREPARE, COMMIT or ACKNOWLEDGE resets the
// sub-operation to SubInitial, so the next Tick restarts it from a fresh
// plan snapshot.
func (r *RecoverRanges) Tick(ctx context.Context) error {
	if r.state == SubDone {
		return nil
	}

	if !r.conns.QuorumMet(r.cfg.QuorumPercent) {
		return errBlocked
	}

	if r.state != SubInitial {
		plan, gen, ok := r.bpa.CopyRecoveryPlan(r.FailedLocation, r.Class)
		if !ok {
			// The plan disappeared out from under us; nothing left to do.
			r.state = SubDone
			return nil
		}
		if gen != r.planGeneration {
			r.log.Info().Uint64("old_generation", r.planGeneration).Uint64("new_generation", gen).
				Msg("plan generation advanced, restarting at INITIAL")
			r.state = SubInitial
			r.plan = plan
			r.planGeneration = gen
		}
	}

	r.attempt++
	switch r.state {
	case SubInitial:
		return r.doInitial()
	case SubPhantomLoad:
		return r.doPhantomLoad(ctx)
	case SubReplayFragments:
		return r.doReplayFragments(ctx)
	case SubPrepare:
		return r.doPrepare(ctx)
	case SubCommit:
		return r.doCommit(ctx)
	case SubAcknowledge:
		return r.doAcknowledge(ctx)
	default:
		return nil
	}
}

func (r *RecoverRanges) doInitial() error {
	plan, gen, ok := r.bpa.CopyRecoveryPlan(r.FailedLocation, r.Class)
	if !ok || plan.Empty() {
		r.state = SubDone
		return nil
	}
	r.plan = plan
	r.planGeneration = gen
	r.state = SubPhantomLoad
	return nil
}

func (r *RecoverRanges) doPhantomLoad(ctx context.Context) error {
	destinations := r.plan.Destinations()
	err := fanOut(ctx, destinations, func(ctx context.Context, dest types.Location) error {
		ranges := r.plan.RangesByDestination(dest)
		states := make([]types.RangeState, len(ranges))
		for i, qr := range ranges {
			entry, _ := r.plan.Receiver(qr)
			states[i] = entry.State
		}
		fragments := r.plan.FragmentsByDestination(dest)

		err := r.client.PhantomLoad(ctx, dest, PhantomLoadRequest{
			Source:         r.FailedLocation,
			PlanGeneration: r.planGeneration,
			Fragments:      fragments,
			Ranges:         ranges,
			States:         states,
		})
		if err != nil && rangeerr.Is(err, rangeerr.KindRangesAlreadyLive) {
			return r.withdrawDestination(dest)
		}
		return err
	})
	if err != nil {
		return err
	}
	r.state = SubReplayFragments
	return nil
}

// withdrawDestination implements spec §9 Q2: withdraw dest from the
// replay plan, then either leave its fragments dropped (AssumeComplete,
// RangesAlreadyLive means an earlier attempt already replayed them) or
// reassign them to a different destination (Rebalance).
func (r *RecoverRanges) withdrawDestination(dest types.Location) error {
	withdrawn, err := r.bpa.RemoveFromReplayPlan(r.FailedLocation, r.Class, dest)
	if err != nil {
		return err
	}
	if r.cfg.WithdrawnDestPolicy == Rebalance && len(withdrawn) > 0 {
		exclude := map[types.Location]bool{r.FailedLocation: true, dest: true}
		if err := r.bpa.ReassignReplayFragments(r.FailedLocation, r.Class, withdrawn, exclude); err != nil {
			return err
		}
	}
	r.state = SubInitial
	return nil
}

func (r *RecoverRanges) doReplayFragments(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeoutOrDefault())
	defer cancel()

	destinations := destinationsWithFragments(r.plan)
	err := fanOut(ctx, destinations, func(ctx context.Context, dest types.Location) error {
		return r.client.ReplayFragments(ctx, dest, ReplayFragmentsRequest{
			OpID:         r.OpID,
			Attempt:      r.attempt,
			Source:       r.FailedLocation,
			Class:        r.Class,
			Fragments:    r.plan.FragmentsByDestination(dest),
			ReceiverPlan: receiverLocations(r.plan),
			Timeout:      r.cfg.PhaseTimeout,
		})
	})
	if err != nil {
		r.state = SubInitial
		return err
	}
	r.state = SubPrepare
	return nil
}

func (r *RecoverRanges) doPrepare(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeoutOrDefault())
	defer cancel()

	destinations := r.plan.Destinations()
	err := fanOut(ctx, destinations, func(ctx context.Context, dest types.Location) error {
		return r.client.PhantomPrepareRanges(ctx, dest, PrepareRangesRequest{
			OpID:   r.OpID,
			Source: r.FailedLocation,
			Ranges: r.plan.RangesByDestination(dest),
		})
	})
	if err != nil {
		r.state = SubInitial
		return err
	}
	r.state = SubCommit
	return nil
}

func (r *RecoverRanges) doCommit(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeoutOrDefault())
	defer cancel()

	destinations := r.plan.Destinations()
	err := fanOut(ctx, destinations, func(ctx context.Context, dest types.Location) error {
		return r.client.PhantomCommitRanges(ctx, dest, CommitRangesRequest{
			OpID:   r.OpID,
			Source: r.FailedLocation,
			Ranges: r.plan.RangesByDestination(dest),
		})
	})
	if err != nil {
		r.state = SubInitial
		return err
	}
	r.state = SubAcknowledge
	return nil
}

func (r *RecoverRanges) doAcknowledge(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeoutOrDefault())
	defer cancel()

	var acknowledged []types.QualifiedRange
	err := fanOut(ctx, r.plan.Destinations(), func(ctx context.Context, dest types.Location) error {
		ranges := r.plan.RangesByDestination(dest)
		results, err := r.client.AcknowledgeLoad(ctx, dest, ranges)
		if err != nil {
			return err
		}
		for qr, rangeErr := range results {
			if rangeErr == nil {
				acknowledged = append(acknowledged, qr)
			}
		}
		return nil
	})
	if err != nil {
		r.state = SubInitial
		return err
	}

	if len(acknowledged) > 0 {
		if err := r.bpa.RemoveFromReceiverPlan(r.FailedLocation, r.Class, acknowledged); err != nil {
			return err
		}
	}
	r.state = SubDone
	return nil
}

func (r *RecoverRanges) timeoutOrDefault() time.Duration {
	if r.cfg.PhaseTimeout > 0 {
		return r.cfg.PhaseTimeout
	}
	return 30 * time.Second
}

func destinationsWithFragments(plan *balance.RecoveryPlan) []types.Location {
	seen := make(map[types.Location]bool)
	var out []types.Location
	for _, f := range plan.Fragments() {
		dest, ok := plan.ReplayDestination(f)
		if !ok || seen[dest] {
			continue
		}
		seen[dest] = true
		out = append(out, dest)
	}
	return out
}

func receiverLocations(plan *balance.RecoveryPlan) map[types.QualifiedRange]types.Location {
	out := make(map[types.QualifiedRange]types.Location)
	for _, qr := range plan.Ranges() {
		entry, _ := plan.Receiver(qr)
		out[qr] = entry.Destination
	}
	return out
}
