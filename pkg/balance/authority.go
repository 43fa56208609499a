// Package balance implements the Balance Plan Authority: the single
// source of truth for where every in-flight range move and recovery
// assignment is headed, so that recovery, steady-state balancing, and
// range splits can never issue conflicting destinations for the same
// range.
package balance

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/rangevault/pkg/metalog"
	"github.com/cuemby/rangevault/pkg/rangeerr"
	"github.com/cuemby/rangevault/pkg/types"
)

// ServerSource supplies the currently connected range servers. The
// Authority consults it for round-robin destination selection; it never
// caches the result across calls, since recovery deliberately wants the
// freshest connection view at the point of assignment.
type ServerSource interface {
	ConnectedServers() []types.Location
}

// RangeWithState is one range and the state it was found in on the
// failed server's own metalog, the input to CreateRecoveryPlan.
type RangeWithState struct {
	Range types.QualifiedRange
	State types.RangeState
}

// Authority is the process-wide Balance Plan Authority. It is created
// lazily by its owner (pkg/coordinator) and seeded from the metalog on
// startup; all of its exported methods are safe for concurrent use.
type Authority struct {
	mu sync.Mutex

	store   *metalog.Store
	servers ServerSource

	// plans[location][class] is nil until a recovery plan exists for
	// that (failed server, range type) pair.
	plans map[types.Location]map[types.TableClass]*RecoveryPlan

	moves map[types.QualifiedRange]types.RangeMoveSpec

	generation uint64
	rrCursor   int
}

const singletonKey = "singleton"

// New constructs an Authority backed by store, seeding its in-memory
// state from whatever was last persisted (empty state if none was).
func New(store *metalog.Store, servers ServerSource) (*Authority, error) {
	a := &Authority{
		store:   store,
		servers: servers,
		plans:   make(map[types.Location]map[types.TableClass]*RecoveryPlan),
		moves:   make(map[types.QualifiedRange]types.RangeMoveSpec),
	}

	var wire wireAuthority
	found, err := store.Get(metalog.KindBalancePlanAuthority, singletonKey, &wire)
	if err != nil {
		return nil, fmt.Errorf("balance: loading persisted state: %w", err)
	}
	if found {
		a.generation = wire.Generation
		a.moves = decodeMoves(wire.Moves)
		a.plans = decodePlans(wire.Plans)
	}
	return a, nil
}

// Generation returns the current monotone generation counter.
func (a *Authority) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation
}

// RegisterMove appends spec to the in-flight move set. It fails with
// rangeerr.KindDuplicateMove if (spec.Table without generation, spec.Range)
// is already present.
func (a *Authority) RegisterMove(spec types.RangeMoveSpec) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	qr := spec.Qualified()
	for existing := range a.moves {
		if existing.Table.Name == qr.Table.Name && existing.Range == qr.Range {
			return rangeerr.New(rangeerr.KindDuplicateMove, "balance.RegisterMove",
				fmt.Sprintf("range %s already has an in-flight move", qr))
		}
	}
	a.moves[qr] = spec
	return a.persistLocked()
}

// GetBalanceDestination returns the already-registered destination for
// (table, rng), or, if none, a fresh round-robin choice over connected
// servers. A fresh choice is never persisted by this call; only
// RegisterMove or CreateRecoveryPlan commit a destination.
func (a *Authority) GetBalanceDestination(table types.TableId, rng types.RangeSpec) (types.Location, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	qr := types.QualifiedRange{Table: table, Range: rng}
	if mv, ok := a.moves[qr]; ok {
		return mv.Destination, true
	}

	connected := a.servers.ConnectedServers()
	if len(connected) == 0 {
		return "", false
	}
	sort.Slice(connected, func(i, j int) bool { return connected[i] < connected[j] })
	pick := connected[a.rrCursor%len(connected)]
	a.rrCursor++
	return pick, true
}

// MoveComplete removes (table, rng) from the in-flight set, regardless of
// whether it completed successfully; err is accepted for symmetry with
// the original API but does not change the outcome here, since a failed
// move still frees the range for a future move attempt.
func (a *Authority) MoveComplete(table types.TableId, rng types.RangeSpec, _ error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.moves, types.QualifiedRange{Table: table, Range: rng})
	return a.persistLocked()
}

// CreateRecoveryPlan builds a RecoveryPlan per non-empty range-type bucket
// in rangesByType for failed, atomically rebalancing any plan that
// currently targets failed, dropping in-flight moves that pointed at it,
// and bumping generation. It is a no-op if failed already has a recovery
// plan in flight, matching the original's guard against double-recovering
// the same server.
func (a *Authority) CreateRecoveryPlan(failed types.Location, rangesByType map[types.TableClass][]RangeWithState) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.plans[failed]; exists {
		return false, nil
	}

	connected := a.servers.ConnectedServers()
	candidates := make([]types.Location, 0, len(connected))
	for _, loc := range connected {
		if loc != failed {
			candidates = append(candidates, loc)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	// Rebalance every existing plan that targeted failed: reroute its
	// receivers and fragment assignments to other connected servers.
	if len(candidates) > 0 {
		cursor := 0
		for loc, byClass := range a.plans {
			if loc == failed {
				continue
			}
			for _, plan := range byClass {
				if plan == nil {
					continue
				}
				for _, qr := range plan.RangesByDestination(failed) {
					entry, _ := plan.Receiver(qr)
					entry.Destination = candidates[cursor%len(candidates)]
					cursor++
					plan.SetReceiver(qr, entry)
				}
				for _, f := range plan.RemoveReplayDestination(failed) {
					plan.SetReplay(f, candidates[cursor%len(candidates)])
					cursor++
				}
			}
		}
	}

	// Drop in-flight moves that pointed at failed.
	for qr, mv := range a.moves {
		if mv.Destination == failed {
			delete(a.moves, qr)
		}
	}

	byClass := make(map[types.TableClass]*RecoveryPlan)
	cursor := 0
	for class, ranges := range rangesByType {
		if len(ranges) == 0 {
			continue
		}
		plan := NewRecoveryPlan()
		for _, rws := range ranges {
			if len(candidates) == 0 {
				break
			}
			dest := candidates[cursor%len(candidates)]
			cursor++
			entry := ReceiverEntry{Destination: dest, State: rws.State}
			entry.State.Flags |= types.RangeStatePhantom
			plan.SetReceiver(rws.Range, entry)
		}
		byClass[class] = plan
	}
	a.plans[failed] = byClass

	a.generation++
	return true, a.persistLocked()
}

// RemoveRecoveryPlan deletes every per-class plan for location. Called
// once ACKNOWLEDGE has succeeded for all four range types.
func (a *Authority) RemoveRecoveryPlan(location types.Location) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.plans, location)
	a.generation++
	return a.persistLocked()
}

// CopyRecoveryPlan returns a snapshot of the plan for (location, class)
// plus the generation it was read at.
func (a *Authority) CopyRecoveryPlan(location types.Location, class types.TableClass) (*RecoveryPlan, uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	byClass, ok := a.plans[location]
	if !ok {
		return nil, a.generation, false
	}
	plan, ok := byClass[class]
	if !ok || plan == nil {
		return nil, a.generation, false
	}
	return plan.clone(), a.generation, true
}

// RemoveFromReplayPlan withdraws destination from the replay plan for
// (failed, class), called when destination reports RangesAlreadyLive. It
// returns the fragments that were assigned to destination, so the caller
// can decide whether to leave them dropped or reassign them.
func (a *Authority) RemoveFromReplayPlan(failed types.Location, class types.TableClass, destination types.Location) ([]types.Fragment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	byClass, ok := a.plans[failed]
	if !ok {
		return nil, nil
	}
	plan, ok := byClass[class]
	if !ok || plan == nil {
		return nil, nil
	}
	withdrawn := plan.RemoveReplayDestination(destination)
	a.generation++
	return withdrawn, a.persistLocked()
}

// ReassignReplayFragments assigns each fragment in fragments to a fresh
// round-robin destination over connected servers, excluding exclude (the
// failed server and the just-withdrawn destination). It is a no-op if
// (failed, class) has no plan in flight.
func (a *Authority) ReassignReplayFragments(failed types.Location, class types.TableClass, fragments []types.Fragment, exclude map[types.Location]bool) error {
	if len(fragments) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	byClass, ok := a.plans[failed]
	if !ok {
		return nil
	}
	plan, ok := byClass[class]
	if !ok || plan == nil {
		return nil
	}

	connected := a.servers.ConnectedServers()
	candidates := make([]types.Location, 0, len(connected))
	for _, loc := range connected {
		if !exclude[loc] {
			candidates = append(candidates, loc)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	for i, f := range fragments {
		plan.SetReplay(f, candidates[i%len(candidates)])
	}
	a.generation++
	return a.persistLocked()
}

// RemoveFromReceiverPlan removes every range in ranges from the receiver
// plan for (failed, class), called after per-range ACKNOWLEDGE.
func (a *Authority) RemoveFromReceiverPlan(failed types.Location, class types.TableClass, ranges []types.QualifiedRange) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	byClass, ok := a.plans[failed]
	if !ok {
		return nil
	}
	plan, ok := byClass[class]
	if !ok || plan == nil {
		return nil
	}
	for _, qr := range ranges {
		plan.RemoveReceiver(qr)
	}
	a.generation++
	return a.persistLocked()
}

func (a *Authority) persistLocked() error {
	wire := wireAuthority{
		Generation: a.generation,
		Moves:      encodeMoves(a.moves),
		Plans:      encodePlans(a.plans),
	}
	return a.store.Put(metalog.KindBalancePlanAuthority, singletonKey, wire)
}
