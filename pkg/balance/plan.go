package balance

import (
	"sort"

	"github.com/cuemby/rangevault/pkg/types"
)

// ReceiverEntry is one entry of a RecoveryPlan's receiver_plan: the
// destination a range is being moved to, and the state it should be
// installed in once there.
type ReceiverEntry struct {
	Destination types.Location
	State       types.RangeState
}

// RecoveryPlan is the plan for one (failed server, range type) pair:
// where every affected range's ranges and fragments are headed. Both maps
// are indexed two ways, by range/fragment (unique) and by destination
// (non-unique), matching spec §3.
type RecoveryPlan struct {
	receiverPlan map[types.QualifiedRange]ReceiverEntry
	replayPlan   map[types.Fragment]types.Location
}

// NewRecoveryPlan returns an empty plan.
func NewRecoveryPlan() *RecoveryPlan {
	return &RecoveryPlan{
		receiverPlan: make(map[types.QualifiedRange]ReceiverEntry),
		replayPlan:   make(map[types.Fragment]types.Location),
	}
}

// SetReceiver assigns a destination and installed state for qr.
func (p *RecoveryPlan) SetReceiver(qr types.QualifiedRange, entry ReceiverEntry) {
	p.receiverPlan[qr] = entry
}

// Receiver returns the entry for qr, if any.
func (p *RecoveryPlan) Receiver(qr types.QualifiedRange) (ReceiverEntry, bool) {
	e, ok := p.receiverPlan[qr]
	return e, ok
}

// RemoveReceiver deletes qr from the receiver plan. The plan shrinks
// monotonically as ranges finish recovering.
func (p *RecoveryPlan) RemoveReceiver(qr types.QualifiedRange) {
	delete(p.receiverPlan, qr)
}

// Ranges returns every range in the receiver plan, ordered by RangeSpec
// as required by spec §3 ("ordered iteration by range is required").
func (p *RecoveryPlan) Ranges() []types.QualifiedRange {
	out := make([]types.QualifiedRange, 0, len(p.receiverPlan))
	for qr := range p.receiverPlan {
		out = append(out, qr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table.Name != out[j].Table.Name {
			return out[i].Table.Name < out[j].Table.Name
		}
		return out[i].Range.Less(out[j].Range)
	})
	return out
}

// RangesByDestination returns every range targeting dest.
func (p *RecoveryPlan) RangesByDestination(dest types.Location) []types.QualifiedRange {
	var out []types.QualifiedRange
	for _, qr := range p.Ranges() {
		if e := p.receiverPlan[qr]; e.Destination == dest {
			out = append(out, qr)
		}
	}
	return out
}

// Destinations returns the distinct set of destinations named anywhere in
// the receiver plan.
func (p *RecoveryPlan) Destinations() []types.Location {
	seen := make(map[types.Location]bool)
	var out []types.Location
	for _, e := range p.receiverPlan {
		if !seen[e.Destination] {
			seen[e.Destination] = true
			out = append(out, e.Destination)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetReplay assigns a destination for fragment f.
func (p *RecoveryPlan) SetReplay(f types.Fragment, dest types.Location) {
	p.replayPlan[f] = dest
}

// ReplayDestination returns the destination assigned to f, if any.
func (p *RecoveryPlan) ReplayDestination(f types.Fragment) (types.Location, bool) {
	d, ok := p.replayPlan[f]
	return d, ok
}

// Fragments returns every fragment in the replay plan, ordered.
func (p *RecoveryPlan) Fragments() []types.Fragment {
	out := make([]types.Fragment, 0, len(p.replayPlan))
	for f := range p.replayPlan {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// FragmentsByDestination returns every fragment assigned to dest.
func (p *RecoveryPlan) FragmentsByDestination(dest types.Location) []types.Fragment {
	var out []types.Fragment
	for _, f := range p.Fragments() {
		if p.replayPlan[f] == dest {
			out = append(out, f)
		}
	}
	return out
}

// RemoveReplayDestination withdraws every fragment assignment pointing at
// dest, returning the withdrawn fragments so the caller can reassign them.
func (p *RecoveryPlan) RemoveReplayDestination(dest types.Location) []types.Fragment {
	var withdrawn []types.Fragment
	for f, d := range p.replayPlan {
		if d == dest {
			withdrawn = append(withdrawn, f)
			delete(p.replayPlan, f)
		}
	}
	sort.Slice(withdrawn, func(i, j int) bool { return withdrawn[i].Less(withdrawn[j]) })
	return withdrawn
}

// Empty reports whether the plan has no remaining receivers or replays.
func (p *RecoveryPlan) Empty() bool {
	return len(p.receiverPlan) == 0 && len(p.replayPlan) == 0
}

// clone returns a deep copy, used when handing a snapshot to a caller
// that must not observe subsequent mutation (copy_recovery_plan).
func (p *RecoveryPlan) clone() *RecoveryPlan {
	c := NewRecoveryPlan()
	for k, v := range p.receiverPlan {
		c.receiverPlan[k] = v
	}
	for k, v := range p.replayPlan {
		c.replayPlan[k] = v
	}
	return c
}
