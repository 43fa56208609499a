// Package phantom implements the destination-side staging area for
// ranges being loaded from a failed server: the PhantomRange and
// PhantomRangeMap of spec component L5, and the four RPC-shaped
// operations (phantom_load, phantom_update, phantom_prepare_ranges,
// phantom_commit_ranges) that a RecoverRanges sub-operation drives a
// destination through.
package phantom

import (
	"sync"

	"github.com/cuemby/rangevault/pkg/rangeerr"
	"github.com/cuemby/rangevault/pkg/types"
)

// Flag is the cumulative phantom-range state. Bits are only ever set, in
// strictly ascending order (LOADED, then PREPARED, then COMMITTED);
// REPLAYED is tracked alongside them because a destination may receive
// fragment payloads across many phantom_update calls before the
// coordinator's ReplayCounter (pkg/recovery) declares the phase done.
type Flag uint32

const (
	FlagLoaded Flag = 1 << iota
	FlagReplayed
	FlagPrepared
	FlagCommitted
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// fragmentBuffer accumulates the bytes of one fragment's phantom_update
// stream. Complete is set by CompleteFragment once the caller's replay
// bookkeeping (outside this package) has observed the whole fragment.
type fragmentBuffer struct {
	data     []byte
	complete bool
}

// PhantomRange is one range being staged for load from a failed source.
type PhantomRange struct {
	Range  types.QualifiedRange
	State  types.RangeState
	Flags  Flag

	fragments map[types.Fragment]*fragmentBuffer

	// TransferLogPath and SplitLogPath are populated by PrepareRanges.
	TransferLogPath string
	SplitLogPath    string
}

// LiveRangeChecker reports whether a range is already live on this
// server, the guard phantom_load uses to reject a stale load request.
type LiveRangeChecker interface {
	IsLive(qr types.QualifiedRange) bool
}

// Map is a PhantomRangeMap: the staging area for every range a single
// destination is recovering from one failed source server. One write
// lock covers every PhantomRange it holds, matching spec §4.5's "the map
// is protected by one write lock covering all phantom ranges in it."
type Map struct {
	mu sync.Mutex

	Source types.Location

	planGeneration uint64
	ranges         map[types.QualifiedRange]*PhantomRange
	committed      map[types.QualifiedRange]bool

	live LiveRangeChecker
}

// NewMap returns an empty Map for source, gated by live.
func NewMap(source types.Location, live LiveRangeChecker) *Map {
	return &Map{
		Source:    source,
		ranges:    make(map[types.QualifiedRange]*PhantomRange),
		committed: make(map[types.QualifiedRange]bool),
		live:      live,
	}
}

// PlanGeneration returns the generation that installed the current map
// contents.
func (m *Map) PlanGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.planGeneration
}

// loadedLocked reports whether every range currently tracked carries LOADED.
// Caller must hold m.mu.
func (m *Map) loadedLocked() bool {
	if len(m.ranges) == 0 {
		return false
	}
	for _, pr := range m.ranges {
		if !pr.Flags.Has(FlagLoaded) {
			return false
		}
	}
	return true
}

// Load implements phantom_load: install ranges at planGen, or reply
// idempotent success if the map already holds them loaded at the same
// generation.
func (m *Map) Load(planGen uint64, ranges []types.QualifiedRange, states []types.RangeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, qr := range ranges {
		if m.live != nil && m.live.IsLive(qr) {
			return rangeerr.New(rangeerr.KindRangesAlreadyLive, "phantom.Load",
				qr.String()+" is already live on this server")
		}
	}

	if planGen < m.planGeneration {
		// Stale request: silently drop, matching "drop the request" in
		// spec §4.5. Not an error the coordinator needs to see.
		return nil
	}

	if planGen > m.planGeneration {
		m.ranges = make(map[types.QualifiedRange]*PhantomRange)
		m.committed = make(map[types.QualifiedRange]bool)
		m.planGeneration = planGen
	}

	if m.loadedLocked() {
		return nil
	}

	for i, qr := range ranges {
		if _, exists := m.ranges[qr]; exists {
			continue
		}
		var state types.RangeState
		if i < len(states) {
			state = states[i]
		}
		state.Flags |= types.RangeStatePhantom
		m.ranges[qr] = &PhantomRange{
			Range:     qr,
			State:     state,
			Flags:     FlagLoaded,
			fragments: make(map[types.Fragment]*fragmentBuffer),
		}
	}
	return nil
}

// Update implements phantom_update: append payload to the named
// fragment's buffer for qr.
func (m *Map) Update(planGen uint64, qr types.QualifiedRange, fragment types.Fragment, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if planGen != m.planGeneration {
		return rangeerr.New(rangeerr.KindPlanGenerationMismatch, "phantom.Update",
			"plan generation does not match installed map")
	}

	pr, ok := m.ranges[qr]
	if !ok {
		return rangeerr.New(rangeerr.KindRangeNotFound, "phantom.Update", qr.String()+" not in phantom map")
	}

	buf, ok := pr.fragments[fragment]
	if !ok {
		buf = &fragmentBuffer{}
		pr.fragments[fragment] = buf
	}
	if buf.complete {
		return rangeerr.New(rangeerr.KindFragmentAlreadyProcessed, "phantom.Update",
			fragment.String()+" already fully replayed")
	}

	buf.data = append(buf.data, payload...)
	return nil
}

// CompleteFragment marks fragment as fully received for qr, making
// further Update calls for it idempotent no-ops (FragmentAlreadyProcessed).
// Called by the recovery side once its ReplayCounter observes the
// destination has acknowledged the whole fragment.
func (m *Map) CompleteFragment(qr types.QualifiedRange, fragment types.Fragment) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pr, ok := m.ranges[qr]
	if !ok {
		return
	}
	buf, ok := pr.fragments[fragment]
	if !ok {
		buf = &fragmentBuffer{}
		pr.fragments[fragment] = buf
	}
	buf.complete = true
}

// MarkReplayed sets FlagReplayed on qr, called once every fragment
// destined for it has been completed.
func (m *Map) MarkReplayed(qr types.QualifiedRange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pr, ok := m.ranges[qr]; ok {
		pr.Flags |= FlagReplayed
	}
}

// Range returns a copy of the PhantomRange tracked for qr, if any.
func (m *Map) Range(qr types.QualifiedRange) (PhantomRange, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.ranges[qr]
	if !ok {
		return PhantomRange{}, false
	}
	return *pr, true
}

// Empty reports whether the map has no remaining phantom or committed
// ranges, the signal that the whole map entry can be dropped.
func (m *Map) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ranges) == 0 && len(m.committed) == 0
}
