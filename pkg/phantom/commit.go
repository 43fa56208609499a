package phantom

import (
	"github.com/cuemby/rangevault/pkg/rangeerr"
	"github.com/cuemby/rangevault/pkg/types"
)

// CommitResult is what phantom_commit_ranges hands back per range so the
// caller (the range-server process owning the live table map) can finish
// the merge: flip the range live, write its new Location, and persist the
// Range metalog entity referencing TransferLogPath.
type CommitResult struct {
	Range           types.QualifiedRange
	TransferLogPath string
	SplitLogPath    string
}

// CommitRanges implements phantom_commit_ranges: asserts PREPARED (or
// already COMMITTED, replied as idempotent success), clears PHANTOM in
// the tracked state, marks needs_compaction, clears load_acknowledged,
// and removes the range from the staging map in favor of the committed
// set awaiting AcknowledgeLoad.
func (m *Map) CommitRanges(ranges []types.QualifiedRange) ([]CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]CommitResult, 0, len(ranges))
	for _, qr := range ranges {
		if m.committed[qr] {
			results = append(results, CommitResult{Range: qr})
			continue
		}

		pr, ok := m.ranges[qr]
		if !ok {
			return nil, rangeerr.New(rangeerr.KindRangeNotFound, "phantom.CommitRanges", qr.String()+" not in phantom map")
		}
		if !pr.Flags.Has(FlagPrepared) {
			return nil, rangeerr.New(rangeerr.KindPhantomRangeMapNotFound, "phantom.CommitRanges", qr.String()+" is not PREPARED")
		}

		pr.Flags |= FlagCommitted
		pr.State.Flags &^= types.RangeStatePhantom
		pr.State.NeedsCompaction = true
		pr.State.LoadAcknowledged = false

		results = append(results, CommitResult{
			Range:           qr,
			TransferLogPath: pr.TransferLogPath,
			SplitLogPath:    pr.SplitLogPath,
		})

		delete(m.ranges, qr)
		m.committed[qr] = true
	}
	return results, nil
}

// AcknowledgeLoad implements acknowledge_load: marks each range as
// acknowledged, removing it from the committed set (the last trace of it
// in this map) and reporting per-range success or KindRangeNotFound if it
// was never committed here.
func (m *Map) AcknowledgeLoad(ranges []types.QualifiedRange) map[types.QualifiedRange]error {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[types.QualifiedRange]error, len(ranges))
	for _, qr := range ranges {
		if !m.committed[qr] {
			out[qr] = rangeerr.New(rangeerr.KindRangeNotFound, "phantom.AcknowledgeLoad", qr.String()+" was not committed")
			continue
		}
		delete(m.committed, qr)
		out[qr] = nil
	}
	return out
}
