package coordinator

import (
	"context"
	"encoding/json"

	"github.com/cuemby/rangevault/pkg/balance"
	"github.com/cuemby/rangevault/pkg/metalog"
	"github.com/cuemby/rangevault/pkg/types"
)

// RangeLocation is the persisted record of which server currently owns a
// range, keyed by QualifiedRange.Key() under metalog.KindRange. A range
// server heartbeat (or, for now, Coordinator.TrackRange) is what keeps
// this current; recovery.RangeSource reads it back to classify a failed
// server's ranges into recovery order.
type RangeLocation struct {
	Range    types.QualifiedRange `json:"range"`
	State    types.RangeState     `json:"state"`
	Class    types.TableClass     `json:"class"`
	Location types.Location       `json:"location"`
}

// metalogRangeSource implements recovery.RangeSource by scanning every
// persisted RangeLocation and bucketing the ones owned by the failed
// server, the way the original's root METADATA range answers "what was
// this server hosting".
type metalogRangeSource struct {
	store *metalog.Store
}

func newMetalogRangeSource(store *metalog.Store) *metalogRangeSource {
	return &metalogRangeSource{store: store}
}

func (s *metalogRangeSource) RangesOnServer(_ context.Context, location types.Location) (map[types.TableClass][]balance.RangeWithState, error) {
	raw, err := s.store.List(metalog.KindRange)
	if err != nil {
		return nil, err
	}

	out := make(map[types.TableClass][]balance.RangeWithState)
	for _, entry := range raw {
		var loc RangeLocation
		if err := json.Unmarshal(entry.Payload, &loc); err != nil {
			continue
		}
		if loc.Location != location {
			continue
		}
		out[loc.Class] = append(out[loc.Class], balance.RangeWithState{Range: loc.Range, State: loc.State})
	}
	return out, nil
}

// TrackRange records (or updates) which server currently hosts rng, so a
// later server failure can be classified by metalogRangeSource. A real
// range server would call this over an RPC this package doesn't expose
// yet; exported for the coordinator's own bookkeeping and tests in the
// meantime.
func (c *Coordinator) TrackRange(loc RangeLocation) error {
	return c.store.Put(metalog.KindRange, loc.Range.Key(), loc)
}

// UntrackRange forgets a range's location, called once recovery FINALIZE
// has reassigned it.
func (c *Coordinator) UntrackRange(qr types.QualifiedRange) error {
	return c.store.Delete(metalog.KindRange, qr.Key())
}

// RangeCounts implements metrics.Source: the number of tracked ranges per
// table class.
func (c *Coordinator) RangeCounts() map[string]int {
	raw, err := c.store.List(metalog.KindRange)
	if err != nil {
		return nil
	}
	counts := make(map[string]int)
	for _, entry := range raw {
		var loc RangeLocation
		if err := json.Unmarshal(entry.Payload, &loc); err != nil {
			continue
		}
		counts[loc.Class.String()]++
	}
	return counts
}
