package balance

import "github.com/cuemby/rangevault/pkg/types"

// wireAuthority is the JSON-serializable snapshot of an Authority's
// mutable state. It exists because the in-memory maps are keyed by
// structs (QualifiedRange, Fragment), which JSON cannot use as object
// keys, so every persisted shape here is list-of-entries instead.
type wireAuthority struct {
	Generation uint64         `json:"generation"`
	Moves      []wireMove     `json:"moves"`
	Plans      []wireLocation `json:"plans"`
}

type wireMove struct {
	Table       types.TableId   `json:"table"`
	Range       types.RangeSpec `json:"range"`
	Destination types.Location  `json:"destination"`
}

type wireLocation struct {
	Location types.Location `json:"location"`
	Classes  []wireClass    `json:"classes"`
}

type wireClass struct {
	Class     types.TableClass `json:"class"`
	Receivers []wireReceiver   `json:"receivers"`
	Replays   []wireReplay     `json:"replays"`
}

type wireReceiver struct {
	Table       types.TableId   `json:"table"`
	Range       types.RangeSpec `json:"range"`
	Destination types.Location  `json:"destination"`
	State       types.RangeState `json:"state"`
}

type wireReplay struct {
	LogDirectory string         `json:"log_directory"`
	FragmentID   uint64         `json:"fragment_id"`
	Destination  types.Location `json:"destination"`
}

func encodeMoves(moves map[types.QualifiedRange]types.RangeMoveSpec) []wireMove {
	out := make([]wireMove, 0, len(moves))
	for qr, mv := range moves {
		out = append(out, wireMove{Table: qr.Table, Range: qr.Range, Destination: mv.Destination})
	}
	return out
}

func decodeMoves(wire []wireMove) map[types.QualifiedRange]types.RangeMoveSpec {
	out := make(map[types.QualifiedRange]types.RangeMoveSpec, len(wire))
	for _, w := range wire {
		qr := types.QualifiedRange{Table: w.Table, Range: w.Range}
		out[qr] = types.RangeMoveSpec{Table: w.Table, Range: w.Range, Destination: w.Destination}
	}
	return out
}

func encodePlans(plans map[types.Location]map[types.TableClass]*RecoveryPlan) []wireLocation {
	out := make([]wireLocation, 0, len(plans))
	for loc, byClass := range plans {
		wl := wireLocation{Location: loc}
		for class, plan := range byClass {
			if plan == nil {
				continue
			}
			wc := wireClass{Class: class}
			for _, qr := range plan.Ranges() {
				entry, _ := plan.Receiver(qr)
				wc.Receivers = append(wc.Receivers, wireReceiver{
					Table:       qr.Table,
					Range:       qr.Range,
					Destination: entry.Destination,
					State:       entry.State,
				})
			}
			for _, f := range plan.Fragments() {
				dest, _ := plan.ReplayDestination(f)
				wc.Replays = append(wc.Replays, wireReplay{
					LogDirectory: f.LogDirectory,
					FragmentID:   f.ID,
					Destination:  dest,
				})
			}
			wl.Classes = append(wl.Classes, wc)
		}
		out = append(out, wl)
	}
	return out
}

func decodePlans(wire []wireLocation) map[types.Location]map[types.TableClass]*RecoveryPlan {
	out := make(map[types.Location]map[types.TableClass]*RecoveryPlan, len(wire))
	for _, wl := range wire {
		byClass := make(map[types.TableClass]*RecoveryPlan, len(wl.Classes))
		for _, wc := range wl.Classes {
			plan := NewRecoveryPlan()
			for _, wr := range wc.Receivers {
				qr := types.QualifiedRange{Table: wr.Table, Range: wr.Range}
				plan.SetReceiver(qr, ReceiverEntry{Destination: wr.Destination, State: wr.State})
			}
			for _, wr := range wc.Replays {
				f := types.Fragment{LogDirectory: wr.LogDirectory, ID: wr.FragmentID}
				plan.SetReplay(f, wr.Destination)
			}
			byClass[wc.Class] = plan
		}
		out[wl.Location] = byClass
	}
	return out
}
