package replication

import "github.com/cuemby/rangevault/pkg/types"

// wireState is the single metalog entity the replication master persists
// on every mutation: every field of ReplicationState (spec.md §3),
// flattened to the map/slice shapes JSON round-trips cleanly.
type wireState struct {
	KnownClusters       []string
	RemoteSlaves        map[string][]string
	LocalSlaves         map[types.Location]string
	UnassignedFragments []string
	AssignedFragments   map[string]types.Location
	FinishedFragments   []string
	TableGenerations    map[string]uint64
	ReplicatedTables    map[string][]string
	TableNames          map[string]string
	LinkedLogs          []string
}

func stringSetToSlice(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sliceToStringSet(s []string) map[string]bool {
	out := make(map[string]bool, len(s))
	for _, v := range s {
		out[v] = true
	}
	return out
}

func cloneStringSliceMap(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
