package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rangevault/pkg/metalog"
	"github.com/cuemby/rangevault/pkg/rangeerr"
	"github.com/cuemby/rangevault/pkg/types"
)

type fakeServers struct {
	locations []types.Location
}

func (f fakeServers) ConnectedServers() []types.Location { return f.locations }

func newTestAuthority(t *testing.T, servers []types.Location) (*Authority, *metalog.Store) {
	t.Helper()
	store, err := metalog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	a, err := New(store, fakeServers{locations: servers})
	require.NoError(t, err)
	return a, store
}

func tableRange(name, end string) (types.TableId, types.RangeSpec) {
	return types.TableId{Name: name}, types.RangeSpec{EndRow: end}
}

func TestRegisterMoveRejectsDuplicate(t *testing.T) {
	a, _ := newTestAuthority(t, []types.Location{"rs1", "rs2"})
	table, rng := tableRange("t1", "m")
	spec := types.RangeMoveSpec{Table: table, Range: rng, Destination: "rs2"}

	require.NoError(t, a.RegisterMove(spec))

	err := a.RegisterMove(spec)
	require.Error(t, err)
	assert.Equal(t, rangeerr.KindDuplicateMove, rangeerr.KindOf(err))
}

func TestGetBalanceDestinationPrefersRegisteredMove(t *testing.T) {
	a, _ := newTestAuthority(t, []types.Location{"rs1", "rs2"})
	table, rng := tableRange("t1", "m")
	require.NoError(t, a.RegisterMove(types.RangeMoveSpec{Table: table, Range: rng, Destination: "rs2"}))

	dest, ok := a.GetBalanceDestination(table, rng)
	require.True(t, ok)
	assert.Equal(t, types.Location("rs2"), dest)
}

func TestGetBalanceDestinationRoundRobinsOverConnected(t *testing.T) {
	a, _ := newTestAuthority(t, []types.Location{"rs1", "rs2"})
	table1, rng1 := tableRange("t1", "m")
	table2, rng2 := tableRange("t1", "z")

	first, ok := a.GetBalanceDestination(table1, rng1)
	require.True(t, ok)
	second, ok := a.GetBalanceDestination(table2, rng2)
	require.True(t, ok)

	assert.NotEqual(t, first, second)
}

func TestMoveCompleteFreesRangeForReRegistration(t *testing.T) {
	a, _ := newTestAuthority(t, []types.Location{"rs1"})
	table, rng := tableRange("t1", "m")
	spec := types.RangeMoveSpec{Table: table, Range: rng, Destination: "rs1"}
	require.NoError(t, a.RegisterMove(spec))

	require.NoError(t, a.MoveComplete(table, rng, nil))
	require.NoError(t, a.RegisterMove(spec))
}

func TestCreateRecoveryPlanDistributesAcrossSurvivors(t *testing.T) {
	a, _ := newTestAuthority(t, []types.Location{"rs1", "rs2", "rs3"})
	table := types.TableId{Name: "t1"}
	rangesByType := map[types.TableClass][]RangeWithState{
		types.TableClassUser: {
			{Range: types.QualifiedRange{Table: table, Range: types.RangeSpec{EndRow: "m"}}},
			{Range: types.QualifiedRange{Table: table, Range: types.RangeSpec{StartRow: "m", EndRow: "z"}}},
		},
	}

	created, err := a.CreateRecoveryPlan("failed-rs", rangesByType)
	require.NoError(t, err)
	assert.True(t, created)

	plan, gen, ok := a.CopyRecoveryPlan("failed-rs", types.TableClassUser)
	require.True(t, ok)
	assert.Equal(t, uint64(1), gen)
	assert.Len(t, plan.Ranges(), 2)
	for _, qr := range plan.Ranges() {
		entry, _ := plan.Receiver(qr)
		assert.NotEqual(t, types.Location("failed-rs"), entry.Destination)
		assert.True(t, entry.State.Flags.Has(types.RangeStatePhantom))
	}
}

func TestCreateRecoveryPlanIsNoOpWhenAlreadyInFlight(t *testing.T) {
	a, _ := newTestAuthority(t, []types.Location{"rs1", "rs2"})
	table := types.TableId{Name: "t1"}
	ranges := map[types.TableClass][]RangeWithState{
		types.TableClassUser: {{Range: types.QualifiedRange{Table: table, Range: types.RangeSpec{EndRow: "m"}}}},
	}

	created, err := a.CreateRecoveryPlan("failed-rs", ranges)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = a.CreateRecoveryPlan("failed-rs", ranges)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestRemoveRecoveryPlanClearsState(t *testing.T) {
	a, _ := newTestAuthority(t, []types.Location{"rs1", "rs2"})
	table := types.TableId{Name: "t1"}
	ranges := map[types.TableClass][]RangeWithState{
		types.TableClassUser: {{Range: types.QualifiedRange{Table: table, Range: types.RangeSpec{EndRow: "m"}}}},
	}
	_, err := a.CreateRecoveryPlan("failed-rs", ranges)
	require.NoError(t, err)

	require.NoError(t, a.RemoveRecoveryPlan("failed-rs"))

	_, _, ok := a.CopyRecoveryPlan("failed-rs", types.TableClassUser)
	assert.False(t, ok)
}

func TestRemoveFromReceiverPlanShrinksPlan(t *testing.T) {
	a, _ := newTestAuthority(t, []types.Location{"rs1", "rs2"})
	table := types.TableId{Name: "t1"}
	qr := types.QualifiedRange{Table: table, Range: types.RangeSpec{EndRow: "m"}}
	ranges := map[types.TableClass][]RangeWithState{
		types.TableClassUser: {{Range: qr}},
	}
	_, err := a.CreateRecoveryPlan("failed-rs", ranges)
	require.NoError(t, err)

	require.NoError(t, a.RemoveFromReceiverPlan("failed-rs", types.TableClassUser, []types.QualifiedRange{qr}))

	plan, _, ok := a.CopyRecoveryPlan("failed-rs", types.TableClassUser)
	require.True(t, ok)
	assert.True(t, plan.Empty())
}

func TestPersistedStateSurvivesReopen(t *testing.T) {
	store, err := metalog.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	a, err := New(store, fakeServers{locations: []types.Location{"rs1", "rs2"}})
	require.NoError(t, err)

	table, rng := tableRange("t1", "m")
	require.NoError(t, a.RegisterMove(types.RangeMoveSpec{Table: table, Range: rng, Destination: "rs2"}))

	reopened, err := New(store, fakeServers{locations: []types.Location{"rs1", "rs2"}})
	require.NoError(t, err)

	dest, ok := reopened.GetBalanceDestination(table, rng)
	require.True(t, ok)
	assert.Equal(t, types.Location("rs2"), dest)
}
