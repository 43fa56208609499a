package phantom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rangevault/pkg/dfs"
	"github.com/cuemby/rangevault/pkg/rangeerr"
	"github.com/cuemby/rangevault/pkg/types"
)

type fakeLive struct {
	live map[types.QualifiedRange]bool
}

func (f fakeLive) IsLive(qr types.QualifiedRange) bool { return f.live[qr] }

type fakeLinker struct {
	linked []string
}

func (f *fakeLinker) LinkTransferLog(_ context.Context, _ types.TableClass, dir string) error {
	f.linked = append(f.linked, dir)
	return nil
}

func testRange(table, end string) types.QualifiedRange {
	return types.QualifiedRange{Table: types.TableId{Name: table}, Range: types.RangeSpec{EndRow: end}}
}

func TestLoadRejectsAlreadyLive(t *testing.T) {
	qr := testRange("t1", "m")
	m := NewMap("failed-rs", fakeLive{live: map[types.QualifiedRange]bool{qr: true}})

	err := m.Load(1, []types.QualifiedRange{qr}, nil)
	require.Error(t, err)
	assert.Equal(t, rangeerr.KindRangesAlreadyLive, rangeerr.KindOf(err))
}

func TestLoadIsIdempotentAtSameGeneration(t *testing.T) {
	qr := testRange("t1", "m")
	m := NewMap("failed-rs", fakeLive{})

	require.NoError(t, m.Load(1, []types.QualifiedRange{qr}, []types.RangeState{{}}))
	require.NoError(t, m.Load(1, []types.QualifiedRange{qr}, []types.RangeState{{}}))

	pr, ok := m.Range(qr)
	require.True(t, ok)
	assert.True(t, pr.Flags.Has(FlagLoaded))
}

func TestLoadDropsStaleGeneration(t *testing.T) {
	qr := testRange("t1", "m")
	m := NewMap("failed-rs", fakeLive{})
	require.NoError(t, m.Load(5, []types.QualifiedRange{qr}, nil))

	require.NoError(t, m.Load(3, []types.QualifiedRange{qr}, nil))
	assert.Equal(t, uint64(5), m.PlanGeneration())
}

func TestLoadDiscardsMapOnNewerGeneration(t *testing.T) {
	qrOld := testRange("t1", "m")
	qrNew := testRange("t1", "z")
	m := NewMap("failed-rs", fakeLive{})
	require.NoError(t, m.Load(1, []types.QualifiedRange{qrOld}, nil))

	require.NoError(t, m.Load(2, []types.QualifiedRange{qrNew}, nil))

	_, ok := m.Range(qrOld)
	assert.False(t, ok)
	_, ok = m.Range(qrNew)
	assert.True(t, ok)
}

func TestUpdateRejectsGenerationMismatch(t *testing.T) {
	qr := testRange("t1", "m")
	m := NewMap("failed-rs", fakeLive{})
	require.NoError(t, m.Load(1, []types.QualifiedRange{qr}, nil))

	err := m.Update(2, qr, types.Fragment{LogDirectory: "d", ID: 1}, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, rangeerr.KindPlanGenerationMismatch, rangeerr.KindOf(err))
}

func TestUpdateAfterCompleteIsIdempotent(t *testing.T) {
	qr := testRange("t1", "m")
	frag := types.Fragment{LogDirectory: "d", ID: 1}
	m := NewMap("failed-rs", fakeLive{})
	require.NoError(t, m.Load(1, []types.QualifiedRange{qr}, nil))
	require.NoError(t, m.Update(1, qr, frag, []byte("x")))

	m.CompleteFragment(qr, frag)

	err := m.Update(1, qr, frag, []byte("y"))
	require.Error(t, err)
	assert.Equal(t, rangeerr.KindFragmentAlreadyProcessed, rangeerr.KindOf(err))
}

func TestPrepareCommitAcknowledgeLifecycle(t *testing.T) {
	ctx := context.Background()
	fs, err := dfs.NewLocalFilesystem(t.TempDir())
	require.NoError(t, err)

	qr := testRange("t1", "m")
	frag := types.Fragment{LogDirectory: "d", ID: 1}
	m := NewMap("failed-rs", fakeLive{})
	require.NoError(t, m.Load(1, []types.QualifiedRange{qr}, []types.RangeState{{}}))
	require.NoError(t, m.Update(1, qr, frag, []byte("payload-bytes")))

	linker := &fakeLinker{}
	paths, err := m.PrepareRanges(ctx, fs, linker, types.TableClassUser, []types.QualifiedRange{qr})
	require.NoError(t, err)
	assert.NotEmpty(t, paths[qr])
	assert.Len(t, linker.linked, 1)

	results, err := m.CommitRanges([]types.QualifiedRange{qr})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, paths[qr], results[0].TransferLogPath)

	_, stillThere := m.Range(qr)
	assert.False(t, stillThere)

	errs := m.AcknowledgeLoad([]types.QualifiedRange{qr})
	assert.NoError(t, errs[qr])
	assert.True(t, m.Empty())
}

func TestCommitRangesRejectsUnprepared(t *testing.T) {
	qr := testRange("t1", "m")
	m := NewMap("failed-rs", fakeLive{})
	require.NoError(t, m.Load(1, []types.QualifiedRange{qr}, nil))

	_, err := m.CommitRanges([]types.QualifiedRange{qr})
	require.Error(t, err)
}

func TestAcknowledgeLoadRejectsUncommitted(t *testing.T) {
	qr := testRange("t1", "m")
	m := NewMap("failed-rs", fakeLive{})
	errs := m.AcknowledgeLoad([]types.QualifiedRange{qr})
	require.Error(t, errs[qr])
}
