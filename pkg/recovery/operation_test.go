package recovery

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rangevault/pkg/balance"
	"github.com/cuemby/rangevault/pkg/connection"
	"github.com/cuemby/rangevault/pkg/events"
	"github.com/cuemby/rangevault/pkg/hyperspace"
	"github.com/cuemby/rangevault/pkg/metalog"
	"github.com/cuemby/rangevault/pkg/types"
)

// fakeRangeSource hands back one fixed classification, mirroring what the
// coordinator's root METADATA scan would produce for a freshly failed
// server.
type fakeRangeSource struct {
	byClass map[types.TableClass][]balance.RangeWithState
}

func (f fakeRangeSource) RangesOnServer(ctx context.Context, location types.Location) (map[types.TableClass][]balance.RangeWithState, error) {
	return f.byClass, nil
}

// fakeDestinationClient always succeeds, recording every call it receives.
type fakeDestinationClient struct {
	mu        sync.Mutex
	loaded    []types.Location
	replayed  []types.Location
	prepared  []types.Location
	committed []types.Location
	acked     []types.Location
}

func (f *fakeDestinationClient) PhantomLoad(ctx context.Context, dest types.Location, req PhantomLoadRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, dest)
	return nil
}

func (f *fakeDestinationClient) ReplayFragments(ctx context.Context, dest types.Location, req ReplayFragmentsRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replayed = append(f.replayed, dest)
	return nil
}

func (f *fakeDestinationClient) PhantomPrepareRanges(ctx context.Context, dest types.Location, req PrepareRangesRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared = append(f.prepared, dest)
	return nil
}

func (f *fakeDestinationClient) PhantomCommitRanges(ctx context.Context, dest types.Location, req CommitRangesRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, dest)
	return nil
}

func (f *fakeDestinationClient) AcknowledgeLoad(ctx context.Context, dest types.Location, ranges []types.QualifiedRange) (map[types.QualifiedRange]error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, dest)
	out := make(map[types.QualifiedRange]error, len(ranges))
	for _, qr := range ranges {
		out[qr] = nil
	}
	return out, nil
}

// recordingNotifier collects every event handed to it, in order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []*events.Event
}

func (n *recordingNotifier) Notify(event *events.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []events.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]events.EventType, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

func newTestOperation(t *testing.T, byClass map[types.TableClass][]balance.RangeWithState, client DestinationClient, notifier AdminNotifier) *RecoveryOperation {
	t.Helper()

	store, err := metalog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	conns := connection.New(hyperspace.NewInMemoryService())
	conns.Register("rs1", "proxy-1")
	conns.Register("rs2", "proxy-2")
	conns.Register("rs3", "proxy-3")

	bpa, err := balance.New(store, conns)
	require.NoError(t, err)

	return NewRecoveryOperation("rs-failed", OperationConfig{
		SubOp: RecoverRangesConfig{QuorumPercent: 50},
	}, bpa, conns, fakeRangeSource{byClass: byClass}, client, notifier)
}

func oneUserRange(name string) map[types.TableClass][]balance.RangeWithState {
	return map[types.TableClass][]balance.RangeWithState{
		types.TableClassUser: {
			{
				Range: types.QualifiedRange{
					Table: types.TableId{Name: name},
					Range: types.RangeSpec{EndRow: types.EndRootRow},
				},
				State: types.RangeState{},
			},
		},
	}
}

// tickUntilDone drives op forward until it reaches OpDone or the step
// budget is exhausted, failing the test in the latter case.
func tickUntilDone(t *testing.T, ctx context.Context, op *RecoveryOperation) {
	t.Helper()
	for i := 0; i < 100 && !op.Done(); i++ {
		require.NoError(t, op.Tick(ctx))
	}
	require.True(t, op.Done(), "operation did not reach OpDone within the step budget")
}

func TestRecoveryOperationDrivesSingleUserRangeToDone(t *testing.T) {
	ctx := context.Background()
	client := &fakeDestinationClient{}
	notifier := &recordingNotifier{}

	op := newTestOperation(t, oneUserRange("t1"), client, notifier)

	tickUntilDone(t, ctx, op)

	assert.NotEmpty(t, client.loaded)
	assert.NotEmpty(t, client.replayed)
	assert.NotEmpty(t, client.prepared)
	assert.NotEmpty(t, client.committed)
	assert.NotEmpty(t, client.acked)

	notified := notifier.types()
	require.Len(t, notified, 2)
	assert.Equal(t, events.EventServerFailed, notified[0])
	assert.Equal(t, events.EventServerRecovered, notified[1])
}

func TestRecoveryOperationOrdersClassesRootBeforeUser(t *testing.T) {
	ctx := context.Background()
	client := &fakeDestinationClient{}
	notifier := &recordingNotifier{}

	byClass := map[types.TableClass][]balance.RangeWithState{
		types.TableClassRoot: {
			{Range: types.QualifiedRange{Table: types.TableId{Name: "0"}, Range: types.RangeSpec{EndRow: types.EndRootRow}}},
		},
		types.TableClassUser: {
			{Range: types.QualifiedRange{Table: types.TableId{Name: "t1"}, Range: types.RangeSpec{EndRow: types.EndRootRow}}},
		},
	}
	op := newTestOperation(t, byClass, client, notifier)

	require.NoError(t, op.Tick(ctx)) // OpInitial -> OpIssueRequests, builds sub-ops

	require.Len(t, op.subops, 2)
	assert.Equal(t, types.TableClassRoot, op.subops[0].Class)
	assert.Equal(t, types.TableClassUser, op.subops[1].Class)

	tickUntilDone(t, ctx, op)
	// Root's destination calls must all have landed before user's, since
	// doIssueRequests blocks later classes until the current one is Done.
	require.NotEmpty(t, client.loaded)
}

func TestRecoveryOperationBlocksBehindQuorumGate(t *testing.T) {
	ctx := context.Background()
	client := &fakeDestinationClient{}
	notifier := &recordingNotifier{}

	store, err := metalog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	conns := connection.New(hyperspace.NewInMemoryService())
	conns.Register("rs1", "proxy-1")
	conns.Register("rs2", "proxy-2")
	conns.Register("rs3", "proxy-3")
	conns.Register("rs4", "proxy-4")
	// Only 2 of 4 connected: below the 80% quorum this sub-op requires.
	conns.Disconnect("rs3")
	conns.Disconnect("rs4")

	bpa, err := balance.New(store, conns)
	require.NoError(t, err)

	op := NewRecoveryOperation("rs-failed", OperationConfig{
		SubOp: RecoverRangesConfig{QuorumPercent: 80},
	}, bpa, conns, fakeRangeSource{byClass: oneUserRange("t1")}, client, notifier)

	require.NoError(t, op.Tick(ctx)) // OpInitial -> OpIssueRequests
	require.NoError(t, op.Tick(ctx)) // doIssueRequests: sub-op parks behind quorum

	assert.False(t, op.Done())
	assert.Equal(t, OpIssueRequests, op.State())
	assert.Empty(t, client.loaded, "quorum gate should have parked the sub-op before it issued any RPC")
}

func TestNewRecoverRangesIsDoneImmediatelyWhenPlanIsEmpty(t *testing.T) {
	store, err := metalog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	conns := connection.New(hyperspace.NewInMemoryService())
	conns.Register("rs1", "proxy-1")

	bpa, err := balance.New(store, conns)
	require.NoError(t, err)

	sub := NewRecoverRanges("rs-failed", types.TableClassUser, RecoverRangesConfig{QuorumPercent: 50}, bpa, conns, &fakeDestinationClient{})
	require.NoError(t, sub.Tick(context.Background()))
	assert.True(t, sub.Done())
}

func TestEventNotifierForwardsToPublish(t *testing.T) {
	var got *events.Event
	n := EventNotifier{Publish: func(event *events.Event) { got = event }}

	ev := &events.Event{Type: events.EventServerFailed}
	n.Notify(ev)

	require.NotNil(t, got)
	assert.Equal(t, events.EventServerFailed, got.Type)
}
