package replication

import (
	"context"
	"testing"

	"github.com/cuemby/rangevault/pkg/dfs"
	"github.com/cuemby/rangevault/pkg/events"
	"github.com/cuemby/rangevault/pkg/hyperspace"
	"github.com/cuemby/rangevault/pkg/metalog"
	"github.com/cuemby/rangevault/pkg/types"
)

type noopNotifier struct{ events []*events.Event }

func (n *noopNotifier) Notify(e *events.Event) { n.events = append(n.events, e) }

func newTestMaster(t *testing.T) (*Master, dfs.Filesystem, *noopNotifier) {
	t.Helper()
	store, err := metalog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("metalog.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fs, err := dfs.NewLocalFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("dfs.NewLocalFilesystem: %v", err)
	}

	hs := hyperspace.NewInMemoryService()
	notifier := &noopNotifier{}

	m, err := New(store, fs, hs, notifier, Config{TestMode: true, ServerDir: "/servers", ErrorDir: "/errors"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, fs, notifier
}

func TestMasterAssignFragmentsRegistersSlaveAndNotifies(t *testing.T) {
	m, _, notifier := newTestMaster(t)

	result, err := m.AssignFragments(context.Background(), types.Location("rs1"), "127.0.0.1:9001")
	if err != nil {
		t.Fatalf("AssignFragments: %v", err)
	}
	if len(result.Fragments) != 0 {
		t.Fatalf("expected no fragments with nothing scanned, got %v", result.Fragments)
	}

	found := false
	for _, e := range notifier.events {
		if e.Type == events.EventSlaveRegistered {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a slave-registered notification")
	}

	slaves := m.KnownSlaves()
	if len(slaves) != 1 || slaves[0] != types.Location("rs1") {
		t.Fatalf("expected rs1 registered, got %v", slaves)
	}
}

func TestMasterAssignFragmentsQuotaAndFinish(t *testing.T) {
	m, _, _ := newTestMaster(t)

	m.mu.Lock()
	m.unassigned["log/user/a"] = true
	m.unassigned["log/user/b"] = true
	m.replicatedTables["1"] = []string{"cluster-b"}
	m.remoteSlaves["cluster-b"] = []string{"10.0.0.1:9000"}
	m.mu.Unlock()

	result, err := m.AssignFragments(context.Background(), types.Location("rs1"), "127.0.0.1:9001")
	if err != nil {
		t.Fatalf("AssignFragments: %v", err)
	}
	if len(result.Fragments) != 2 {
		t.Fatalf("expected both fragments assigned to the sole slave, got %v", result.Fragments)
	}

	if err := m.FinishedFragment(context.Background(), result.Fragments[0], nil, []string{"log/user/linked"}); err != nil {
		t.Fatalf("FinishedFragment: %v", err)
	}

	m.mu.Lock()
	if !m.finished[result.Fragments[0]] {
		t.Fatal("expected fragment marked finished")
	}
	if !m.linkedLogs["log/user/linked"] {
		t.Fatal("expected linked log recorded")
	}
	if _, stillAssigned := m.assigned[result.Fragments[0]]; stillAssigned {
		t.Fatal("expected fragment removed from assigned set")
	}
	m.mu.Unlock()
}

func TestMasterFinishedFragmentErrorMovesFragmentAside(t *testing.T) {
	m, fs, notifier := newTestMaster(t)
	ctx := context.Background()

	if err := fs.Mkdirs(ctx, "/errors"); err != nil {
		t.Fatalf("Mkdirs: %v", err)
	}
	if err := fs.Mkdirs(ctx, "/log/user"); err != nil {
		t.Fatalf("Mkdirs: %v", err)
	}
	wh, err := fs.Create(ctx, "/log/user/fragment1", true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, _ = wh.Write([]byte("data"))
	wh.Close()

	m.mu.Lock()
	m.assigned["/log/user/fragment1"] = types.Location("rs1")
	m.mu.Unlock()

	if err := m.FinishedFragment(ctx, "/log/user/fragment1", context.DeadlineExceeded, nil); err != nil {
		t.Fatalf("FinishedFragment: %v", err)
	}

	if exists, _ := fs.Exists(ctx, "/log/user/fragment1"); exists {
		t.Fatal("expected fragment moved out of its original location")
	}

	found := false
	for _, e := range notifier.events {
		if e.Type == events.EventFragmentError {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a fragment-error notification")
	}
}

func TestMasterHandleSlaveDisconnectReassignsFragments(t *testing.T) {
	m, _, notifier := newTestMaster(t)

	m.mu.Lock()
	m.localSlaves[types.Location("rs1")] = "127.0.0.1:9001"
	m.assigned["log/user/a"] = types.Location("rs1")
	m.assigned["log/user/b"] = types.Location("rs2")
	m.mu.Unlock()

	m.HandleSlaveDisconnect(types.Location("rs1"))

	m.mu.Lock()
	if !m.unassigned["log/user/a"] {
		t.Fatal("expected rs1's fragment returned to the unassigned pool")
	}
	if _, ok := m.assigned["log/user/b"]; !ok {
		t.Fatal("expected rs2's fragment left alone")
	}
	if _, known := m.localSlaves[types.Location("rs1")]; known {
		t.Fatal("expected rs1 forgotten as a known slave")
	}
	m.mu.Unlock()

	found := false
	for _, e := range notifier.events {
		if e.Type == events.EventSlaveLost {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a slave-lost notification")
	}
}

type fakeMasterClient struct {
	applied []string
	lists   map[string][]string
}

func (c *fakeMasterClient) ApplySchemaUpdate(_ context.Context, cluster string, _ SchemaUpdateKind, tableName, _ string) error {
	c.applied = append(c.applied, cluster+"/"+tableName)
	return nil
}

func (c *fakeMasterClient) GetReceiverList(_ context.Context, cluster string) ([]string, error) {
	return c.lists[cluster], nil
}

func TestMasterHandleSchemaUpdatePropagatesAndPersists(t *testing.T) {
	m, _, notifier := newTestMaster(t)
	client := &fakeMasterClient{}

	err := m.HandleSchemaUpdate(context.Background(), SchemaUpdateCreateTable, "1", "orders", []string{"cluster-b"}, "schema-xml", client)
	if err != nil {
		t.Fatalf("HandleSchemaUpdate: %v", err)
	}

	if len(client.applied) != 1 || client.applied[0] != "cluster-b/orders" {
		t.Fatalf("expected schema update applied to cluster-b, got %v", client.applied)
	}

	found := false
	for _, e := range notifier.events {
		if e.Type == events.EventSchemaUpdated {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a schema-update notification")
	}

	tables := m.ReplicatedTables()
	if dests, ok := tables["1"]; !ok || len(dests) != 1 || dests[0] != "cluster-b" {
		t.Fatalf("expected table 1 replicated to cluster-b, got %v", tables)
	}
}

func TestMasterApplySchemaUpdateIsIdempotentByGeneration(t *testing.T) {
	m, _, _ := newTestMaster(t)

	calls := 0
	apply := func(_ context.Context, _ SchemaUpdateKind, _, _ string) error {
		calls++
		return nil
	}

	if err := m.ApplySchemaUpdate(context.Background(), SchemaUpdateCreateTable, "orders", "schema-v1", 5, apply); err != nil {
		t.Fatalf("ApplySchemaUpdate: %v", err)
	}
	if err := m.ApplySchemaUpdate(context.Background(), SchemaUpdateAlterTable, "orders", "schema-v1-stale", 3, apply); err != nil {
		t.Fatalf("ApplySchemaUpdate (stale): %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the stale generation to be skipped, apply called %d times", calls)
	}

	if err := m.ApplySchemaUpdate(context.Background(), SchemaUpdateAlterTable, "orders", "schema-v2", 6, apply); err != nil {
		t.Fatalf("ApplySchemaUpdate (newer): %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected the newer generation to apply, apply called %d times", calls)
	}
}

func TestMasterAcquireLockTestModeAlwaysSucceeds(t *testing.T) {
	m, _, _ := newTestMaster(t)
	ok, err := m.AcquireLock(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected test-mode acquire to succeed, got ok=%v err=%v", ok, err)
	}
	if err := m.ReleaseLock(context.Background()); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
}

func TestMasterAcquireLockExclusiveAcrossTwoMasters(t *testing.T) {
	store1, err := metalog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("metalog.Open: %v", err)
	}
	defer store1.Close()
	store2, err := metalog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("metalog.Open: %v", err)
	}
	defer store2.Close()

	fs1, err := dfs.NewLocalFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("dfs.NewLocalFilesystem: %v", err)
	}
	hs := hyperspace.NewInMemoryService()

	m1, err := New(store1, fs1, hs, &noopNotifier{}, Config{ServerDir: "/servers", ErrorDir: "/errors"})
	if err != nil {
		t.Fatalf("New m1: %v", err)
	}
	m2, err := New(store2, fs1, hs, &noopNotifier{}, Config{ServerDir: "/servers", ErrorDir: "/errors"})
	if err != nil {
		t.Fatalf("New m2: %v", err)
	}

	ok1, err := m1.AcquireLock(context.Background())
	if err != nil || !ok1 {
		t.Fatalf("expected m1 to win the lock, ok=%v err=%v", ok1, err)
	}
	ok2, err := m2.AcquireLock(context.Background())
	if err != nil {
		t.Fatalf("AcquireLock m2: %v", err)
	}
	if ok2 {
		t.Fatal("expected m2 to fail to acquire the already-held lock")
	}

	if err := m1.ReleaseLock(context.Background()); err != nil {
		t.Fatalf("ReleaseLock m1: %v", err)
	}
	ok2, err = m2.AcquireLock(context.Background())
	if err != nil || !ok2 {
		t.Fatalf("expected m2 to acquire after m1 released, ok=%v err=%v", ok2, err)
	}
}
