package replication

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cuemby/rangevault/pkg/commitlog"
	"github.com/cuemby/rangevault/pkg/dfs"
	"github.com/cuemby/rangevault/pkg/types"
)

type fakeLocalMaster struct {
	mu         sync.Mutex
	assignment AssignmentResult
	finished   map[string]error
	linkedLogs map[string][]string
}

func (f *fakeLocalMaster) AssignFragments(_ context.Context, _ types.Location, _ string) (AssignmentResult, error) {
	return f.assignment, nil
}

func (f *fakeLocalMaster) FinishedFragment(_ context.Context, fragment string, ferr error, linkedLogs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished == nil {
		f.finished = make(map[string]error)
		f.linkedLogs = make(map[string][]string)
	}
	f.finished[fragment] = ferr
	f.linkedLogs[fragment] = linkedLogs
	return nil
}

type fakeRemoteSlave struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeRemoteSlave) Update(_ context.Context, addr, tableName string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[addr] {
		return errors.New("simulated RPC failure")
	}
	f.calls = append(f.calls, addr+"/"+tableName+"/"+string(payload))
	return nil
}

func writeFragment(t *testing.T, fs dfs.Filesystem, path string, clusterID uint64, blocks ...[]byte) {
	t.Helper()
	wh, err := fs.Create(context.Background(), path, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer wh.Close()

	w := commitlog.NewWriter(wh)
	for _, b := range blocks {
		if err := w.WriteData(1, clusterID, b); err != nil {
			t.Fatalf("WriteData: %v", err)
		}
	}
	if err := wh.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func newTestSlave(t *testing.T, local LocalMasterClient, remote RemoteSlaveClient) (*Slave, dfs.Filesystem) {
	t.Helper()
	fs, err := dfs.NewLocalFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("dfs.NewLocalFilesystem: %v", err)
	}
	s := NewSlave(types.Location("rs1"), 42, local, remote, fs, &noopNotifier{})
	s.replicatedTables = map[string][]string{"1": {"cluster-b"}}
	s.tableNames = map[string]string{"1": "orders"}
	s.clusterSlaves = map[string][]string{"cluster-b": {"10.0.0.1:9000"}}
	return s, fs
}

func TestSlaveProcessFragmentShipsReplicatedTableRows(t *testing.T) {
	local := &fakeLocalMaster{}
	remote := &fakeRemoteSlave{fail: map[string]bool{}}
	s, fs := newTestSlave(t, local, remote)

	block := EncodeBlock("1", []byte("row-1"))
	writeFragment(t, fs, "/log/user/fragment1", 42, block)

	if err := s.ProcessFragment(context.Background(), "/log/user/fragment1"); err != nil {
		t.Fatalf("ProcessFragment: %v", err)
	}

	if len(remote.calls) != 1 || remote.calls[0] != "10.0.0.1:9000/orders/row-1" {
		t.Fatalf("expected one Update call shipping row-1, got %v", remote.calls)
	}
	if ferr, ok := local.finished["/log/user/fragment1"]; !ok || ferr != nil {
		t.Fatalf("expected fragment reported finished without error, got ok=%v err=%v", ok, ferr)
	}
}

func TestSlaveProcessFragmentSkipsForeignClusterBlocks(t *testing.T) {
	local := &fakeLocalMaster{}
	remote := &fakeRemoteSlave{fail: map[string]bool{}}
	s, fs := newTestSlave(t, local, remote)

	block := EncodeBlock("1", []byte("row-1"))
	writeFragment(t, fs, "/log/user/fragment1", 99, block)

	if err := s.ProcessFragment(context.Background(), "/log/user/fragment1"); err != nil {
		t.Fatalf("ProcessFragment: %v", err)
	}
	if len(remote.calls) != 0 {
		t.Fatalf("expected no Update calls for a foreign cluster's block, got %v", remote.calls)
	}
}

func TestSlaveProcessFragmentSkipsUnreplicatedTable(t *testing.T) {
	local := &fakeLocalMaster{}
	remote := &fakeRemoteSlave{fail: map[string]bool{}}
	s, fs := newTestSlave(t, local, remote)

	block := EncodeBlock("unknown-table", []byte("row-1"))
	writeFragment(t, fs, "/log/user/fragment1", 42, block)

	if err := s.ProcessFragment(context.Background(), "/log/user/fragment1"); err != nil {
		t.Fatalf("ProcessFragment: %v", err)
	}
	if len(remote.calls) != 0 {
		t.Fatalf("expected no Update calls for a table not configured to replicate, got %v", remote.calls)
	}
}

func TestSlaveProcessFragmentRecordsLinkedLogs(t *testing.T) {
	local := &fakeLocalMaster{}
	remote := &fakeRemoteSlave{fail: map[string]bool{}}
	s, fs := newTestSlave(t, local, remote)

	wh, err := fs.Create(context.Background(), "/log/user/fragment1", true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w := commitlog.NewWriter(wh)
	if err := w.WriteLink(1, 42, "/log/user/linked-dir"); err != nil {
		t.Fatalf("WriteLink: %v", err)
	}
	wh.Close()

	if err := s.ProcessFragment(context.Background(), "/log/user/fragment1"); err != nil {
		t.Fatalf("ProcessFragment: %v", err)
	}

	logs := local.linkedLogs["/log/user/fragment1"]
	if len(logs) != 1 || logs[0] != "/log/user/linked-dir" {
		t.Fatalf("expected linked directory reported, got %v", logs)
	}
}

func TestSlaveSendToClusterRoundRobinsOnFailure(t *testing.T) {
	local := &fakeLocalMaster{}
	remote := &fakeRemoteSlave{fail: map[string]bool{"10.0.0.1:9000": true}}
	s, _ := newTestSlave(t, local, remote)
	s.clusterSlaves["cluster-b"] = []string{"10.0.0.1:9000", "10.0.0.2:9000"}

	if err := s.sendToCluster(context.Background(), "cluster-b", "orders", []byte("row")); err != nil {
		t.Fatalf("sendToCluster: %v", err)
	}
	if len(remote.calls) != 1 || remote.calls[0] != "10.0.0.2:9000/orders/row" {
		t.Fatalf("expected the second address to receive the row after the first failed, got %v", remote.calls)
	}

	s.mu.Lock()
	cursor := s.slaveCursor["cluster-b"]
	s.mu.Unlock()
	if cursor != 0 {
		t.Fatalf("expected cursor to wrap back to 0 after succeeding on index 1, got %d", cursor)
	}
}

func TestSlaveSendToClusterUnknownClusterErrors(t *testing.T) {
	local := &fakeLocalMaster{}
	remote := &fakeRemoteSlave{fail: map[string]bool{}}
	s, _ := newTestSlave(t, local, remote)

	err := s.sendToCluster(context.Background(), "cluster-ghost", "orders", []byte("row"))
	if err == nil {
		t.Fatal("expected an error for an unknown destination cluster")
	}
}

func TestDecodeEncodeBlockRoundTrip(t *testing.T) {
	encoded := EncodeBlock("table-7", []byte("payload-bytes"))
	tableID, rows, ok := decodeBlock(encoded)
	if !ok {
		t.Fatal("expected decodeBlock to succeed")
	}
	if tableID != "table-7" || !bytes.Equal(rows, []byte("payload-bytes")) {
		t.Fatalf("round trip mismatch: tableID=%q rows=%q", tableID, rows)
	}
}
