package rangerpc

import (
	"bytes"
	"testing"

	"github.com/cuemby/rangevault/pkg/rangeerr"
	"github.com/cuemby/rangevault/pkg/types"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	var codec jsonCodec

	req := &AssignFragmentsRequest{SlaveLocation: types.Location("rs1"), SlaveAddr: "127.0.0.1:9001"}
	data, err := codec.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got := new(AssignFragmentsRequest)
	if err := codec.Unmarshal(data, got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.SlaveLocation != req.SlaveLocation || got.SlaveAddr != req.SlaveAddr {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, req)
	}
}

func TestJSONCodecName(t *testing.T) {
	var codec jsonCodec
	if codec.Name() != codecName {
		t.Fatalf("expected codec name %q, got %q", codecName, codec.Name())
	}
}

func TestWireErrorRoundTrip(t *testing.T) {
	original := rangeerr.New(rangeerr.KindCorruptCommitLog, "replay_fragments", "bad checksum")

	we := wireError("replay_fragments", original)
	if we == nil {
		t.Fatal("expected a non-nil WireError")
	}

	reconstructed := we.toError()
	if rangeerr.KindOf(reconstructed) != rangeerr.KindCorruptCommitLog {
		t.Fatalf("expected kind to survive the wire, got %v", rangeerr.KindOf(reconstructed))
	}

	if wireError("op", nil) != nil {
		t.Fatal("expected a nil error to produce a nil WireError")
	}
	var nilWE *WireError
	if nilWE.toError() != nil {
		t.Fatal("expected a nil WireError to reconstruct to a nil error")
	}
}

func TestReceiverPlanWireRoundTrip(t *testing.T) {
	plan := map[types.QualifiedRange]types.Location{
		{Table: types.TableId{Name: "orders"}, Range: types.RangeSpec{EndRow: "m"}}: types.Location("rs1"),
		{Table: types.TableId{Name: "orders"}, Range: types.RangeSpec{EndRow: "z"}}: types.Location("rs2"),
	}

	wire := receiverPlanToWire(plan)
	if len(wire) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(wire))
	}

	back := receiverPlanFromWire(wire)
	if len(back) != len(plan) {
		t.Fatalf("expected %d entries back, got %d", len(plan), len(back))
	}
	for r, dest := range plan {
		if back[r] != dest {
			t.Fatalf("mismatch for %v: want %v got %v", r, dest, back[r])
		}
	}
}

func TestAssignFragmentsRequestJSONFields(t *testing.T) {
	var codec jsonCodec
	req := &AssignFragmentsRequest{SlaveLocation: "rs1", SlaveAddr: "10.0.0.1:9000"}
	data, err := codec.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Contains(data, []byte(`"slave_addr"`)) {
		t.Fatalf("expected snake_case json tags in encoded payload, got %s", data)
	}
}
