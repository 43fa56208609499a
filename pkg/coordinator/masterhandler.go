package coordinator

import (
	"context"
	"time"

	"github.com/cuemby/rangevault/pkg/log"
	"github.com/cuemby/rangevault/pkg/replication"
	"github.com/cuemby/rangevault/pkg/types"
)

// masterHandler adapts *replication.Master onto rangerpc.MasterHandler,
// the narrow-interface pattern pkg/rangerpc's doc.go already documents
// for Resolver: rangerpc never imports pkg/replication's concrete types
// beyond what the handler interface needs, and the mismatch between the
// wire signature (string kind, no generation) and Master's signature
// (SchemaUpdateKind, explicit generation) is bridged here rather than by
// changing either package.
type masterHandler struct {
	master *replication.Master
}

func newMasterHandler(master *replication.Master) *masterHandler {
	return &masterHandler{master: master}
}

func (h *masterHandler) AssignFragments(ctx context.Context, location types.Location, slaveAddr string) (replication.AssignmentResult, error) {
	return h.master.AssignFragments(ctx, location, slaveAddr)
}

func (h *masterHandler) FinishedFragment(ctx context.Context, fragment string, ferr error, linkedLogs []string) error {
	return h.master.FinishedFragment(ctx, fragment, ferr, linkedLogs)
}

func (h *masterHandler) GetReceiverList(_ context.Context) ([]string, error) {
	return h.master.LocalSlaveAddrs(), nil
}

// ApplySchemaUpdate is called when a remote cluster's master propagates
// notify_schema_update to this one. Table materialization (actually
// creating or altering the table against this cluster's own metadata) is
// out of scope here — no schema-management component exists yet in this
// repository — so the apply callback only records the schema generation
// and logs; see DESIGN.md.
func (h *masterHandler) ApplySchemaUpdate(ctx context.Context, kind, tableName, _ /* tableID */, schema string) error {
	k := replication.SchemaUpdateCreateTable
	if kind == "alter_table" {
		k = replication.SchemaUpdateAlterTable
	}

	generation := uint64(time.Now().UnixNano())
	return h.master.ApplySchemaUpdate(ctx, k, tableName, schema, generation,
		func(ctx context.Context, kind replication.SchemaUpdateKind, tableName, schema string) error {
			log.WithComponent("coordinator").Info().
				Str("table", tableName).Str("kind", kind.String()).Msg("schema update materialization is a stub")
			return nil
		})
}

func (h *masterHandler) Status(_ context.Context) (string, error) {
	return "ok", nil
}

func (h *masterHandler) Shutdown(_ context.Context) error {
	return nil
}
