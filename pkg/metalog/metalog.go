// Package metalog persists the tagged-variant entities every other
// component needs to survive a restart: Range state, RemoveOkLogs,
// BalancePlanAuthority, open recovery operations, and the replication
// master's own state. One entity kind, one bucket; the payload is opaque
// JSON to this package, so adding a new entity kind never requires a
// schema change here.
package metalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// Kind tags the concrete entity type a payload decodes to. This is the
// "tagged-variant Entity" shape: one Kind per concrete type, dispatch on
// the tag, no subclassing.
type Kind string

const (
	KindRange                   Kind = "range"
	KindRemoveOkLogs            Kind = "remove_ok_logs"
	KindBalancePlanAuthority    Kind = "balance_plan_authority"
	KindRecoverServer           Kind = "recover_server"
	KindRecoverServerRanges     Kind = "recover_server_ranges"
	KindSchemaUpdateCreateTable Kind = "schema_update_create_table"
	KindSchemaUpdateAlterTable  Kind = "schema_update_alter_table"
	KindSchemaUpdateDropTable   Kind = "schema_update_drop_table"
	KindReplicationMaster       Kind = "replication_master"
	KindTaskRemoveTransferLog   Kind = "task_remove_transfer_log"
	KindTaskAcknowledgeRelinquish Kind = "task_acknowledge_relinquish"
)

// allKinds is the fixed bucket set created on open. A new Kind must be
// added here as well as above.
var allKinds = []Kind{
	KindRange,
	KindRemoveOkLogs,
	KindBalancePlanAuthority,
	KindRecoverServer,
	KindRecoverServerRanges,
	KindSchemaUpdateCreateTable,
	KindSchemaUpdateAlterTable,
	KindSchemaUpdateDropTable,
	KindReplicationMaster,
	KindTaskRemoveTransferLog,
	KindTaskAcknowledgeRelinquish,
}

// Store persists entities of every Kind, bucketed by Kind and keyed by a
// caller-chosen name within that Kind (e.g. a QualifiedRange.Key() for
// KindRange, or the fixed string "singleton" for KindBalancePlanAuthority).
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt-backed Store at
// <dataDir>/metalog.db.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "metalog.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("metalog: failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, kind := range allKinds {
			if _, err := tx.CreateBucketIfNotExists([]byte(kind)); err != nil {
				return fmt.Errorf("metalog: failed to create bucket %s: %w", kind, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes value, marshaled as JSON, under (kind, name). A mutation
// bumps no generation counter itself; callers whose entity carries a
// generation (BalancePlanAuthority, RecoveryPlan) are responsible for
// incrementing it before calling Put, matching the "every mutation bumps
// generation and rewrites the entry in full" rule of the Balance Plan
// Authority.
func (s *Store) Put(kind Kind, name string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("metalog: marshal %s/%s: %w", kind, name, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("metalog: unknown kind %s", kind)
		}
		return b.Put([]byte(name), data)
	})
}

// Get reads (kind, name) into out, returning (false, nil) if no entry
// exists.
func (s *Store) Get(kind Kind, name string, out interface{}) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("metalog: unknown kind %s", kind)
		}
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, out)
	})
	return found, err
}

// Delete removes (kind, name). It is not an error if it does not exist.
func (s *Store) Delete(kind Kind, name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("metalog: unknown kind %s", kind)
		}
		return b.Delete([]byte(name))
	})
}

// RawEntry is one (name, payload) pair returned by List.
type RawEntry struct {
	Name    string
	Payload json.RawMessage
}

// List returns every entry under kind, in bbolt's key order. Callers
// unmarshal each Payload into the concrete type they know corresponds to
// kind.
func (s *Store) List(kind Kind) ([]RawEntry, error) {
	var entries []RawEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("metalog: unknown kind %s", kind)
		}
		return b.ForEach(func(k, v []byte) error {
			payload := make(json.RawMessage, len(v))
			copy(payload, v)
			entries = append(entries, RawEntry{Name: string(k), Payload: payload})
			return nil
		})
	})
	return entries, err
}
