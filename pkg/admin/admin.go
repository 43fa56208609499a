// Package admin is the administrator-notification hook spec §7
// requires: every state machine that recovers locally from a
// "structural" or "timeout" error kind never escalates, but a "corrupt"
// or "bad key" kind, a permanently failed recovery, or a replication
// fragment error is always surfaced here, severity-tagged, so a single
// poison fragment or a stuck recovery cannot fail silently.
package admin

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rangevault/pkg/events"
	"github.com/cuemby/rangevault/pkg/log"
)

// Hook fans a notification out to the event broker (for a `status` CLI
// command or any other subscriber) and to the structured log, tagging
// severity from the event's Type if the caller did not set one
// explicitly.
type Hook struct {
	broker *events.Broker
	log    zerolog.Logger
}

// New constructs a Hook that publishes through broker.
func New(broker *events.Broker) *Hook {
	return &Hook{broker: broker, log: log.WithComponent("admin")}
}

// Notify implements the AdminNotifier interface consumed by
// pkg/recovery and pkg/replication.
func (h *Hook) Notify(event *events.Event) {
	if event.Severity == "" {
		event.Severity = severityFor(event.Type)
	}
	if h.broker != nil {
		h.broker.Publish(event)
	}

	entry := h.log.Info()
	if event.Severity == events.SeverityError {
		entry = h.log.Error()
	}
	entry.Str("event_type", string(event.Type)).Fields(metadataFields(event.Metadata)).Msg(event.Message)
}

func metadataFields(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func severityFor(t events.EventType) events.Severity {
	switch t {
	case events.EventRecoveryFailed, events.EventCorruptFragment, events.EventFragmentError, events.EventSlaveLost:
		return events.SeverityError
	default:
		return events.SeverityNotice
	}
}

// FailoverStarted builds the (a) "failover start" notification of spec §7.
func FailoverStarted(location string) *events.Event {
	return &events.Event{
		Type:     events.EventServerFailed,
		Severity: events.SeverityNotice,
		Message:  fmt.Sprintf("range server %s failed, recovery starting", location),
		Metadata: map[string]string{"location": location},
	}
}

// FailoverCompleted builds the (a) "failover end" notification.
func FailoverCompleted(location string, elapsed time.Duration) *events.Event {
	return &events.Event{
		Type:     events.EventServerRecovered,
		Severity: events.SeverityNotice,
		Message:  fmt.Sprintf("recovery of %s complete in %s", location, elapsed.Round(time.Millisecond)),
		Metadata: map[string]string{"location": location},
	}
}

// CorruptFragment builds the (b) "corrupt log fragment" notification.
func CorruptFragment(path string, cause error) *events.Event {
	return &events.Event{
		Type:     events.EventCorruptFragment,
		Severity: events.SeverityError,
		Message:  fmt.Sprintf("fragment %s is corrupt and was moved aside: %v", path, cause),
		Metadata: map[string]string{"path": path},
	}
}

// RecoveryPermanentFailure builds the (c) "permanent recovery failure"
// notification, raised when a sub-operation keeps failing after repeated
// retries rather than a single transient error.
func RecoveryPermanentFailure(location string, class string, attempts int, cause error) *events.Event {
	return &events.Event{
		Type:     events.EventRecoveryFailed,
		Severity: events.SeverityError,
		Message:  fmt.Sprintf("recovery of %s/%s has failed %d times: %v", location, class, attempts, cause),
		Metadata: map[string]string{"location": location, "class": class},
	}
}

// ReplicationFragmentError builds the (d) "replication fragment error"
// notification.
func ReplicationFragmentError(path string, cause error) *events.Event {
	return &events.Event{
		Type:     events.EventFragmentError,
		Severity: events.SeverityError,
		Message:  fmt.Sprintf("replication of fragment %s failed: %v", path, cause),
		Metadata: map[string]string{"path": path},
	}
}

// SlaveLost notes that a replication slave's Hyperspace session dropped
// and its assignments were returned to the unassigned pool.
func SlaveLost(location string) *events.Event {
	return &events.Event{
		Type:     events.EventSlaveLost,
		Severity: events.SeverityError,
		Message:  fmt.Sprintf("replication slave %s lost, its fragments were reassigned", location),
		Metadata: map[string]string{"location": location},
	}
}

// SlaveRegistered notes that a new replication slave has announced
// itself to the local master for the first time.
func SlaveRegistered(location, address string) *events.Event {
	return &events.Event{
		Type:     events.EventSlaveRegistered,
		Severity: events.SeverityNotice,
		Message:  fmt.Sprintf("replication slave %s (%s) registered", location, address),
		Metadata: map[string]string{"location": location, "address": address},
	}
}

// SchemaUpdatePropagated notes that a schema change was forwarded to a
// remote cluster's replication master.
func SchemaUpdatePropagated(tableName, cluster string) *events.Event {
	return &events.Event{
		Type:     events.EventSchemaUpdated,
		Severity: events.SeverityNotice,
		Message:  fmt.Sprintf("schema update for %s propagated to cluster %s", tableName, cluster),
		Metadata: map[string]string{"table": tableName, "cluster": cluster},
	}
}
