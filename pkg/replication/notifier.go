package replication

import "github.com/cuemby/rangevault/pkg/events"

// AdminNotifier is told about replication events worth surfacing to an
// operator: slave registration/loss, fragment errors, schema-update
// propagation. Mirrors pkg/recovery's notifier shape so both packages can
// share a single *admin.Hook without either importing the other.
type AdminNotifier interface {
	Notify(event *events.Event)
}

// EventNotifier adapts an events.Broker's Publish method into an
// AdminNotifier.
type EventNotifier struct {
	Publish func(event *events.Event)
}

// Notify implements AdminNotifier.
func (n EventNotifier) Notify(event *events.Event) {
	if n.Publish != nil {
		n.Publish(event)
	}
}
