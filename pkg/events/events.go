// Package events adapts _examples/cuemby-warren's own event broker (a
// buffered channel of subscribers, broadcasting with a non-blocking
// send that drops on a full buffer) into the administrator-notification
// surface spec §7 requires: every long-running subsystem publishes
// lifecycle and failure events here, and pkg/admin turns the ones that
// matter to an operator into a severity-tagged notification.
package events

import (
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	EventServerFailed       EventType = "server.failed"
	EventServerRecovered    EventType = "server.recovered"
	EventRecoveryBlocked    EventType = "recovery.blocked"
	EventRecoveryFailed     EventType = "recovery.failed_permanently"
	EventCorruptFragment    EventType = "commitlog.corrupt_fragment"
	EventFragmentReplicated EventType = "replication.fragment_replicated"
	EventFragmentError      EventType = "replication.fragment_error"
	EventSlaveLost          EventType = "replication.slave_lost"
	EventSlaveRegistered    EventType = "replication.slave_registered"
	EventSchemaUpdated      EventType = "replication.schema_updated"
)

// Severity classifies an Event the way spec §7's administrator hook
// does: NOTICE for routine lifecycle events, ERROR for failures an
// operator should act on.
type Severity string

const (
	SeverityNotice Severity = "notice"
	SeverityError  Severity = "error"
)

// Event represents one thing worth telling an operator, or a subscriber
// tailing the broker (e.g. a `status` CLI command), about.
type Event struct {
	ID        string
	Type      EventType
	Severity  Severity
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker manages event subscriptions and distribution.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
