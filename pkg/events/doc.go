/*
Package events provides an in-memory event broker used to surface
range-server and replication lifecycle events to an operator.

The broker is a buffered pub/sub bus: Publish hands the event to an
internal channel buffered to 100 events, blocking the caller while that
buffer is full and dropping the event only if the broker itself has
been stopped, and broadcast to
subscribers is itself non-blocking (a subscriber with a full buffer
misses the event rather than stalling every other subscriber).
pkg/admin wraps a Broker and turns the handful of event types an
operator should act on into administrator notifications; pkg/recovery
and pkg/replication publish through a Broker.Publish method value
(recovery.EventNotifier, wired without either package importing the
other's concrete type) rather than importing this package's Broker
directly.

# Event types

	EventServerFailed        a range server stopped responding; a
	                          recovery operation is starting
	EventServerRecovered     every range a failed server held has
	                          been reassigned
	EventRecoveryBlocked     a recovery phase is waiting on quorum
	                          or a destination that hasn't responded
	EventRecoveryFailed      a recovery operation could not complete
	                          and needs operator attention
	EventCorruptFragment     a commitlog fragment failed its
	                          checksum during replay
	EventFragmentReplicated  a replication fragment finished shipping
	                          to every slave
	EventFragmentError       a replication fragment failed partway
	                          through shipping
	EventSlaveLost           a replication slave's connection dropped
	EventSlaveRegistered     a replication slave registered with the
	                          master
	EventSchemaUpdated       a schema change finished propagating to
	                          every slave

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			log.Printf("%s: %s", event.Type, event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:     events.EventServerFailed,
		Severity: events.SeverityError,
		Message:  "recovery started for rangeserver-3",
	})

Do:
  - Always defer broker.Unsubscribe(sub)
  - Process events asynchronously in the subscriber goroutine
  - Include enough metadata on an Event to act on it without a
    follow-up lookup (location, fragment ID, table)

Don't:
  - Block in a subscriber's receive loop
  - Publish before broker.Start()
  - Rely on event delivery for correctness — a full subscriber buffer
    drops events, so nothing safety-critical should depend on one
    being seen
*/
package events
