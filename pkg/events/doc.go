/*
Package events provides an in-memory broker for state-change push
notifications (RFC 8620 §7): a lightweight, topic-agnostic bus that fans
every committed write batch's StateChange out to connected EventSource
streams and PushSubscription dispatchers.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Non-blocking publish                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Publish → Event Channel (buf: 100)         │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop                              │          │
	│  │       ↓                                      │          │
	│  │  Subscriber Channels (buf: 50 each)          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

Every StateChange carries an AccountID and a TypeState bitmask of which
collections the committing batch touched, matching the shape of RFC 8620
§7.1's StateChange push object (`{"@type":"StateChange","changed":{...}}`)
without committing to a wire encoding here — that belongs to the transport
layer translating a Subscriber's stream into JSON.

# Delivery semantics

A subscriber with a full buffer silently drops the newest event rather
than blocking the broadcast loop: one slow EventSource connection must
never stall delivery to every other subscriber. A client that misses an
event this way still recovers, since it can always re-derive the current
state via Foo/changes against the change log — the broker is a low-latency
notification path, not the source of truth.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&events.StateChange{Account: acct, Types: touched})
*/
package events
