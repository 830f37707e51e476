package events

import (
	"sync"
	"time"

	"github.com/jmapstore/core/pkg/types"
)

// StateChange is the notification a write pipeline batch commit produces:
// which account changed, and which collections within it, per RFC 8620
// §7.1's "StateChange" push object. Subscribers (EventSource long-poll
// connections, PushSubscription webhook dispatch) fan this out to clients
// without re-deriving it from the change log themselves.
type StateChange struct {
	Account   types.AccountID
	Types     types.TypeState
	Timestamp time.Time
}

// Subscriber is a channel that receives state changes for one client
// connection (an EventSource stream or a PushSubscription dispatcher).
type Subscriber chan *StateChange

// Broker manages subscriptions and distributes every StateChange Publish
// receives to every current subscriber.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *StateChange
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *StateChange, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish fans a state change out to every current subscriber, stamping
// Timestamp with the current time when it is zero. The write pipeline
// does not call it; the caller builds Types itself.
func (b *Broker) Publish(change *StateChange) {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- change:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case change := <-b.eventCh:
			b.broadcast(change)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(change *StateChange) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- change:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
