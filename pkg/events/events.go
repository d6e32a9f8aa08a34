package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of deployment lifecycle event
type EventType string

const (
	EventRunStarted       EventType = "run.started"
	EventRunCompleted     EventType = "run.completed"
	EventRunFailed        EventType = "run.failed"
	EventBatchStarted     EventType = "batch.started"
	EventBatchCompleted   EventType = "batch.completed"
	EventDomainStarted    EventType = "domain.started"
	EventDomainCompleted  EventType = "domain.completed"
	EventDomainWarned     EventType = "domain.completed_with_warnings"
	EventDomainFailed     EventType = "domain.failed"
	EventPhaseStarted     EventType = "phase.started"
	EventPhaseCompleted   EventType = "phase.completed"
	EventPhaseFailed      EventType = "phase.failed"
	EventRollbackStarted  EventType = "rollback.started"
	EventRollbackFinished EventType = "rollback.finished"
)

// Event is one deployment lifecycle notification
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Domain    string
	Phase     string
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans deployment lifecycle events out to subscribers. It is the
// ephemeral in-process stream (the CLI renders progress from it); the
// durable record is the state manager's audit log.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Idempotent.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns its channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish delivers an event to all subscribers. A nil broker is a
// no-op, so components can publish unconditionally.
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
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
