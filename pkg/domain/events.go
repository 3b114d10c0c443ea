package domain

import "time"

// ---------------------------------------------------------------------------
// Domain events
// ---------------------------------------------------------------------------

// EventType classifies domain events for routing and filtering.
type EventType string

const (
	// Resource context events
	EventResourceCreated EventType = "resource.created"
	EventResourceUpdated EventType = "resource.updated"
	EventResourceDeleted EventType = "resource.deleted"

	// Child collection events
	EventChildSaved   EventType = "child.saved"
	EventChildUpdated EventType = "child.updated"
	EventChildDeleted EventType = "child.deleted"

	// Maintenance events
	EventStoreOptimized EventType = "store.optimized"

	EventSystemStartup  EventType = "system.startup"
	EventSystemShutdown EventType = "system.shutdown"
)

// Event is the interface all domain events implement.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() EntityID
	Payload() interface{}
}

// BaseEvent provides a reusable implementation of the Event interface.
type BaseEvent struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	AggID     EntityID    `json:"aggregate_id"`
	EventData interface{} `json:"data,omitempty"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() EntityID { return e.AggID }
func (e BaseEvent) Payload() interface{}  { return e.EventData }

// NewEvent creates a new domain event.
func NewEvent(eventType EventType, aggregateID EntityID, data interface{}) BaseEvent {
	return BaseEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		AggID:     aggregateID,
		EventData: data,
	}
}

// ChildChange is the payload of child.* events.
type ChildChange struct {
	Kind      string     `json:"kind"`
	Operation Operation  `json:"operation"`
	ChildIDs  []EntityID `json:"child_ids,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
}

// ---------------------------------------------------------------------------
// Event bus
// ---------------------------------------------------------------------------

// EventHandler processes a domain event. Handlers should be idempotent.
type EventHandler func(Event)

// EventBus dispatches domain events to registered handlers.
type EventBus interface {
	// Publish dispatches an event to all registered handlers.
	Publish(event Event)
	Subscribe(eventType EventType, handler EventHandler)
	// SubscribeAll registers a handler that receives every event.
	SubscribeAll(handler EventHandler)
	Close()
}
